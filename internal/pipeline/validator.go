package pipeline

import (
	"fmt"
	"net/url"
	"strings"
)

// Trusted image CDNs. Downloads from anywhere else are refused before any
// network call is made (SSRF protection).
var defaultAllowedHosts = []string{
	"instagram.com",
	"cdninstagram.com",
	"fbcdn.net",
}

type HostValidator struct {
	hosts []string
}

// NewHostValidator builds a validator for the given trusted domains. A host
// passes if it equals a trusted domain or is a subdomain of one. With no
// arguments the default allow-list is used.
func NewHostValidator(hosts ...string) *HostValidator {
	if len(hosts) == 0 {
		hosts = defaultAllowedHosts
	}
	lowered := make([]string, len(hosts))
	for i, h := range hosts {
		lowered[i] = strings.ToLower(h)
	}
	return &HostValidator{hosts: lowered}
}

func (v *HostValidator) Validate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: unparseable url %q", ErrHostNotAllowed, rawURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrHostNotAllowed, parsed.Scheme)
	}

	hostname := strings.ToLower(parsed.Hostname())
	for _, allowed := range v.hosts {
		if hostname == allowed || strings.HasSuffix(hostname, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrHostNotAllowed, hostname)
}
