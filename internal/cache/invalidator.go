package cache

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// Patterns covering every cached admin view derived from pipeline state.
var pipelineCachePatterns = []string{
	"admin:dashboard:*",
	"admin:pipeline:*",
	"jobs:status:*",
}

// Invalidator drops cached views when pipeline state changes underneath them.
type Invalidator struct {
	client *redis.Client
}

func NewInvalidator(redisURL string) (*Invalidator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Invalidator{client: client}, nil
}

// InvalidatePipelineCaches deletes every key matching the pipeline view
// patterns. Callers batch state transitions and invoke this once per batch,
// not once per transition.
func (i *Invalidator) InvalidatePipelineCaches(ctx context.Context) error {
	var deleted int64
	for _, pattern := range pipelineCachePatterns {
		n, err := i.deleteByPattern(ctx, pattern)
		if err != nil {
			return fmt.Errorf("failed to invalidate %s: %w", pattern, err)
		}
		deleted += n
	}
	if deleted > 0 {
		log.Printf("Invalidated %d cached pipeline keys", deleted)
	}
	return nil
}

func (i *Invalidator) deleteByPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	iter := i.client.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 100 {
			n, err := i.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	if len(keys) > 0 {
		n, err := i.client.Del(ctx, keys...).Result()
		if err != nil {
			return deleted, err
		}
		deleted += n
	}

	return deleted, nil
}

func (i *Invalidator) Close() error {
	return i.client.Close()
}
