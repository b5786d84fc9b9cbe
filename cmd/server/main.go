// @title           Inkdex Ingestion API
// @version         1.0.0
// @description     Backend API for ingesting artist portfolio images. Downloads source images, generates display and thumbnail variants, computes CLIP embeddings, classifies visual styles against a seed set and tracks the work as supervised pipeline jobs.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"log"
	"net/http"

	"inkdex-backend/internal/cache"
	"inkdex-backend/internal/config"
	"inkdex-backend/internal/database"
	"inkdex-backend/internal/handlers"
	"inkdex-backend/internal/jobs"
	"inkdex-backend/internal/middleware"
	"inkdex-backend/internal/pipeline"
	"inkdex-backend/internal/supabase"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	// Run migrations
	migrator, err := database.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize migrator: %v", err)
	}
	if err := migrator.Run(); err != nil {
		migrator.Close()
		log.Fatalf("Migration failed: %v", err)
	}
	migrator.Close()
	log.Println("Migrations completed successfully")

	// Initialize Supabase clients
	supabaseClient, err := supabase.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize Supabase client: %v", err)
	}

	storageClient, err := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey, cfg.SupabaseStorageBucket)
	if err != nil {
		log.Fatalf("Failed to initialize storage client: %v", err)
	}

	realtimeClient := supabase.NewRealtimeClient(supabaseClient.Supabase)

	dbClient, err := supabase.NewDatabaseClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database client: %v", err)
	}
	defer dbClient.Close()

	// Cache invalidation is optional; without Redis the reconciler still
	// runs, it just has no cached views to drop.
	var invalidator *cache.Invalidator
	if cfg.RedisURL != "" {
		invalidator, err = cache.NewInvalidator(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to initialize cache invalidator: %v", err)
		}
		defer invalidator.Close()
	} else {
		log.Println("Warning: REDIS_URL not set, cache invalidation disabled")
	}

	// Pipeline
	embeddingClient := pipeline.NewEmbeddingClient(cfg.EmbeddingServiceURL, cfg.EmbeddingAPIKey)
	pipelineService := pipeline.NewService(
		pipeline.NewHostValidator(),
		pipeline.NewDownloader(),
		pipeline.NewTranscoder(),
		embeddingClient,
		storageClient,
		dbClient,
		pipeline.ServiceConfig{
			BatchConcurrency: cfg.BatchConcurrency,
			BatchTimeout:     cfg.BatchTimeout,
		},
	)
	retagger := pipeline.NewRetagger(dbClient)

	// Jobs
	jobService := jobs.NewService(dbClient, realtimeClient)
	reconciler := jobs.NewReconciler(dbClient, reconcilerInvalidator(invalidator), jobs.ReconcilerConfig{
		Interval:          cfg.ReconcileInterval,
		RunningStaleAfter: cfg.RunningStaleAfter,
		PendingStaleAfter: cfg.PendingStaleAfter,
	})
	reconcileCtx, stopReconciler := context.WithCancel(context.Background())
	defer stopReconciler()
	go reconciler.Run(reconcileCtx)

	// Handlers
	ingestHandler := handlers.NewIngestHandler(pipelineService, jobService)
	jobsHandler := handlers.NewJobsHandler(jobService, retagger)
	statusHandler := handlers.NewStatusHandler(dbClient)

	// Setup router
	router := gin.Default()

	// Middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Health check (no auth)
	router.GET("/health", handlers.HealthHandler)

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg))

	// Ingestion
	api.POST("/ingest", ingestHandler.IngestBatch)

	// Jobs
	api.POST("/jobs", jobsHandler.CreateJob)
	api.GET("/jobs/:job_id", jobsHandler.GetJob)
	api.POST("/jobs/:job_id/cancel", jobsHandler.CancelJob)

	// Pipeline overview
	api.GET("/pipeline/status", statusHandler.GetPipelineStatus)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on port %s", port)
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// reconcilerInvalidator keeps the reconciler's interface value nil when Redis
// is not configured, instead of a typed nil pointer.
func reconcilerInvalidator(inv *cache.Invalidator) jobs.CacheInvalidator {
	if inv == nil {
		return nil
	}
	return inv
}
