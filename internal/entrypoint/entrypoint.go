// Package entrypoint wires the application together and runs the HTTP
// server with graceful shutdown.
package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"

	"github.com/shelfmark/shelfmark/internal/audit"
	"github.com/shelfmark/shelfmark/internal/canonical"
	"github.com/shelfmark/shelfmark/internal/config"
	"github.com/shelfmark/shelfmark/internal/database"
	auditRepo "github.com/shelfmark/shelfmark/internal/database/audit"
	"github.com/shelfmark/shelfmark/internal/database/books"
	canonicalRepo "github.com/shelfmark/shelfmark/internal/database/canonical"
	"github.com/shelfmark/shelfmark/internal/database/sessions"
	"github.com/shelfmark/shelfmark/internal/database/tags"
	http_controllers "github.com/shelfmark/shelfmark/internal/http"
	"github.com/shelfmark/shelfmark/internal/importer"
	"github.com/shelfmark/shelfmark/internal/scheduler"
	"github.com/shelfmark/shelfmark/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop background work before the listener so in-flight requests can
	// still enqueue tasks.
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Shelfmark v%s", version)

	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	booksRepo := books.NewRepository(db.DB)
	sessionsRepo := sessions.NewRepository(db.DB)
	canonRepo := canonicalRepo.NewRepository(db.DB)
	tagsRepo := tags.NewRepository(db.DB)

	auditService := audit.NewService(auditRepo.NewRepository(db.DB))
	auditor := audit.NewAuditor(cfg.Audit.Dir)

	// Canonical resolution against the external catalog
	provider := canonical.NewOpenLibraryClient(cfg.Canonical.ProviderTimeout)
	if cfg.Canonical.ProviderBaseURL != "" {
		provider.SetBaseURL(cfg.Canonical.ProviderBaseURL)
	}
	weights := canonical.Weights{
		Title:  cfg.Canonical.TitleWeight,
		Author: cfg.Canonical.AuthorWeight,
		ISBN:   cfg.Canonical.ISBNWeight,
	}
	thresholds := canonical.Thresholds{
		Auto:    cfg.Canonical.AutoThreshold,
		Confirm: cfg.Canonical.ConfirmThreshold,
	}
	aliasCache := gocache.New(cfg.Canonical.CacheTTL, 2*cfg.Canonical.CacheTTL)
	resolver := canonical.NewResolver(provider, canonRepo, aliasCache,
		weights, thresholds, cfg.Canonical.ProviderTimeout)

	coordinator := importer.NewCoordinator(db, booksRepo, sessionsRepo,
		resolver, auditService, auditor, cfg.Import.ErrorBudget)

	// Task queue for background reconciliation and cleanup
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:           cfg.Tasks.Workers,
			MaxRetries:        cfg.Tasks.MaxRetries,
			RetryDelay:        cfg.Tasks.RetryDelay,
			TaskTimeout:       cfg.Tasks.TaskTimeout,
			ReleaseAfter:      cfg.Tasks.ReleaseAfter,
			CleanupInterval:   cfg.Tasks.CleanupInterval,
			RetentionDuration: cfg.Tasks.RetentionDuration,
		}

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.Register(
			tasks.NewResolveBookQueue(resolver),
			tasks.NewCleanupAuditEventsQueue(auditService),
			tasks.NewCleanupOrphanTagsQueue(tagsRepo),
		)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	}

	// Scheduled sweep over provisional canonical records
	var canonicalSync *scheduler.CanonicalSyncScheduler
	if taskClient != nil && cfg.CanonicalSync.Enabled {
		canonicalSync = scheduler.NewCanonicalSyncScheduler(canonRepo, taskClient,
			cfg.CanonicalSync.Schedule, cfg.CanonicalSync.BatchSize)
		if err := canonicalSync.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start canonical sync scheduler: %v", err)
		}
	}

	routerCfg := http_controllers.RouterConfig{
		Database:           db,
		Books:              booksRepo,
		Sessions:           sessionsRepo,
		Canonical:          canonRepo,
		Tags:               tagsRepo,
		Coordinator:        coordinator,
		Resolver:           resolver,
		AuditService:       auditService,
		AuditRetentionDays: cfg.Audit.RetentionDays,
		TaskClient:         taskClient,
		MaxUploadSize:      cfg.Import.MaxUploadSize,
		Version:            version,
	}
	router := http_controllers.NewRouter(routerCfg)

	Serve(router, cfg, func(ctx context.Context) {
		if canonicalSync != nil {
			canonicalSync.Stop()
		}
		if taskClient != nil {
			log.Printf("Stopping task queue workers...")
			if taskCtxCancel != nil {
				taskCtxCancel()
			}
			if !taskClient.Stop(ctx) {
				log.Printf("Task queue workers did not stop cleanly within timeout")
			}
		}
	})
}
