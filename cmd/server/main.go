package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/supplysync/server/docs"
	"github.com/supplysync/server/internal/config"
	"github.com/supplysync/server/internal/handlers"
	custommw "github.com/supplysync/server/internal/middleware"
	"github.com/supplysync/server/internal/observability"
	"github.com/supplysync/server/internal/processors"
	"github.com/supplysync/server/internal/repository"
	"github.com/supplysync/server/internal/services"
	"github.com/supplysync/server/internal/syncapi"
	"github.com/supplysync/server/internal/syncer"
	"github.com/supplysync/server/internal/translations"
)

// @title SupplySync Server API
// @version 1.0
// @description Changelog based sync between remote sites and a central server.
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @securityDefinitions.basic BasicAuth
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryConfig := observability.NewConfig("supplysync-server", handlers.Version).
		WithSite(string(cfg.Role), siteID(cfg))
	telemetry, err := observability.Initialize(ctx, telemetryConfig)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize services
	hashService := services.NewHashService()
	storageService, err := services.NewFileStorageService(
		cfg.FileStorage.BasePath,
		cfg.FileStorage.MaxFileSizeMB,
		hashService,
	)
	if err != nil {
		log.Fatalf("Failed to initialize storage service: %v", err)
	}

	syncMetrics, err := observability.NewSyncMetrics()
	if err != nil {
		log.Printf("Warning: sync metrics unavailable: %v", err)
		syncMetrics = nil
	}

	hub := services.NewWebSocketHub()
	go hub.Run(ctx)

	syncLogRepo := repository.NewSyncLogRepository(db)
	maintenanceService := services.NewMaintenanceService(
		repository.NewSyncBufferRepository(db),
		syncLogRepo,
		services.MaintenanceConfig{
			Interval:        time.Duration(cfg.Maintenance.IntervalMinutes) * time.Minute,
			BufferRetention: time.Duration(cfg.Maintenance.BufferRetentionHours) * time.Hour,
			SyncLogsToKeep:  cfg.Maintenance.SyncLogsToKeep,
		},
	)
	if cfg.Maintenance.Enabled {
		maintenanceService.Start()
		defer maintenanceService.Stop()
	}

	registry := translations.DefaultRegistry()

	// Setup router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.TracingMiddleware("supplysync-server"))
	if httpMetrics, err := observability.NewHTTPMetrics(); err == nil {
		r.Use(observability.MetricsMiddleware(httpMetrics))
	} else {
		log.Printf("Warning: HTTP metrics unavailable: %v", err)
	}

	healthHandler := handlers.NewHealthHandler(db, string(cfg.Role))
	r.Get("/health", healthHandler.HealthCheck)
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	adminHandler := handlers.NewAdminHandler(maintenanceService, hub)

	switch cfg.Role {
	case config.RoleCentral:
		central := syncer.NewCentralService(db, registry, cfg.Central.SiteID, storageService, syncMetrics)
		serverHandler := handlers.NewSyncServerHandler(central)
		r.Route(syncapi.BasePath, func(r chi.Router) {
			r.Use(custommw.SyncVersion)
			r.Use(custommw.SiteBasicAuth(cfg.Central.Sites, syncMetrics))
			serverHandler.Routes(r)
		})

		wsHandler := handlers.NewWebSocketHandler(hub, nil)
		r.Group(func(r chi.Router) {
			r.Use(custommw.APIKeyAuth(cfg.Security.APIKey, cfg.Security.APIKeyHeader))
			mountAPI(r, healthHandler, adminHandler, wsHandler, nil)
		})
		log.Printf("Serving sync protocol v%d for %d sites as central site %d",
			syncapi.Version, len(cfg.Central.Sites), cfg.Central.SiteID)

	case config.RoleRemote:
		client := syncapi.NewClient(syncapi.Config{
			BaseURL:      cfg.Sync.CentralURL,
			SiteName:     cfg.Sync.SiteName,
			PasswordHash: hashService.SitePassword(cfg.Sync.SitePassword),
			Timeout:      cfg.Sync.Timeout(),
			MaxRetries:   cfg.Sync.MaxRetries,
		})

		deps := syncer.Dependencies{
			FileStorage: storageService,
			Broadcaster: hub,
			Metrics:     syncMetrics,
		}
		if cfg.Sync.RunProcessors {
			deps.Processors = processors.NewRunner(db, cfg.Sync.SiteID, processors.Default()...)
		}

		synchroniser := syncer.NewSynchroniser(db, client, registry, syncer.Config{
			SiteID:          cfg.Sync.SiteID,
			CentralSiteID:   cfg.Sync.CentralSiteID,
			BatchSize:       cfg.Sync.BatchSize,
			RetainBuffer:    cfg.Sync.RetainBuffer,
			IntegrationWait: cfg.Sync.IntegrationWait(),
		}, deps)
		scheduler := syncer.NewScheduler(synchroniser, cfg.Sync.Interval())
		go scheduler.Run(ctx)

		// Admin reads go through the traced wrapper
		traced, err := observability.NewTraceDB(db)
		if err != nil {
			log.Fatalf("Failed to initialize database tracing: %v", err)
		}
		syncHandler := handlers.NewSyncHandler(
			synchroniser,
			scheduler,
			repository.NewSyncLogRepository(traced),
			repository.NewChangelogRepository(traced),
			repository.NewKeyValueRepository(traced),
		)
		wsHandler := handlers.NewWebSocketHandler(hub, synchroniser)
		r.Group(func(r chi.Router) {
			r.Use(custommw.APIKeyAuth(cfg.Security.APIKey, cfg.Security.APIKeyHeader))
			mountAPI(r, healthHandler, adminHandler, wsHandler, syncHandler)
		})
		log.Printf("Syncing site %d (%s) with %s every %s",
			cfg.Sync.SiteID, cfg.Sync.SiteName, cfg.Sync.CentralURL, cfg.Sync.Interval())
	}

	// Create server
	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Longer for file transfers
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("SupplySync Server (%s) starting on %s", cfg.Role, cfg.ServerAddress)
		log.Printf("File storage path: %s", cfg.FileStorage.BasePath)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		log.Printf("Telemetry shutdown failed: %v", err)
	}

	log.Println("Server stopped")
	os.Exit(0)
}

// siteID is the id of the site this process runs as
func siteID(cfg *config.Config) int32 {
	if cfg.Role == config.RoleCentral {
		return cfg.Central.SiteID
	}
	return cfg.Sync.SiteID
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	if cfg.UsePostgres() {
		log.Println("Using PostgreSQL database")
		observability.SetDBSystem("postgresql")
		return repository.NewPostgresDB(cfg.DatabaseURL)
	}
	log.Println("Using SQLite database")
	return repository.NewSQLiteDB(cfg.DatabasePath)
}

// mountAPI registers the API key protected routes. syncHandler is nil on the
// central server.
func mountAPI(r chi.Router, health *handlers.HealthHandler, admin *handlers.AdminHandler, ws *handlers.WebSocketHandler, syncHandler *handlers.SyncHandler) {
	r.Get("/api/health", health.HealthCheck)
	r.Get("/api/version", handlers.VersionHandler)

	r.Route("/api/admin", func(r chi.Router) {
		r.Get("/status", admin.GetStatus)
		r.Post("/maintenance", admin.RunMaintenance)
	})

	if syncHandler != nil {
		r.Route("/api/sync", func(r chi.Router) {
			r.Get("/status", syncHandler.GetStatus)
			r.Post("/trigger", syncHandler.Trigger)
			r.Get("/logs", syncHandler.ListLogs)
		})
		r.Get("/api/changelog", syncHandler.ListChangelog)
	}

	r.Get("/ws/sync", ws.HandleSyncConnection)
}
