package main

import (
	"context"
	"errors"
	"fmt"
	"go-classifieds-app/internal/audit"
	"go-classifieds-app/internal/auth"
	"go-classifieds-app/internal/cache"
	"go-classifieds-app/internal/config"
	"go-classifieds-app/internal/data"
	"go-classifieds-app/internal/handler"
	"go-classifieds-app/internal/logger"
	"go-classifieds-app/internal/metrics"
	"go-classifieds-app/internal/middleware"
	"go-classifieds-app/internal/search"
	"go-classifieds-app/internal/service"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig()
	if err != nil {
		// Use fmt.Printf here because the logger is not yet initialized.
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Initialization ---
	log := logger.New(cfg.Log, nil)

	// --- Database Initialization and Migration ---
	log.Info("Applying database migrations...")
	if err := data.ApplyMigrations(cfg.DB.DSN, "migrations"); err != nil {
		log.Fatal(err, "Failed to apply migrations")
	}
	log.Info("Migrations applied successfully.")

	log.Info("Connecting to the database...")
	db, err := data.NewDB(cfg.DB.DSN)
	if err != nil {
		log.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()
	log.Info("Database connection successful.")

	// --- Authentication and Authorization Setup ---
	log.Info("Initializing authentication and authorization...")
	authenticator, err := auth.NewAuthenticator(context.Background(), &cfg.OIDC)
	if err != nil {
		log.Fatal(err, "Failed to initialize authenticator")
	}
	enforcer, err := auth.NewEnforcer("mysql", cfg.DB.DSN, "auth_model.conf")
	if err != nil {
		log.Fatal(err, "Failed to initialize enforcer")
	}
	auth.SeedDefaultPolicies(enforcer, log)
	log.Info("Auth components initialized and policies seeded.")

	// --- Cache Initialization ---
	log.Info("Initializing SQLite field cache...")
	fieldCache, err := cache.New(cfg.Cache)
	if err != nil {
		log.Fatal(err, "Failed to initialize cache")
	}
	defer fieldCache.Close()
	log.Info("Cache initialized.")

	// --- Observability and Event Fan-out ---
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	var notifier search.Notifier = search.NoopNotifier{}
	if cfg.Redis.Addr != "" {
		notifier = search.NewRedisNotifier(cfg.Redis, log)
	}
	recorder := audit.NewSQLRecorder(db, log)

	// --- Dependency Injection and Handler Initialization ---
	// Initialize the application layers, injecting dependencies from top to bottom.
	gate := auth.NewGate()
	validate := validator.New()

	categoryRepository := data.NewCategoryRepository(db)
	hierarchyService := service.NewHierarchyService(categoryRepository, fieldCache, m, log)

	adStore := &service.AdStore{Repo: data.NewAdRepository(db)}
	companyStore := &service.CompanyStore{Repo: data.NewCompanyRepository(db)}
	adEngine := service.NewLifecycleService(adStore, categoryRepository, gate, cfg.Lifecycle, notifier, recorder, m, log)
	companyEngine := service.NewLifecycleService(companyStore, categoryRepository, gate, cfg.Lifecycle, notifier, recorder, m, log)

	categoryHandler := handler.NewCategoryHandler(hierarchyService, validate, log)
	adHandler := handler.NewAdHandler(adEngine, validate, log)
	companyHandler := handler.NewCompanyHandler(companyEngine, validate, log)

	identityMiddleware := middleware.Identity(authenticator, enforcer, log)
	authzMiddleware := middleware.Authorizer(enforcer)
	errorMiddleware := middleware.Error(log)

	// --- Router Setup ---
	// The router is the central hub that directs incoming requests to the correct handlers.
	router := handler.NewRouter(categoryHandler, adHandler, companyHandler, identityMiddleware, authzMiddleware, errorMiddleware, registry)

	// --- Background Sweep ---
	// The sweep persists flag and expiry corrections so that listings read
	// directly from the database stay honest.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runSweep(sweepCtx, cfg.Lifecycle.SweepInterval, log, adEngine, companyEngine)

	// --- Server Initialization and Graceful Shutdown ---
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		if cfg.Server.TLS.Enabled {
			log.Info(fmt.Sprintf("Starting HTTPS server on %s", server.Addr))
			if err := server.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal(err, "Could not start HTTPS server")
			}
		} else {
			log.Info(fmt.Sprintf("Starting HTTP server on %s", server.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal(err, "Could not start HTTP server")
			}
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Warn("Shutting down server...")
	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal(err, "Server forced to shutdown")
	}
	log.Info("Server exiting")
}

// runSweep periodically expires lapsed records across all subject kinds.
func runSweep(ctx context.Context, interval time.Duration, log logger.Logger, engines ...*service.LifecycleService) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, engine := range engines {
				updated, err := engine.Sweep(ctx)
				if err != nil {
					log.Error(err, "Lifecycle sweep failed")
					continue
				}
				if updated > 0 {
					log.Info(fmt.Sprintf("Lifecycle sweep corrected %d records", updated))
				}
			}
		}
	}
}
