package main

import (
	"context"
	"log"
	"net/http"

	"go.uber.org/zap"

	"github.com/goldfuse-inc/goldfuse-engine/pkg/config"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/database"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/handlers"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/logging"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/middleware"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/repositories"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/retry"
	"github.com/goldfuse-inc/goldfuse-engine/pkg/services"

	// Source adapters register themselves on import.
	_ "github.com/goldfuse-inc/goldfuse-engine/pkg/adapters/source/mssql"
	_ "github.com/goldfuse-inc/goldfuse-engine/pkg/adapters/source/postgres"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("port", cfg.Port),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())))

	ctx := context.Background()

	db, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to metadata database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	// Repositories
	sourceRepo := repositories.NewSourceRepository(db)
	runRepo := repositories.NewScanRunRepository(db)
	profileRepo := repositories.NewProfileRepository(db)
	candidateRepo := repositories.NewCandidateRepository(db)
	ruleRepo := repositories.NewRuleRepository(db)
	goldenRepo := repositories.NewGoldenObjectRepository(db)
	kpiRepo := repositories.NewKpiRepository(db)

	// Services
	registry := services.NewRegistryService(sourceRepo, logger)
	rules := services.NewRuleService(ruleRepo, logger)
	profiler := services.NewProfilerService(profileRepo, cfg.Scanner, logger)
	classifier := services.NewClassifierService(candidateRepo, logger)
	store := services.NewStoreService(goldenRepo, logger)
	resolver := services.NewResolverService(ruleRepo, store, cfg.Resolver, logger)
	kpi := services.NewKpiService(kpiRepo, goldenRepo, logger)
	coordinator := services.NewCoordinatorService(runRepo, sourceRepo, profiler, classifier, resolver, kpi, cfg, logger)

	// Handlers
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewSourcesHandler(registry, logger).RegisterRoutes(mux)
	handlers.NewRulesHandler(rules, logger).RegisterRoutes(mux)
	handlers.NewScansHandler(coordinator, logger).RegisterRoutes(mux)
	handlers.NewGoldenObjectsHandler(goldenRepo, logger).RegisterRoutes(mux)
	handlers.NewKpisHandler(kpiRepo, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting goldfuse-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))

	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
