package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/cubelens/cubelens-engine/pkg/adapters/executor"
	"github.com/cubelens/cubelens-engine/pkg/config"
	"github.com/cubelens/cubelens-engine/pkg/database"
	"github.com/cubelens/cubelens-engine/pkg/dsl"
	"github.com/cubelens/cubelens-engine/pkg/handlers"
	"github.com/cubelens/cubelens-engine/pkg/llm"
	"github.com/cubelens/cubelens-engine/pkg/logging"
	"github.com/cubelens/cubelens-engine/pkg/middleware"
	"github.com/cubelens/cubelens-engine/pkg/repair"
	"github.com/cubelens/cubelens-engine/pkg/repositories"
	"github.com/cubelens/cubelens-engine/pkg/services"
	"github.com/cubelens/cubelens-engine/pkg/vector"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.String("warehouse_dialect", cfg.Warehouse.Dialect),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.Int("max_repair_attempts", cfg.Pipeline.MaxRepairAttempts))

	ctx := context.Background()

	// Engine database
	db, err := database.NewConnection(ctx, &database.Config{
		URL:             cfg.Database.URL(),
		MaxConnections:  cfg.Database.MaxConnections,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = sqlDB.Close()

	// Tenant warehouse
	warehouse, err := executor.New(ctx, cfg.Warehouse.Dialect, cfg.Warehouse.URL)
	if err != nil {
		logger.Fatal("Failed to connect to warehouse",
			zap.String("dialect", cfg.Warehouse.Dialect),
			zap.Error(err))
	}
	defer func() { _ = warehouse.Close() }()

	// Generation and embedding collaborators
	generator, err := llm.NewGenerationClient(&cfg.AI, logger)
	if err != nil {
		logger.Fatal("Failed to create generation client", zap.Error(err))
	}
	embeddingClient, err := llm.NewEmbeddingClient(&cfg.AI, logger)
	if err != nil {
		logger.Fatal("Failed to create embedding client", zap.Error(err))
	}

	// Redis-backed embedding cache; an empty host disables it.
	var embedder vector.Embedder = embeddingClient
	if cfg.Redis.Host != "" {
		redisClient, err := database.NewRedisClient(&cfg.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, embedding cache disabled", zap.Error(err))
		} else {
			embedder = vector.NewCachedEmbedder(embeddingClient, redisClient, cfg.AI.EmbeddingCacheTTL, logger)
		}
	}

	// Classifier rules: built-in defaults unless overridden.
	var rules *repair.RuleSet
	if cfg.ClassifierRulesPath != "" {
		rules, err = repair.LoadRuleSet(cfg.ClassifierRulesPath)
		if err != nil {
			logger.Fatal("Failed to load classifier rules",
				zap.String("path", cfg.ClassifierRulesPath),
				zap.Error(err))
		}
	}

	// Repositories and services
	cubeRepo := repositories.NewCubeRepository()
	queryRepo := repositories.NewSuccessfulQueryRepository()
	attemptRepo := repositories.NewRepairAttemptRepository()
	index := vector.NewPgvectorIndex()

	registry := services.NewModelRegistry(cubeRepo, logger)
	retrieval := services.NewExemplarRetrievalService(embedder, index, queryRepo, cfg.AI.EmbeddingModel, logger)
	synthesizer := services.NewQuerySynthesizer(generator, registry, logger)
	validator := dsl.NewValidator(registry, logger)
	classifier := repair.NewClassifier(rules)
	selector := repair.NewStrategySelector(attemptRepo, logger)
	recorder := services.NewOutcomeRecorder(queryRepo, attemptRepo, index, embedder, cfg.AI.EmbeddingModel, logger)
	answers := services.NewAnswerService(
		registry, retrieval, synthesizer, validator, warehouse,
		classifier, selector, recorder, &cfg.Pipeline, logger)

	// HTTP surface
	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	scopeProvider := database.NewTenantScopeProvider(db)
	tenantMiddleware := handlers.TenantMiddleware(middleware.TenantScope(scopeProvider, logger))

	answerHandler := handlers.NewAnswerHandler(answers, recorder, attemptRepo, logger)
	answerHandler.RegisterRoutes(mux, tenantMiddleware)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting cubelens-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}
