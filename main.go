package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/lineagraph/lineage-engine/pkg/config"
	"github.com/lineagraph/lineage-engine/pkg/database"
	"github.com/lineagraph/lineage-engine/pkg/dialect"
	"github.com/lineagraph/lineage-engine/pkg/extract"
	"github.com/lineagraph/lineage-engine/pkg/graph"
	"github.com/lineagraph/lineage-engine/pkg/handlers"
	"github.com/lineagraph/lineage-engine/pkg/inference"
	"github.com/lineagraph/lineage-engine/pkg/llm"
	"github.com/lineagraph/lineage-engine/pkg/logging"
	"github.com/lineagraph/lineage-engine/pkg/middleware"
	"github.com/lineagraph/lineage-engine/pkg/parser"
	"github.com/lineagraph/lineage-engine/pkg/repositories"
	"github.com/lineagraph/lineage-engine/pkg/retrieval"
	"github.com/lineagraph/lineage-engine/pkg/review"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("registry", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("graph", logging.SanitizeConnectionString(cfg.Graph.URI)),
		zap.String("ai_provider", cfg.AI.Provider),
		zap.Bool("embedding_cache", cfg.Redis.IsAvailable()))

	ctx := context.Background()

	// Dialect registry (PostgreSQL)
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open registry database for migrations", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, "migrations", logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to registry database",
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	// Graph store (Neo4j)
	graphClient, err := graph.NewClient(&cfg.Graph)
	if err != nil {
		logger.Fatal("Failed to connect to graph store", zap.Error(err))
	}
	defer func() { _ = graphClient.Close(ctx) }()
	store := graph.NewStore(graphClient, logger)

	// Model endpoints
	llmClient, err := llm.NewClient(&cfg.AI, logger)
	if err != nil {
		logger.Fatal("Failed to create model client", zap.Error(err))
	}

	// Optional embedding cache
	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Warn("Embedding cache unavailable, continuing without it", zap.Error(err))
	}
	cache := retrieval.NewRedisCache(redisClient, logger)

	// Services
	registry := repositories.NewDialectRegistryRepository(db)
	resolver := dialect.NewResolver(registry, logger)
	sqlParser := parser.New(logger)
	extractor := extract.NewExtractor(extract.ExtractorDeps{
		Store:    store,
		Embedder: llmClient,
		Logger:   logger,
	})
	retriever := retrieval.NewRetriever(retrieval.RetrieverDeps{
		Store:            store,
		Embedder:         llmClient,
		Cache:            cache,
		Logger:           logger,
		Hops:             cfg.Retrieval.NeighborhoodHops,
		MaxNeighbors:     cfg.Retrieval.MaxNeighbors,
		ChunkTopK:        cfg.Retrieval.ChunkTopK,
		GraphTimeout:     cfg.Graph.Timeout(),
		EmbeddingTimeout: cfg.AI.EmbeddingTimeout(),
	})
	proposer := inference.NewProposer(inference.ProposerDeps{
		LLM:               llmClient,
		Logger:            logger,
		CompletionTimeout: cfg.AI.CompletionTimeout(),
	})
	ingestor := inference.NewIngestor(inference.IngestorDeps{
		Store:  store,
		Logger: logger,
	})
	reviewService := review.NewService(review.ServiceDeps{
		Store:  store,
		Logger: logger,
	})

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewLineageHandler(resolver, registry, sqlParser, extractor, retriever, proposer, ingestor, logger).RegisterRoutes(mux)
	handlers.NewEdgesHandler(store, reviewService, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := net.JoinHostPort(cfg.BindAddr, cfg.Port)
	logger.Info("Starting lineage-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
