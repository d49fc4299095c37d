package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kudwa-ai/kudwa-engine/pkg/auth"
	"github.com/kudwa-ai/kudwa-engine/pkg/config"
	"github.com/kudwa-ai/kudwa-engine/pkg/database"
	"github.com/kudwa-ai/kudwa-engine/pkg/events"
	"github.com/kudwa-ai/kudwa-engine/pkg/graphsync"
	"github.com/kudwa-ai/kudwa-engine/pkg/handlers"
	"github.com/kudwa-ai/kudwa-engine/pkg/logging"
	"github.com/kudwa-ai/kudwa-engine/pkg/mcp"
	mcpauth "github.com/kudwa-ai/kudwa-engine/pkg/mcp/auth"
	"github.com/kudwa-ai/kudwa-engine/pkg/mcp/tools"
	"github.com/kudwa-ai/kudwa-engine/pkg/middleware"
	"github.com/kudwa-ai/kudwa-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.RedactURL(cfg.Database.ConnectionURL())),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("neo4j", logging.RedactURL(cfg.Neo4j.URI)),
		zap.String("match_policy", cfg.Review.MatchPolicy),
		zap.Strings("reviewer_roles", cfg.Auth.ReviewerRoles),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", logging.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// NewConnection waits for Postgres, so migrations run after it.
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionURL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(cfg, logger); err != nil {
		return err
	}

	hub := events.NewHub()
	defer hub.Close()
	var listeners []services.ReviewListener

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		// Every instance relays the shared channel to its own browsers,
		// including the events it published itself.
		listeners = append(listeners, events.NewPublisher(redisClient, cfg.Redis.Channel, logger))
		subscriber := events.NewSubscriber(redisClient, cfg.Redis.Channel, logger)
		if err := subscriber.Forward(ctx, hub.Broadcast); err != nil {
			return err
		}
		logger.Info("Graph change events on Redis", zap.String("channel", cfg.Redis.Channel))
	} else {
		listeners = append(listeners, hub)
	}

	if cfg.Neo4j.Enabled() {
		driver, err := graphsync.NewDriver(ctx, &cfg.Neo4j)
		if err != nil {
			return err
		}
		defer func() { _ = driver.Close(context.Background()) }()

		mirror := graphsync.NewMirror(driver, cfg.Neo4j.Database, logger)
		if err := mirror.EnsureSchema(ctx); err != nil {
			return err
		}
		listeners = append(listeners, mirror)
		logger.Info("Neo4j mirror enabled", zap.String("database", cfg.Neo4j.Database))
	}

	policy, err := services.NewMatchPolicy(cfg.Review.MatchPolicy)
	if err != nil {
		return err
	}

	store := services.NewPostgresStore()
	ledger := services.NewProposalLedger(&services.ProposalLedgerDeps{
		Store:    store,
		PageSize: cfg.Review.PageSize,
		Logger:   logger,
	})
	review := services.NewReviewService(&services.ReviewServiceDeps{
		DB:              db,
		Store:           store,
		MatchPolicy:     policy,
		Listeners:       listeners,
		BulkConcurrency: cfg.Review.BulkConcurrency,
		BulkMaxItems:    cfg.Review.BulkMaxItems,
		Logger:          logger,
	})
	graph := services.NewGraphProjectionService(store, logger)
	catalog := services.NewOntologyCatalog(store, ledger, logger)
	documents := services.NewDocumentService(store, logger)

	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
	})
	if err != nil {
		return err
	}
	defer jwksClient.Close()
	authService := auth.NewAuthService(jwksClient, logger)
	authMiddleware := auth.NewMiddleware(authService, logger)

	mux := http.NewServeMux()
	scope := handlers.ScopeMiddleware(database.WithScopeContext(db))

	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewProposalHandler(ledger, review, cfg.Auth.ReviewerRoles, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewGraphHandler(graph, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewGraphEventsHandler(hub, logger).RegisterRoutes(mux, authMiddleware)
	handlers.NewOntologyClassHandler(catalog, logger).RegisterRoutes(mux, authMiddleware, scope)
	handlers.NewDocumentHandler(documents, logger).RegisterRoutes(mux, authMiddleware, scope)

	if cfg.MCP.Enabled {
		mcpServer := mcp.NewServer("kudwa-engine", cfg.Version, logger)
		tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version, db)
		tools.RegisterTools(mcpServer.MCP(), &tools.Deps{
			DB:        db,
			Ledger:    ledger,
			Review:    review,
			Graph:     graph,
			Documents: documents,
			Logger:    logger.Named("mcp"),
		})

		mcpAuth := mcpauth.NewMiddleware(authService, cfg.MCP.AgentRoles, logger)
		mcpHandler := mcpAuth.RequireAuth()(
			middleware.MCPRequestLogger(logger.Named("mcp"))(mcpServer.NewStreamableHTTPServer()),
		)
		mux.Handle("/mcp", mcpHandler)
		logger.Info("MCP endpoint enabled", zap.Strings("agent_roles", cfg.MCP.AgentRoles))
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting kudwa-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version),
			zap.Bool("tls", cfg.TLSCertPath != "" && cfg.TLSKeyPath != ""))

		var err error
		if cfg.TLSCertPath != "" && cfg.TLSKeyPath != "" {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-serveErr
}

// migrate applies pending schema migrations on a dedicated connection.
func migrate(cfg *config.Config, logger *zap.Logger) error {
	timeout := time.Duration(cfg.Database.MigrationTimeoutSeconds) * time.Second
	sqlDB, err := database.OpenForMigrations(cfg.Database.ConnectionURL(), timeout)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	return database.RunMigrations(sqlDB, logger.Named("migrations"))
}
