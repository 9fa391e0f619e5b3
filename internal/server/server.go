package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"contextgraph/internal/classifier"
	"contextgraph/internal/config"
	"contextgraph/internal/database"
	"contextgraph/internal/handlers"
	"contextgraph/internal/middlewares"
	"contextgraph/internal/repositories"
	"contextgraph/internal/routes"
	"contextgraph/internal/services"
	"contextgraph/internal/taxonomy"
)

// NewServer wires every dependency and returns the HTTP server together with
// a cleanup function that releases database and cache connections.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*http.Server, func(), error) {
	svc, cleanup, err := BuildService(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      NewRouter(cfg, svc, logger),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}
	return server, cleanup, nil
}

// NewRouter builds the gin engine serving the context graph API.
func NewRouter(cfg *config.Config, svc *services.ContextGraphService, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middlewares.RequestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	contextGraphHandler := handlers.NewContextGraphHandler(svc)
	routes.RegisterRoutes(router, contextGraphHandler, middlewares.Identify([]byte(cfg.JWTSecret)))
	return router
}

// BuildService assembles the context graph service from configuration:
// taxonomy, optional Redis, optional language model, the override store and
// the snapshot provider.
func BuildService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services.ContextGraphService, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*services.ContextGraphService, func(), error) {
		cleanup()
		return nil, nil, err
	}

	loader := taxonomy.NewLoader()
	var (
		tax *taxonomy.Taxonomy
		err error
	)
	if cfg.TaxonomyPath != "" {
		tax, err = loader.LoadWithCustom(cfg.TaxonomyPath)
	} else {
		tax, err = loader.Load()
	}
	if err != nil {
		return fail(fmt.Errorf("failed to load taxonomy: %w", err))
	}
	logger.Info("taxonomy loaded", "version", tax.Version, "types", tax.Len())

	var redisRepo *repositories.RedisRepository
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = rdb.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fail(fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err))
		}
		logger.Info("connected to Redis", "addr", cfg.Redis.Addr)
		redisRepo = repositories.NewRedisRepository(rdb, cfg.Redis.TTL)
	}

	var remote classifier.RemoteCache
	if redisRepo != nil {
		remote = redisRepo
	}
	labels, err := classifier.NewLabelCache(cfg.LLM.CacheSize, remote, logger)
	if err != nil {
		return fail(err)
	}

	llm, err := classifier.NewLLM(classifier.LLMConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		return fail(fmt.Errorf("failed to initialize language model: %w", err))
	}
	if llm == nil {
		logger.Warn("no language model configured, ambiguous columns use rule fallback", "error", "classifier unavailable")
	}

	cls := classifier.New(tax, llm, labels, classifier.Options{
		Concurrency:   cfg.LLM.Concurrency,
		RatePerSecond: cfg.LLM.RatePerSecond,
		Timeout:       cfg.LLM.Timeout,
		MaxSamples:    cfg.LLM.MaxSamples,
	}, logger)

	var (
		store     services.OverrideStore
		snapshots services.SnapshotProvider
	)
	switch cfg.Database.Driver {
	case "postgres":
		if err := database.EnsureDatabaseExists(ctx, cfg.Database); err != nil {
			return fail(err)
		}
		pool, err := database.Connect(ctx, database.DSN(cfg.Database))
		if err != nil {
			return fail(err)
		}
		closers = append(closers, pool.Close)
		if err := database.RunMigrations(ctx, pool); err != nil {
			return fail(err)
		}
		store = repositories.NewOverrideRepository(pool)
		snapshots = repositories.NewSnapshotRepository(pool)
	case "sqlite":
		db, err := database.OpenSQLite(cfg.Database.SQLitePath)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = db.Close() })
		store = repositories.NewSQLiteOverrideRepository(db)
	default:
		return fail(fmt.Errorf("unsupported STORE_DRIVER %q", cfg.Database.Driver))
	}

	if cfg.SnapshotPath != "" {
		snapshots = repositories.NewFileSnapshotProvider(cfg.SnapshotPath)
	}
	if snapshots == nil {
		return fail(errors.New("SNAPSHOT_FILE is required when the sqlite store is used"))
	}

	var graphs services.GraphCache
	if redisRepo != nil {
		graphs = redisRepo
	} else {
		memory, err := repositories.NewMemoryGraphCache(256)
		if err != nil {
			return fail(err)
		}
		graphs = memory
	}

	svc := services.NewContextGraphService(snapshots, store, graphs, cls, services.ContextGraphOptions{
		ExactSetThreshold: cfg.ExactSetThreshold,
		MaxGapValues:      cfg.MaxGapValues,
	}, logger)
	return svc, cleanup, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	srv, cleanup, err := NewServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("server exiting")
	return nil
}
