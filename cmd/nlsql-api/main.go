package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nlsql/nlsql/internal/api"
	"github.com/nlsql/nlsql/internal/config"
	"github.com/nlsql/nlsql/internal/database"
	"github.com/nlsql/nlsql/internal/migrations"
	"github.com/nlsql/nlsql/internal/nl2sql"
	"github.com/nlsql/nlsql/internal/observability"
	"github.com/nlsql/nlsql/internal/schema"
	"github.com/nlsql/nlsql/internal/sqlexec"
	s3store "github.com/nlsql/nlsql/internal/storage/s3"
	"github.com/nlsql/nlsql/internal/training"
	trainingobjects "github.com/nlsql/nlsql/internal/training/objectstore"
	trainingpostgres "github.com/nlsql/nlsql/internal/training/postgres"
)

func main() {
	cfg, err := config.LoadFromEnv("nlsql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	pool, err := database.Open(context.Background(), database.PoolConfig{
		DSN:            cfg.Database.DSN(),
		MinConns:       cfg.Pool.MinConns,
		MaxConns:       cfg.Pool.MaxConns,
		AcquireTimeout: cfg.Pool.AcquireTimeout,
	})
	if pool == nil {
		logger.Error("failed to create connection pool", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = pool.Close() }()
	if err != nil {
		logger.Warn("database not reachable at startup",
			slog.String("dsn", observability.MaskSecrets(cfg.Database.DSN())),
			slog.Any("error", err),
		)
	}
	logStartupDiagnostics(logger, cfg, pool)

	if err := observability.RegisterPoolMetrics(nil, pool.DB(), cfg.Database.Name); err != nil {
		logger.Warn("failed to register pool metrics", slog.Any("error", err))
	}

	store, trainingCheck, closeStore, err := openTrainingStore(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to open training store", slog.String("backend", cfg.Training.Backend), slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	completer, err := newCompleter(cfg)
	if err != nil {
		logger.Error("failed to initialize model client", slog.String("provider", cfg.AI.Provider), slog.Any("error", err))
		os.Exit(1)
	}
	engine, err := nl2sql.NewService(store, completer, nl2sql.ServiceConfig{ContextItems: cfg.AI.ContextItems})
	if err != nil {
		logger.Error("failed to initialize translation engine", slog.Any("error", err))
		os.Exit(1)
	}

	introspector := schema.NewIntrospector(pool, database.NewAdminConnector(cfg.Database.AdminDSN()), cfg.Database.Schema)
	logger.Info("introspecting schema", slog.String("schema", introspector.Schema()))

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:        logger,
		Executor:      sqlexec.NewExecutor(pool),
		Schema:        introspector,
		Engine:        engine,
		Database:      pool,
		TrainingCheck: trainingCheck,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
	}
}

func logStartupDiagnostics(logger *slog.Logger, cfg config.Config, pool *database.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := pool.ServerInfo(ctx)
	if err != nil {
		logger.Warn("database diagnostics failed",
			slog.String("host", cfg.Database.Host),
			slog.Int("port", cfg.Database.Port),
			slog.Any("error", err),
		)
	} else {
		logger.Info("connected to database",
			slog.String("database", info.Database),
			slog.String("user", info.User),
			slog.String("version", info.Version),
		)
	}

	logger.Info("model configuration",
		slog.String("provider", cfg.AI.Provider),
		slog.String("model", cfg.AI.Model),
		slog.Bool("api_key_configured", strings.TrimSpace(cfg.AI.APIKey) != ""),
	)
}

// openTrainingStore returns the store for the configured backend, a health check for it (nil
// when the backend has nothing to check) and a close function.
func openTrainingStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (training.Store, api.HealthCheck, func(), error) {
	switch cfg.Training.Backend {
	case config.TrainingBackendPostgres:
		db, err := trainingpostgres.Open(ctx, trainingpostgres.DBConfig{
			DSN:          cfg.Training.DSN,
			MaxOpenConns: 4,
			MaxIdleConns: 2,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		closeDB := func() { _ = db.Close() }
		if cfg.Training.AutoMigrate {
			if err := migrate(ctx, db, logger); err != nil {
				closeDB()
				return nil, nil, nil, err
			}
		}
		store := trainingpostgres.NewStore(db)
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := store.HealthCheck(checkCtx); err != nil {
			logger.Warn("training database not reachable at startup",
				slog.String("dsn", observability.MaskSecrets(cfg.Training.DSN)),
				slog.Any("error", err),
			)
		}
		return store, store.HealthCheck, closeDB, nil
	case config.TrainingBackendS3:
		objects, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.ObjectStore.Endpoint,
			Region:           cfg.ObjectStore.Region,
			Bucket:           cfg.ObjectStore.Bucket,
			AccessKeyID:      cfg.ObjectStore.AccessKeyID,
			SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
			UseSSL:           cfg.ObjectStore.UseSSL,
			Prefix:           cfg.ObjectStore.Prefix,
			AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return trainingobjects.NewStore(objects), nil, func() {}, nil
	case config.TrainingBackendMemory:
		logger.Warn("training data is kept in memory and lost on restart")
		return training.NewMemoryStore(), nil, func() {}, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported training backend %q", cfg.Training.Backend)
	}
}

func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	applied, err := migrations.NewRunner().Up(migrateCtx, db, 0)
	if err != nil {
		return fmt.Errorf("apply training migrations: %w", err)
	}
	if applied > 0 {
		logger.Info("applied training migrations", slog.Int("count", applied))
	}
	return nil
}

func newCompleter(cfg config.Config) (nl2sql.Completer, error) {
	switch cfg.AI.Provider {
	case config.ProviderAnthropic:
		return nl2sql.NewAnthropicCompleter(nl2sql.AnthropicConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
			Timeout:     cfg.AI.Timeout,
		})
	default:
		return nl2sql.NewOpenAICompleter(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			MaxTokens:   cfg.AI.MaxTokens,
			Timeout:     cfg.AI.Timeout,
		})
	}
}
