package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/vadimbarashkov/shorty/internal/config"
	"github.com/vadimbarashkov/shorty/internal/entity"
	"github.com/vadimbarashkov/shorty/internal/sweeper"
	"github.com/vadimbarashkov/shorty/internal/usecase"
	"github.com/vadimbarashkov/shorty/migrations"
	"github.com/vadimbarashkov/shorty/pkg/postgres"
	"github.com/vadimbarashkov/shorty/pkg/redis"
	"golang.org/x/sync/errgroup"

	delivery "github.com/vadimbarashkov/shorty/internal/adapter/delivery/http"
	pgrepo "github.com/vadimbarashkov/shorty/internal/adapter/repository/postgres"
	redisrepo "github.com/vadimbarashkov/shorty/internal/adapter/repository/redis"
)

// URLRepository is the store behind the use case and the expiry sweeper.
type URLRepository interface {
	Save(ctx context.Context, shortCode, originalURL string) (*entity.URL, error)
	RetrieveByOriginalURL(ctx context.Context, originalURL string) (*entity.URL, error)
	RetrieveByShortCode(ctx context.Context, shortCode string) (*entity.URL, error)
	RetrieveAndUpdateStats(ctx context.Context, shortCode string) (*entity.URL, error)
	RetrieveAll(ctx context.Context) ([]entity.URL, error)
	RemoveExpired(ctx context.Context) (int64, error)
}

// Storage is an opened store together with the function releasing its connections.
type Storage struct {
	Repo  URLRepository
	Close func() error
}

// NewLogger returns the structured request logger used across the service.
func NewLogger(cfg *config.Config) *httplog.Logger {
	return httplog.NewLogger("url-shortener", httplog.Options{
		JSON:           cfg.Env == config.EnvProd,
		Concise:        cfg.Env == config.EnvDev,
		LogLevel:       slog.LevelInfo,
		RequestHeaders: cfg.Env != config.EnvProd,
		Tags: map[string]string{
			"env": cfg.Env,
		},
	})
}

// Migrate applies the Postgres schema migrations. It is a no-op for Redis.
func Migrate(cfg *config.Config) error {
	const op = "app.Migrate"

	if cfg.Storage != config.StoragePostgres {
		return nil
	}

	if err := postgres.RunMigrations(migrations.FS, cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	return nil
}

// OpenStorage connects to the store selected by cfg.Storage.
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	const op = "app.OpenStorage"

	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := postgres.New(
			ctx,
			cfg.Postgres.DSN(),
			postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
			postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
			postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
			postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to connect to postgres: %w", op, err)
		}

		return &Storage{
			Repo:  pgrepo.NewURLRepository(db, pgrepo.WithTTL(cfg.URLTTL)),
			Close: db.Close,
		}, nil

	case config.StorageRedis:
		client, err := redis.New(
			ctx,
			cfg.Redis.Addr,
			redis.WithPassword(cfg.Redis.Password),
			redis.WithDB(cfg.Redis.DB),
			redis.WithDialTimeout(cfg.Redis.DialTimeout),
			redis.WithReadTimeout(cfg.Redis.ReadTimeout),
			redis.WithWriteTimeout(cfg.Redis.WriteTimeout),
			redis.WithPoolSize(cfg.Redis.PoolSize),
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to connect to redis: %w", op, err)
		}

		return &Storage{
			Repo: redisrepo.NewURLRepository(
				client,
				redisrepo.WithTTL(cfg.URLTTL),
				redisrepo.WithKeyPrefix(cfg.Redis.KeyPrefix),
			),
			Close: client.Close,
		}, nil

	default:
		return nil, fmt.Errorf("%s: unknown storage %q", op, cfg.Storage)
	}
}

// NewHandler wires the use case and HTTP router on top of repo.
func NewHandler(cfg *config.Config, logger *httplog.Logger, repo URLRepository) http.Handler {
	urlUseCase := usecase.NewURLUseCase(repo).WithShortCodeLength(cfg.ShortCodeLength)
	return delivery.NewRouter(logger, urlUseCase)
}

// Run starts the HTTP server and the expiry sweeper and blocks until ctx is
// cancelled or one of them fails.
func Run(ctx context.Context, cfg *config.Config, logger *httplog.Logger) error {
	const op = "app.Run"

	if err := Migrate(cfg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	storage, err := OpenStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer storage.Close()

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        NewHandler(cfg, logger, storage.Repo),
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	sw := sweeper.New(storage.Repo, cfg.SweepInterval, logger.Logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sw.Run(ctx)
	})

	g.Go(func() error {
		var err error

		logger.Info("starting server",
			slog.String("addr", server.Addr),
			slog.String("storage", cfg.Storage),
			slog.Duration("url_ttl", cfg.URLTTL),
		)

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		logger.Info("shutting down server")

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}

// Sweep runs one expiry pass against the configured store.
func Sweep(ctx context.Context, cfg *config.Config, logger *httplog.Logger) (int64, error) {
	const op = "app.Sweep"

	storage, err := OpenStorage(ctx, cfg)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer storage.Close()

	n, err := sweeper.New(storage.Repo, cfg.SweepInterval, logger.Logger).Sweep(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}
