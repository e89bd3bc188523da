// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlstore/internal/clock/system"
	"github.com/JakeFAU/crawlstore/internal/config"
	"github.com/JakeFAU/crawlstore/internal/hash"
	"github.com/JakeFAU/crawlstore/internal/pool"
	"github.com/JakeFAU/crawlstore/internal/processor"
	"github.com/JakeFAU/crawlstore/internal/publisher/pubsub"
	"github.com/JakeFAU/crawlstore/internal/store"
	"github.com/JakeFAU/crawlstore/internal/store/bolt"
	"github.com/JakeFAU/crawlstore/internal/store/gcs"
	"github.com/JakeFAU/crawlstore/internal/store/leveldb"
	"github.com/JakeFAU/crawlstore/internal/store/memory"
	"github.com/JakeFAU/crawlstore/internal/store/postgres"
	"github.com/JakeFAU/crawlstore/internal/store/redis"
	"github.com/JakeFAU/crawlstore/internal/store/sqlite"
	"github.com/JakeFAU/crawlstore/internal/writer"
)

// App holds the shared services built once at startup: the store client, the
// writer pool over it, the processor and the optional notification publisher.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Store     store.Client
	Hasher    *hash.Hasher
	Pool      *pool.Pool[*writer.Writer]
	Processor *processor.Processor
	// Publisher is nil when notifications are disabled.
	Publisher io.Closer
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger {
	return a.Logger
}

// GetProcessor returns the record processor.
func (a *App) GetProcessor() *processor.Processor {
	return a.Processor
}

// GetPool returns the writer pool.
func (a *App) GetPool() *pool.Pool[*writer.Writer] {
	return a.Pool
}

// GetConfig returns the validated configuration.
func (a *App) GetConfig() config.Config {
	return a.Config
}

// NewApp builds every service from cfg. It fails fast: anything already
// opened is closed again before the error is returned.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	logger.Info("initializing application services", zap.String("driver", cfg.Store.Driver))

	a.Hasher, err = hash.New(cfg.Hash.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("init hasher: %w", err)
	}

	a.Store, err = OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	schema, hasher, client := cfg.Schema, a.Hasher, a.Store
	a.Pool, err = pool.New(cfg.Pool, func(ctx context.Context, serial int) (*writer.Writer, error) {
		return writer.Open(ctx, client, serial, schema, hasher, logger)
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init writer pool: %w", err)
	}

	procCfg := cfg.Processor
	var opts []processor.Option
	if cfg.PubSub.TopicName != "" {
		pub, perr := pubsub.Dial(ctx, cfg.PubSub.ProjectID)
		if perr != nil {
			return nil, fmt.Errorf("init publisher: %w", perr)
		}
		a.Publisher = pub
		procCfg.NotifyTopic = cfg.PubSub.TopicName
		opts = append(opts, processor.WithPublisher(pub, system.New()))
		logger.Info("publishing write notifications", zap.String("topic", cfg.PubSub.TopicName))
	}

	a.Processor, err = processor.New(procCfg, a.Pool, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("init processor: %w", err)
	}

	logger.Info("application services initialized")
	return a, nil
}

// OpenStore connects the configured store driver.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Client, error) {
	var (
		client store.Client
		err    error
	)
	switch cfg.Driver {
	case config.DriverMemory, "":
		return memory.New(), nil
	case config.DriverPostgres:
		var c *postgres.Client
		c, err = postgres.New(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			CreateTables:    cfg.CreateTables,
		})
		client = c
	case config.DriverSQLite:
		var c *sqlite.Client
		c, err = sqlite.New(ctx, sqlite.Config{Path: cfg.SQLite.Path, CreateTables: cfg.CreateTables})
		client = c
	case config.DriverBolt:
		var c *bolt.Client
		c, err = bolt.New(bolt.Config{Path: cfg.Bolt.Path})
		client = c
	case config.DriverLevelDB:
		var c *leveldb.Client
		c, err = leveldb.New(leveldb.Config{Path: cfg.LevelDB.Path})
		client = c
	case config.DriverRedis:
		var c *redis.Client
		c, err = redis.New(ctx, redis.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		client = c
	case config.DriverGCS:
		var c *gcs.Client
		c, err = gcs.New(ctx, gcs.Config{Bucket: cfg.GCS.Bucket})
		client = c
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", config.ErrInvalid, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Ready reports whether the store answers and the pool still lends handles.
func (a *App) Ready(ctx context.Context) error {
	if a.Pool == nil || a.Store == nil {
		return errors.New("services not initialized")
	}
	tbl, err := a.Store.OpenTable(ctx, a.Config.Schema.URLTable)
	if err != nil {
		return fmt.Errorf("store not ready: %w", err)
	}
	return tbl.Close()
}

// Close shuts services down in reverse order of construction. Every service
// is closed even when an earlier one fails.
func (a *App) Close() error {
	var errs []error
	if a.Pool != nil {
		if err := a.Pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer pool: %w", err))
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.Logger != nil {
		a.Logger.Info("application services shut down", zap.Int("errors", len(errs)))
	}
	return errors.Join(errs...)
}
