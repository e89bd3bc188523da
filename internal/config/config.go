// Package config loads and validates crawl store configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/crawlstore/internal/hash"
	"github.com/JakeFAU/crawlstore/internal/pool"
	"github.com/JakeFAU/crawlstore/internal/processor"
	"github.com/JakeFAU/crawlstore/internal/writer"
)

// ErrInvalid marks a configuration that must stop the process at startup.
var ErrInvalid = errors.New("invalid configuration")

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverBolt     = "bolt"
	DriverLevelDB  = "leveldb"
	DriverRedis    = "redis"
	DriverGCS      = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Store     StoreConfig      `mapstructure:"store"`
	Schema    writer.Schema    `mapstructure:"schema"`
	Hash      HashConfig       `mapstructure:"hash"`
	Pool      pool.Config      `mapstructure:"pool"`
	Processor processor.Config `mapstructure:"processor"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Fetch     FetchConfig      `mapstructure:"fetch"`
	Ingest    IngestConfig     `mapstructure:"ingest"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MaxBodyBytes bounds POST /v1/records payloads.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
	// APIKey, when set, is required on every /v1 request.
	APIKey string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and the optional file sink.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// StoreConfig selects and configures the key-value backend.
type StoreConfig struct {
	Driver       string         `mapstructure:"driver"`
	CreateTables bool           `mapstructure:"create_tables"`
	Postgres     PostgresConfig `mapstructure:"postgres"`
	SQLite       FileConfig     `mapstructure:"sqlite"`
	Bolt         FileConfig     `mapstructure:"bolt"`
	LevelDB      FileConfig     `mapstructure:"leveldb"`
	Redis        RedisConfig    `mapstructure:"redis"`
	GCS          GCSConfig      `mapstructure:"gcs"`
}

// PostgresConfig controls the pgx pool.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// FileConfig locates an embedded database.
type FileConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig controls the Redis connection.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// GCSConfig names the bucket holding table objects.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// HashConfig selects the content digest.
type HashConfig struct {
	Algorithm string `mapstructure:"algorithm"`
}

// PubSubConfig holds metadata for write notifications. An empty topic
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// FetchConfig configures the colly fetcher used by the fetch command.
type FetchConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	IgnoreRobots   bool   `mapstructure:"ignore_robots"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	// RatePerSecond limits fetches per host. Zero disables limiting.
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// IngestConfig sizes the record worker fan-out.
type IngestConfig struct {
	Workers    int `mapstructure:"workers"`
	QueueDepth int `mapstructure:"queue_depth"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("server.max_body_bytes", 64<<20)
	v.SetDefault("server.api_key", "")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)

	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.create_tables", true)
	v.SetDefault("store.postgres.dsn", "")
	v.SetDefault("store.postgres.max_conns", 10)
	v.SetDefault("store.postgres.min_conns", 0)
	v.SetDefault("store.postgres.max_conn_lifetime", time.Hour)
	v.SetDefault("store.sqlite.path", "crawlstore.db")
	v.SetDefault("store.bolt.path", "crawlstore.bolt")
	v.SetDefault("store.leveldb.path", "crawlstore.ldb")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key_prefix", "")
	v.SetDefault("store.gcs.bucket", "")

	schema := writer.DefaultSchema()
	v.SetDefault("schema.url_table", schema.URLTable)
	v.SetDefault("schema.content_table", schema.ContentTable)
	v.SetDefault("schema.url_family", schema.URLFamily)
	v.SetDefault("schema.content_family", schema.ContentFamily)
	v.SetDefault("schema.columns.content", schema.Columns.Content)
	v.SetDefault("schema.columns.ip", schema.Columns.IP)
	v.SetDefault("schema.columns.path_from_seed", schema.Columns.PathFromSeed)
	v.SetDefault("schema.columns.via", schema.Columns.Via)
	v.SetDefault("schema.columns.url", schema.Columns.URL)
	v.SetDefault("schema.columns.request", schema.Columns.Request)
	v.SetDefault("schema.columns.response", schema.Columns.Response)
	v.SetDefault("schema.columns.mime_type", schema.Columns.MimeType)
	v.SetDefault("schema.columns.hash", schema.Columns.Hash)
	v.SetDefault("schema.columns.status", schema.Columns.Status)
	v.SetDefault("schema.columns.source_tag", schema.Columns.SourceTag)

	v.SetDefault("hash.algorithm", hash.AlgorithmSHA1)

	poolCfg := pool.DefaultConfig()
	v.SetDefault("pool.max_active", poolCfg.MaxActive)
	v.SetDefault("pool.max_wait", poolCfg.MaxWait)

	procCfg := processor.DefaultConfig()
	v.SetDefault("processor.enabled", procCfg.Enabled)
	v.SetDefault("processor.only_new", procCfg.OnlyNew)
	v.SetDefault("processor.max_content_bytes", procCfg.MaxContentBytes)
	v.SetDefault("processor.max_total_bytes", procCfg.MaxTotalBytes)

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")

	v.SetDefault("fetch.user_agent", "crawlstore/0.1")
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.ignore_robots", false)
	v.SetDefault("fetch.max_body_bytes", 0)
	v.SetDefault("fetch.rate_per_second", 1.0)
	v.SetDefault("fetch.burst", 1)

	v.SetDefault("ingest.workers", 4)
	v.SetDefault("ingest.queue_depth", 64)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return invalid("server.port must be > 0")
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if err := c.Schema.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := hash.New(c.Hash.Algorithm); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.Pool.MaxActive <= 0 {
		return invalid("pool.max_active must be > 0")
	}
	if c.Pool.MaxWait < 0 {
		return invalid("pool.max_wait must be >= 0")
	}
	if c.Processor.MaxContentBytes < 0 {
		return invalid("processor.max_content_bytes must be >= 0")
	}
	if c.Processor.MaxTotalBytes < 0 {
		return invalid("processor.max_total_bytes must be >= 0")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return invalid("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return invalid("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.RatePerSecond < 0 {
		return invalid("fetch.rate_per_second must be >= 0")
	}
	if c.Ingest.Workers <= 0 {
		return invalid("ingest.workers must be > 0")
	}
	if c.Ingest.QueueDepth <= 0 {
		return invalid("ingest.queue_depth must be > 0")
	}
	return nil
}

func (s StoreConfig) validate() error {
	switch s.Driver {
	case DriverMemory:
	case DriverPostgres:
		if s.Postgres.DSN == "" {
			return invalid("store.postgres.dsn is required for the postgres driver")
		}
	case DriverSQLite:
		if s.SQLite.Path == "" {
			return invalid("store.sqlite.path is required for the sqlite driver")
		}
	case DriverBolt:
		if s.Bolt.Path == "" {
			return invalid("store.bolt.path is required for the bolt driver")
		}
	case DriverLevelDB:
		if s.LevelDB.Path == "" {
			return invalid("store.leveldb.path is required for the leveldb driver")
		}
	case DriverRedis:
		if s.Redis.Addr == "" {
			return invalid("store.redis.addr is required for the redis driver")
		}
	case DriverGCS:
		if s.GCS.Bucket == "" {
			return invalid("store.gcs.bucket is required for the gcs driver")
		}
	default:
		return invalid("store.driver %q is not supported", s.Driver)
	}
	return nil
}

// FetchTimeout converts the fetch timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}
