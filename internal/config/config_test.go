package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/crawlstore/internal/hash"
	"github.com/JakeFAU/crawlstore/internal/writer"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Driver != DriverMemory {
		t.Fatalf("expected memory driver, got %q", cfg.Store.Driver)
	}
	if cfg.Schema != writer.DefaultSchema() {
		t.Fatalf("expected default schema, got %+v", cfg.Schema)
	}
	if cfg.Pool.MaxActive != 5 || cfg.Pool.MaxWait != 30*time.Second {
		t.Fatalf("unexpected pool defaults: %+v", cfg.Pool)
	}
	if !cfg.Processor.Enabled || cfg.Processor.MaxContentBytes != 20*1024*1024 {
		t.Fatalf("unexpected processor defaults: %+v", cfg.Processor)
	}
	if cfg.Hash.Algorithm != hash.AlgorithmSHA1 {
		t.Fatalf("expected sha1, got %q", cfg.Hash.Algorithm)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: false
  level: debug
store:
  driver: postgres
  postgres:
    dsn: postgres://crawl@localhost/crawl
    max_conns: 20
schema:
  url_table: crawl_url
  content_table: crawl_content
  columns:
    content: payload
hash:
  algorithm: sha256
pool:
  max_active: 12
  max_wait: 250ms
processor:
  only_new: true
  max_content_bytes: 1048576
  max_total_bytes: 10737418240
pubsub:
  project_id: crawl-project
  topic_name: writes
ingest:
  workers: 8
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != DriverPostgres || cfg.Store.Postgres.MaxConns != 20 {
		t.Fatalf("expected postgres overrides to apply: %+v", cfg.Store)
	}
	if cfg.Schema.URLTable != "crawl_url" || cfg.Schema.Columns.Content != "payload" {
		t.Fatalf("expected schema overrides to apply: %+v", cfg.Schema)
	}
	if cfg.Schema.Columns.Hash != "h" || cfg.Schema.URLFamily != "u" {
		t.Fatalf("expected untouched schema keys to keep defaults: %+v", cfg.Schema)
	}
	if cfg.Pool.MaxActive != 12 || cfg.Pool.MaxWait != 250*time.Millisecond {
		t.Fatalf("expected pool overrides to apply: %+v", cfg.Pool)
	}
	if !cfg.Processor.OnlyNew || cfg.Processor.MaxTotalBytes != 10737418240 {
		t.Fatalf("expected processor overrides to apply: %+v", cfg.Processor)
	}
	if cfg.Ingest.Workers != 8 || cfg.Ingest.QueueDepth != 64 {
		t.Fatalf("expected ingest overrides to apply: %+v", cfg.Ingest)
	}
	if got := cfg.FetchTimeout(); got != 30*time.Second {
		t.Fatalf("expected fetch timeout 30s, got %v", got)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CRAWLSTORE_STORE_DRIVER", "bolt")
	t.Setenv("CRAWLSTORE_STORE_BOLT_PATH", "/tmp/crawl.bolt")
	t.Setenv("CRAWLSTORE_SCHEMA_COLUMNS_STATUS", "status")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Driver != DriverBolt || cfg.Store.Bolt.Path != "/tmp/crawl.bolt" {
		t.Fatalf("expected env overrides: %+v", cfg.Store)
	}
	if cfg.Schema.Columns.Status != "status" {
		t.Fatalf("expected status column override, got %q", cfg.Schema.Columns.Status)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "hbase" }, "store.driver"},
		{"postgres without dsn", func(c *Config) { c.Store.Driver = DriverPostgres }, "store.postgres.dsn"},
		{"gcs without bucket", func(c *Config) { c.Store.Driver = DriverGCS }, "store.gcs.bucket"},
		{"empty column", func(c *Config) { c.Schema.Columns.Via = "" }, "via"},
		{"bad table", func(c *Config) { c.Schema.URLTable = "url;" }, "invalid table name"},
		{"unknown hash", func(c *Config) { c.Hash.Algorithm = "md4" }, "unsupported digest algorithm"},
		{"zero pool", func(c *Config) { c.Pool.MaxActive = 0 }, "pool.max_active"},
		{"negative wait", func(c *Config) { c.Pool.MaxWait = -time.Second }, "pool.max_wait"},
		{"negative size", func(c *Config) { c.Processor.MaxContentBytes = -1 }, "processor.max_content_bytes"},
		{"topic without project", func(c *Config) { c.PubSub.TopicName = "writes" }, "pubsub.project_id"},
		{"no workers", func(c *Config) { c.Ingest.Workers = 0 }, "ingest.workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestUnsupportedHashIsDistinguishable(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.Hash.Algorithm = "whirlpool"
	if err := cfg.Validate(); !errors.Is(err, hash.ErrUnsupportedAlgorithm) {
		t.Fatalf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}
