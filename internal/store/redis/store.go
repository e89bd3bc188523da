// Package redis provides a store.Client backed by Redis hashes.
//
// A row is one hash stored under "<prefix><table>:<row>". Each cell is a hash
// field named "<family>:<qualifier>". HSETNX gives the atomic conditional put.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/crawlstore/internal/store"
)

// Config controls the Redis connection.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Client opens tables inside one Redis database.
type Client struct {
	rdb    goredis.Cmdable
	closer func() error
	prefix string
}

// New connects to Redis and pings it.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("store.redis.addr is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb, closer: rdb.Close, prefix: cfg.KeyPrefix}, nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(rdb goredis.Cmdable, prefix string) *Client {
	return &Client{rdb: rdb, prefix: prefix}
}

// OpenTable returns a handle to name. Tables need no creation step.
func (c *Client) OpenTable(_ context.Context, name string) (store.Table, error) {
	if err := store.ValidateTableName(name); err != nil {
		return nil, err
	}
	return &Table{rdb: c.rdb, name: name, prefix: c.prefix + name + ":"}, nil
}

// Close closes the connection pool if the Client created it.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

// Table is a handle onto one table's keyspace.
type Table struct {
	rdb    goredis.Cmdable
	name   string
	prefix string
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

func (t *Table) key(row []byte) string {
	return t.prefix + string(row)
}

func field(family string, qualifier []byte) string {
	return family + ":" + string(qualifier)
}

// Put writes each row with a single HSET.
func (t *Table) Put(ctx context.Context, puts ...*store.Put) error {
	for _, p := range puts {
		if len(p.Cells) == 0 {
			continue
		}
		values := make([]any, 0, 2*len(p.Cells))
		for _, cell := range p.Cells {
			values = append(values, field(cell.Family, cell.Qualifier), cell.Value)
		}
		if err := t.rdb.HSet(ctx, t.key(p.Row), values...).Err(); err != nil {
			return store.Wrap("put", t.name, err)
		}
	}
	return nil
}

// Exists reports whether the row hash exists.
func (t *Table) Exists(ctx context.Context, row []byte) (bool, error) {
	n, err := t.rdb.Exists(ctx, t.key(row)).Result()
	if err != nil {
		return false, store.Wrap("exists", t.name, err)
	}
	return n > 0, nil
}

// CheckAndPut sets the field only when it is absent.
func (t *Table) CheckAndPut(ctx context.Context, row []byte, family string, qualifier, value []byte) (bool, error) {
	if value == nil {
		value = []byte{}
	}
	ok, err := t.rdb.HSetNX(ctx, t.key(row), field(family, qualifier), value).Result()
	if err != nil {
		return false, store.Wrap("check_and_put", t.name, err)
	}
	return ok, nil
}

// Close is a no-op; the Client owns the connection.
func (t *Table) Close() error { return nil }
