// Package postgres provides a Postgres-backed store.Client.
//
// Each logical table becomes one relation holding one row per cell:
//
//	CREATE TABLE <name> (
//		row_key   BYTEA NOT NULL,
//		family    TEXT  NOT NULL,
//		qualifier BYTEA NOT NULL,
//		value     BYTEA NOT NULL,
//		PRIMARY KEY (row_key, family, qualifier)
//	);
//
// The conditional put relies on INSERT ... ON CONFLICT DO NOTHING, which is
// atomic on the primary key.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/crawlstore/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// CreateTables issues CREATE TABLE IF NOT EXISTS when a table is opened.
	CreateTables bool
}

type querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Client opens Postgres-backed tables.
type Client struct {
	pool         querier
	createTables bool
}

// New creates a Client using the provided config.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Client{pool: pool, createTables: cfg.CreateTables}, nil
}

// NewWithPool constructs a Client from an existing pool (primarily for testing).
func NewWithPool(pool querier, createTables bool) (*Client, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Client{pool: pool, createTables: createTables}, nil
}

// OpenTable returns a handle to name, creating the relation if configured to.
func (c *Client) OpenTable(ctx context.Context, name string) (store.Table, error) {
	if err := store.ValidateTableName(name); err != nil {
		return nil, err
	}
	if c.createTables {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	row_key BYTEA NOT NULL,
	family TEXT NOT NULL,
	qualifier BYTEA NOT NULL,
	value BYTEA NOT NULL,
	PRIMARY KEY (row_key, family, qualifier)
)`, name)
		if _, err := c.pool.Exec(ctx, ddl); err != nil {
			return nil, store.Wrap("create", name, err)
		}
	}
	return &Table{pool: c.pool, name: name}, nil
}

// Close releases the underlying pool resources.
func (c *Client) Close() error {
	if c == nil || c.pool == nil {
		return nil
	}
	c.pool.Close()
	return nil
}

// Table is a handle onto one Postgres relation.
type Table struct {
	pool querier
	name string
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Put upserts all cells inside one transaction.
func (t *Table) Put(ctx context.Context, puts ...*store.Put) (err error) {
	if len(puts) == 0 {
		return nil
	}
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return store.Wrap("put", t.name, fmt.Errorf("begin: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`INSERT INTO %s (row_key, family, qualifier, value)
VALUES ($1, $2, $3, $4)
ON CONFLICT (row_key, family, qualifier) DO UPDATE SET value = EXCLUDED.value`, t.name)
	for _, p := range puts {
		for _, cell := range p.Cells {
			if _, err = tx.Exec(ctx, query, p.Row, cell.Family, cell.Qualifier, cell.Value); err != nil {
				return store.Wrap("put", t.name, err)
			}
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return store.Wrap("put", t.name, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Exists reports whether any cell is stored for row.
func (t *Table) Exists(ctx context.Context, row []byte) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE row_key = $1)`, t.name)
	var exists bool
	if err := t.pool.QueryRow(ctx, query, row).Scan(&exists); err != nil {
		return false, store.Wrap("exists", t.name, err)
	}
	return exists, nil
}

// CheckAndPut inserts the cell unless it already exists.
func (t *Table) CheckAndPut(ctx context.Context, row []byte, family string, qualifier, value []byte) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (row_key, family, qualifier, value)
VALUES ($1, $2, $3, $4)
ON CONFLICT (row_key, family, qualifier) DO NOTHING`, t.name)
	if value == nil {
		value = []byte{}
	}
	tag, err := t.pool.Exec(ctx, query, row, family, qualifier, value)
	if err != nil {
		return false, store.Wrap("check_and_put", t.name, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Close is a no-op; the Client owns the pool.
func (t *Table) Close() error { return nil }
