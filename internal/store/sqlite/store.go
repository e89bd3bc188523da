// Package sqlite provides a SQLite-backed store.Client built on sqlx.
//
// Tables share the cell layout of the postgres backend. SQLite serialises
// writers, so the client keeps a single open connection.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/JakeFAU/crawlstore/internal/store"
)

const driverName = "sqlite3"

// Config controls the SQLite database file.
type Config struct {
	Path         string
	CreateTables bool
}

// Client opens tables inside one SQLite database.
type Client struct {
	db           *sqlx.DB
	createTables bool
}

// New opens (or creates) the database at cfg.Path and pings it.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store.sqlite.path is required")
	}
	dsn := cfg.Path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}
	db, err := sqlx.ConnectContext(ctx, driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Path, err)
	}
	db.SetMaxOpenConns(1)
	return &Client{db: db, createTables: cfg.CreateTables}, nil
}

// NewWithDB wraps an existing handle (primarily for testing).
func NewWithDB(db *sqlx.DB, createTables bool) (*Client, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Client{db: db, createTables: createTables}, nil
}

// OpenTable returns a handle to name, creating the table if configured to.
func (c *Client) OpenTable(ctx context.Context, name string) (store.Table, error) {
	if err := store.ValidateTableName(name); err != nil {
		return nil, err
	}
	if c.createTables {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	row_key BLOB NOT NULL,
	family TEXT NOT NULL,
	qualifier BLOB NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (row_key, family, qualifier)
)`, name)
		if _, err := c.db.ExecContext(ctx, ddl); err != nil {
			return nil, store.Wrap("create", name, err)
		}
	}
	return &Table{db: c.db, name: name}, nil
}

// Close closes the database.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Table is a handle onto one SQLite table.
type Table struct {
	db   *sqlx.DB
	name string
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Put upserts all cells inside one transaction.
func (t *Table) Put(ctx context.Context, puts ...*store.Put) (err error) {
	if len(puts) == 0 {
		return nil
	}
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return store.Wrap("put", t.name, fmt.Errorf("begin: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := fmt.Sprintf(`INSERT INTO %s (row_key, family, qualifier, value) VALUES (?, ?, ?, ?)
ON CONFLICT (row_key, family, qualifier) DO UPDATE SET value = excluded.value`, t.name)
	for _, p := range puts {
		for _, cell := range p.Cells {
			if _, err = tx.ExecContext(ctx, query, p.Row, cell.Family, cell.Qualifier, cell.Value); err != nil {
				return store.Wrap("put", t.name, err)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return store.Wrap("put", t.name, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Exists reports whether any cell is stored for row.
func (t *Table) Exists(ctx context.Context, row []byte) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE row_key = ?)`, t.name)
	var exists bool
	if err := t.db.GetContext(ctx, &exists, query, row); err != nil {
		return false, store.Wrap("exists", t.name, err)
	}
	return exists, nil
}

// CheckAndPut inserts the cell unless it already exists.
func (t *Table) CheckAndPut(ctx context.Context, row []byte, family string, qualifier, value []byte) (bool, error) {
	query := fmt.Sprintf(`INSERT INTO %s (row_key, family, qualifier, value) VALUES (?, ?, ?, ?)
ON CONFLICT (row_key, family, qualifier) DO NOTHING`, t.name)
	if value == nil {
		value = []byte{}
	}
	res, err := t.db.ExecContext(ctx, query, row, family, qualifier, value)
	if err != nil {
		return false, store.Wrap("check_and_put", t.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, store.Wrap("check_and_put", t.name, err)
	}
	return n == 1, nil
}

// Close is a no-op; the Client owns the database.
func (t *Table) Close() error { return nil }
