// Package bolt provides an embedded store.Client on top of BoltDB.
//
// Each table is a top-level bucket and each row a nested bucket inside it.
// Cells are keyed by family and qualifier separated by a zero byte. Every
// mutation runs in one read-write transaction, which bolt serialises, so the
// conditional put is atomic.
package bolt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/JakeFAU/crawlstore/internal/store"
)

var errEmptyRow = errors.New("empty row key")

// Config controls the database file.
type Config struct {
	Path string
	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration
}

// Client opens tables inside one bolt database file.
type Client struct {
	db *bolt.DB
}

// New opens (or creates) the database at cfg.Path.
func New(cfg Config) (*Client, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store.bolt.path is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", cfg.Path, err)
	}
	return &Client{db: db}, nil
}

// OpenTable creates the table bucket if needed and returns a handle to it.
func (c *Client) OpenTable(_ context.Context, name string) (store.Table, error) {
	if err := store.ValidateTableName(name); err != nil {
		return nil, err
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, store.Wrap("create", name, err)
	}
	return &Table{db: c.db, name: []byte(name)}, nil
}

// Close closes the database file.
func (c *Client) Close() error {
	return c.db.Close()
}

// Table is a handle onto one bucket.
type Table struct {
	db   *bolt.DB
	name []byte
}

// Name returns the table name.
func (t *Table) Name() string { return string(t.name) }

func cellKey(family string, qualifier []byte) []byte {
	k := make([]byte, 0, len(family)+1+len(qualifier))
	k = append(k, family...)
	k = append(k, 0)
	return append(k, qualifier...)
}

// hasKey reports whether k is stored in b. Bolt may hand back nil for
// zero-length values, so presence is decided by the cursor, not Get.
func hasKey(b *bolt.Bucket, k []byte) bool {
	got, _ := b.Cursor().Seek(k)
	return got != nil && bytes.Equal(got, k)
}

// Put upserts all cells in one transaction.
func (t *Table) Put(_ context.Context, puts ...*store.Put) error {
	err := t.db.Update(func(tx *bolt.Tx) error {
		tb := tx.Bucket(t.name)
		for _, p := range puts {
			if len(p.Row) == 0 {
				return errEmptyRow
			}
			rb, err := tb.CreateBucketIfNotExists(p.Row)
			if err != nil {
				return err
			}
			for _, cell := range p.Cells {
				if err := rb.Put(cellKey(cell.Family, cell.Qualifier), cell.Value); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return store.Wrap("put", t.Name(), err)
}

// Exists reports whether the row bucket holds any cell.
func (t *Table) Exists(_ context.Context, row []byte) (bool, error) {
	if len(row) == 0 {
		return false, nil
	}
	var exists bool
	err := t.db.View(func(tx *bolt.Tx) error {
		rb := tx.Bucket(t.name).Bucket(row)
		if rb == nil {
			return nil
		}
		k, _ := rb.Cursor().First()
		exists = k != nil
		return nil
	})
	return exists, store.Wrap("exists", t.Name(), err)
}

// CheckAndPut stores value only when the cell is absent.
func (t *Table) CheckAndPut(_ context.Context, row []byte, family string, qualifier, value []byte) (bool, error) {
	var stored bool
	err := t.db.Update(func(tx *bolt.Tx) error {
		if len(row) == 0 {
			return errEmptyRow
		}
		rb, err := tx.Bucket(t.name).CreateBucketIfNotExists(row)
		if err != nil {
			return err
		}
		k := cellKey(family, qualifier)
		if hasKey(rb, k) {
			return nil
		}
		if value == nil {
			value = []byte{}
		}
		if err := rb.Put(k, value); err != nil {
			return err
		}
		stored = true
		return nil
	})
	if err != nil {
		return false, store.Wrap("check_and_put", t.Name(), err)
	}
	return stored, nil
}

// Get returns a copy of one cell value.
func (t *Table) Get(_ context.Context, row []byte, family string, qualifier []byte) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := t.db.View(func(tx *bolt.Tx) error {
		rb := tx.Bucket(t.name).Bucket(row)
		if rb == nil {
			return nil
		}
		k := cellKey(family, qualifier)
		if !hasKey(rb, k) {
			return nil
		}
		found = true
		out = append([]byte{}, rb.Get(k)...)
		return nil
	})
	return out, found, store.Wrap("get", t.Name(), err)
}

// Close is a no-op; the Client owns the database.
func (t *Table) Close() error { return nil }
