// Package leveldb provides an embedded store.Client on top of goleveldb.
//
// All tables share one keyspace. A cell key is the length-prefixed table,
// row and family followed by the raw qualifier, so every cell of a row shares
// a common prefix.
package leveldb

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/JakeFAU/crawlstore/internal/store"
)

// Config controls the database directory.
type Config struct {
	Path string
	// Sync forces an fsync on every write.
	Sync bool
}

// Client opens tables inside one leveldb database.
type Client struct {
	db *leveldb.DB
	wo *opt.WriteOptions
}

// New opens (or creates) the database directory at cfg.Path.
func New(cfg Config) (*Client, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store.leveldb.path is required")
	}
	db, err := leveldb.OpenFile(cfg.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", cfg.Path, err)
	}
	return &Client{db: db, wo: &opt.WriteOptions{Sync: cfg.Sync}}, nil
}

// OpenTable returns a handle to name. Tables need no creation step.
func (c *Client) OpenTable(_ context.Context, name string) (store.Table, error) {
	if err := store.ValidateTableName(name); err != nil {
		return nil, err
	}
	return &Table{db: c.db, wo: c.wo, name: name}, nil
}

// Close closes the database.
func (c *Client) Close() error {
	return c.db.Close()
}

// Table is a handle onto one table's key range.
type Table struct {
	db   *leveldb.DB
	wo   *opt.WriteOptions
	name string
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

func appendField(dst, field []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(field)))
	return append(dst, field...)
}

func (t *Table) rowPrefix(row []byte) []byte {
	k := appendField(nil, []byte(t.name))
	return appendField(k, row)
}

func (t *Table) cellKey(row []byte, family string, qualifier []byte) []byte {
	k := appendField(t.rowPrefix(row), []byte(family))
	return append(k, qualifier...)
}

// Put writes every cell in one atomic batch.
func (t *Table) Put(_ context.Context, puts ...*store.Put) error {
	batch := new(leveldb.Batch)
	for _, p := range puts {
		for _, cell := range p.Cells {
			batch.Put(t.cellKey(p.Row, cell.Family, cell.Qualifier), cell.Value)
		}
	}
	return store.Wrap("put", t.name, t.db.Write(batch, t.wo))
}

// Exists reports whether any key carries the row prefix.
func (t *Table) Exists(_ context.Context, row []byte) (bool, error) {
	it := t.db.NewIterator(util.BytesPrefix(t.rowPrefix(row)), nil)
	defer it.Release()
	found := it.Next()
	if err := it.Error(); err != nil {
		return false, store.Wrap("exists", t.name, err)
	}
	return found, nil
}

// CheckAndPut stores value only when the cell is absent. The check and the
// write happen inside one leveldb transaction, which blocks other writers.
func (t *Table) CheckAndPut(_ context.Context, row []byte, family string, qualifier, value []byte) (stored bool, err error) {
	tx, err := t.db.OpenTransaction()
	if err != nil {
		return false, store.Wrap("check_and_put", t.name, err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Discard()
		}
	}()

	key := t.cellKey(row, family, qualifier)
	has, err := tx.Has(key, nil)
	if err != nil {
		return false, store.Wrap("check_and_put", t.name, err)
	}
	if has {
		return false, nil
	}
	if value == nil {
		value = []byte{}
	}
	if err := tx.Put(key, value, t.wo); err != nil {
		return false, store.Wrap("check_and_put", t.name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, store.Wrap("check_and_put", t.name, err)
	}
	committed = true
	return true, nil
}

// Get returns one cell value.
func (t *Table) Get(_ context.Context, row []byte, family string, qualifier []byte) ([]byte, bool, error) {
	v, err := t.db.Get(t.cellKey(row, family, qualifier), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, store.Wrap("get", t.name, err)
	}
	return v, true, nil
}

// Close is a no-op; the Client owns the database.
func (t *Table) Close() error { return nil }
