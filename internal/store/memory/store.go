// Package memory keeps tables in-memory for development and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/crawlstore/internal/store"
)

var errClosed = errors.New("memory store closed")

type cellKey struct {
	family    string
	qualifier string
}

type row map[cellKey][]byte

// Client stores every table in process memory. All handles opened from one
// Client share its data.
type Client struct {
	mu     sync.RWMutex
	tables map[string]map[string]row
	closed bool
}

// New creates an empty in-memory store.
func New() *Client {
	return &Client{tables: make(map[string]map[string]row)}
}

// OpenTable returns a handle to name, creating the table on first use.
func (c *Client) OpenTable(_ context.Context, name string) (store.Table, error) {
	if err := store.ValidateTableName(name); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, store.Wrap("open", name, errClosed)
	}
	if _, ok := c.tables[name]; !ok {
		c.tables[name] = make(map[string]row)
	}
	return &Table{client: c, name: name}, nil
}

// Close marks the store closed. Data stays readable for inspection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Get returns a copy of a cell value.
func (c *Client) Get(table string, rowKey []byte, family, qualifier string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.tables[table][string(rowKey)]
	if !ok {
		return nil, false
	}
	v, ok := r[cellKey{family: family, qualifier: qualifier}]
	if !ok {
		return nil, false
	}
	return append([]byte{}, v...), true
}

// Qualifiers lists the qualifiers stored under family in a row.
func (c *Client) Qualifiers(table string, rowKey []byte, family string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []string
	for k := range c.tables[table][string(rowKey)] {
		if k.family == family {
			out = append(out, k.qualifier)
		}
	}
	return out
}

// RowCount returns the number of rows in table.
func (c *Client) RowCount(table string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tables[table])
}

// Table is a handle onto one in-memory table.
type Table struct {
	client *Client
	name   string
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Put upserts the cells. Values are copied.
func (t *Table) Put(_ context.Context, puts ...*store.Put) error {
	c := t.client
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return store.Wrap("put", t.name, errClosed)
	}
	rows := c.tables[t.name]
	for _, p := range puts {
		if len(p.Row) == 0 {
			return store.Wrap("put", t.name, fmt.Errorf("empty row key"))
		}
		r, ok := rows[string(p.Row)]
		if !ok {
			r = make(row, len(p.Cells))
			rows[string(p.Row)] = r
		}
		for _, cell := range p.Cells {
			r[cellKey{family: cell.Family, qualifier: string(cell.Qualifier)}] = append([]byte{}, cell.Value...)
		}
	}
	return nil
}

// Exists reports whether the row holds any cell.
func (t *Table) Exists(_ context.Context, rowKey []byte) (bool, error) {
	c := t.client
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false, store.Wrap("exists", t.name, errClosed)
	}
	r, ok := c.tables[t.name][string(rowKey)]
	return ok && len(r) > 0, nil
}

// CheckAndPut stores value only if the cell is absent.
func (t *Table) CheckAndPut(_ context.Context, rowKey []byte, family string, qualifier, value []byte) (bool, error) {
	c := t.client
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, store.Wrap("check_and_put", t.name, errClosed)
	}
	rows := c.tables[t.name]
	key := cellKey{family: family, qualifier: string(qualifier)}
	r, ok := rows[string(rowKey)]
	if !ok {
		r = make(row, 1)
		rows[string(rowKey)] = r
	}
	if _, present := r[key]; present {
		return false, nil
	}
	r[key] = append([]byte{}, value...)
	return true, nil
}

// Close is a no-op; the client owns the data.
func (t *Table) Close() error { return nil }
