// Package store defines the key-value store boundary used by the crawl writers.
//
// The model is a wide-column one: a table holds rows, a row holds cells, and a
// cell is addressed by a column family and a qualifier. Backends only need to
// provide three primitives per table: a row upsert, a row existence probe and an
// atomic "set this cell if it is absent" conditional put.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrIO marks a transient store failure. Every backend error unwraps to it.
var ErrIO = errors.New("store i/o failure")

// ErrInvalidTableName rejects table names that cannot be safely used by every backend.
var ErrInvalidTableName = errors.New("invalid table name")

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Cell is a single value addressed by column family and qualifier.
type Cell struct {
	Family    string
	Qualifier []byte
	Value     []byte
}

// Put is a set of cells to upsert into one row.
type Put struct {
	Row   []byte
	Cells []Cell
}

// NewPut starts a Put for row.
func NewPut(row []byte) *Put {
	return &Put{Row: row}
}

// Add appends a cell and returns the Put for chaining.
func (p *Put) Add(family string, qualifier, value []byte) *Put {
	if value == nil {
		value = []byte{}
	}
	p.Cells = append(p.Cells, Cell{Family: family, Qualifier: qualifier, Value: value})
	return p
}

// Size returns the number of value bytes carried by the Put.
func (p *Put) Size() int64 {
	var n int64
	for _, c := range p.Cells {
		n += int64(len(c.Value))
	}
	return n
}

// Value returns the value of the first cell matching family and qualifier.
func (p *Put) Value(family, qualifier string) ([]byte, bool) {
	for _, c := range p.Cells {
		if c.Family == family && string(c.Qualifier) == qualifier {
			return c.Value, true
		}
	}
	return nil, false
}

// Table is a handle to one named table.
type Table interface {
	// Name returns the table name.
	Name() string
	// Put upserts every cell of every Put.
	Put(ctx context.Context, puts ...*Put) error
	// Exists reports whether row holds at least one cell.
	Exists(ctx context.Context, row []byte) (bool, error)
	// CheckAndPut atomically stores value in the cell only when the cell is
	// currently absent. It reports whether the value was stored.
	CheckAndPut(ctx context.Context, row []byte, family string, qualifier, value []byte) (bool, error)
	// Close releases the handle. The underlying client stays open.
	Close() error
}

// Client opens table handles against one store deployment.
type Client interface {
	OpenTable(ctx context.Context, name string) (Table, error)
	Close() error
}

// ValidateTableName checks that name is a plain identifier.
func ValidateTableName(name string) error {
	if !validTableName.MatchString(name) {
		return fmt.Errorf("%w %q", ErrInvalidTableName, name)
	}
	return nil
}

// OpError describes a failed store operation.
type OpError struct {
	Op    string
	Table string
	Err   error
}

func (e *OpError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap exposes both ErrIO and the backend cause to errors.Is / errors.As.
func (e *OpError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// Wrap returns err as an *OpError, or nil when err is nil.
func Wrap(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OpError
	if errors.As(err, &opErr) {
		return err
	}
	return &OpError{Op: op, Table: table, Err: err}
}
