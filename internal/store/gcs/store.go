// Package gcs provides a store.Client backed by Google Cloud Storage.
//
// Every cell is one object named "<table>/<row>/<family>/<qualifier>", with
// the row and qualifier path-escaped. The conditional put relies on the
// DoesNotExist generation precondition, which GCS enforces atomically.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/crawlstore/internal/store"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// Client opens tables stored as object prefixes in one bucket.
type Client struct {
	client *storage.Client
	bucket string
	owned  bool
}

// New creates a GCS-backed client using application default credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("store.gcs.bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	c, err := NewWithClient(client, cfg)
	if err != nil {
		return nil, err
	}
	c.owned = true
	return c, nil
}

// NewWithClient wraps an existing storage client.
func NewWithClient(client *storage.Client, cfg Config) (*Client, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Client{client: client, bucket: cfg.Bucket}, nil
}

// OpenTable returns a handle to name. Tables need no creation step.
func (c *Client) OpenTable(_ context.Context, name string) (store.Table, error) {
	if err := store.ValidateTableName(name); err != nil {
		return nil, err
	}
	return &Table{bucket: c.client.Bucket(c.bucket), name: name}, nil
}

// Close closes the storage client if New created it.
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}

// Table is a handle onto one table prefix.
type Table struct {
	bucket *storage.BucketHandle
	name   string
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

func rowPrefix(table string, row []byte) string {
	return table + "/" + url.PathEscape(string(row)) + "/"
}

func objectName(table string, row []byte, family string, qualifier []byte) string {
	return rowPrefix(table, row) + family + "/" + url.PathEscape(string(qualifier))
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

func writeObject(ctx context.Context, obj *storage.ObjectHandle, value []byte) error {
	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := io.Copy(w, bytes.NewReader(value)); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	return w.Close()
}

// Put uploads one object per cell.
func (t *Table) Put(ctx context.Context, puts ...*store.Put) error {
	for _, p := range puts {
		for _, cell := range p.Cells {
			obj := t.bucket.Object(objectName(t.name, p.Row, cell.Family, cell.Qualifier))
			if err := writeObject(ctx, obj, cell.Value); err != nil {
				return store.Wrap("put", t.name, err)
			}
		}
	}
	return nil
}

// Exists reports whether any object lives under the row prefix.
func (t *Table) Exists(ctx context.Context, row []byte) (bool, error) {
	it := t.bucket.Objects(ctx, &storage.Query{Prefix: rowPrefix(t.name, row)})
	_, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return false, nil
	}
	if err != nil {
		return false, store.Wrap("exists", t.name, err)
	}
	return true, nil
}

// CheckAndPut creates the cell object only when it does not exist yet.
func (t *Table) CheckAndPut(ctx context.Context, row []byte, family string, qualifier, value []byte) (bool, error) {
	obj := t.bucket.Object(objectName(t.name, row, family, qualifier)).
		If(storage.Conditions{DoesNotExist: true})
	err := writeObject(ctx, obj, value)
	if isPreconditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, store.Wrap("check_and_put", t.name, err)
	}
	return true, nil
}

// Close is a no-op; the Client owns the connection.
func (t *Table) Close() error { return nil }
