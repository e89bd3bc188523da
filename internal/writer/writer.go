// Package writer persists crawl records into a URL table and a
// content-addressed content table.
//
// Content is deduplicated across URLs: the first writer of a digest claims the
// content cell with an empty placeholder through an atomic conditional put and
// then fills in the payload. Later writers of the same digest lose the claim
// and skip the payload. Every writer records a back-reference from the content
// row to its own URL row key.
package writer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlstore/internal/crawl"
	"github.com/JakeFAU/crawlstore/internal/store"
	"github.com/JakeFAU/crawlstore/internal/urlkey"
)

// ErrEmptyRowKey is returned for URLs whose row key encodes to nothing, such
// as a bare "dns:".
var ErrEmptyRowKey = errors.New("url encodes to an empty row key")

// Result describes one completed write.
type Result struct {
	RowKey        []byte
	ContentKey    string
	ContentStored bool
	Bytes         int64
}

// Writer is an exclusive handle bound to the URL and content tables. It is
// not safe for concurrent use; the pool guarantees a single owner.
type Writer struct {
	serial   int
	schema   Schema
	hasher   crawl.Hasher
	urls     store.Table
	content  store.Table
	logger   *zap.Logger
	position int64
}

// Open binds a new Writer to the tables named by schema.
func Open(ctx context.Context, client store.Client, serial int, schema Schema, hasher crawl.Hasher, logger *zap.Logger) (*Writer, error) {
	if client == nil {
		return nil, fmt.Errorf("store client is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("hasher is required")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	urls, err := client.OpenTable(ctx, schema.URLTable)
	if err != nil {
		return nil, fmt.Errorf("open url table: %w", err)
	}
	content, err := client.OpenTable(ctx, schema.ContentTable)
	if err != nil {
		_ = urls.Close()
		return nil, fmt.Errorf("open content table: %w", err)
	}
	return &Writer{
		serial:  serial,
		schema:  schema,
		hasher:  hasher,
		urls:    urls,
		content: content,
		logger:  logger.With(zap.Int("member", serial)),
	}, nil
}

// Serial returns the pool serial number assigned at creation.
func (w *Writer) Serial() int { return w.serial }

// Position returns the number of value bytes this writer has written.
func (w *Writer) Position() int64 { return w.position }

// Exists reports whether rawURL already has a row in the URL table.
func (w *Writer) Exists(ctx context.Context, rawURL string) (bool, error) {
	row := urlkey.Encode(rawURL)
	if len(row) == 0 {
		return false, fmt.Errorf("%w: %q", ErrEmptyRowKey, rawURL)
	}
	return w.urls.Exists(ctx, row)
}

// Write stores rec. Content-table writes happen before the URL row so a reader
// who sees the hash column can expect the content row to have been attempted.
// A failure after the content write leaves an orphaned content row.
func (w *Writer) Write(ctx context.Context, rec *crawl.Record, ip string) (Result, error) {
	if rec == nil {
		return Result{}, fmt.Errorf("record is required")
	}
	start := w.position
	put := BuildURLPut(w.schema, rec, ip)
	if len(put.Row) == 0 {
		return Result{}, fmt.Errorf("%w: %q", ErrEmptyRowKey, rec.URL)
	}
	res := Result{RowKey: put.Row}

	if len(rec.Content) > 0 {
		res.ContentKey = w.hasher.Digest(rec.Content)
		put.Add(w.schema.URLFamily, []byte(w.schema.Columns.Hash), []byte(res.ContentKey))

		stored, err := w.storeContent(ctx, []byte(res.ContentKey), put.Row, rec.Content)
		res.ContentStored = stored
		if err != nil {
			res.Bytes = w.position - start
			return res, fmt.Errorf("write content %s: %w", res.ContentKey, err)
		}
	}

	if err := w.urls.Put(ctx, put); err != nil {
		res.Bytes = w.position - start
		return res, fmt.Errorf("write url row: %w", err)
	}
	w.position += put.Size()
	res.Bytes = w.position - start

	w.logger.Debug("record written",
		zap.String("url", rec.URL),
		zap.ByteString("row_key", res.RowKey),
		zap.String("content_key", res.ContentKey),
		zap.Bool("content_stored", res.ContentStored),
		zap.Int64("bytes", res.Bytes),
	)
	return res, nil
}

// storeContent runs the dedup protocol for one digest and reports whether this
// writer stored the payload.
func (w *Writer) storeContent(ctx context.Context, key, rowKey, content []byte) (bool, error) {
	family := w.schema.ContentFamily
	qualifier := []byte(w.schema.Columns.Content)

	won, err := w.content.CheckAndPut(ctx, key, family, qualifier, []byte{})
	if err != nil {
		return false, err
	}

	put := store.NewPut(key).Add(w.schema.URLFamily, rowKey, []byte{})
	if won {
		put.Add(family, qualifier, content)
	}
	if err := w.content.Put(ctx, put); err != nil {
		return false, err
	}
	w.position += put.Size()
	return won, nil
}

// Close releases both table handles.
func (w *Writer) Close() error {
	return errors.Join(w.urls.Close(), w.content.Close())
}
