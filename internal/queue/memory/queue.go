// Package memory provides the bounded in-process record queue used by ingest.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/crawlstore/internal/crawl"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained, and
// by Enqueue after Close.
var ErrClosed = crawl.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan *crawl.Record
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch: make(chan *crawl.Record, capacity),
	}
}

// Enqueue pushes a record into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, rec *crawl.Record) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- rec:
		return nil
	}
}

// Dequeue pops the next record, respecting context cancellation. Records
// already buffered are still handed out after Close.
func (q *Queue) Dequeue(ctx context.Context) (*crawl.Record, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case rec, ok := <-q.ch:
		if !ok {
			return nil, ErrClosed
		}
		return rec, nil
	}
}

// Len returns the number of buffered records.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting records. It blocks until in-flight Enqueue calls return.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
