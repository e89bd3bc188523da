package crawl

import (
	"context"
	"errors"
	"time"
)

// ErrQueueClosed is returned by Queue.Dequeue once the queue is closed and drained.
var ErrQueueClosed = errors.New("queue closed")

// Hasher computes the content digest used as a content-table row key.
type Hasher interface {
	Digest(data []byte) string
}

// Publisher pushes write notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Queue buffers records between an ingest source and the workers.
type Queue interface {
	Enqueue(ctx context.Context, rec *Record) error
	Dequeue(ctx context.Context) (*Record, error)
	Close()
}
