// Package dispatcher manages worker fan-out over the record queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/crawlstore/internal/crawl"
	"github.com/JakeFAU/crawlstore/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   crawl.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue crawl.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until every worker has returned, either
// because the queue was closed and drained or because the context finished.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, rec *crawl.Record) error {
	if err := d.queue.Enqueue(ctx, rec); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Close stops the queue; workers exit once it is drained.
func (d *Dispatcher) Close() {
	d.queue.Close()
}
