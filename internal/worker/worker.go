// Package worker runs the record processing loop over the ingest queue.
package worker

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlstore/internal/crawl"
	"github.com/JakeFAU/crawlstore/internal/processor"
)

// RecordProcessor is satisfied by *processor.Processor.
type RecordProcessor interface {
	Process(ctx context.Context, rec *crawl.Record) processor.Result
}

// Summary counts outcomes across workers.
type Summary struct {
	Written int64 `json:"written"`
	Skipped int64 `json:"skipped"`
	Failed  int64 `json:"failed"`
}

// Tally accumulates outcomes. It is shared by all workers of a dispatcher.
type Tally struct {
	written atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64
}

// Add counts one result.
func (t *Tally) Add(res processor.Result) {
	switch res.Outcome {
	case processor.OutcomeWritten:
		t.written.Add(1)
	case processor.OutcomeSkipped:
		t.skipped.Add(1)
	case processor.OutcomeFailed:
		t.failed.Add(1)
	}
}

// Summary returns the current counts.
func (t *Tally) Summary() Summary {
	return Summary{Written: t.written.Load(), Skipped: t.skipped.Load(), Failed: t.failed.Load()}
}

// Worker consumes queued records and hands them to the processor.
type Worker struct {
	id       int
	queue    crawl.Queue
	proc     RecordProcessor
	tally    *Tally
	onFinish func()
	logger   *zap.Logger
}

// New constructs a Worker. onFinish, if set, is called when the processor
// asks the pipeline to stop.
func New(
	id int,
	queue crawl.Queue,
	proc RecordProcessor,
	tally *Tally,
	onFinish func(),
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tally == nil {
		tally = &Tally{}
	}
	return &Worker{
		id:       id,
		queue:    queue,
		proc:     proc,
		tally:    tally,
		onFinish: onFinish,
		logger:   logger.With(zap.Int("worker", id)),
	}
}

// Run blocks, consuming records until the queue is drained or the context ends.
func (w *Worker) Run(ctx context.Context) {
	for {
		rec, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawl.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.processRecord(ctx, rec)
	}
}

func (w *Worker) processRecord(ctx context.Context, rec *crawl.Record) {
	res := w.proc.Process(ctx, rec)
	w.tally.Add(res)

	fields := []zap.Field{
		zap.String("url", rec.URL),
		zap.String("outcome", string(res.Outcome)),
	}
	switch res.Outcome {
	case processor.OutcomeFailed:
		w.logger.Warn("record failed", append(fields, zap.Error(res.Err))...)
	case processor.OutcomeSkipped:
		w.logger.Debug("record skipped", append(fields, zap.String("reason", res.Reason))...)
	default:
		w.logger.Debug("record written", append(fields, zap.String("content_key", res.Write.ContentKey))...)
	}

	if res.Disposition == processor.DispositionFinish && w.onFinish != nil {
		w.logger.Info("byte ceiling reached, finishing")
		w.onFinish()
	}
}
