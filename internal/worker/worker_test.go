package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/crawlstore/internal/crawl"
	"github.com/JakeFAU/crawlstore/internal/processor"
	"github.com/JakeFAU/crawlstore/internal/queue/memory"
)

type scriptedProcessor struct {
	mu      sync.Mutex
	seen    []string
	results map[string]processor.Result
}

func (p *scriptedProcessor) Process(_ context.Context, rec *crawl.Record) processor.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, rec.URL)
	if res, ok := p.results[rec.URL]; ok {
		return res
	}
	return processor.Result{Outcome: processor.OutcomeWritten}
}

func TestWorkerDrainsQueueAndTallies(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(4)
	proc := &scriptedProcessor{results: map[string]processor.Result{
		"http://b.com/": {Outcome: processor.OutcomeSkipped, Reason: processor.ReasonSize},
		"http://c.com/": {Outcome: processor.OutcomeFailed},
	}}
	for _, u := range []string{"http://a.com/", "http://b.com/", "http://c.com/"} {
		require.NoError(t, q.Enqueue(context.Background(), &crawl.Record{URL: u}))
	}
	q.Close()

	tally := &Tally{}
	New(0, q, proc, tally, nil, nil).Run(context.Background())

	require.Equal(t, []string{"http://a.com/", "http://b.com/", "http://c.com/"}, proc.seen)
	require.Equal(t, Summary{Written: 1, Skipped: 1, Failed: 1}, tally.Summary())
}

func TestWorkerStopsOnCancel(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(1, q, &scriptedProcessor{}, nil, nil, nil).Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkerCallsOnFinish(t *testing.T) {
	t.Parallel()

	q := memory.NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), &crawl.Record{URL: "http://a.com/"}))
	q.Close()

	var finished atomic.Int32
	proc := &scriptedProcessor{results: map[string]processor.Result{
		"http://a.com/": {Outcome: processor.OutcomeWritten, Disposition: processor.DispositionFinish},
	}}
	New(0, q, proc, nil, func() { finished.Add(1) }, nil).Run(context.Background())
	require.EqualValues(t, 1, finished.Load())
}
