package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if recordsTotal == nil || bytesWrittenTotal == nil || poolActive == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveRecord(t *testing.T) {
	before := testutil.ToFloat64(recordsCounter("skipped", "unwritten:size"))
	ObserveRecord("skipped", "unwritten:size")
	ObserveRecord("skipped", "unwritten:size")
	if got := testutil.ToFloat64(recordsCounter("skipped", "unwritten:size")) - before; got != 2 {
		t.Errorf("expected 2 skipped records, got %f", got)
	}
}

func TestObserveBytesWrittenIgnoresNonPositive(t *testing.T) {
	Init()
	before := testutil.ToFloat64(bytesWrittenTotal)
	ObserveBytesWritten(0)
	ObserveBytesWritten(-5)
	ObserveBytesWritten(10)
	if got := testutil.ToFloat64(bytesWrittenTotal) - before; got != 10 {
		t.Errorf("expected 10 bytes, got %f", got)
	}
}

func TestPoolMetrics(t *testing.T) {
	SetPoolSize(3, 2)
	if got := testutil.ToFloat64(poolActive); got != 3 {
		t.Errorf("expected 3 active, got %f", got)
	}
	if got := testutil.ToFloat64(poolIdle); got != 2 {
		t.Errorf("expected 2 idle, got %f", got)
	}

	before := testutil.ToFloat64(poolExhaustedTotal)
	ObservePoolExhausted()
	if got := testutil.ToFloat64(poolExhaustedTotal) - before; got != 1 {
		t.Errorf("expected exhaustion counter to grow by 1, got %f", got)
	}

	ObserveBorrowWait(25 * time.Millisecond)
	if n := testutil.CollectAndCount(poolBorrowWaitSeconds); n != 1 {
		t.Errorf("expected one histogram series, got %d", n)
	}
}

func TestObserveContentWrite(t *testing.T) {
	Init()
	stored := testutil.ToFloat64(contentWritesTotal.WithLabelValues("stored"))
	deduped := testutil.ToFloat64(contentWritesTotal.WithLabelValues("deduplicated"))
	ObserveContentWrite(true)
	ObserveContentWrite(false)
	ObserveContentWrite(false)
	if got := testutil.ToFloat64(contentWritesTotal.WithLabelValues("stored")) - stored; got != 1 {
		t.Errorf("expected 1 stored write, got %f", got)
	}
	if got := testutil.ToFloat64(contentWritesTotal.WithLabelValues("deduplicated")) - deduped; got != 2 {
		t.Errorf("expected 2 deduplicated writes, got %f", got)
	}
}

func recordsCounter(outcome, reason string) prometheus.Counter {
	Init()
	return recordsTotal.WithLabelValues(outcome, reason)
}
