// Package processor decides, per crawl record, whether to skip, probe or write,
// and drives borrowing writer handles from the pool.
package processor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlstore/internal/clock/system"
	"github.com/JakeFAU/crawlstore/internal/crawl"
	"github.com/JakeFAU/crawlstore/internal/metrics"
	"github.com/JakeFAU/crawlstore/internal/writer"
)

// DefaultMaxContentBytes is the default per-record content ceiling (20 MiB).
const DefaultMaxContentBytes int64 = 20 * 1024 * 1024

// Skip reasons, recorded as annotations on the record.
const (
	ReasonDisabled = crawl.AnnotationUnwritten + ":disabled"
	ReasonFiltered = crawl.AnnotationUnwritten + ":filtered"
	ReasonExists   = crawl.AnnotationUnwritten + ":exists"
	ReasonProbe    = crawl.AnnotationUnwritten + ":probe"
	ReasonStatus   = crawl.AnnotationUnwritten + ":status"
	ReasonSize     = crawl.AnnotationUnwritten + ":size"
)

// Outcome classifies what happened to a record.
type Outcome string

// Outcomes.
const (
	OutcomeWritten Outcome = "written"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Disposition tells the pipeline how to continue.
type Disposition int

const (
	// DispositionProceed lets the pipeline carry on.
	DispositionProceed Disposition = iota
	// DispositionFinish asks the pipeline to stop: the total byte ceiling was reached.
	DispositionFinish
)

func (d Disposition) String() string {
	if d == DispositionFinish {
		return "finish"
	}
	return "proceed"
}

// Config is the immutable processor configuration.
type Config struct {
	Enabled bool `mapstructure:"enabled"`
	// OnlyNew skips records whose URL already has a row.
	OnlyNew         bool  `mapstructure:"only_new"`
	MaxContentBytes int64 `mapstructure:"max_content_bytes"`
	// MaxTotalBytes stops the pipeline once this many bytes were written. Zero disables it.
	MaxTotalBytes int64  `mapstructure:"max_total_bytes"`
	NotifyTopic   string `mapstructure:"-"`
}

// DefaultConfig returns an enabled processor with the default size ceiling.
func DefaultConfig() Config {
	return Config{Enabled: true, MaxContentBytes: DefaultMaxContentBytes}
}

// Result reports the decision taken for one record.
type Result struct {
	Outcome     Outcome
	Reason      string
	Disposition Disposition
	Write       writer.Result
	Err         error
}

// Pool lends exclusive writer handles.
type Pool interface {
	Borrow(ctx context.Context) (*writer.Writer, error)
	Return(w *writer.Writer) error
}

// Predicate is a pipeline-supplied record filter.
type Predicate func(rec *crawl.Record) bool

// Notification is published after each successful write.
type Notification struct {
	URL           string    `json:"url"`
	RowKey        string    `json:"row_key"`
	ContentKey    string    `json:"content_key,omitempty"`
	ContentStored bool      `json:"content_stored"`
	Status        int       `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
}

// Option customizes a Processor.
type Option func(*Processor)

// WithShouldProcess installs the generic should-process predicate.
func WithShouldProcess(p Predicate) Option {
	return func(proc *Processor) { proc.shouldProcess = p }
}

// WithShouldWrite replaces the default write predicate, which accepts
// records with a positive fetch status.
func WithShouldWrite(p Predicate) Option {
	return func(proc *Processor) { proc.shouldWrite = p }
}

// WithPublisher publishes a Notification to cfg.NotifyTopic after each write.
func WithPublisher(pub crawl.Publisher, clock crawl.Clock) Option {
	return func(proc *Processor) {
		proc.publisher = pub
		proc.clock = clock
	}
}

// Processor is safe for concurrent use by many workers.
type Processor struct {
	cfg           Config
	pool          Pool
	shouldProcess Predicate
	shouldWrite   Predicate
	publisher     crawl.Publisher
	clock         crawl.Clock
	logger        *zap.Logger
	totalBytes    atomic.Int64
}

// New constructs a Processor.
func New(cfg Config, pool Pool, logger *zap.Logger, opts ...Option) (*Processor, error) {
	if pool == nil {
		return nil, fmt.Errorf("writer pool is required")
	}
	if cfg.MaxContentBytes < 0 || cfg.MaxTotalBytes < 0 {
		return nil, fmt.Errorf("byte limits must not be negative")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		cfg:           cfg,
		pool:          pool,
		shouldProcess: func(*crawl.Record) bool { return true },
		shouldWrite:   func(rec *crawl.Record) bool { return rec.FetchStatus > 0 },
		logger:        logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.publisher != nil && p.clock == nil {
		p.clock = system.New()
	}
	return p, nil
}

// TotalBytesWritten returns the bytes written across every record so far.
func (p *Processor) TotalBytesWritten() int64 {
	return p.totalBytes.Load()
}

// Process runs the decision sequence for rec. Failures are recorded on the
// record and in the Result; they never abort the pipeline.
func (p *Processor) Process(ctx context.Context, rec *crawl.Record) Result {
	res := p.process(ctx, rec)
	if p.cfg.MaxTotalBytes > 0 && p.totalBytes.Load() >= p.cfg.MaxTotalBytes {
		res.Disposition = DispositionFinish
	}
	metrics.ObserveRecord(string(res.Outcome), res.Reason)
	return res
}

func (p *Processor) process(ctx context.Context, rec *crawl.Record) Result {
	if !p.cfg.Enabled {
		return p.skip(rec, ReasonDisabled)
	}
	if p.shouldProcess != nil && !p.shouldProcess(rec) {
		return p.skip(rec, ReasonFiltered)
	}
	if p.cfg.OnlyNew {
		isNew, err := p.isNew(ctx, rec.URL)
		if err != nil {
			// An unanswerable probe counts as "not new".
			rec.AddFailure(err)
			res := p.skip(rec, ReasonProbe)
			res.Err = err
			return res
		}
		if !isNew {
			return p.skip(rec, ReasonExists)
		}
	}
	if p.shouldWrite != nil && !p.shouldWrite(rec) {
		return p.skip(rec, ReasonStatus)
	}
	if p.cfg.MaxContentBytes > 0 && rec.Size() > p.cfg.MaxContentBytes {
		p.logger.Warn("content too large",
			zap.String("url", rec.URL),
			zap.Int64("size", rec.Size()),
			zap.Int64("max", p.cfg.MaxContentBytes),
		)
		return p.skip(rec, ReasonSize)
	}
	return p.write(ctx, rec)
}

func (p *Processor) skip(rec *crawl.Record, reason string) Result {
	rec.Annotate(reason)
	p.logger.Debug("record not written", zap.String("url", rec.URL), zap.String("reason", reason))
	return Result{Outcome: OutcomeSkipped, Reason: reason}
}

func (p *Processor) isNew(ctx context.Context, rawURL string) (bool, error) {
	w, err := p.pool.Borrow(ctx)
	if err != nil {
		return false, fmt.Errorf("borrow writer for existence probe: %w", err)
	}
	defer p.giveBack(w)

	exists, err := w.Exists(ctx, rawURL)
	if err != nil {
		return false, fmt.Errorf("existence probe: %w", err)
	}
	return !exists, nil
}

func (p *Processor) write(ctx context.Context, rec *crawl.Record) Result {
	w, err := p.pool.Borrow(ctx)
	if err != nil {
		err = fmt.Errorf("borrow writer: %w", err)
		rec.AddFailure(err)
		p.logger.Error("failed to borrow writer", zap.String("url", rec.URL), zap.Error(err))
		return Result{Outcome: OutcomeFailed, Err: err}
	}
	defer p.giveBack(w)

	start := w.Position()
	wr, err := w.Write(ctx, rec, rec.IP)
	written := w.Position() - start
	p.totalBytes.Add(written)
	metrics.ObserveBytesWritten(written)
	if wr.ContentKey != "" && (err == nil || wr.ContentStored) {
		metrics.ObserveContentWrite(wr.ContentStored)
	}
	if err != nil {
		rec.AddFailure(err)
		p.logger.Error("failed write of record", zap.String("url", rec.URL), zap.Error(err))
		return Result{Outcome: OutcomeFailed, Write: wr, Err: err}
	}

	p.notify(ctx, rec, wr)
	return Result{Outcome: OutcomeWritten, Write: wr}
}

func (p *Processor) giveBack(w *writer.Writer) {
	if err := p.pool.Return(w); err != nil {
		p.logger.Error("failed to return writer", zap.Int("member", w.Serial()), zap.Error(err))
	}
}

func (p *Processor) notify(ctx context.Context, rec *crawl.Record, wr writer.Result) {
	if p.publisher == nil || p.cfg.NotifyTopic == "" {
		return
	}
	msg := Notification{
		URL:           rec.URL,
		RowKey:        string(wr.RowKey),
		ContentKey:    wr.ContentKey,
		ContentStored: wr.ContentStored,
		Status:        rec.FetchStatus,
		Timestamp:     p.clock.Now(),
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.NotifyTopic, msg); err != nil {
		p.logger.Warn("failed to publish write notification",
			zap.String("url", rec.URL),
			zap.String("topic", p.cfg.NotifyTopic),
			zap.Error(err),
		)
	}
}

