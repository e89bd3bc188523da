// Package pool hands out exclusive members from a bounded, lazily grown set.
//
// Capacity is enforced with a permit channel: every borrowed member, and every
// member being created, holds one permit. New members are only created when
// no idle member exists, so borrowed plus idle never exceeds MaxActive.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawlstore/internal/metrics"
)

var (
	// ErrExhausted is returned when no member became available within MaxWait.
	ErrExhausted = errors.New("pool exhausted")
	// ErrClosed is returned by Borrow after Close.
	ErrClosed = errors.New("pool closed")
	// ErrInvalidCapacity rejects a pool that could never hand out a member.
	ErrInvalidCapacity = errors.New("pool capacity must be positive")
	// ErrNotBorrowed is returned when returning a member the pool did not lend.
	ErrNotBorrowed = errors.New("member not borrowed from this pool")
)

// Member is anything the pool can hand out and destroy.
type Member interface {
	comparable
	Close() error
}

// Factory creates a new member. serial increases with every creation attempt.
type Factory[T Member] func(ctx context.Context, serial int) (T, error)

// Config bounds the pool.
type Config struct {
	MaxActive int           `mapstructure:"max_active"`
	MaxWait   time.Duration `mapstructure:"max_wait"`
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{MaxActive: 5, MaxWait: 30 * time.Second}
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Active    int `json:"active"`
	Idle      int `json:"idle"`
	MaxActive int `json:"max_active"`
	// Created counts creation attempts, including failed ones.
	Created int `json:"created"`
}

// Pool is a bounded pool of exclusive members.
type Pool[T Member] struct {
	factory Factory[T]
	maxWait time.Duration
	max     int
	logger  *zap.Logger

	permits chan struct{}
	done    chan struct{}

	mu       sync.Mutex
	idle     []T
	borrowed map[T]struct{}
	serial   int
	closed   bool
}

// New builds a pool. A non-positive MaxWait makes Borrow fail fast when the
// pool is at capacity.
func New[T Member](cfg Config, factory Factory[T], logger *zap.Logger) (*Pool[T], error) {
	if cfg.MaxActive <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, cfg.MaxActive)
	}
	if factory == nil {
		return nil, fmt.Errorf("factory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool[T]{
		factory:  factory,
		maxWait:  cfg.MaxWait,
		max:      cfg.MaxActive,
		logger:   logger,
		permits:  make(chan struct{}, cfg.MaxActive),
		done:     make(chan struct{}),
		borrowed: make(map[T]struct{}, cfg.MaxActive),
	}, nil
}

func (p *Pool[T]) acquire(ctx context.Context) error {
	select {
	case p.permits <- struct{}{}:
		return nil
	default:
	}
	if p.maxWait <= 0 {
		metrics.ObservePoolExhausted()
		return ErrExhausted
	}

	start := time.Now()
	timer := time.NewTimer(p.maxWait)
	defer timer.Stop()
	select {
	case p.permits <- struct{}{}:
		metrics.ObserveBorrowWait(time.Since(start))
		return nil
	case <-timer.C:
		metrics.ObservePoolExhausted()
		return fmt.Errorf("%w after %s", ErrExhausted, p.maxWait)
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool[T]) release() {
	<-p.permits
}

// Borrow returns an idle member, creates one if below capacity, or waits up
// to MaxWait for one to be returned.
func (p *Pool[T]) Borrow(ctx context.Context) (T, error) {
	var zero T
	if p.isClosed() {
		return zero, ErrClosed
	}
	if err := p.acquire(ctx); err != nil {
		return zero, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.release()
		return zero, ErrClosed
	}
	if n := len(p.idle); n > 0 {
		m := p.idle[n-1]
		p.idle[n-1] = zero
		p.idle = p.idle[:n-1]
		p.borrowed[m] = struct{}{}
		p.reportLocked()
		p.mu.Unlock()
		return m, nil
	}
	serial := p.serial
	p.serial++
	p.mu.Unlock()

	m, err := p.factory(ctx, serial)
	if err != nil {
		p.release()
		return zero, fmt.Errorf("create member %d: %w", serial, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.release()
		_ = m.Close()
		return zero, ErrClosed
	}
	p.borrowed[m] = struct{}{}
	p.reportLocked()
	p.mu.Unlock()
	p.logger.Debug("pool member created", zap.Int("member", serial))
	return m, nil
}

// Return hands a borrowed member back. It may be called from any goroutine.
func (p *Pool[T]) Return(m T) error {
	p.mu.Lock()
	if _, ok := p.borrowed[m]; !ok {
		p.mu.Unlock()
		return ErrNotBorrowed
	}
	delete(p.borrowed, m)
	if p.closed {
		p.reportLocked()
		p.mu.Unlock()
		p.release()
		return m.Close()
	}
	p.idle = append(p.idle, m)
	p.reportLocked()
	p.mu.Unlock()
	p.release()
	return nil
}

// Invalidate destroys a borrowed member and frees its slot.
func (p *Pool[T]) Invalidate(m T) error {
	p.mu.Lock()
	if _, ok := p.borrowed[m]; !ok {
		p.mu.Unlock()
		return ErrNotBorrowed
	}
	delete(p.borrowed, m)
	p.reportLocked()
	p.mu.Unlock()
	p.release()
	return m.Close()
}

// Close destroys idle members and fails future borrows. Members still on loan
// are destroyed when returned.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	idle := p.idle
	p.idle = nil
	p.reportLocked()
	p.mu.Unlock()

	var errs []error
	for _, m := range idle {
		errs = append(errs, m.Close())
	}
	return errors.Join(errs...)
}

// NumActive returns the number of borrowed members.
func (p *Pool[T]) NumActive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.borrowed)
}

// NumIdle returns the number of idle members.
func (p *Pool[T]) NumIdle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Stats returns a consistent snapshot of the pool.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Active: len(p.borrowed), Idle: len(p.idle), MaxActive: p.max, Created: p.serial}
}

func (p *Pool[T]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Pool[T]) reportLocked() {
	metrics.SetPoolSize(len(p.borrowed), len(p.idle))
}
