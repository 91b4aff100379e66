// Package queue implements the durable, retrying delivery queue used for SOS
// and SMS payloads.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/clock"
	"github.com/hamed0406/safezone/internal/domain"
	"github.com/hamed0406/safezone/internal/metrics"
	"github.com/hamed0406/safezone/internal/repo"
)

const (
	DefaultMaxLength   = 500
	DefaultMaxAttempts = 3
)

// Sender delivers one entry. The whole entry is passed so transports can
// forward the idempotency key.
type Sender[T any] func(ctx context.Context, e domain.QueueEntry[T]) error

type Options struct {
	Name        string
	Key         string
	MaxLength   int
	MaxAttempts int
	// IdempotencyKeys makes Enqueue stamp every entry with a fresh key.
	IdempotencyKeys bool
}

// Queue persists entries most-recent-first and drains them oldest-first.
//
// A drain works on a snapshot: outcomes are merged back into whatever list is
// persisted when the pass ends, so entries enqueued mid-drain are kept.
type Queue[T any] struct {
	opts    Options
	doc     *repo.Doc[[]domain.QueueEntry[T]]
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex // list read-modify-write
	drainMu sync.Mutex // one drain at a time
}

func New[T any](kv repo.KV, opts Options, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *Queue[T] {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue[T]{
		opts:    opts,
		doc:     repo.NewDoc[[]domain.QueueEntry[T]](kv, opts.Key),
		clock:   clk,
		log:     log.With(zap.String("queue", opts.Name)),
		metrics: m,
	}
}

func (q *Queue[T]) Name() string     { return q.opts.Name }
func (q *Queue[T]) MaxAttempts() int { return q.opts.MaxAttempts }

// load treats a corrupt blob as an empty queue.
func (q *Queue[T]) load(ctx context.Context) ([]domain.QueueEntry[T], error) {
	list, _, err := q.doc.Load(ctx)
	if errors.Is(err, domain.ErrStorageCorrupt) {
		q.log.Warn("queue_storage_corrupt", zap.Error(err))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (q *Queue[T]) save(ctx context.Context, list []domain.QueueEntry[T]) error {
	if list == nil {
		list = []domain.QueueEntry[T]{}
	}
	if err := q.doc.Save(ctx, list); err != nil {
		return err
	}
	q.depth(len(list))
	return nil
}

// Enqueue prepends a new entry and drops the oldest ones beyond MaxLength.
func (q *Queue[T]) Enqueue(ctx context.Context, payload T) (domain.QueueEntry[T], error) {
	e := domain.QueueEntry[T]{
		ID:        uuid.NewString(),
		Timestamp: q.clock.Now(),
		Payload:   payload,
	}
	if q.opts.IdempotencyKeys {
		e.IdempotencyKey = uuid.NewString()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	list, err := q.load(ctx)
	if err != nil {
		return domain.QueueEntry[T]{}, fmt.Errorf("enqueue: %w", err)
	}
	list = append([]domain.QueueEntry[T]{e}, list...)
	if n := len(list) - q.opts.MaxLength; n > 0 {
		q.log.Warn("queue_overflow_dropped", zap.Int("dropped", n))
		list = list[:q.opts.MaxLength]
	}
	if err := q.save(ctx, list); err != nil {
		return domain.QueueEntry[T]{}, fmt.Errorf("enqueue: %w", err)
	}
	q.log.Info("queue_enqueued", zap.String("id", e.ID), zap.Int("length", len(list)))
	return e, nil
}

// PeekAll returns the persisted entries, most recent first.
func (q *Queue[T]) PeekAll(ctx context.Context) ([]domain.QueueEntry[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

func (q *Queue[T]) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.doc.Delete(ctx); err != nil {
		return err
	}
	q.depth(0)
	return nil
}

// Prune removes the given ids and leaves every other entry untouched.
func (q *Queue[T]) Prune(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	list, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	kept := list[:0:0]
	for _, e := range list {
		if _, ok := drop[e.ID]; !ok {
			kept = append(kept, e)
		}
	}
	removed := len(list) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, q.save(ctx, kept)
}

// Drain makes one pass over the queue oldest-first.
//
// A connectivity failure aborts the pass and leaves the failing entry and all
// later ones untouched. Any other failure counts as an attempt; entries that
// reach MaxAttempts are retired into the report's Failed list.
func (q *Queue[T]) Drain(ctx context.Context, send Sender[T]) (domain.DrainReport, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	snapshot, err := q.PeekAll(ctx)
	if err != nil {
		return domain.DrainReport{}, fmt.Errorf("drain: %w", err)
	}

	var (
		report   domain.DrainReport
		done     = make(map[string]struct{})
		attempts = make(map[string]int)
	)
	for i := len(snapshot) - 1; i >= 0; i-- {
		e := snapshot[i]
		if ctx.Err() != nil {
			report.Aborted = true
			q.log.Info("drain_pass_cancelled", zap.Error(ctx.Err()))
			break
		}

		err := send(ctx, e)
		if err == nil {
			done[e.ID] = struct{}{}
			report.Success = append(report.Success, e.ID)
			q.count("success")
			continue
		}
		if domain.IsConnectivityFailure(err) {
			report.Aborted = true
			q.count("aborted")
			q.log.Warn("drain_pass_aborted", zap.String("id", e.ID), zap.Int("unprocessed", i+1), zap.Error(err))
			break
		}

		n := e.Attempts + 1
		if n >= q.opts.MaxAttempts {
			done[e.ID] = struct{}{}
			report.Failed = append(report.Failed, domain.DrainFailure{ID: e.ID, Reason: err.Error()})
			q.count("failed")
			q.log.Error("drain_entry_failed",
				zap.String("id", e.ID),
				zap.Int("attempts", n),
				zap.Error(fmt.Errorf("%w: %v", domain.ErrMaxAttemptsExceeded, err)))
			continue
		}
		attempts[e.ID] = n
		q.count("retry")
		q.log.Info("drain_entry_retry", zap.String("id", e.ID), zap.Int("attempts", n), zap.Error(err))
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	current, err := q.load(ctx)
	if err != nil {
		return report, fmt.Errorf("drain: reload: %w", err)
	}
	remaining := current[:0:0]
	for _, e := range current {
		if _, ok := done[e.ID]; ok {
			continue
		}
		if n, ok := attempts[e.ID]; ok {
			e.Attempts = n
		}
		remaining = append(remaining, e)
	}
	if err := q.save(ctx, remaining); err != nil {
		return report, fmt.Errorf("drain: persist: %w", err)
	}
	report.Remaining = len(remaining)

	q.log.Info("drain_pass_done",
		zap.Int("success", len(report.Success)),
		zap.Int("failed", len(report.Failed)),
		zap.Int("remaining", report.Remaining),
		zap.Bool("aborted", report.Aborted))
	return report, nil
}

func (q *Queue[T]) count(outcome string) {
	if q.metrics != nil {
		q.metrics.DrainEntries.WithLabelValues(q.opts.Name, outcome).Inc()
	}
}

func (q *Queue[T]) depth(n int) {
	if q.metrics != nil {
		q.metrics.QueueDepth.WithLabelValues(q.opts.Name).Set(float64(n))
	}
}
