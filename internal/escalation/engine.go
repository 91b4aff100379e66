// Package escalation drives tiered notifications while the device stays
// inside a high-risk zone.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/clock"
	"github.com/hamed0406/safezone/internal/domain"
	"github.com/hamed0406/safezone/internal/metrics"
	"github.com/hamed0406/safezone/internal/notify"
	"github.com/hamed0406/safezone/internal/repo"
	"github.com/hamed0406/safezone/internal/scheduler"
)

const (
	DefaultInterval = 30 * time.Second
	Cooldown        = 60 * time.Second

	highRiskVibration = 3 * time.Second
)

// Notifier is satisfied by *notify.Dispatcher.
type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification) (bool, error)
	CancelVibration()
}

type Options struct {
	// Interval between evaluation passes; defaults to DefaultInterval.
	Interval time.Duration
}

// Engine owns the persisted EscalationState. All state transitions are
// serialized by mu and re-read the state from storage.
type Engine struct {
	states   *repo.Doc[domain.EscalationState]
	mute     *repo.Doc[bool]
	notifier Notifier
	clock    clock.Clock
	log      *zap.Logger
	metrics  *metrics.Metrics
	loop     *scheduler.Loop
	interval time.Duration

	mu    sync.Mutex
	title string
	body  string
}

func New(kv repo.KV, n Notifier, clk clock.Clock, log *zap.Logger, m *metrics.Metrics, opts Options) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		states:   repo.NewDoc[domain.EscalationState](kv, repo.KeyEscalation),
		mute:     repo.NewDoc[bool](kv, repo.KeyEscalationMute),
		notifier: n,
		clock:    clk,
		log:      log,
		metrics:  m,
		loop:     scheduler.NewLoop("escalation", log),
		interval: opts.Interval,
	}
}

// Start opens an episode if none is persisted, makes one immediate
// notification attempt and (re)starts the periodic evaluator. The evaluator
// runs until Stop is called or ctx is done.
func (e *Engine) Start(ctx context.Context, title, baseBody string) error {
	e.mu.Lock()
	e.title, e.body = title, baseBody

	state, ok := e.loadLocked(ctx)
	if !ok {
		state = domain.EscalationState{StartedAt: e.clock.Now(), LastTier: domain.Tier0, GlobalMute: e.muted(ctx)}
		if err := e.states.Save(ctx, state); err != nil {
			e.mu.Unlock()
			return fmt.Errorf("start escalation: %w", err)
		}
		e.log.Info("escalation_started", zap.Time("started_at", state.StartedAt))
	}

	if _, fired := e.evaluateLocked(ctx); !fired {
		e.notifyBaseLocked(ctx)
	}
	// The loop is started under mu so a concurrent Stop either sees it
	// running or runs before the episode exists.
	e.loop.Start(ctx, e.interval, func(ctx context.Context) { e.Evaluate(ctx) })
	e.mu.Unlock()
	return nil
}

// Resume restarts the evaluator for an episode that survived a restart and
// runs one evaluation pass right away. It reports whether an episode exists.
func (e *Engine) Resume(ctx context.Context, title, baseBody string) (bool, error) {
	e.mu.Lock()
	e.title, e.body = title, baseBody
	state, ok := e.loadLocked(ctx)
	if !ok {
		e.mu.Unlock()
		return false, nil
	}
	e.log.Info("escalation_resumed",
		zap.Time("started_at", state.StartedAt),
		zap.Int("last_tier", int(state.LastTier)))
	e.evaluateLocked(ctx)
	e.loop.Start(ctx, e.interval, func(ctx context.Context) { e.Evaluate(ctx) })
	e.mu.Unlock()
	return true, nil
}

// Stop ends the episode. Safe to call when nothing is running.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loop.Stop()
	e.notifier.CancelVibration()
	if err := e.states.Delete(ctx); err != nil {
		return fmt.Errorf("stop escalation: %w", err)
	}
	e.log.Info("escalation_stopped")
	return nil
}

// Suspend stops the evaluator but keeps the episode persisted for Resume.
func (e *Engine) Suspend() { e.loop.Stop() }

// Acknowledge suppresses tier notifications for the given minutes without
// touching the episode clock.
func (e *Engine) Acknowledge(ctx context.Context, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("acknowledge: minutes must be positive, got %d", minutes)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	state, ok := e.loadLocked(ctx)
	if !ok {
		state = domain.EscalationState{StartedAt: now, LastTier: domain.Tier0, GlobalMute: e.muted(ctx)}
	}
	until := now.Add(time.Duration(minutes) * time.Minute)
	state.SuppressionUntil = &until
	if err := e.states.Save(ctx, state); err != nil {
		return fmt.Errorf("acknowledge: %w", err)
	}
	e.log.Info("escalation_acknowledged", zap.Time("suppression_until", until))
	return nil
}

// SetGlobalMute persists the flag. Muting does not reset the episode, so
// unmuting resumes from the current elapsed time.
func (e *Engine) SetGlobalMute(ctx context.Context, muted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.mute.Save(ctx, muted); err != nil {
		return fmt.Errorf("set mute: %w", err)
	}
	if state, ok := e.loadLocked(ctx); ok && state.GlobalMute != muted {
		state.GlobalMute = muted
		if err := e.states.Save(ctx, state); err != nil {
			return fmt.Errorf("set mute: %w", err)
		}
	}
	if muted {
		e.notifier.CancelVibration()
	}
	e.log.Info("escalation_mute", zap.Bool("muted", muted))
	return nil
}

// TriggerHighRiskAlert sends a single emergency notification outside the
// tier state machine.
func (e *Engine) TriggerHighRiskAlert(ctx context.Context, title, body string) error {
	_, err := e.notifier.Dispatch(ctx, notify.Notification{
		Title:   title,
		Body:    body,
		Class:   domain.ClassEmergency,
		Vibrate: highRiskVibration,
	})
	return err
}

// Evaluate runs one evaluation pass and returns the tier it fired, if any.
func (e *Engine) Evaluate(ctx context.Context) (domain.Tier, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(ctx)
}

// State returns the persisted episode, if any.
func (e *Engine) State(ctx context.Context) (domain.EscalationState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadLocked(ctx)
}

func (e *Engine) Muted(ctx context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted(ctx)
}

func (e *Engine) Running() bool { return e.loop.Running() }

func (e *Engine) evaluateLocked(ctx context.Context) (domain.Tier, bool) {
	state, ok := e.loadLocked(ctx)
	if !ok {
		return domain.Tier0, false
	}
	now := e.clock.Now()
	tier := domain.TierFor(now.Sub(state.StartedAt))
	if tier <= state.LastTier {
		return domain.Tier0, false
	}
	if state.GlobalMute || e.muted(ctx) {
		return domain.Tier0, false
	}
	if state.Suppressed(now) {
		// The tier is consumed so it cannot fire once the window closes.
		state.LastTier = tier
		e.save(ctx, state)
		e.log.Info("escalation_tier_suppressed", zap.Int("tier", int(tier)))
		return domain.Tier0, false
	}
	if !state.LastNotifiedAt.IsZero() && now.Sub(state.LastNotifiedAt) < Cooldown {
		return domain.Tier0, false
	}

	if _, err := e.notifier.Dispatch(ctx, notify.Notification{
		Title:   e.title,
		Body:    Body(tier, e.body),
		Class:   ClassFor(tier),
		Vibrate: VibrationFor(tier),
	}); err != nil {
		e.log.Warn("escalation_notify_error", zap.Int("tier", int(tier)), zap.Error(err))
	}
	state.LastTier = tier
	state.LastNotifiedAt = now
	e.save(ctx, state)
	if e.metrics != nil {
		e.metrics.TiersFired.WithLabelValues(strconv.Itoa(int(tier))).Inc()
	}
	e.log.Info("escalation_tier_fired",
		zap.Int("tier", int(tier)),
		zap.Duration("elapsed", now.Sub(state.StartedAt)))
	return tier, true
}

// notifyBaseLocked sends the episode's entry notification. It updates
// LastNotifiedAt only, never LastTier.
func (e *Engine) notifyBaseLocked(ctx context.Context) {
	state, ok := e.loadLocked(ctx)
	if !ok {
		return
	}
	now := e.clock.Now()
	if state.GlobalMute || e.muted(ctx) || state.Suppressed(now) {
		return
	}
	if !state.LastNotifiedAt.IsZero() && now.Sub(state.LastNotifiedAt) < Cooldown {
		return
	}
	if _, err := e.notifier.Dispatch(ctx, notify.Notification{
		Title: e.title,
		Body:  Body(domain.Tier0, e.body),
		Class: ClassFor(domain.Tier0),
	}); err != nil {
		e.log.Warn("escalation_notify_error", zap.Int("tier", 0), zap.Error(err))
	}
	state.LastNotifiedAt = now
	e.save(ctx, state)
}

// loadLocked treats a corrupt state as no episode.
func (e *Engine) loadLocked(ctx context.Context) (domain.EscalationState, bool) {
	state, ok, err := e.states.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrStorageCorrupt) {
			e.log.Warn("escalation_state_corrupt", zap.Error(err))
		} else {
			e.log.Error("escalation_state_load_error", zap.Error(err))
		}
		return domain.EscalationState{}, false
	}
	return state, ok
}

func (e *Engine) save(ctx context.Context, state domain.EscalationState) {
	if err := e.states.Save(ctx, state); err != nil {
		e.log.Error("escalation_state_save_error", zap.Error(err))
	}
}

func (e *Engine) muted(ctx context.Context) bool {
	v, _, err := e.mute.Load(ctx)
	if err != nil {
		e.log.Warn("escalation_mute_load_error", zap.Error(err))
		return false
	}
	return v
}
