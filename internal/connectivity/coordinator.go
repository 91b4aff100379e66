// Package connectivity tracks the online/offline flag and drains the
// delivery queues when the device comes back online.
package connectivity

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hamed0406/safezone/internal/domain"
)

// Target is one queue the coordinator drains.
type Target struct {
	Name  string
	Drain func(ctx context.Context) (domain.DrainReport, error)
	// Prune removes ids left over from a fully successful pass.
	Prune func(ctx context.Context, ids []string) (int, error)
}

type Outcome struct {
	Queue  string             `json:"queue"`
	Report domain.DrainReport `json:"report"`
	Err    error              `json:"-"`
}

// Coordinator owns the offline flag. Only one drain sequence runs at a time;
// transitions that arrive while one is in flight do not start another.
type Coordinator struct {
	targets []Target
	log     *zap.Logger
	sem     *semaphore.Weighted
	wg      sync.WaitGroup

	mu          sync.Mutex
	offline     bool
	auto        bool
	unsubscribe func()
	last        []Outcome
	onChange    func(ctx context.Context, offline bool)
}

func NewCoordinator(log *zap.Logger, targets ...Target) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{targets: targets, log: log, sem: semaphore.NewWeighted(1)}
}

// Attach subscribes to obs. Without an observer, auto-detection stays off
// and the flag only changes through SetOffline.
func (c *Coordinator) Attach(ctx context.Context, obs Observer) bool {
	if obs == nil {
		c.log.Info("connectivity_autodetect_disabled", zap.String("reason", "no observer"))
		return false
	}
	unsub, err := obs.Subscribe(func(online bool) { c.SetOffline(ctx, !online) })
	if err != nil {
		c.log.Warn("connectivity_autodetect_disabled", zap.Error(err))
		return false
	}
	c.mu.Lock()
	c.auto = true
	c.unsubscribe = unsub
	c.mu.Unlock()
	return true
}

// OnChange registers fn to run on every flag change, before any drain starts.
func (c *Coordinator) OnChange(fn func(ctx context.Context, offline bool)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Coordinator) Detach() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.auto = false
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (c *Coordinator) Offline() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offline
}

func (c *Coordinator) AutoDetect() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auto
}

// LastOutcomes returns the results of the most recent drain sequence.
func (c *Coordinator) LastOutcomes() []Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Outcome(nil), c.last...)
}

// SetOffline updates the flag. Going from offline to online starts a
// background drain unless one is already running; the return value reports
// whether one was started.
func (c *Coordinator) SetOffline(ctx context.Context, offline bool) bool {
	c.mu.Lock()
	was := c.offline
	c.offline = offline
	onChange := c.onChange
	c.mu.Unlock()

	if was != offline {
		c.log.Info("connectivity_changed", zap.Bool("offline", offline))
		if onChange != nil {
			onChange(ctx, offline)
		}
	}
	if !was || offline {
		return false
	}
	if !c.sem.TryAcquire(1) {
		c.log.Info("drain_in_flight_skip")
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.sem.Release(1)
		c.drainAll(context.WithoutCancel(ctx))
	}()
	return true
}

// DrainNow runs a drain sequence synchronously, waiting for any running one.
func (c *Coordinator) DrainNow(ctx context.Context) ([]Outcome, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)
	return c.drainAll(ctx), nil
}

// DrainWith drains the named target once under the same guard and prune
// rules as DrainNow. A non-nil drain replaces the target's own Drain for
// this pass, e.g. to use a caller-supplied token.
func (c *Coordinator) DrainWith(ctx context.Context, name string, drain func(ctx context.Context) (domain.DrainReport, error)) (Outcome, error) {
	var t Target
	found := false
	for _, candidate := range c.targets {
		if candidate.Name == name {
			t, found = candidate, true
			break
		}
	}
	if !found {
		return Outcome{}, fmt.Errorf("unknown drain target %q", name)
	}
	if drain != nil {
		t.Drain = drain
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return Outcome{}, err
	}
	defer c.sem.Release(1)

	o := c.drainTarget(ctx, t)
	c.mu.Lock()
	replaced := false
	for i := range c.last {
		if c.last[i].Queue == name {
			c.last[i] = o
			replaced = true
		}
	}
	if !replaced {
		c.last = append(c.last, o)
	}
	c.mu.Unlock()
	return o, o.Err
}

// Wait blocks until background drains have finished.
func (c *Coordinator) Wait() { c.wg.Wait() }

// drainAll drains every target in order. A failing target does not stop the
// next one.
func (c *Coordinator) drainAll(ctx context.Context) []Outcome {
	out := make([]Outcome, 0, len(c.targets))
	for _, t := range c.targets {
		out = append(out, c.drainTarget(ctx, t))
	}
	c.mu.Lock()
	c.last = out
	c.mu.Unlock()
	return out
}

// drainTarget runs one pass and prunes after a clean, fully successful one.
func (c *Coordinator) drainTarget(ctx context.Context, t Target) Outcome {
	rep, err := t.Drain(ctx)
	o := Outcome{Queue: t.Name, Report: rep, Err: err}
	if err != nil {
		c.log.Error("drain_error", zap.String("queue", t.Name), zap.Error(err))
		return o
	}
	if len(rep.Failed) == 0 && len(rep.Success) > 0 && !rep.Aborted && t.Prune != nil {
		n, err := t.Prune(ctx, rep.Success)
		if err != nil {
			c.log.Warn("drain_prune_error", zap.String("queue", t.Name), zap.Error(err))
		} else if n > 0 {
			c.log.Warn("drain_prune_removed", zap.String("queue", t.Name), zap.Int("removed", n))
		}
	}
	return o
}
