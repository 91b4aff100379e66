package connectivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/clock"
	"github.com/hamed0406/safezone/internal/domain"
	"github.com/hamed0406/safezone/internal/notify"
)

const DefaultOfflineCooldown = 5 * time.Minute

type Notifier interface {
	Dispatch(ctx context.Context, n notify.Notification) (bool, error)
}

type AlerterConfig struct {
	AlertOnRecovery bool
	// Cooldown only applies to offline alerts; a flapping link would
	// otherwise notify on every drop.
	Cooldown time.Duration
}

// Alerter tells the user when emergency alerts start being queued and when
// the connection comes back. It starts from the coordinator's initial state,
// online.
type Alerter struct {
	notifier Notifier
	pending  func(ctx context.Context) int
	clock    clock.Clock
	cfg      AlerterConfig
	log      *zap.Logger

	mu         sync.Mutex
	offline    bool
	lastSentAt time.Time // last offline alert
}

func NewAlerter(n Notifier, pending func(ctx context.Context) int, clk clock.Clock, cfg AlerterConfig, log *zap.Logger) *Alerter {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Alerter{notifier: n, pending: pending, clock: clk, cfg: cfg, log: log}
}

// Observe records the new state and reports whether a notification went out.
func (a *Alerter) Observe(ctx context.Context, offline bool) bool {
	a.mu.Lock()
	now := a.clock.Now()
	changed := a.offline != offline
	a.offline = offline
	cooled := a.lastSentAt.IsZero() || now.Sub(a.lastSentAt) >= a.cfg.Cooldown

	downAlert := changed && offline && cooled
	recoveryAlert := changed && !offline && a.cfg.AlertOnRecovery // bypass cooldown
	if !downAlert && !recoveryAlert {
		a.mu.Unlock()
		if changed {
			a.log.Debug("connectivity_alert_skipped", zap.Bool("offline", offline))
		}
		return false
	}
	if downAlert {
		a.lastSentAt = now
	}
	a.mu.Unlock()

	n := notify.Notification{
		Title: "You're offline",
		Body:  "Emergency alerts will be queued and sent when the connection returns.",
		Class: domain.ClassWarning,
	}
	if !offline {
		n.Title = "Back online"
		n.Body = "Connection restored."
		if a.pending != nil {
			if p := a.pending(ctx); p > 0 {
				n.Body = fmt.Sprintf("Connection restored. Sending %d queued alerts.", p)
			}
		}
	}
	// Best-effort.
	if _, err := a.notifier.Dispatch(ctx, n); err != nil {
		a.log.Warn("connectivity_alert_error", zap.Bool("offline", offline), zap.Error(err))
	}
	return true
}
