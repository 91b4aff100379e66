package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/domain"
	"github.com/hamed0406/safezone/internal/metrics"
)

type Notification struct {
	Title   string
	Body    string
	Class   domain.NotificationClass
	Vibrate time.Duration
}

// ConfigSource yields the AlertConfig read before every notification.
type ConfigSource interface {
	Get(ctx context.Context) domain.AlertConfig
}

// Dispatcher applies AlertConfig gating in front of the sender and haptics.
// Permission failures degrade the capability and are not returned.
type Dispatcher struct {
	sender  Sender
	haptics Haptics
	configs ConfigSource
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(sender Sender, haptics Haptics, configs ConfigSource, log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if haptics == nil {
		haptics = NopHaptics{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{sender: sender, haptics: haptics, configs: configs, log: log, metrics: m}
}

// Dispatch reports whether the notification reached the sender.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) (bool, error) {
	cfg := domain.DefaultAlertConfig()
	if d.configs != nil {
		cfg = d.configs.Get(ctx)
	}
	if !cfg.Allows(n.Class) {
		d.count(n.Class, "filtered")
		d.log.Debug("notification_filtered", zap.String("class", string(n.Class)), zap.String("title", n.Title))
		return false, nil
	}

	delivered := false
	var sendErr error
	if d.sender != nil {
		err := d.sender.Schedule(ctx, n.Title, n.Body, cfg.Sound)
		switch {
		case err == nil:
			delivered = true
			d.count(n.Class, "sent")
		case errors.Is(err, domain.ErrPermissionDenied):
			d.count(n.Class, "permission_denied")
			d.log.Warn("notification_permission_denied", zap.Error(err))
		default:
			d.count(n.Class, "error")
			d.log.Warn("notification_send_error", zap.String("title", n.Title), zap.Error(err))
			sendErr = err
		}
	}

	if cfg.Vibration && n.Vibrate > 0 {
		if err := d.haptics.Vibrate(ctx, n.Vibrate); err != nil {
			d.log.Warn("vibrate_failed", zap.Duration("duration", n.Vibrate), zap.Error(err))
		}
	}
	return delivered, sendErr
}

// CancelVibration stops any in-flight vibration.
func (d *Dispatcher) CancelVibration() {
	d.haptics.Cancel()
}

func (d *Dispatcher) count(class domain.NotificationClass, outcome string) {
	if d.metrics != nil {
		d.metrics.Notifications.WithLabelValues(string(class), outcome).Inc()
	}
}
