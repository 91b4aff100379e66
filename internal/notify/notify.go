package notify

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Sender schedules a user-visible notification.
type Sender interface {
	Schedule(ctx context.Context, title, body string, sound bool) error
}

// Haptics drives the vibration actuator.
type Haptics interface {
	Vibrate(ctx context.Context, d time.Duration) error
	Cancel()
}

type Multi []Sender

func (m Multi) Schedule(ctx context.Context, title, body string, sound bool) error {
	var errs error
	for _, s := range m {
		if s == nil {
			continue
		}
		errs = multierr.Append(errs, s.Schedule(ctx, title, body, sound))
	}
	return errs
}

// LogSender writes notifications to the log. The agent always includes it so
// alerts are visible even without a push gateway.
type LogSender struct{ Log *zap.Logger }

func (l LogSender) Schedule(_ context.Context, title, body string, sound bool) error {
	l.Log.Info("notification", zap.String("title", title), zap.String("body", body), zap.Bool("sound", sound))
	return nil
}

// NopHaptics is used when no actuator is available.
type NopHaptics struct{}

func (NopHaptics) Vibrate(context.Context, time.Duration) error { return nil }
func (NopHaptics) Cancel()                                      {}
