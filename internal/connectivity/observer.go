package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/probe"
	"github.com/hamed0406/safezone/internal/scheduler"
)

// Observer is a best-effort source of connectivity changes.
type Observer interface {
	Subscribe(handler func(online bool)) (unsubscribe func(), err error)
}

var ErrObserverUnavailable = errors.New("connectivity observer unavailable")

// ProbeObserver polls a health endpoint and reports online/offline changes.
// The secondary checker only labels the failure in logs.
type ProbeObserver struct {
	target    string
	primary   probe.Checker
	secondary probe.Checker
	log       *zap.Logger
	loop      *scheduler.Loop

	mu       sync.Mutex
	next     uint64
	handlers map[uint64]func(bool)
	online   *bool
}

func NewProbeObserver(target string, primary, secondary probe.Checker, log *zap.Logger) *ProbeObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProbeObserver{
		target:    target,
		primary:   primary,
		secondary: secondary,
		log:       log,
		loop:      scheduler.NewLoop("connectivity-probe", log),
		handlers:  make(map[uint64]func(bool)),
	}
}

func (o *ProbeObserver) Subscribe(h func(online bool)) (func(), error) {
	if o == nil || o.target == "" || o.primary == nil {
		return nil, ErrObserverUnavailable
	}
	o.mu.Lock()
	o.next++
	id := o.next
	o.handlers[id] = h
	o.mu.Unlock()
	return func() {
		o.mu.Lock()
		delete(o.handlers, id)
		o.mu.Unlock()
	}, nil
}

// Start polls immediately and then every interval.
func (o *ProbeObserver) Start(ctx context.Context, interval time.Duration) {
	o.loop.Start(ctx, interval, func(ctx context.Context) { o.Poll(ctx) }, scheduler.Immediately())
}

func (o *ProbeObserver) Stop() { o.loop.Stop() }

// Poll runs one probe and notifies subscribers if the state changed.
func (o *ProbeObserver) Poll(ctx context.Context) bool {
	checks := probe.Multi{o.primary}
	if o.secondary != nil {
		checks = append(checks, o.secondary)
	}
	results := checks.Run(ctx, o.target)
	online := results[0].Success
	if !online {
		fields := []zap.Field{zap.String("target", o.target), zap.String("reason", results[0].Message)}
		if len(results) > 1 {
			fields = append(fields, zap.String("dns", results[1].Message))
		}
		o.log.Debug("connectivity_probe_failed", fields...)
	}

	o.mu.Lock()
	changed := o.online == nil || *o.online != online
	o.online = &online
	hs := make([]func(bool), 0, len(o.handlers))
	for _, h := range o.handlers {
		hs = append(hs, h)
	}
	o.mu.Unlock()

	if changed {
		for _, h := range hs {
			h(online)
		}
	}
	return online
}
