package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Loop is a restartable ticker. Starting a running loop cancels the previous
// instance first, so repeated Start calls never leak goroutines or double tick.
type Loop struct {
	name string
	log  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	gen    uint64
}

type startOpts struct {
	immediate bool
}

type Option func(*startOpts)

// Immediately runs fn once on the loop goroutine before the first tick.
func Immediately() Option {
	return func(o *startOpts) { o.immediate = true }
}

func NewLoop(name string, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{name: name, log: log}
}

// Start begins ticking every interval until Stop is called or parent is done.
// A non-positive interval leaves the loop stopped.
func (l *Loop) Start(parent context.Context, interval time.Duration, fn func(context.Context), opts ...Option) {
	var o startOpts
	for _, opt := range opts {
		opt(&o)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
	if interval <= 0 {
		l.log.Info("loop_disabled", zap.String("loop", l.name))
		return
	}

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.gen++
	gen := l.gen

	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()

		if o.immediate {
			fn(ctx)
		}
		for {
			select {
			case <-ctx.Done():
				l.log.Debug("loop_stopped", zap.String("loop", l.name), zap.Uint64("gen", gen))
				return
			case <-t.C:
				fn(ctx)
			}
		}
	}()
	l.log.Debug("loop_started", zap.String("loop", l.name), zap.Duration("interval", interval), zap.Uint64("gen", gen))
}

// Stop cancels the running instance. It does not wait for an in-flight tick;
// use Wait for that. Safe to call when never started.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *Loop) stopLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}

// Running reports whether an instance is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Wait blocks until the most recently started instance has exited.
func (l *Loop) Wait() {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()
	if done != nil {
		<-done
	}
}
