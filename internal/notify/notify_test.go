package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hamed0406/safezone/internal/domain"
	"github.com/hamed0406/safezone/internal/metrics"
	"github.com/hamed0406/safezone/internal/repo"
	"github.com/hamed0406/safezone/internal/repo/memory"
)

type call struct {
	title, body string
	sound       bool
}

type recSender struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (r *recSender) Schedule(ctx context.Context, title, body string, sound bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{title, body, sound})
	return r.err
}

type recHaptics struct {
	vibrations []time.Duration
	cancels    int
	err        error
}

func (h *recHaptics) Vibrate(ctx context.Context, d time.Duration) error {
	h.vibrations = append(h.vibrations, d)
	return h.err
}
func (h *recHaptics) Cancel() { h.cancels++ }

type staticConfig domain.AlertConfig

func (s staticConfig) Get(context.Context) domain.AlertConfig { return domain.AlertConfig(s) }

func TestWebhook_OK(t *testing.T) {
	var got webhookPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(200)
	}))
	defer ts.Close()

	w := NewWebhook(ts.URL)
	if w == nil {
		t.Fatal("expected webhook client")
	}
	if err := w.Schedule(context.Background(), "Title", "Hello", true); err != nil {
		t.Fatalf("send err: %v", err)
	}
	if got.Title != "Title" || got.Body != "Hello" || !got.Sound {
		t.Fatalf("payload not as expected: %+v", got)
	}
	if got.Text == "" || got.Text[0] != '*' {
		t.Fatalf("text not as expected: %q", got.Text)
	}
}

func TestWebhook_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusForbidden, domain.ErrPermissionDenied},
		{http.StatusInternalServerError, domain.ErrBackendRejected},
	}
	for _, tc := range cases {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		err := NewWebhook(ts.URL).Schedule(context.Background(), "X", "Y", false)
		ts.Close()
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: want %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestWebhook_EmptyURL(t *testing.T) {
	if NewWebhook("") != nil {
		t.Fatal("expected nil webhook for empty url")
	}
}

func TestMulti_MergesErrors(t *testing.T) {
	a := &recSender{err: errors.New("a down")}
	b := &recSender{}
	c := &recSender{err: errors.New("c down")}
	err := Multi{a, nil, b, c}.Schedule(context.Background(), "t", "b", false)
	if len(multierr.Errors(err)) != 2 {
		t.Fatalf("expected 2 merged errors, got %v", err)
	}
	if len(b.calls) != 1 {
		t.Fatalf("healthy sender should still be called")
	}
}

func TestLogSender(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	if err := (LogSender{Log: zap.New(core)}).Schedule(context.Background(), "Danger", "Leave", true); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	entries := logs.FilterMessage("notification").All()
	if len(entries) != 1 || entries[0].ContextMap()["title"] != "Danger" {
		t.Fatalf("unexpected log entries: %+v", entries)
	}
}

func TestDispatcher_GatesByClass(t *testing.T) {
	s := &recSender{}
	cfg := domain.DefaultAlertConfig()
	cfg.Warnings = false
	d := NewDispatcher(s, nil, staticConfig(cfg), zap.NewNop(), nil)

	ok, err := d.Dispatch(context.Background(), Notification{Title: "w", Class: domain.ClassWarning})
	if ok || err != nil {
		t.Fatalf("warning should be filtered, got ok=%v err=%v", ok, err)
	}
	ok, err = d.Dispatch(context.Background(), Notification{Title: "e", Class: domain.ClassEmergency})
	if !ok || err != nil {
		t.Fatalf("emergency should be delivered, got ok=%v err=%v", ok, err)
	}
	if len(s.calls) != 1 || s.calls[0].title != "e" {
		t.Fatalf("unexpected calls: %+v", s.calls)
	}
}

func TestDispatcher_SoundAndVibrationGating(t *testing.T) {
	s := &recSender{}
	h := &recHaptics{}
	cfg := domain.AlertConfig{Emergency: true, Warnings: true, Sound: false, Vibration: false}
	d := NewDispatcher(s, h, staticConfig(cfg), zap.NewNop(), nil)

	_, _ = d.Dispatch(context.Background(), Notification{Title: "t", Class: domain.ClassEmergency, Vibrate: 5 * time.Second})
	if s.calls[0].sound {
		t.Fatal("sound should be off")
	}
	if len(h.vibrations) != 0 {
		t.Fatal("vibration should be off")
	}

	d = NewDispatcher(s, h, staticConfig(domain.DefaultAlertConfig()), zap.NewNop(), nil)
	_, _ = d.Dispatch(context.Background(), Notification{Title: "t", Class: domain.ClassEmergency, Vibrate: 3 * time.Second})
	if !s.calls[1].sound {
		t.Fatal("sound should be on")
	}
	if len(h.vibrations) != 1 || h.vibrations[0] != 3*time.Second {
		t.Fatalf("unexpected vibrations: %v", h.vibrations)
	}
}

func TestDispatcher_PermissionDeniedDegrades(t *testing.T) {
	s := &recSender{err: domain.ErrPermissionDenied}
	h := &recHaptics{err: domain.ErrPermissionDenied}
	m := metrics.New()
	d := NewDispatcher(s, h, staticConfig(domain.DefaultAlertConfig()), zap.NewNop(), m)

	ok, err := d.Dispatch(context.Background(), Notification{Title: "t", Class: domain.ClassEmergency, Vibrate: time.Second})
	if ok {
		t.Fatal("expected not delivered")
	}
	if err != nil {
		t.Fatalf("permission failures must not propagate, got %v", err)
	}
	if len(h.vibrations) != 1 {
		t.Fatal("vibration should still be attempted")
	}
}

func TestDispatcher_SendErrorReturned(t *testing.T) {
	s := &recSender{err: errors.New("boom")}
	d := NewDispatcher(s, nil, nil, nil, nil)
	if _, err := d.Dispatch(context.Background(), Notification{Class: domain.ClassWarning}); err == nil {
		t.Fatal("expected error")
	}
}

func TestDispatcher_CancelVibration(t *testing.T) {
	h := &recHaptics{}
	d := NewDispatcher(&recSender{}, h, nil, zap.NewNop(), nil)
	d.CancelVibration()
	if h.cancels != 1 {
		t.Fatalf("expected one cancel, got %d", h.cancels)
	}
}

func TestPreferences_DefaultsAndPartialSave(t *testing.T) {
	ctx := context.Background()
	p := NewPreferences(memory.New(), zap.NewNop())

	if got := p.Get(ctx); got != domain.DefaultAlertConfig() {
		t.Fatalf("expected defaults, got %+v", got)
	}
	off := false
	got, err := p.Save(ctx, domain.AlertConfigPatch{Sound: &off})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if got.Sound || !got.Emergency || !got.Warnings || !got.Vibration {
		t.Fatalf("only sound should change: %+v", got)
	}
	if p.Get(ctx) != got {
		t.Fatal("saved config not returned by Get")
	}
}

func TestPreferences_CorruptFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	_ = kv.Set(ctx, repo.KeyAlertConfig, []byte("{not json"))
	p := NewPreferences(kv, zap.NewNop())
	if got := p.Get(ctx); got != domain.DefaultAlertConfig() {
		t.Fatalf("expected defaults on corrupt blob, got %+v", got)
	}
}
