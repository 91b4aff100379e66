package connectivity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/domain"
	"github.com/hamed0406/safezone/internal/probe"
)

type fakeQueue struct {
	mu      sync.Mutex
	drains  int
	pruned  [][]string
	report  domain.DrainReport
	err     error
	release chan struct{}
}

func (f *fakeQueue) target(name string) Target {
	return Target{
		Name: name,
		Drain: func(ctx context.Context) (domain.DrainReport, error) {
			if f.release != nil {
				<-f.release
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			f.drains++
			return f.report, f.err
		},
		Prune: func(ctx context.Context, ids []string) (int, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.pruned = append(f.pruned, ids)
			return 0, nil
		},
	}
}

func (f *fakeQueue) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.drains, len(f.pruned)
}

func TestSetOffline_DrainsOnlyOnOnlineTransition(t *testing.T) {
	q := &fakeQueue{}
	c := NewCoordinator(zap.NewNop(), q.target("sos"))
	ctx := context.Background()

	if c.SetOffline(ctx, false) {
		t.Fatal("online -> online must not drain")
	}
	if c.SetOffline(ctx, true) {
		t.Fatal("going offline must not drain")
	}
	if !c.Offline() {
		t.Fatal("flag should be offline")
	}
	if !c.SetOffline(ctx, false) {
		t.Fatal("offline -> online should drain")
	}
	c.Wait()
	if d, _ := q.counts(); d != 1 {
		t.Fatalf("expected 1 drain, got %d", d)
	}
}

func TestSetOffline_SingleFlight(t *testing.T) {
	q := &fakeQueue{release: make(chan struct{})}
	c := NewCoordinator(zap.NewNop(), q.target("sos"))
	ctx := context.Background()

	c.SetOffline(ctx, true)
	if !c.SetOffline(ctx, false) {
		t.Fatal("first transition should start a drain")
	}
	c.SetOffline(ctx, true)
	if c.SetOffline(ctx, false) {
		t.Fatal("overlapping transition must be a no-op")
	}
	close(q.release)
	c.Wait()
	if d, _ := q.counts(); d != 1 {
		t.Fatalf("expected exactly one drain, got %d", d)
	}
}

func TestDrain_PrunesOnlyAfterFullSuccess(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		report domain.DrainReport
		prune  bool
	}{
		{"all ok", domain.DrainReport{Success: []string{"a", "b"}}, true},
		{"some failed", domain.DrainReport{Success: []string{"a"}, Failed: []domain.DrainFailure{{ID: "b"}}}, false},
		{"aborted", domain.DrainReport{Success: []string{"a"}, Aborted: true}, false},
		{"empty", domain.DrainReport{}, false},
	}
	for _, tc := range cases {
		q := &fakeQueue{report: tc.report}
		c := NewCoordinator(zap.NewNop(), q.target("sos"))
		if _, err := c.DrainNow(ctx); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		_, p := q.counts()
		if (p == 1) != tc.prune {
			t.Fatalf("%s: prune=%d want %v", tc.name, p, tc.prune)
		}
		if tc.prune && len(q.pruned[0]) != len(tc.report.Success) {
			t.Fatalf("%s: prune should be scoped to the pass's successes", tc.name)
		}
	}
}

func TestDrain_SMSRunsEvenIfSOSFails(t *testing.T) {
	sos := &fakeQueue{err: errors.New("store down")}
	sms := &fakeQueue{}
	c := NewCoordinator(zap.NewNop(), sos.target("sos"), sms.target("sms"))

	out, err := c.DrainNow(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(out) != 2 || out[0].Err == nil || out[1].Err != nil {
		t.Fatalf("unexpected outcomes %+v", out)
	}
	if d, _ := sms.counts(); d != 1 {
		t.Fatal("sms queue should still drain")
	}
	if got := c.LastOutcomes(); len(got) != 2 || got[1].Queue != "sms" {
		t.Fatalf("unexpected last outcomes %+v", got)
	}
}

func TestDrainWith_OverridesDrainAndPrunes(t *testing.T) {
	sos := &fakeQueue{}
	sms := &fakeQueue{}
	c := NewCoordinator(zap.NewNop(), sos.target("sos"), sms.target("sms"))
	ctx := context.Background()

	calls := 0
	o, err := c.DrainWith(ctx, "sos", func(ctx context.Context) (domain.DrainReport, error) {
		calls++
		return domain.DrainReport{Success: []string{"a"}}, nil
	})
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if calls != 1 || len(o.Report.Success) != 1 {
		t.Fatalf("override not used: calls=%d outcome=%+v", calls, o)
	}
	if d, p := sos.counts(); d != 0 || p != 1 {
		t.Fatalf("expected target drain skipped and one prune, got drains=%d prunes=%d", d, p)
	}
	if d, _ := sms.counts(); d != 0 {
		t.Fatal("other targets must not drain")
	}
	if got := c.LastOutcomes(); len(got) != 1 || got[0].Queue != "sos" {
		t.Fatalf("unexpected last outcomes %+v", got)
	}

	if _, err := c.DrainWith(ctx, "sms", nil); err != nil {
		t.Fatalf("sms drain: %v", err)
	}
	if d, _ := sms.counts(); d != 1 {
		t.Fatal("nil override should use the target's own drain")
	}
	if got := c.LastOutcomes(); len(got) != 2 {
		t.Fatalf("outcomes should merge per queue, got %+v", got)
	}
	if _, err := c.DrainWith(ctx, "push", nil); err == nil {
		t.Fatal("unknown target should fail")
	}
}

func TestDrainWith_WaitsForBackgroundDrain(t *testing.T) {
	q := &fakeQueue{release: make(chan struct{})}
	c := NewCoordinator(zap.NewNop(), q.target("sos"))
	ctx := context.Background()

	c.SetOffline(ctx, true)
	if !c.SetOffline(ctx, false) {
		t.Fatal("transition should start a drain")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.DrainWith(ctx, "sos", nil); err != nil {
			t.Errorf("drain: %v", err)
		}
	}()
	select {
	case <-done:
		t.Fatal("manual drain must wait for the background drain")
	case <-time.After(50 * time.Millisecond):
	}
	close(q.release)
	<-done
	c.Wait()
	if d, _ := q.counts(); d != 2 {
		t.Fatalf("expected two sequential drains, got %d", d)
	}
}

type brokenObserver struct{}

func (brokenObserver) Subscribe(func(bool)) (func(), error) { return nil, ErrObserverUnavailable }

func TestAttach_UnavailableObserverDisablesAutoDetect(t *testing.T) {
	c := NewCoordinator(zap.NewNop())
	if c.Attach(context.Background(), nil) || c.AutoDetect() {
		t.Fatal("nil observer must disable auto-detect")
	}
	if c.Attach(context.Background(), brokenObserver{}) || c.AutoDetect() {
		t.Fatal("failing observer must disable auto-detect")
	}
	c.SetOffline(context.Background(), true)
	if !c.Offline() {
		t.Fatal("manual toggle must still work")
	}
	c.Detach()
}

func TestProbeObserver_DrivesCoordinator(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	obs := NewProbeObserver(srv.URL, probe.NewHTTPChecker(time.Second), probe.NewDNSChecker(), zap.NewNop())
	q := &fakeQueue{}
	c := NewCoordinator(zap.NewNop(), q.target("sos"))
	ctx := context.Background()
	if !c.Attach(ctx, obs) {
		t.Fatal("attach should succeed")
	}

	if obs.Poll(ctx) || !c.Offline() {
		t.Fatal("unhealthy endpoint should mark offline")
	}
	healthy.Store(true)
	if !obs.Poll(ctx) || c.Offline() {
		t.Fatal("healthy endpoint should mark online")
	}
	c.Wait()
	if d, _ := q.counts(); d != 1 {
		t.Fatalf("expected one drain after recovery, got %d", d)
	}

	// No change, no notification.
	obs.Poll(ctx)
	c.Wait()
	if d, _ := q.counts(); d != 1 {
		t.Fatalf("steady state must not drain again, got %d", d)
	}

	c.Detach()
	healthy.Store(false)
	obs.Poll(ctx)
	if c.Offline() {
		t.Fatal("detached coordinator must not follow the observer")
	}
}

func TestProbeObserver_NoTargetUnavailable(t *testing.T) {
	obs := NewProbeObserver("", probe.NewHTTPChecker(time.Second), nil, nil)
	if _, err := obs.Subscribe(func(bool) {}); !errors.Is(err, ErrObserverUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
