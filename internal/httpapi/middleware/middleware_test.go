package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func call(h http.Handler, key string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/queues/sos", nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}})(ok)
	if c := call(h, "adm_key"); c != http.StatusOK {
		t.Fatalf("admin key should pass; got %d", c)
	}
	if c := call(h, "pub_key"); c != http.StatusForbidden {
		t.Fatalf("public key should be forbidden; got %d", c)
	}
	if c := call(h, ""); c != http.StatusUnauthorized {
		t.Fatalf("missing key should be 401; got %d", c)
	}
}

func TestRequireAny(t *testing.T) {
	h := RequireAny(Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}})(ok)
	for _, k := range []string{"pub_key", "adm_key"} {
		if c := call(h, k); c != http.StatusOK {
			t.Fatalf("%s should pass; got %d", k, c)
		}
	}
	if c := call(h, "nope"); c != http.StatusUnauthorized {
		t.Fatalf("unknown key should be 401; got %d", c)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer pub_key")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer key should pass; got %d", rec.Code)
	}
}

func TestNoKeysConfiguredAllowsAll(t *testing.T) {
	if c := call(RequireAny(Keys{})(ok), ""); c != http.StatusOK {
		t.Fatalf("dev mode should pass; got %d", c)
	}
	if c := call(RequireAdmin(Keys{})(ok), ""); c != http.StatusOK {
		t.Fatalf("dev mode should pass; got %d", c)
	}
}

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func TestRateLimit_AllowsThenBlocksThenRefills(t *testing.T) {
	clk := &fakeNow{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	h := rateLimit(60, 2, clk.now)(ok)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "1.2.3.4:1234"

	serve := func() int {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}
	for i := 0; i < 2; i++ {
		if c := serve(); c != http.StatusOK {
			t.Fatalf("want 200 got %d", c)
		}
	}
	if c := serve(); c != http.StatusTooManyRequests {
		t.Fatalf("want 429 got %d", c)
	}
	clk.advance(1100 * time.Millisecond)
	if c := serve(); c != http.StatusOK {
		t.Fatalf("want 200 after refill got %d", c)
	}
}

func TestRateLimit_PerClientAndForwarded(t *testing.T) {
	clk := &fakeNow{t: time.Now()}
	h := rateLimit(60, 1, clk.now)(ok)

	a := httptest.NewRequest(http.MethodGet, "/", nil)
	a.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	b := httptest.NewRequest(http.MethodGet, "/", nil)
	b.RemoteAddr = "5.5.5.5:80"

	for _, req := range []*http.Request{a, b} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("first request per client should pass; got %d", rr.Code)
		}
	}
	if ip := clientIP(a); ip != "9.9.9.9" {
		t.Fatalf("want forwarded ip, got %q", ip)
	}
}

func TestLimiter_EvictsIdleBuckets(t *testing.T) {
	clk := &fakeNow{t: time.Now()}
	l := newLimiter(1, 1, time.Minute, clk.now)
	l.allow("a")
	clk.advance(2 * time.Minute)
	l.allow("b")
	if _, ok := l.buckets["a"]; ok {
		t.Fatal("idle bucket should be evicted")
	}
}
