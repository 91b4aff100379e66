package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/domain"
)

func sosEntry() domain.QueueEntry[domain.SOSPayload] {
	return domain.QueueEntry[domain.SOSPayload]{
		ID:             "e1",
		IdempotencyKey: "key-1",
		Payload:        domain.SOSPayload{Latitude: 1.5, Longitude: 2.5, Message: "help"},
	}
}

func TestSOSClient_SendsHeadersAndBody(t *testing.T) {
	var (
		auth, key, path string
		body            sosRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		key = r.Header.Get(IdempotencyHeader)
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewSOSClient(srv.URL, time.Second, zap.NewNop())
	if err := c.Trigger(context.Background(), "tok", sosEntry()); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if auth != "Bearer tok" || key != "key-1" || path != "/sos" {
		t.Fatalf("unexpected request auth=%q key=%q path=%q", auth, key, path)
	}
	if body.ID != "e1" || body.Message != "help" || body.Latitude != 1.5 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestSOSClient_ErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusConflict, nil},
		{http.StatusBadRequest, domain.ErrBackendRejected},
		{http.StatusInternalServerError, domain.ErrBackendRejected},
		{http.StatusServiceUnavailable, domain.ErrConnectivity},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		err := NewSOSClient(srv.URL, time.Second, nil).Trigger(context.Background(), "", sosEntry())
		srv.Close()
		if tc.want == nil && err != nil {
			t.Fatalf("status %d: unexpected %v", tc.status, err)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("status %d: want %v, got %v", tc.status, tc.want, err)
		}
	}
}

func TestSOSClient_AuthFailureIsPermissionDeniedAndRejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		err := NewSOSClient(srv.URL, time.Second, nil).Trigger(context.Background(), "stale", sosEntry())
		srv.Close()
		if !errors.Is(err, domain.ErrPermissionDenied) || !errors.Is(err, domain.ErrBackendRejected) {
			t.Fatalf("status %d: want permission denied and rejected, got %v", status, err)
		}
		if domain.IsConnectivityFailure(err) {
			t.Fatalf("status %d: auth failure must not abort a drain", status)
		}
	}
}

func TestSOSClient_UnreachableIsConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	err := NewSOSClient(url, time.Second, nil).Trigger(context.Background(), "", sosEntry())
	if !domain.IsConnectivityFailure(err) {
		t.Fatalf("expected connectivity failure, got %v", err)
	}
}

func TestSMSGateway_Delivered(t *testing.T) {
	var got smsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"delivered":true}`))
	}))
	defer srv.Close()

	g := NewSMSGateway(srv.URL, time.Second, zap.NewNop())
	if err := g.Send(context.Background(), []string{"+100", "+200"}, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(got.Recipients) != 2 || got.Message != "hi" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestSMSGateway_NotDeliveredIsRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"delivered":false,"error":"invalid number"}`))
	}))
	defer srv.Close()

	err := NewSMSGateway(srv.URL, time.Second, nil).Send(context.Background(), []string{"x"}, "hi")
	if !errors.Is(err, domain.ErrBackendRejected) || domain.IsConnectivityFailure(err) {
		t.Fatalf("expected backend rejection, got %v", err)
	}
	if err := NewSMSGateway(srv.URL, time.Second, nil).Send(context.Background(), nil, "hi"); !errors.Is(err, domain.ErrBackendRejected) {
		t.Fatalf("expected rejection for empty recipients, got %v", err)
	}
}
