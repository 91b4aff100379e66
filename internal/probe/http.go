package probe

import (
	"context"
	"io"
	"net/http"
	"time"
)

// HTTPChecker GETs a health endpoint; any 2xx or 3xx counts as reachable.
type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{Client: &http.Client{Timeout: timeout}}
}

func (h *HTTPChecker) Check(ctx context.Context, target string) CheckResult {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return CheckResult{Name: "http", Message: err.Error()}
	}
	resp, err := h.Client.Do(req)
	latency := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		return CheckResult{Name: "http", Message: err.Error(), LatencyMS: latency}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return CheckResult{
		Name:       "http",
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 400,
		Message:    resp.Status,
		StatusCode: resp.StatusCode,
		LatencyMS:  latency,
	}
}
