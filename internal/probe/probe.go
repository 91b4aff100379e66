// Package probe checks whether a remote endpoint is reachable.
package probe

import "context"

// CheckResult is the outcome of one probe. StatusCode is 0 when no HTTP
// response was received.
type CheckResult struct {
	Name       string  `json:"name"`
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	StatusCode int     `json:"status_code,omitempty"`
	LatencyMS  float64 `json:"latency_ms,omitempty"`
}

type Checker interface {
	Check(ctx context.Context, target string) CheckResult
}

// Multi runs every checker against the same target, in order.
type Multi []Checker

func (m Multi) Run(ctx context.Context, target string) []CheckResult {
	results := make([]CheckResult, 0, len(m))
	for _, c := range m {
		results = append(results, c.Check(ctx, target))
	}
	return results
}
