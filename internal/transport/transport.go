// Package transport holds the HTTP clients for the SOS backend and the SMS
// gateway. Retries are left to the delivery queues, so the clients never
// retry on their own.
package transport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hamed0406/safezone/internal/domain"
)

func newClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// classify maps a resty result onto the delivery error taxonomy.
func classify(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrConnectivity, err)
	}
	switch code := resp.StatusCode(); {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%s: status %d: %w", op, code, domain.ErrConnectivity)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		// Still counted against the entry; a bad token is not a dead network.
		return fmt.Errorf("%s: status %d: %w: %w", op, code, domain.ErrPermissionDenied, domain.ErrBackendRejected)
	default:
		return fmt.Errorf("%s: status %d: %w", op, code, domain.ErrBackendRejected)
	}
}
