package domain

import (
	"errors"
	"net"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrStorageCorrupt      = errors.New("storage corrupt")
	ErrConnectivity        = errors.New("connectivity failure")
	ErrBackendRejected     = errors.New("backend rejected")
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")
	ErrLoad                = errors.New("load fences")
)

var connectivityPatterns = []string{
	"network request failed",
	"network is unreachable",
	"connection refused",
	"connection reset",
	"no such host",
	"offline",
}

// IsConnectivityFailure classifies err as a transport-level failure that
// should abort a drain pass instead of counting against an entry.
func IsConnectivityFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnectivity) {
		return true
	}
	if errors.Is(err, ErrBackendRejected) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range connectivityPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
