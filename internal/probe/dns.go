package probe

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"
)

// DNS outcome classes reported in CheckResult.Message.
const (
	DNSResolves    = "RESOLVES"
	DNSNXDomain    = "NXDOMAIN"
	DNSUnreachable = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName = "INVALID_NAME"
)

// DNSChecker resolves the target's host. A failure here usually means the
// device has no usable network at all.
type DNSChecker struct {
	Resolver *net.Resolver
	Timeout  time.Duration
}

func NewDNSChecker() *DNSChecker {
	return &DNSChecker{Resolver: net.DefaultResolver, Timeout: 3 * time.Second}
}

func (d *DNSChecker) Check(ctx context.Context, target string) CheckResult {
	host := hostOf(target)
	if host == "" || strings.Contains(host, "://") {
		return CheckResult{Name: "dns", Message: DNSInvalidName}
	}
	if ip := net.ParseIP(host); ip != nil {
		return CheckResult{Name: "dns", Success: true, Message: DNSResolves}
	}

	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()
	start := time.Now()
	ips, err := d.Resolver.LookupIP(ctx, "ip", host)
	latency := float64(time.Since(start).Microseconds()) / 1000
	if err == nil && len(ips) > 0 {
		return CheckResult{Name: "dns", Success: true, Message: DNSResolves, LatencyMS: latency}
	}

	class := DNSUnreachable
	var de *net.DNSError
	if errors.As(err, &de) && de.IsNotFound {
		class = DNSNXDomain
	}
	return CheckResult{Name: "dns", Message: class, LatencyMS: latency}
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
