package queue

import (
	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/clock"
	"github.com/hamed0406/safezone/internal/domain"
	"github.com/hamed0406/safezone/internal/metrics"
	"github.com/hamed0406/safezone/internal/repo"
)

type (
	SOS = Queue[domain.SOSPayload]
	SMS = Queue[domain.SMSPayload]
)

// NewSOS stamps each entry with an idempotency key at enqueue time.
func NewSOS(kv repo.KV, maxLength, maxAttempts int, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *SOS {
	return New[domain.SOSPayload](kv, Options{
		Name:            "sos",
		Key:             repo.KeySOSQueue,
		MaxLength:       maxLength,
		MaxAttempts:     maxAttempts,
		IdempotencyKeys: true,
	}, clk, log, m)
}

func NewSMS(kv repo.KV, maxLength, maxAttempts int, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *SMS {
	return New[domain.SMSPayload](kv, Options{
		Name:        "sms",
		Key:         repo.KeySMSQueue,
		MaxLength:   maxLength,
		MaxAttempts: maxAttempts,
	}, clk, log, m)
}
