package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/domain"
)

const IdempotencyHeader = "Idempotency-Key"

type sosRequest struct {
	ID          string        `json:"id"`
	Latitude    float64       `json:"latitude"`
	Longitude   float64       `json:"longitude"`
	Message     string        `json:"message"`
	ZoneID      domain.ZoneID `json:"zone_id,omitempty"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// SOSClient posts emergency alerts to the backend.
type SOSClient struct {
	http *resty.Client
	log  *zap.Logger
}

func NewSOSClient(baseURL string, timeout time.Duration, log *zap.Logger) *SOSClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &SOSClient{http: newClient(baseURL, timeout), log: log}
}

// Trigger delivers one SOS entry. A 409 means the backend already holds an
// alert with this idempotency key and counts as delivered.
func (c *SOSClient) Trigger(ctx context.Context, token string, e domain.QueueEntry[domain.SOSPayload]) error {
	req := c.http.R().
		SetContext(ctx).
		SetBody(sosRequest{
			ID:          e.ID,
			Latitude:    e.Payload.Latitude,
			Longitude:   e.Payload.Longitude,
			Message:     e.Payload.Message,
			ZoneID:      e.Payload.ZoneID,
			TriggeredAt: e.Payload.TriggeredAt,
		})
	if token != "" {
		req.SetAuthToken(token)
	}
	if e.IdempotencyKey != "" {
		req.SetHeader(IdempotencyHeader, e.IdempotencyKey)
	}

	resp, err := req.Post("/sos")
	if err == nil && resp.StatusCode() == http.StatusConflict {
		c.log.Info("sos_duplicate_acknowledged", zap.String("id", e.ID))
		return nil
	}
	if err := classify("sos trigger", resp, err); err != nil {
		return err
	}
	c.log.Info("sos_delivered", zap.String("id", e.ID), zap.Int("status", resp.StatusCode()))
	return nil
}
