package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/domain"
)

type smsRequest struct {
	Recipients []string `json:"recipients"`
	Message    string   `json:"message"`
}

type smsResponse struct {
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// SMSGateway sends text messages through an HTTP gateway.
type SMSGateway struct {
	http *resty.Client
	log  *zap.Logger
}

func NewSMSGateway(baseURL string, timeout time.Duration, log *zap.Logger) *SMSGateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &SMSGateway{http: newClient(baseURL, timeout), log: log}
}

func (g *SMSGateway) Send(ctx context.Context, recipients []string, message string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("sms send: no recipients: %w", domain.ErrBackendRejected)
	}
	var out smsResponse
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(smsRequest{Recipients: recipients, Message: message}).
		SetResult(&out).
		Post("/messages")
	if err := classify("sms send", resp, err); err != nil {
		return err
	}
	if !out.Delivered {
		reason := out.Error
		if reason == "" {
			reason = "not delivered"
		}
		return fmt.Errorf("sms send: %w", errors.Join(domain.ErrBackendRejected, errors.New(reason)))
	}
	g.log.Info("sms_delivered", zap.Int("recipients", len(recipients)))
	return nil
}
