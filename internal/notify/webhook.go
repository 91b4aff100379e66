package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hamed0406/safezone/internal/domain"
)

// Webhook posts notifications to a push gateway. The text field keeps it
// compatible with Slack-style incoming webhooks.
type Webhook struct {
	URL    string
	client *resty.Client
}

func NewWebhook(url string) *Webhook {
	if url == "" {
		return nil
	}
	return &Webhook{
		URL: url,
		client: resty.New().
			SetTimeout(10 * time.Second).
			SetHeader("Content-Type", "application/json"),
	}
}

type webhookPayload struct {
	Text  string `json:"text"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Sound bool   `json:"sound"`
}

func (w *Webhook) Schedule(ctx context.Context, title, body string, sound bool) error {
	if w == nil || w.URL == "" {
		return errors.New("push webhook disabled")
	}
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(webhookPayload{
			Text:  "*" + title + "*\n" + body,
			Title: title,
			Body:  body,
			Sound: sound,
		}).
		Post(w.URL)
	if err != nil {
		return fmt.Errorf("push webhook: %w: %v", domain.ErrConnectivity, err)
	}
	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("push webhook status %d: %w", code, domain.ErrPermissionDenied)
	case code/100 != 2:
		return fmt.Errorf("push webhook status %d: %w", code, domain.ErrBackendRejected)
	}
	return nil
}
