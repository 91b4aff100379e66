package location

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/clock"
	"github.com/hamed0406/safezone/internal/domain"
)

type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	// MaxAge rejects fixes older than this; zero disables the check.
	MaxAge time.Duration
}

// fixMessage is the payload published by the device's location service.
// Error is set to "permission_denied" when the OS refused location access.
type fixMessage struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// MQTTProvider keeps the most recent fix published on a topic.
type MQTTProvider struct {
	client mqtt.Client
	cfg    MQTTConfig
	clock  clock.Clock
	log    *zap.Logger

	mu     sync.RWMutex
	latest *domain.LocationSample
	denied bool
}

func newMQTTProvider(cfg MQTTConfig, clk clock.Clock, log *zap.Logger) *MQTTProvider {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MQTTProvider{cfg: cfg, clock: clk, log: log}
}

// NewMQTT connects to the broker and subscribes to cfg.Topic.
func NewMQTT(cfg MQTTConfig, clk clock.Clock, log *zap.Logger) (*MQTTProvider, error) {
	p := newMQTTProvider(cfg, clk, log)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		// Subscriptions do not survive a clean-session reconnect.
		if err := p.subscribe(c); err != nil {
			p.log.Warn("mqtt_resubscribe_failed", zap.Error(err))
		}
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", token.Error())
	}
	p.client = client
	p.log.Info("mqtt_location_connected", zap.String("broker", cfg.Broker), zap.String("topic", cfg.Topic))
	return p, nil
}

func (p *MQTTProvider) subscribe(c mqtt.Client) error {
	token := c.Subscribe(p.cfg.Topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		if err := p.HandleMessage(msg.Payload()); err != nil {
			p.log.Warn("mqtt_location_bad_payload", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", p.cfg.Topic, token.Error())
	}
	return nil
}

// HandleMessage records one published fix.
func (p *MQTTProvider) HandleMessage(payload []byte) error {
	var m fixMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if m.Error == "permission_denied" {
		p.denied = true
		return nil
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = p.clock.Now()
	}
	p.denied = false
	p.latest = &domain.LocationSample{Latitude: m.Latitude, Longitude: m.Longitude, Timestamp: m.Timestamp}
	return nil
}

func (p *MQTTProvider) Sample(ctx context.Context) (domain.LocationSample, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.denied {
		return domain.LocationSample{}, fmt.Errorf("location: %w", domain.ErrPermissionDenied)
	}
	if p.latest == nil {
		return domain.LocationSample{}, ErrNoFix
	}
	if p.cfg.MaxAge > 0 && p.clock.Now().Sub(p.latest.Timestamp) > p.cfg.MaxAge {
		return domain.LocationSample{}, ErrStale
	}
	return *p.latest, nil
}

func (p *MQTTProvider) Close() {
	if p.client != nil {
		p.client.Disconnect(250)
	}
}
