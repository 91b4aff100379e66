// Package safety composes the geofence monitor, escalation engine, delivery
// queues and connectivity coordinator behind a single API.
package safety

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/clock"
	"github.com/hamed0406/safezone/internal/connectivity"
	"github.com/hamed0406/safezone/internal/domain"
	"github.com/hamed0406/safezone/internal/escalation"
	"github.com/hamed0406/safezone/internal/geofence"
	"github.com/hamed0406/safezone/internal/metrics"
	"github.com/hamed0406/safezone/internal/notify"
	"github.com/hamed0406/safezone/internal/queue"
	"github.com/hamed0406/safezone/internal/repo"
)

const (
	DefaultAlertTitle = "High-risk area"
	DefaultAlertBody  = "Stay alert and keep your phone close."
)

type SOSBackend interface {
	Trigger(ctx context.Context, token string, e domain.QueueEntry[domain.SOSPayload]) error
}

type SMSTransport interface {
	Send(ctx context.Context, recipients []string, message string) error
}

// TokenSource yields the session token used by background SOS drains.
type TokenSource func(ctx context.Context) (string, error)

func StaticToken(tok string) TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

var ErrNoToken = errors.New("no sos token available")

type Deps struct {
	KV       repo.KV
	Location geofence.LocationProvider
	Sender   notify.Sender
	Haptics  notify.Haptics
	SOS      SOSBackend
	SMS      SMSTransport
	Token    TokenSource
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *metrics.Metrics
}

type Options struct {
	LocationInterval   time.Duration
	EscalationInterval time.Duration
	QueueMaxLength     int
	QueueMaxAttempts   int
	ZoneFile           string
}

type Service struct {
	monitor    *geofence.Monitor
	engine     *escalation.Engine
	prefs      *notify.Preferences
	dispatcher *notify.Dispatcher
	sosQ       *queue.SOS
	smsQ       *queue.SMS
	coord      *connectivity.Coordinator
	sos        SOSBackend
	sms        SMSTransport
	token      TokenSource
	log        *zap.Logger
	opts       Options

	mu       sync.Mutex
	ctx      context.Context
	inHigh   bool
	sub      geofence.Subscription
	attached bool
}

func New(d Deps, o Options) *Service {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Token == nil {
		d.Token = func(context.Context) (string, error) { return "", ErrNoToken }
	}
	prefs := notify.NewPreferences(d.KV, d.Log)
	dispatcher := notify.NewDispatcher(d.Sender, d.Haptics, prefs, d.Log, d.Metrics)

	s := &Service{
		monitor:    geofence.NewMonitor(d.KV, d.Location, d.Clock, d.Log, d.Metrics),
		engine:     escalation.New(d.KV, dispatcher, d.Clock, d.Log, d.Metrics, escalation.Options{Interval: o.EscalationInterval}),
		prefs:      prefs,
		dispatcher: dispatcher,
		sosQ:       queue.NewSOS(d.KV, o.QueueMaxLength, o.QueueMaxAttempts, d.Clock, d.Log, d.Metrics),
		smsQ:       queue.NewSMS(d.KV, o.QueueMaxLength, o.QueueMaxAttempts, d.Clock, d.Log, d.Metrics),
		sos:        d.SOS,
		sms:        d.SMS,
		token:      d.Token,
		log:        d.Log,
		opts:       o,
		ctx:        context.Background(),
	}
	s.coord = connectivity.NewCoordinator(d.Log,
		connectivity.Target{
			Name: s.sosQ.Name(),
			Drain: func(ctx context.Context) (domain.DrainReport, error) {
				tok, err := s.token(ctx)
				if err != nil {
					return domain.DrainReport{}, fmt.Errorf("sos token: %w", err)
				}
				return s.drainSOS(ctx, tok)
			},
			Prune: s.sosQ.Prune,
		},
		connectivity.Target{
			Name:  s.smsQ.Name(),
			Drain: s.drainSMS,
			Prune: s.smsQ.Prune,
		},
	)
	alerter := connectivity.NewAlerter(dispatcher, s.pending, d.Clock, connectivity.AlerterConfig{
		AlertOnRecovery: true,
		Cooldown:        connectivity.DefaultOfflineCooldown,
	}, d.Log)
	s.coord.OnChange(func(ctx context.Context, offline bool) { alerter.Observe(ctx, offline) })
	return s
}

// Run loads zones, resumes a persisted episode and starts monitoring.
// Background work stops when ctx is done or Shutdown is called.
func (s *Service) Run(ctx context.Context, obs connectivity.Observer) error {
	s.mu.Lock()
	s.ctx = ctx
	if !s.attached {
		s.sub = s.monitor.On(geofence.EventPrimary, s.onPrimary)
		s.attached = true
	}
	s.mu.Unlock()

	if s.opts.ZoneFile != "" {
		if _, err := s.monitor.ImportFile(ctx, s.opts.ZoneFile); err != nil {
			s.log.Warn("zone_file_import_failed", zap.String("path", s.opts.ZoneFile), zap.Error(err))
		}
	}
	if _, err := s.monitor.LoadFences(ctx); err != nil {
		s.log.Warn("geofence_degraded", zap.Error(err))
	}
	if s.opts.ZoneFile != "" {
		if err := s.monitor.WatchZoneFile(ctx, s.opts.ZoneFile); err != nil {
			s.log.Warn("zone_watch_disabled", zap.Error(err))
		}
	}

	resumed, err := s.engine.Resume(ctx, DefaultAlertTitle, DefaultAlertBody)
	if err != nil {
		return fmt.Errorf("resume escalation: %w", err)
	}
	if resumed {
		// The first primary event stops the episode unless the device is
		// still inside a high-risk zone.
		s.mu.Lock()
		s.inHigh = true
		s.mu.Unlock()
	}

	s.coord.Attach(ctx, obs)
	s.monitor.StartMonitoring(ctx, s.opts.LocationInterval)
	s.log.Info("safety_service_running",
		zap.Duration("location_interval", s.opts.LocationInterval),
		zap.Bool("resumed_episode", resumed),
		zap.Bool("connectivity_autodetect", s.coord.AutoDetect()))
	return nil
}

// Shutdown stops timers and waits for background drains. Persisted state is
// kept so the next Run can resume.
func (s *Service) Shutdown() {
	s.monitor.StopMonitoring()
	s.engine.Suspend()
	s.coord.Detach()
	s.coord.Wait()
	s.mu.Lock()
	if s.attached {
		s.monitor.Off(s.sub)
		s.attached = false
	}
	s.mu.Unlock()
}

func (s *Service) onPrimary(ev geofence.Event) {
	high := ev.Primary != nil && ev.Primary.RiskLevel == domain.RiskHigh

	s.mu.Lock()
	was := s.inHigh
	s.inHigh = high
	ctx := s.ctx
	s.mu.Unlock()

	switch {
	case high && !was:
		body := fmt.Sprintf("You entered %s. %s", ev.Primary.Name, DefaultAlertBody)
		if err := s.engine.Start(ctx, DefaultAlertTitle, body); err != nil {
			s.log.Error("escalation_start_error", zap.Error(err))
		}
	case !high && was:
		if err := s.engine.Stop(ctx); err != nil {
			s.log.Error("escalation_stop_error", zap.Error(err))
		}
	}
}

// Monitoring.

func (s *Service) StartMonitoring(ctx context.Context, interval time.Duration) {
	s.monitor.StartMonitoring(ctx, interval)
}

func (s *Service) StopMonitoring() { s.monitor.StopMonitoring() }

func (s *Service) On(kind geofence.EventKind, h geofence.Handler) geofence.Subscription {
	return s.monitor.On(kind, h)
}

func (s *Service) Off(sub geofence.Subscription) { s.monitor.Off(sub) }

func (s *Service) Transitions(ctx context.Context) ([]domain.Transition, error) {
	return s.monitor.Transitions(ctx)
}

func (s *Service) Zones() []domain.GeofenceZone { return s.monitor.Zones() }

func (s *Service) Primary() *domain.GeofenceZone { return s.monitor.Primary() }

// ReloadZones re-imports the zone file when one is configured, then reloads
// the stored zones.
func (s *Service) ReloadZones(ctx context.Context) (int, error) {
	if s.opts.ZoneFile != "" {
		if _, err := s.monitor.ImportFile(ctx, s.opts.ZoneFile); err != nil {
			return 0, err
		}
	}
	zones, err := s.monitor.LoadFences(ctx)
	return len(zones), err
}

func (s *Service) SetZones(ctx context.Context, zones []domain.GeofenceZone) error {
	return s.monitor.SetFences(ctx, zones)
}

// Escalation.

func (s *Service) StartProgressiveAlert(ctx context.Context, title, body string) error {
	return s.engine.Start(s.loopContext(), title, body)
}

func (s *Service) StopProgressiveAlert(ctx context.Context) error { return s.engine.Stop(ctx) }

func (s *Service) AcknowledgeHighRisk(ctx context.Context, minutes int) error {
	return s.engine.Acknowledge(ctx, minutes)
}

func (s *Service) SetGlobalMute(ctx context.Context, muted bool) error {
	return s.engine.SetGlobalMute(ctx, muted)
}

func (s *Service) TriggerHighRiskAlert(ctx context.Context, title, body string) error {
	return s.engine.TriggerHighRiskAlert(ctx, title, body)
}

type EscalationStatus struct {
	Active  bool                    `json:"active"`
	Running bool                    `json:"running"`
	Muted   bool                    `json:"muted"`
	State   *domain.EscalationState `json:"state,omitempty"`
}

func (s *Service) EscalationStatus(ctx context.Context) EscalationStatus {
	st := EscalationStatus{Running: s.engine.Running(), Muted: s.engine.Muted(ctx)}
	if state, ok := s.engine.State(ctx); ok {
		st.Active = true
		st.State = &state
	}
	return st
}

// loopContext is the Run context; timers started from request handlers must
// outlive the request.
func (s *Service) loopContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Alert configuration.

func (s *Service) GetAlertConfig(ctx context.Context) domain.AlertConfig { return s.prefs.Get(ctx) }

func (s *Service) SaveAlertConfig(ctx context.Context, p domain.AlertConfigPatch) (domain.AlertConfig, error) {
	return s.prefs.Save(ctx, p)
}

// Connectivity.

func (s *Service) SetOffline(ctx context.Context, offline bool) bool {
	return s.coord.SetOffline(s.loopContext(), offline)
}

func (s *Service) Offline() bool { return s.coord.Offline() }

func (s *Service) Connectivity() *connectivity.Coordinator { return s.coord }

// SessionToken returns the token background SOS drains would use.
func (s *Service) SessionToken(ctx context.Context) (string, error) { return s.token(ctx) }
