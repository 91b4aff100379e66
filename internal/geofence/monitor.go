// Package geofence samples the device location, tracks which zones contain
// it and publishes enter, exit and primary-zone events.
package geofence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/safezone/internal/clock"
	"github.com/hamed0406/safezone/internal/domain"
	"github.com/hamed0406/safezone/internal/metrics"
	"github.com/hamed0406/safezone/internal/repo"
	"github.com/hamed0406/safezone/internal/scheduler"
)

const MaxTransitions = 200

// LocationProvider returns the latest device location. It may fail with
// domain.ErrPermissionDenied.
type LocationProvider interface {
	Sample(ctx context.Context) (domain.LocationSample, error)
}

type occupancy struct {
	zone      domain.GeofenceZone
	enteredAt uint64 // tick number
}

// Monitor evaluates containment once per tick against a single location
// sample. Within a tick, exits are published before enters, each in zone
// load order, followed by the primary event. The first evaluation always
// publishes a primary event, even a nil one.
type Monitor struct {
	provider    LocationProvider
	fences      *repo.Doc[[]domain.GeofenceZone]
	transitions *repo.Doc[[]domain.Transition]
	bus         *Bus
	loop        *scheduler.Loop
	clock       clock.Clock
	log         *zap.Logger
	metrics     *metrics.Metrics

	mu        sync.Mutex
	zones     []domain.GeofenceZone
	contained map[domain.ZoneID]occupancy
	primary   *domain.GeofenceZone
	known     bool // primary has been published at least once
	tick      uint64
}

func NewMonitor(kv repo.KV, provider LocationProvider, clk clock.Clock, log *zap.Logger, m *metrics.Metrics) *Monitor {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		provider:    provider,
		fences:      repo.NewDoc[[]domain.GeofenceZone](kv, repo.KeyGeofences),
		transitions: repo.NewDoc[[]domain.Transition](kv, repo.KeyTransitions),
		bus:         NewBus(),
		loop:        scheduler.NewLoop("geofence", log),
		clock:       clk,
		log:         log,
		metrics:     m,
		contained:   make(map[domain.ZoneID]occupancy),
	}
}

// LoadFences reads zone definitions from the store. On failure the monitor
// continues with no zones and the error wraps domain.ErrLoad.
func (m *Monitor) LoadFences(ctx context.Context) ([]domain.GeofenceZone, error) {
	zones, _, err := m.fences.Load(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.zones = nil
		m.log.Warn("geofence_load_failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrLoad, err)
	}
	m.zones = zones
	m.log.Info("geofence_loaded", zap.Int("zones", len(zones)))
	return append([]domain.GeofenceZone(nil), zones...), nil
}

// SetFences validates, persists and activates a new zone set.
func (m *Monitor) SetFences(ctx context.Context, zones []domain.GeofenceZone) error {
	if err := Validate(zones); err != nil {
		return err
	}
	if err := m.fences.Save(ctx, zones); err != nil {
		return fmt.Errorf("save fences: %w", err)
	}
	m.mu.Lock()
	m.zones = append([]domain.GeofenceZone(nil), zones...)
	m.mu.Unlock()
	m.log.Info("geofence_replaced", zap.Int("zones", len(zones)))
	return nil
}

func (m *Monitor) Zones() []domain.GeofenceZone {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.GeofenceZone(nil), m.zones...)
}

// StartMonitoring samples every interval until StopMonitoring or ctx is done.
// Calling it again replaces the running timer.
func (m *Monitor) StartMonitoring(ctx context.Context, interval time.Duration) {
	m.loop.Start(ctx, interval, func(ctx context.Context) { m.Tick(ctx) })
}

// StopMonitoring cancels the timer. Handlers stay registered; use Off to
// detach them.
func (m *Monitor) StopMonitoring() { m.loop.Stop() }

func (m *Monitor) Running() bool { return m.loop.Running() }

func (m *Monitor) On(kind EventKind, h Handler) Subscription { return m.bus.On(kind, h) }
func (m *Monitor) Off(s Subscription)                        { m.bus.Off(s) }
func (m *Monitor) OffAll(kind EventKind)                     { m.bus.OffAll(kind) }

// Primary returns the current primary zone, or nil.
func (m *Monitor) Primary() *domain.GeofenceZone {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.primary == nil {
		return nil
	}
	z := *m.primary
	return &z
}

// Tick samples the provider once and evaluates the sample. It reports
// whether a sample was obtained.
func (m *Monitor) Tick(ctx context.Context) bool {
	sample, err := m.provider.Sample(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			m.log.Warn("location_permission_denied", zap.Error(err))
		} else {
			m.log.Warn("location_sample_error", zap.Error(err))
		}
		return false
	}
	m.Evaluate(ctx, sample)
	return true
}

// Evaluate diffs the contained set for sample against the previous one and
// publishes the resulting events.
func (m *Monitor) Evaluate(ctx context.Context, sample domain.LocationSample) []Event {
	m.mu.Lock()
	m.tick++
	order := make(map[domain.ZoneID]int, len(m.zones))
	next := make(map[domain.ZoneID]occupancy)
	for i, z := range m.zones {
		order[z.ID] = i
		if !z.Contains(sample.Latitude, sample.Longitude) {
			continue
		}
		if prev, ok := m.contained[z.ID]; ok {
			next[z.ID] = occupancy{zone: z, enteredAt: prev.enteredAt}
		} else {
			next[z.ID] = occupancy{zone: z, enteredAt: m.tick}
		}
	}

	var events []Event
	exited := make([]occupancy, 0)
	for id, occ := range m.contained {
		if _, ok := next[id]; !ok {
			exited = append(exited, occ)
		}
	}
	sort.Slice(exited, func(i, j int) bool {
		return rank(order, exited[i].zone.ID) < rank(order, exited[j].zone.ID)
	})
	for _, occ := range exited {
		events = append(events, Event{Kind: EventExit, Fence: occ.zone, Location: sample})
	}
	for _, z := range m.zones {
		if occ, ok := next[z.ID]; ok && occ.enteredAt == m.tick {
			events = append(events, Event{Kind: EventEnter, Fence: z, Location: sample})
		}
	}

	primary := selectPrimary(next, order)
	if !m.known || !samePrimary(m.primary, primary) {
		events = append(events, Event{Kind: EventPrimary, Primary: primary, Location: sample})
	}
	m.contained = next
	m.primary = primary
	m.known = true
	m.mu.Unlock()

	m.record(ctx, events)
	for _, e := range events {
		m.bus.Publish(e)
	}
	return events
}

// rank places zones no longer loaded after every loaded zone.
func rank(order map[domain.ZoneID]int, id domain.ZoneID) int {
	if i, ok := order[id]; ok {
		return i
	}
	return len(order)
}

// selectPrimary picks the highest risk zone. Ties go to the most recently
// entered zone, then to the earlier zone in load order.
func selectPrimary(in map[domain.ZoneID]occupancy, order map[domain.ZoneID]int) *domain.GeofenceZone {
	var best *occupancy
	for id := range in {
		occ := in[id]
		if best == nil {
			best = &occ
			continue
		}
		switch {
		case occ.zone.RiskLevel != best.zone.RiskLevel:
			if occ.zone.RiskLevel > best.zone.RiskLevel {
				best = &occ
			}
		case occ.enteredAt != best.enteredAt:
			if occ.enteredAt > best.enteredAt {
				best = &occ
			}
		case order[occ.zone.ID] < order[best.zone.ID]:
			best = &occ
		}
	}
	if best == nil {
		return nil
	}
	z := best.zone
	return &z
}

// samePrimary also compares risk, so a zone reclassified in place by a
// reload republishes primary.
func samePrimary(a, b *domain.GeofenceZone) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID && a.RiskLevel == b.RiskLevel
}

func (m *Monitor) record(ctx context.Context, events []Event) {
	var added []domain.Transition
	for _, e := range events {
		var typ domain.TransitionType
		switch e.Kind {
		case EventEnter:
			typ = domain.TransitionEnter
		case EventExit:
			typ = domain.TransitionExit
		default:
			continue
		}
		t := domain.Transition{
			ID:        uuid.NewString(),
			FenceID:   e.Fence.ID,
			FenceName: e.Fence.Name,
			Type:      typ,
			At:        m.clock.Now(),
			Latitude:  e.Location.Latitude,
			Longitude: e.Location.Longitude,
		}
		added = append(added, t)
		if m.metrics != nil {
			m.metrics.Transitions.WithLabelValues(string(typ)).Inc()
		}
		m.log.Info("geofence_"+string(typ),
			zap.String("fence_id", string(t.FenceID)),
			zap.String("fence_name", t.FenceName),
			zap.String("risk", e.Fence.RiskLevel.String()))
	}
	if len(added) == 0 {
		return
	}

	log, _, err := m.transitions.Load(ctx)
	if err != nil {
		m.log.Warn("transition_log_corrupt", zap.Error(err))
		log = nil
	}
	log = append(log, added...)
	if n := len(log) - MaxTransitions; n > 0 {
		log = log[n:]
	}
	if err := m.transitions.Save(ctx, log); err != nil {
		m.log.Error("transition_log_save_error", zap.Error(err))
	}
}

// Transitions returns the persisted audit log, oldest first.
func (m *Monitor) Transitions(ctx context.Context) ([]domain.Transition, error) {
	log, _, err := m.transitions.Load(ctx)
	if err != nil {
		return nil, err
	}
	return log, nil
}
