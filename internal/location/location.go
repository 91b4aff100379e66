// Package location provides device location samples to the geofence monitor.
package location

import (
	"context"
	"errors"
	"sync"

	"github.com/hamed0406/safezone/internal/clock"
	"github.com/hamed0406/safezone/internal/domain"
)

var (
	ErrNoFix = errors.New("no location fix yet")
	ErrStale = errors.New("location fix is stale")
)

// Static always reports the last position it was given.
type Static struct {
	clock clock.Clock

	mu  sync.Mutex
	lat float64
	lon float64
	set bool
}

func NewStatic(clk clock.Clock) *Static {
	if clk == nil {
		clk = clock.System{}
	}
	return &Static{clock: clk}
}

func (s *Static) Set(lat, lon float64) {
	s.mu.Lock()
	s.lat, s.lon, s.set = lat, lon, true
	s.mu.Unlock()
}

func (s *Static) Sample(ctx context.Context) (domain.LocationSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return domain.LocationSample{}, ErrNoFix
	}
	return domain.LocationSample{Latitude: s.lat, Longitude: s.lon, Timestamp: s.clock.Now()}, nil
}
