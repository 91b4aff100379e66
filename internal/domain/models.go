package domain

import (
	"fmt"
	"strings"
	"time"
)

type ZoneID string

// RiskLevel ranks zones. Higher values win primary selection.
type RiskLevel int

const (
	RiskUnknown RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

func (r RiskLevel) MarshalText() ([]byte, error) {
	if r < RiskLow || r > RiskHigh {
		return nil, fmt.Errorf("invalid risk level %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *RiskLevel) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "low":
		*r = RiskLow
	case "medium", "moderate":
		*r = RiskMedium
	case "high":
		*r = RiskHigh
	default:
		return fmt.Errorf("invalid risk level %q", string(b))
	}
	return nil
}

// Circle is the only zone geometry. Radius is in meters.
type Circle struct {
	Lat     float64 `json:"latitude" yaml:"latitude"`
	Lon     float64 `json:"longitude" yaml:"longitude"`
	RadiusM float64 `json:"radius_m" yaml:"radius_m"`
}

type GeofenceZone struct {
	ID        ZoneID    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Category  string    `json:"category" yaml:"category"`
	RiskLevel RiskLevel `json:"risk_level" yaml:"risk_level"`
	Geometry  Circle    `json:"geometry" yaml:"geometry"`
}

// Contains reports whether the point lies inside the zone boundary (inclusive).
func (z GeofenceZone) Contains(lat, lon float64) bool {
	if z.Geometry.RadiusM <= 0 {
		return false
	}
	return Haversine(lat, lon, z.Geometry.Lat, z.Geometry.Lon) <= z.Geometry.RadiusM
}

type LocationSample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

type TransitionType string

const (
	TransitionEnter TransitionType = "enter"
	TransitionExit  TransitionType = "exit"
)

// Transition is an append-only audit record of a containment change.
type Transition struct {
	ID        string         `json:"id"`
	FenceID   ZoneID         `json:"fence_id"`
	FenceName string         `json:"fence_name"`
	Type      TransitionType `json:"type"`
	At        time.Time      `json:"at"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
}
