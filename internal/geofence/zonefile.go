package geofence

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hamed0406/safezone/internal/domain"
)

type zoneFile struct {
	Zones []domain.GeofenceZone `yaml:"zones"`
}

// ParseZones decodes a YAML zone document:
//
//	zones:
//	  - id: old-market
//	    name: Old Market
//	    category: crowd
//	    risk_level: high
//	    geometry: {latitude: 41.01, longitude: 28.97, radius_m: 250}
func ParseZones(data []byte) ([]domain.GeofenceZone, error) {
	var f zoneFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse zones: %w", err)
	}
	if err := Validate(f.Zones); err != nil {
		return nil, err
	}
	return f.Zones, nil
}

func ReadZoneFile(path string) ([]domain.GeofenceZone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zones: %w", err)
	}
	return ParseZones(data)
}

// Validate rejects zones without an id, with duplicate ids, an unset risk
// level or a non-positive radius.
func Validate(zones []domain.GeofenceZone) error {
	seen := make(map[domain.ZoneID]struct{}, len(zones))
	for i, z := range zones {
		if z.ID == "" {
			return fmt.Errorf("zone %d: missing id", i)
		}
		if _, dup := seen[z.ID]; dup {
			return fmt.Errorf("zone %q: duplicate id", z.ID)
		}
		seen[z.ID] = struct{}{}
		if z.RiskLevel < domain.RiskLow || z.RiskLevel > domain.RiskHigh {
			return fmt.Errorf("zone %q: missing risk_level", z.ID)
		}
		if z.Geometry.RadiusM <= 0 {
			return fmt.Errorf("zone %q: radius_m must be positive", z.ID)
		}
	}
	return nil
}

// ImportFile reads path and activates its zones.
func (m *Monitor) ImportFile(ctx context.Context, path string) (int, error) {
	zones, err := ReadZoneFile(path)
	if err != nil {
		return 0, err
	}
	if err := m.SetFences(ctx, zones); err != nil {
		return 0, err
	}
	return len(zones), nil
}
