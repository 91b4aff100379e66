package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestTierFor(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want Tier
	}{
		{0, Tier0},
		{4*time.Minute + 59*time.Second, Tier0},
		{5 * time.Minute, Tier1},
		{14 * time.Minute, Tier1},
		{15 * time.Minute, Tier2},
		{29 * time.Minute, Tier2},
		{30 * time.Minute, Tier3},
		{3 * time.Hour, Tier3},
	}
	for _, c := range cases {
		if got := TierFor(c.in); got != c.want {
			t.Fatalf("TierFor(%s)=%d want %d", c.in, got, c.want)
		}
	}
}

func TestZoneContains(t *testing.T) {
	z := GeofenceZone{ID: "z", RiskLevel: RiskHigh, Geometry: Circle{Lat: -6.2088, Lon: 106.8456, RadiusM: 50}}
	if !z.Contains(-6.2088, 106.8456) {
		t.Fatalf("center should be inside")
	}
	if z.Contains(-6.2100, 106.8456) {
		t.Fatalf("~130m away should be outside")
	}
	if (GeofenceZone{}).Contains(0, 0) {
		t.Fatalf("zero radius never contains")
	}
}

func TestHaversine(t *testing.T) {
	if d := Haversine(-6.2088, 106.8456, -6.2088, 106.8456); d != 0 {
		t.Errorf("expected 0, got %f", d)
	}
	d := Haversine(-6.2088, 106.8456, -6.2100, 106.8456)
	if d < 100 || d > 200 {
		t.Errorf("expected ~133m, got %f", d)
	}
}

func TestRiskLevel_JSON(t *testing.T) {
	b, err := json.Marshal(GeofenceZone{ID: "a", RiskLevel: RiskMedium})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got GeofenceZone
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RiskLevel != RiskMedium {
		t.Fatalf("want medium, got %s", got.RiskLevel)
	}
	var r RiskLevel
	if err := r.UnmarshalText([]byte("extreme")); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestAlertConfig_ApplyAndAllows(t *testing.T) {
	off := false
	c := DefaultAlertConfig().Apply(AlertConfigPatch{Warnings: &off})
	if !c.Emergency || c.Warnings || !c.Sound || !c.Vibration {
		t.Fatalf("unexpected merge: %+v", c)
	}
	if c.Allows(ClassWarning) {
		t.Fatalf("warnings should be blocked")
	}
	if !c.Allows(ClassEmergency) {
		t.Fatalf("emergency should pass")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsConnectivityFailure(t *testing.T) {
	var ne net.Error = timeoutErr{}
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("Network request failed"), true},
		{fmt.Errorf("send: %w", ErrConnectivity), true},
		{fmt.Errorf("wrap: %w", ne), true},
		{fmt.Errorf("status 422: %w", ErrBackendRejected), false},
		{errors.New("invalid payload"), false},
	}
	for _, c := range cases {
		if got := IsConnectivityFailure(c.err); got != c.want {
			t.Fatalf("IsConnectivityFailure(%v)=%v want %v", c.err, got, c.want)
		}
	}
}
