package domain

import "time"

// Tier is an escalation level. Tier 0 is the entry notification.
type Tier int

const (
	Tier0 Tier = iota
	Tier1
	Tier2
	Tier3
)

// Dwell thresholds for tiers 1..3.
var tierThresholds = [...]time.Duration{
	Tier1: 5 * time.Minute,
	Tier2: 15 * time.Minute,
	Tier3: 30 * time.Minute,
}

// TierFor returns the highest tier whose threshold elapsed has crossed.
func TierFor(elapsed time.Duration) Tier {
	t := Tier0
	for tier := Tier1; tier <= Tier3; tier++ {
		if elapsed >= tierThresholds[tier] {
			t = tier
		}
	}
	return t
}

// Threshold returns the dwell time at which the tier begins.
func (t Tier) Threshold() time.Duration {
	if t <= Tier0 || t > Tier3 {
		return 0
	}
	return tierThresholds[t]
}

// EscalationState lives exactly as long as one high-risk episode.
type EscalationState struct {
	StartedAt        time.Time  `json:"started_at"`
	LastTier         Tier       `json:"last_tier"`
	LastNotifiedAt   time.Time  `json:"last_notified_at,omitempty"`
	SuppressionUntil *time.Time `json:"suppression_until,omitempty"`
	GlobalMute       bool       `json:"global_mute"`
}

// Suppressed reports whether now falls inside an acknowledged window.
func (s EscalationState) Suppressed(now time.Time) bool {
	return s.SuppressionUntil != nil && now.Before(*s.SuppressionUntil)
}
