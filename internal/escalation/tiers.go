package escalation

import (
	"time"

	"github.com/hamed0406/safezone/internal/domain"
)

// VibrationFor scales the vibration with urgency.
func VibrationFor(t domain.Tier) time.Duration {
	switch {
	case t >= domain.Tier3:
		return 5 * time.Second
	case t == domain.Tier2:
		return 3 * time.Second
	default:
		return 0
	}
}

func ClassFor(t domain.Tier) domain.NotificationClass {
	if t >= domain.Tier3 {
		return domain.ClassEmergency
	}
	return domain.ClassWarning
}

// Body prefixes the base text with a tier-specific urgency line.
func Body(t domain.Tier, base string) string {
	switch t {
	case domain.Tier1:
		return "You have been in a high-risk area for over 5 minutes. " + base
	case domain.Tier2:
		return "Warning: still in a high-risk area after 15 minutes. Move to a safer location. " + base
	case domain.Tier3:
		return "URGENT: 30 minutes in a high-risk area. Leave now or send an SOS. " + base
	default:
		return base
	}
}
