package domain

// AlertConfig is the user's notification preference.
type AlertConfig struct {
	Emergency bool `json:"emergency"`
	Warnings  bool `json:"warnings"`
	Sound     bool `json:"sound"`
	Vibration bool `json:"vibration"`
}

func DefaultAlertConfig() AlertConfig {
	return AlertConfig{Emergency: true, Warnings: true, Sound: true, Vibration: true}
}

// AlertConfigPatch carries a partial update; nil fields are left untouched.
type AlertConfigPatch struct {
	Emergency *bool `json:"emergency,omitempty"`
	Warnings  *bool `json:"warnings,omitempty"`
	Sound     *bool `json:"sound,omitempty"`
	Vibration *bool `json:"vibration,omitempty"`
}

func (c AlertConfig) Apply(p AlertConfigPatch) AlertConfig {
	if p.Emergency != nil {
		c.Emergency = *p.Emergency
	}
	if p.Warnings != nil {
		c.Warnings = *p.Warnings
	}
	if p.Sound != nil {
		c.Sound = *p.Sound
	}
	if p.Vibration != nil {
		c.Vibration = *p.Vibration
	}
	return c
}

type NotificationClass string

const (
	ClassEmergency NotificationClass = "emergency"
	ClassWarning   NotificationClass = "warning"
)

// Allows reports whether a notification of the class may be shown at all.
func (c AlertConfig) Allows(class NotificationClass) bool {
	switch class {
	case ClassEmergency:
		return c.Emergency
	case ClassWarning:
		return c.Warnings
	default:
		return true
	}
}
