package domain

import "github.com/shopspring/decimal"

type Permission string

const (
	PermissionUnset       Permission = "unset"
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
	PermissionUnsupported Permission = "unsupported"
)

type NotificationPreference struct {
	Enabled    bool       `json:"enabled"`
	Permission Permission `json:"permission"`
}

// Allows reports whether a notification may be presented right now.
func (p NotificationPreference) Allows(focused bool) bool {
	return p.Enabled && p.Permission == PermissionGranted && !focused
}

type Preferences struct {
	Notifications    NotificationPreference `json:"notifications"`
	ProactiveEnabled bool                   `json:"proactive_enabled"`
	Temperature      decimal.Decimal        `json:"temperature"`
}

// DefaultPreferences mirrors a first visit: everything on, permission not asked yet.
func DefaultPreferences(temperature float64) Preferences {
	return Preferences{
		Notifications:    NotificationPreference{Enabled: true, Permission: PermissionUnset},
		ProactiveEnabled: true,
		Temperature:      decimal.NewFromFloat(temperature),
	}
}

// Notification is a transient alert shown outside the conversation view.
type Notification struct {
	Title string
	Body  string
	Icon  string
	Tag   string
	// PersonalityID is the conversation opened when the notification is clicked.
	PersonalityID string
}
