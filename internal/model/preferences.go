package model

import "time"

// QuietHours is a local-time window during which reminders are deferred.
// Start and End are "HH:MM" in the user's timezone; a window with Start
// after End spans midnight (e.g. 22:00-07:00).
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// ReminderPreferences holds a user's notification settings, consumed
// read-only by the advance-reminder generator and the channel senders.
type ReminderPreferences struct {
	UserID       int64      `json:"user_id"`
	LeadTimes    []int      `json:"lead_times"` // minutes before event start
	QuietHours   QuietHours `json:"quiet_hours"`
	Timezone     string     `json:"timezone"`
	PushEnabled  bool       `json:"push_enabled"`
	EmailEnabled bool       `json:"email_enabled"`
	SMSEnabled   bool       `json:"sms_enabled"`
	InAppEnabled bool       `json:"in_app_enabled"`
	EmailAddress string     `json:"email_address,omitempty"`
	PhoneNumber  string     `json:"phone_number,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DefaultPreferences returns the settings applied to users who never saved any.
func DefaultPreferences(userID int64) *ReminderPreferences {
	return &ReminderPreferences{
		UserID:       userID,
		LeadTimes:    []int{15},
		QuietHours:   QuietHours{Start: "22:00", End: "07:00"},
		Timezone:     "UTC",
		InAppEnabled: true,
	}
}

// EnabledChannels lists the channels the user has opted into, in the order
// the dispatcher will try them.
func (p *ReminderPreferences) EnabledChannels() []Channel {
	var out []Channel
	if p.PushEnabled {
		out = append(out, ChannelPush)
	}
	if p.EmailEnabled {
		out = append(out, ChannelEmail)
	}
	if p.SMSEnabled {
		out = append(out, ChannelSMS)
	}
	if p.InAppEnabled {
		out = append(out, ChannelInApp)
	}
	return out
}

// PushSubscription is a browser push endpoint registered by a user's device.
type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
