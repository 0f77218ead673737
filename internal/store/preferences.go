package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jdowner/chime/internal/model"
)

type PreferenceStore struct {
	db *sql.DB
}

func NewPreferenceStore(db *sql.DB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// Get returns the user's reminder preferences, or the defaults if the user
// never saved any.
func (s *PreferenceStore) Get(userID int64) (*model.ReminderPreferences, error) {
	var p model.ReminderPreferences
	var leadTimes string
	var quietEnabled, pushE, emailE, smsE, inAppE int

	err := s.db.QueryRow(
		`SELECT user_id, lead_times, quiet_enabled, quiet_start, quiet_end, timezone,
		        push_enabled, email_enabled, sms_enabled, in_app_enabled,
		        email_address, phone_number, updated_at
		 FROM reminder_preferences WHERE user_id = ?`, userID,
	).Scan(
		&p.UserID, &leadTimes, &quietEnabled, &p.QuietHours.Start, &p.QuietHours.End,
		&p.Timezone, &pushE, &emailE, &smsE, &inAppE, &p.EmailAddress, &p.PhoneNumber,
		&p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return model.DefaultPreferences(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query preferences: %w", err)
	}

	if err := json.Unmarshal([]byte(leadTimes), &p.LeadTimes); err != nil {
		return nil, fmt.Errorf("unmarshal lead times: %w", err)
	}
	p.QuietHours.Enabled = quietEnabled != 0
	p.PushEnabled = pushE != 0
	p.EmailEnabled = emailE != 0
	p.SMSEnabled = smsE != 0
	p.InAppEnabled = inAppE != 0
	return &p, nil
}

// Put upserts the user's reminder preferences.
func (s *PreferenceStore) Put(p *model.ReminderPreferences) error {
	leadTimes, err := json.Marshal(p.LeadTimes)
	if err != nil {
		return fmt.Errorf("marshal lead times: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO reminder_preferences (user_id, lead_times, quiet_enabled, quiet_start,
		    quiet_end, timezone, push_enabled, email_enabled, sms_enabled, in_app_enabled,
		    email_address, phone_number, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(user_id) DO UPDATE SET
		    lead_times = excluded.lead_times,
		    quiet_enabled = excluded.quiet_enabled,
		    quiet_start = excluded.quiet_start,
		    quiet_end = excluded.quiet_end,
		    timezone = excluded.timezone,
		    push_enabled = excluded.push_enabled,
		    email_enabled = excluded.email_enabled,
		    sms_enabled = excluded.sms_enabled,
		    in_app_enabled = excluded.in_app_enabled,
		    email_address = excluded.email_address,
		    phone_number = excluded.phone_number,
		    updated_at = CURRENT_TIMESTAMP`,
		p.UserID, string(leadTimes), boolInt(p.QuietHours.Enabled), p.QuietHours.Start,
		p.QuietHours.End, p.Timezone, boolInt(p.PushEnabled), boolInt(p.EmailEnabled),
		boolInt(p.SMSEnabled), boolInt(p.InAppEnabled), p.EmailAddress, p.PhoneNumber,
	)
	if err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
