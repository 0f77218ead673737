package model

import "time"

// Event is the slice of a calendar event the engine cares about. The
// surrounding application owns the full record; reminders are derived from
// the owner, title, and start time.
type Event struct {
	ID        int64      `json:"id"`
	OwnerID   int64      `json:"owner_id"`
	Title     string     `json:"title"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Validate checks invariants the store relies on.
func (e *Event) Validate() error {
	if e.Title == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if e.StartTime.IsZero() {
		return &ValidationError{Field: "start_time", Reason: "is required"}
	}
	if e.EndTime != nil && e.EndTime.Before(e.StartTime) {
		return &ValidationError{Field: "end_time", Reason: "must not precede start_time"}
	}
	return nil
}
