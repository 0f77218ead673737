package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what a notification is about.
type Kind string

const (
	KindAdvanceReminder   Kind = "advance_reminder"
	KindEventStart        Kind = "event_start"
	KindEventReminder     Kind = "event_reminder"
	KindEventInvitation   Kind = "event_invitation"
	KindEventUpdate       Kind = "event_update"
	KindEventCancellation Kind = "event_cancellation"
	KindSnoozeReminder    Kind = "snooze_reminder"
	KindSystem            Kind = "system_notification"
)

func (k Kind) Valid() bool {
	switch k {
	case KindAdvanceReminder, KindEventStart, KindEventReminder, KindEventInvitation,
		KindEventUpdate, KindEventCancellation, KindSnoozeReminder, KindSystem:
		return true
	}
	return false
}

// Status is the delivery lifecycle state of a notification.
type Status string

const (
	StatusPending      Status = "pending"
	StatusSent         Status = "sent"
	StatusAcknowledged Status = "acknowledged"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// Priority is carried through to channel senders; it drives no engine behavior.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Channel is a delivery medium.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelPush, ChannelEmail, ChannelSMS, ChannelInApp:
		return true
	}
	return false
}

// UserAction is a user's response to a delivered reminder.
type UserAction string

const (
	ActionConfirmed UserAction = "confirmed"
	ActionSnooze    UserAction = "snooze"
	ActionReady     UserAction = "ready"
	ActionDismissed UserAction = "dismissed"
)

func (a UserAction) Valid() bool {
	switch a {
	case ActionConfirmed, ActionSnooze, ActionReady, ActionDismissed:
		return true
	}
	return false
}

// DefaultMaxRetries applies when a notification is created without one.
const DefaultMaxRetries = 3

// ChannelResult records the outcome of one channel's delivery attempt.
// Permanent marks failures that retrying cannot fix (malformed recipient).
type ChannelResult struct {
	Channel   Channel `json:"channel"`
	Delivered bool    `json:"delivered"`
	Error     string  `json:"error,omitempty"`
	Permanent bool    `json:"permanent,omitempty"`
}

// Metadata carries kind-specific extras, serialized as JSON in the store.
type Metadata struct {
	MinutesBefore  int          `json:"minutes_before,omitempty"`
	AllowedActions []UserAction `json:"allowed_actions,omitempty"`
}

// Notification is a scheduled reminder.
//
// Exactly one of SentAt/FailedAt/AcknowledgedAt is set, matching Status;
// pending notifications have none of them set.
type Notification struct {
	ID          uuid.UUID       `json:"id"`
	UserID      int64           `json:"user_id"`
	EventID     *int64          `json:"event_id,omitempty"`
	Kind        Kind            `json:"kind"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	Status      Status          `json:"status"`
	Priority    Priority        `json:"priority"`
	Channels    []Channel       `json:"channels"`
	UserAction  *UserAction     `json:"user_action,omitempty"`
	RetryCount  int             `json:"retry_count"`
	MaxRetries  int             `json:"max_retries"`
	LastError   string          `json:"last_error,omitempty"`
	Metadata    *Metadata       `json:"metadata,omitempty"`
	Receipt     []ChannelResult `json:"receipt,omitempty"`

	SentAt         *time.Time `json:"sent_at,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	LastAttemptAt  *time.Time `json:"last_attempt_at,omitempty"`

	// Version guards optimistic writes. It is store bookkeeping, bumped on
	// every update; callers never set it.
	Version int64 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidationError reports a malformed notification at creation time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid notification: %s %s", e.Field, e.Reason)
}

// Validate checks the record before it may enter the store.
func (n *Notification) Validate() error {
	if !n.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown value %q", n.Kind)}
	}
	if n.Body == "" {
		return &ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if n.ScheduledAt.IsZero() {
		return &ValidationError{Field: "scheduled_at", Reason: "is required"}
	}
	if len(n.Channels) == 0 {
		return &ValidationError{Field: "channels", Reason: "must not be empty"}
	}
	for _, c := range n.Channels {
		if !c.Valid() {
			return &ValidationError{Field: "channels", Reason: fmt.Sprintf("unknown value %q", c)}
		}
	}
	if n.Priority != "" && !n.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown value %q", n.Priority)}
	}
	if n.MaxRetries < 0 {
		return &ValidationError{Field: "max_retries", Reason: "must not be negative"}
	}
	return nil
}

// Terminal reports whether no further engine-driven transition can occur.
func (n *Notification) Terminal() bool {
	switch n.Status {
	case StatusAcknowledged, StatusCancelled:
		return true
	case StatusFailed:
		return n.RetryCount >= n.MaxRetries
	}
	return false
}
