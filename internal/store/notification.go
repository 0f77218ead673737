package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jdowner/chime/internal/model"
)

var (
	// ErrConflict means an optimistic write lost the race: the record's
	// version or status changed under us. Expected contention, not a failure.
	ErrConflict = errors.New("notification modified concurrently")

	// ErrDuplicate means an equivalent advance reminder already exists.
	ErrDuplicate = errors.New("duplicate advance reminder")

	// ErrInvalidTransition means the record exists but its current status
	// does not allow the requested transition.
	ErrInvalidTransition = errors.New("invalid status transition")
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationColumns = `id, user_id, event_id, kind, title, body, scheduled_at, status,
	priority, channels, user_action, retry_count, max_retries, last_error, metadata, receipt,
	minutes_before, sent_at, acknowledged_at, failed_at, last_attempt_at, version, created_at, updated_at`

// Create inserts a new notification in pending status. Advance reminders
// that collide on (event_id, user_id, minutes_before) return ErrDuplicate.
func (s *NotificationStore) Create(n *model.Notification) error {
	if n.Priority == "" {
		n.Priority = model.PriorityMedium
	}
	if n.MaxRetries == 0 {
		n.MaxRetries = model.DefaultMaxRetries
	}
	if err := n.Validate(); err != nil {
		return err
	}

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.Status = model.StatusPending
	n.RetryCount = 0

	channels, err := json.Marshal(n.Channels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}

	var metadata any
	var minutesBefore any
	if n.Metadata != nil {
		data, err := json.Marshal(n.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = string(data)
		if n.Kind == model.KindAdvanceReminder {
			minutesBefore = n.Metadata.MinutesBefore
		}
	}

	var eventID sql.NullInt64
	if n.EventID != nil {
		eventID = sql.NullInt64{Int64: *n.EventID, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO notifications (id, user_id, event_id, kind, title, body, scheduled_at,
		    status, priority, channels, max_retries, metadata, minutes_before)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (event_id, user_id, minutes_before) WHERE kind = 'advance_reminder' AND status <> 'cancelled' DO NOTHING`,
		n.ID.String(), n.UserID, eventID, string(n.Kind), n.Title, n.Body, n.ScheduledAt.UTC(),
		string(n.Status), string(n.Priority), string(channels), n.MaxRetries, metadata, minutesBefore,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrDuplicate
	}

	created, err := s.GetByID(n.ID)
	if err != nil {
		return err
	}
	if created != nil {
		*n = *created
	}
	return nil
}

func (s *NotificationStore) GetByID(id uuid.UUID) (*model.Notification, error) {
	row := s.db.QueryRow(
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id.String(),
	)
	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// FindDue returns pending notifications whose scheduled_at has passed,
// earliest first, insertion order breaking ties.
func (s *NotificationStore) FindDue(now time.Time) ([]model.Notification, error) {
	rows, err := s.db.Query(
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE status = 'pending' AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC, rowid ASC`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query due notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// FindRetryable returns failed notifications with retries left.
func (s *NotificationStore) FindRetryable(now time.Time) ([]model.Notification, error) {
	rows, err := s.db.Query(
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE status = 'failed' AND retry_count < max_retries AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC, rowid ASC`,
		now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query retryable notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// ListByUser returns a user's notifications, most recently scheduled first.
func (s *NotificationStore) ListByUser(userID int64) ([]model.Notification, error) {
	rows, err := s.db.Query(
		`SELECT `+notificationColumns+` FROM notifications
		 WHERE user_id = ? ORDER BY scheduled_at DESC, rowid DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// Claim marks a dispatch attempt on a dispatchable record. The conditional
// write on (version, status) is what makes concurrent workers safe: the
// loser sees ErrConflict and skips the record this cycle. Status itself is
// untouched; there is no in-flight state.
func (s *NotificationStore) Claim(id uuid.UUID, version int64, now time.Time) error {
	result, err := s.db.Exec(
		`UPDATE notifications
		 SET version = version + 1, last_attempt_at = ?, updated_at = ?
		 WHERE id = ? AND version = ? AND status IN ('pending', 'failed')`,
		now.UTC(), now.UTC(), id.String(), version,
	)
	if err != nil {
		return fmt.Errorf("claim notification: %w", err)
	}
	return conflictIfNoRows(result)
}

// MarkSent transitions a claimed record to sent. Fails with ErrConflict if
// the record was cancelled (or otherwise touched) since the claim, so a
// racing cancellation wins over a delivery outcome that hasn't landed.
func (s *NotificationStore) MarkSent(id uuid.UUID, version int64, now time.Time, receipt []model.ChannelResult) error {
	receiptJSON, err := marshalReceipt(receipt)
	if err != nil {
		return err
	}
	result, err := s.db.Exec(
		`UPDATE notifications
		 SET status = 'sent', sent_at = ?, failed_at = NULL, last_error = '', receipt = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ? AND status IN ('pending', 'failed')`,
		now.UTC(), receiptJSON, now.UTC(), id.String(), version,
	)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return conflictIfNoRows(result)
}

// MarkFailed records a failed delivery attempt on a claimed record.
func (s *NotificationStore) MarkFailed(id uuid.UUID, version int64, now time.Time, retryCount int, lastError string, receipt []model.ChannelResult) error {
	receiptJSON, err := marshalReceipt(receipt)
	if err != nil {
		return err
	}
	result, err := s.db.Exec(
		`UPDATE notifications
		 SET status = 'failed', failed_at = ?, sent_at = NULL, retry_count = ?, last_error = ?,
		     receipt = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ? AND status IN ('pending', 'failed')`,
		now.UTC(), retryCount, lastError, receiptJSON, now.UTC(), id.String(), version,
	)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	return conflictIfNoRows(result)
}

// Acknowledge records a user response to a delivered notification.
// Only sent notifications can be acknowledged.
func (s *NotificationStore) Acknowledge(id uuid.UUID, action model.UserAction, now time.Time) (*model.Notification, error) {
	result, err := s.db.Exec(
		`UPDATE notifications
		 SET status = 'acknowledged', acknowledged_at = ?, sent_at = NULL, user_action = ?,
		     version = version + 1, updated_at = ?
		 WHERE id = ? AND status = 'sent'`,
		now.UTC(), string(action), now.UTC(), id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("acknowledge notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		n, err := s.GetByID(id)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, nil
		}
		return nil, ErrInvalidTransition
	}
	return s.GetByID(id)
}

// Cancel transitions a pending or failed notification to cancelled.
func (s *NotificationStore) Cancel(id uuid.UUID, now time.Time) (*model.Notification, error) {
	result, err := s.db.Exec(
		`UPDATE notifications
		 SET status = 'cancelled', version = version + 1, updated_at = ?
		 WHERE id = ? AND status IN ('pending', 'failed')`,
		now.UTC(), id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("cancel notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		n, err := s.GetByID(id)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, nil
		}
		return nil, ErrInvalidTransition
	}
	return s.GetByID(id)
}

// CancelPendingForEvent cancels every pending advance reminder derived from
// an event. Used when the event is rescheduled or deleted.
func (s *NotificationStore) CancelPendingForEvent(eventID int64, now time.Time) error {
	_, err := s.db.Exec(
		`UPDATE notifications
		 SET status = 'cancelled', version = version + 1, updated_at = ?
		 WHERE event_id = ? AND kind = 'advance_reminder' AND status = 'pending'`,
		now.UTC(), eventID,
	)
	if err != nil {
		return fmt.Errorf("cancel event reminders: %w", err)
	}
	return nil
}

func conflictIfNoRows(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrConflict
	}
	return nil
}

func marshalReceipt(receipt []model.ChannelResult) (any, error) {
	if receipt == nil {
		return nil, nil
	}
	data, err := json.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("marshal receipt: %w", err)
	}
	return string(data), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*model.Notification, error) {
	var n model.Notification
	var id string
	var eventID, minutesBefore sql.NullInt64
	var userAction, metadata, receipt sql.NullString
	var channels string
	var sentAt, acknowledgedAt, failedAt, lastAttemptAt sql.NullTime

	err := row.Scan(
		&id, &n.UserID, &eventID, &n.Kind, &n.Title, &n.Body, &n.ScheduledAt, &n.Status,
		&n.Priority, &channels, &userAction, &n.RetryCount, &n.MaxRetries, &n.LastError,
		&metadata, &receipt, &minutesBefore, &sentAt, &acknowledgedAt, &failedAt,
		&lastAttemptAt, &n.Version, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse notification id: %w", err)
	}
	if err := json.Unmarshal([]byte(channels), &n.Channels); err != nil {
		return nil, fmt.Errorf("unmarshal channels: %w", err)
	}
	if eventID.Valid {
		n.EventID = &eventID.Int64
	}
	if userAction.Valid && userAction.String != "" {
		action := model.UserAction(userAction.String)
		n.UserAction = &action
	}
	if metadata.Valid && metadata.String != "" {
		n.Metadata = &model.Metadata{}
		if err := json.Unmarshal([]byte(metadata.String), n.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if receipt.Valid && receipt.String != "" {
		if err := json.Unmarshal([]byte(receipt.String), &n.Receipt); err != nil {
			return nil, fmt.Errorf("unmarshal receipt: %w", err)
		}
	}
	if sentAt.Valid {
		n.SentAt = &sentAt.Time
	}
	if acknowledgedAt.Valid {
		n.AcknowledgedAt = &acknowledgedAt.Time
	}
	if failedAt.Valid {
		n.FailedAt = &failedAt.Time
	}
	if lastAttemptAt.Valid {
		n.LastAttemptAt = &lastAttemptAt.Time
	}
	return &n, nil
}

func scanNotifications(rows *sql.Rows) ([]model.Notification, error) {
	var out []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}
