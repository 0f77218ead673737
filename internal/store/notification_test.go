package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jdowner/chime/internal/database"
	"github.com/jdowner/chime/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testNotification(scheduledAt time.Time) *model.Notification {
	return &model.Notification{
		UserID:      1,
		Kind:        model.KindEventReminder,
		Title:       "Dentist",
		Body:        "Dentist appointment at 3pm",
		ScheduledAt: scheduledAt,
		Channels:    []model.Channel{model.ChannelInApp},
	}
}

func TestCreateDefaults(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))

	n := testNotification(time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC))
	if err := s.Create(n); err != nil {
		t.Fatalf("create: %v", err)
	}

	if n.ID == uuid.Nil {
		t.Error("id should be assigned")
	}
	if n.Status != model.StatusPending {
		t.Errorf("status = %q, want pending", n.Status)
	}
	if n.Priority != model.PriorityMedium {
		t.Errorf("priority = %q, want medium", n.Priority)
	}
	if n.MaxRetries != model.DefaultMaxRetries {
		t.Errorf("max_retries = %d, want %d", n.MaxRetries, model.DefaultMaxRetries)
	}
	if n.RetryCount != 0 {
		t.Errorf("retry_count = %d, want 0", n.RetryCount)
	}
	if n.SentAt != nil || n.FailedAt != nil || n.AcknowledgedAt != nil {
		t.Error("pending notification should have no outcome timestamps")
	}
}

func TestCreateValidation(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))

	tests := []struct {
		name   string
		mutate func(*model.Notification)
	}{
		{"unknown kind", func(n *model.Notification) { n.Kind = "carrier_pigeon" }},
		{"empty body", func(n *model.Notification) { n.Body = "" }},
		{"zero scheduled_at", func(n *model.Notification) { n.ScheduledAt = time.Time{} }},
		{"no channels", func(n *model.Notification) { n.Channels = nil }},
		{"unknown channel", func(n *model.Notification) { n.Channels = []model.Channel{"fax"} }},
		{"unknown priority", func(n *model.Notification) { n.Priority = "critical" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := testNotification(time.Now().UTC())
			tt.mutate(n)
			err := s.Create(n)
			var ve *model.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestGetByIDNotFound(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))

	got, err := s.GetByID(uuid.New())
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent notification")
	}
}

func TestFindDueOrderingAndFiltering(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	late := testNotification(now.Add(-time.Minute))
	late.Title = "late"
	early := testNotification(now.Add(-time.Hour))
	early.Title = "early"
	future := testNotification(now.Add(time.Hour))
	future.Title = "future"

	for _, n := range []*model.Notification{late, early, future} {
		if err := s.Create(n); err != nil {
			t.Fatalf("create %s: %v", n.Title, err)
		}
	}

	due, err := s.FindDue(now)
	if err != nil {
		t.Fatalf("find due: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("len(due) = %d, want 2", len(due))
	}
	if due[0].Title != "early" || due[1].Title != "late" {
		t.Errorf("order = [%s %s], want [early late]", due[0].Title, due[1].Title)
	}
}

func TestFindDueExcludesNonPending(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	n := testNotification(now.Add(-time.Minute))
	if err := s.Create(n); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Cancel(n.ID, now); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	due, err := s.FindDue(now)
	if err != nil {
		t.Fatalf("find due: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("len(due) = %d, want 0", len(due))
	}
}

func TestFindRetryableExcludesExhausted(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	retryable := testNotification(now.Add(-time.Minute))
	if err := s.Create(retryable); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Claim(retryable.ID, retryable.Version, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.MarkFailed(retryable.ID, retryable.Version+1, now, 1, "push: timeout", nil); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	exhausted := testNotification(now.Add(-time.Minute))
	if err := s.Create(exhausted); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Claim(exhausted.ID, exhausted.Version, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.MarkFailed(exhausted.ID, exhausted.Version+1, now, exhausted.MaxRetries, "push: gone", nil); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	got, err := s.FindRetryable(now)
	if err != nil {
		t.Fatalf("find retryable: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(retryable) = %d, want 1", len(got))
	}
	if got[0].ID != retryable.ID {
		t.Errorf("retryable id = %s, want %s", got[0].ID, retryable.ID)
	}
}

func TestClaimStaleVersion(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))
	now := time.Now().UTC()

	n := testNotification(now)
	if err := s.Create(n); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.Claim(n.ID, n.Version, now); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	// A second claim with the same version must lose.
	if err := s.Claim(n.ID, n.Version, now); !errors.Is(err, ErrConflict) {
		t.Errorf("second claim err = %v, want ErrConflict", err)
	}
}

func TestClaimExcludesTerminalStatus(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))
	now := time.Now().UTC()

	n := testNotification(now)
	if err := s.Create(n); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Cancel(n.ID, now); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Cancel bumped the version, so pass the current one; the status
	// predicate alone must reject the claim.
	if err := s.Claim(n.ID, n.Version+1, now); !errors.Is(err, ErrConflict) {
		t.Errorf("claim err = %v, want ErrConflict", err)
	}
}

func TestMarkSentRoundTrip(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	n := testNotification(now)
	if err := s.Create(n); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Claim(n.ID, n.Version, now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	receipt := []model.ChannelResult{{Channel: model.ChannelInApp, Delivered: true}}
	if err := s.MarkSent(n.ID, n.Version+1, now, receipt); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	got, err := s.GetByID(n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusSent {
		t.Errorf("status = %q, want sent", got.Status)
	}
	if got.SentAt == nil || !got.SentAt.Equal(now) {
		t.Errorf("sent_at = %v, want %v", got.SentAt, now)
	}
	if got.FailedAt != nil {
		t.Error("failed_at should be nil after send")
	}
	if len(got.Receipt) != 1 || got.Receipt[0].Channel != model.ChannelInApp || !got.Receipt[0].Delivered {
		t.Errorf("receipt = %+v, want in_app delivered", got.Receipt)
	}
}

func TestMarkSentLosesToCancel(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))
	now := time.Now().UTC()

	n := testNotification(now)
	if err := s.Create(n); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Claim(n.ID, n.Version, now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// Cancellation races in between the claim and the outcome write.
	if _, err := s.Cancel(n.ID, now); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	err := s.MarkSent(n.ID, n.Version+1, now, nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("mark sent err = %v, want ErrConflict", err)
	}

	got, err := s.GetByID(n.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
}

func TestAcknowledge(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))
	now := time.Now().UTC()

	n := testNotification(now)
	if err := s.Create(n); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Only sent notifications can be acknowledged.
	if _, err := s.Acknowledge(n.ID, model.ActionConfirmed, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("acknowledge pending err = %v, want ErrInvalidTransition", err)
	}

	if err := s.Claim(n.ID, n.Version, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.MarkSent(n.ID, n.Version+1, now, nil); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	got, err := s.Acknowledge(n.ID, model.ActionConfirmed, now)
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if got.Status != model.StatusAcknowledged {
		t.Errorf("status = %q, want acknowledged", got.Status)
	}
	if got.UserAction == nil || *got.UserAction != model.ActionConfirmed {
		t.Errorf("user_action = %v, want confirmed", got.UserAction)
	}
	if got.AcknowledgedAt == nil {
		t.Error("acknowledged_at should be set")
	}
	if got.SentAt != nil {
		t.Error("sent_at should be cleared on acknowledge")
	}
}

func TestAcknowledgeNotFound(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))

	got, err := s.Acknowledge(uuid.New(), model.ActionConfirmed, time.Now().UTC())
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if got != nil {
		t.Error("expected nil for nonexistent notification")
	}
}

func TestCancel(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))
	now := time.Now().UTC()

	n := testNotification(now)
	if err := s.Create(n); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Cancel(n.ID, now)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != model.StatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}

	// Cancelling again is an invalid transition.
	if _, err := s.Cancel(n.ID, now); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second cancel err = %v, want ErrInvalidTransition", err)
	}
}

func TestAdvanceReminderDedup(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))
	now := time.Date(2026, 3, 10, 8, 45, 0, 0, time.UTC)
	eventID := int64(42)

	reminder := func() *model.Notification {
		n := testNotification(now)
		n.Kind = model.KindAdvanceReminder
		n.EventID = &eventID
		n.Metadata = &model.Metadata{MinutesBefore: 15}
		return n
	}

	if err := s.Create(reminder()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(reminder()); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate create err = %v, want ErrDuplicate", err)
	}

	// A different lead time is a different reminder.
	other := reminder()
	other.Metadata.MinutesBefore = 60
	if err := s.Create(other); err != nil {
		t.Errorf("create with other lead time: %v", err)
	}
}

func TestCancelPendingForEvent(t *testing.T) {
	s := NewNotificationStore(setupTestDB(t))
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	eventID := int64(7)

	for _, minutes := range []int{15, 60} {
		n := testNotification(now)
		n.Kind = model.KindAdvanceReminder
		n.EventID = &eventID
		n.Metadata = &model.Metadata{MinutesBefore: minutes}
		if err := s.Create(n); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	// A sent reminder for the same event must stay sent.
	sent := testNotification(now)
	sent.Kind = model.KindAdvanceReminder
	sent.EventID = &eventID
	sent.Metadata = &model.Metadata{MinutesBefore: 120}
	if err := s.Create(sent); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Claim(sent.ID, sent.Version, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := s.MarkSent(sent.ID, sent.Version+1, now, nil); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	if err := s.CancelPendingForEvent(eventID, now); err != nil {
		t.Fatalf("cancel pending for event: %v", err)
	}

	list, err := s.ListByUser(1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	cancelled, sentCount := 0, 0
	for _, n := range list {
		switch n.Status {
		case model.StatusCancelled:
			cancelled++
		case model.StatusSent:
			sentCount++
		}
	}
	if cancelled != 2 {
		t.Errorf("cancelled = %d, want 2", cancelled)
	}
	if sentCount != 1 {
		t.Errorf("sent = %d, want 1", sentCount)
	}
}
