package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jdowner/chime/internal/database"
	"github.com/jdowner/chime/internal/model"
	"github.com/jdowner/chime/internal/store"
)

func setupNotificationAPI(t *testing.T) (*store.NotificationStore, http.Handler) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ns := store.NewNotificationStore(db)
	h := NewNotificationHandler(ns, 10*time.Minute, slog.New(slog.DiscardHandler))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/notifications", h.Create)
	mux.HandleFunc("GET /api/notifications", h.List)
	mux.HandleFunc("GET /api/notifications/{id}", h.Get)
	mux.HandleFunc("POST /api/notifications/{id}/acknowledge", h.Acknowledge)
	mux.HandleFunc("POST /api/notifications/{id}/cancel", h.Cancel)
	return ns, mux
}

func doJSON(t *testing.T, mux http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateNotificationAPI(t *testing.T) {
	_, mux := setupNotificationAPI(t)

	rec := doJSON(t, mux, "POST", "/api/notifications", map[string]any{
		"user_id":      1,
		"kind":         "event_reminder",
		"title":        "Dentist",
		"body":         "Dentist appointment at 3pm",
		"scheduled_at": "2026-03-10T15:00:00Z",
		"channels":     []string{"in_app"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}

	var got model.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if got.Priority != model.PriorityMedium {
		t.Errorf("priority = %q, want medium", got.Priority)
	}

	// Round trip through GET.
	rec = doJSON(t, mux, "GET", "/api/notifications/"+got.ID.String(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
}

func TestCreateNotificationValidation(t *testing.T) {
	_, mux := setupNotificationAPI(t)

	rec := doJSON(t, mux, "POST", "/api/notifications", map[string]any{
		"user_id":      1,
		"kind":         "event_reminder",
		"scheduled_at": "2026-03-10T15:00:00Z",
		"channels":     []string{"in_app"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, mux, "POST", "/api/notifications", map[string]any{
		"kind":         "event_reminder",
		"body":         "no user",
		"scheduled_at": "2026-03-10T15:00:00Z",
		"channels":     []string{"in_app"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing user_id status = %d, want 400", rec.Code)
	}
}

func TestGetNotificationNotFound(t *testing.T) {
	_, mux := setupNotificationAPI(t)

	rec := doJSON(t, mux, "GET", "/api/notifications/6b1e2f9a-0000-4000-8000-000000000000", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, mux, "GET", "/api/notifications/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListNotificationsRequiresUser(t *testing.T) {
	_, mux := setupNotificationAPI(t)

	rec := doJSON(t, mux, "GET", "/api/notifications", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, mux, "GET", "/api/notifications?user_id=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body == "null\n" {
		t.Error("empty list should encode as [], not null")
	}
}

func TestAcknowledgeLifecycle(t *testing.T) {
	ns, mux := setupNotificationAPI(t)
	now := time.Now().UTC()

	n := &model.Notification{
		UserID:      1,
		Kind:        model.KindEventReminder,
		Title:       "Standup",
		Body:        "Standup in 15 minutes",
		ScheduledAt: now,
		Channels:    []model.Channel{model.ChannelInApp},
	}
	if err := ns.Create(n); err != nil {
		t.Fatalf("create: %v", err)
	}

	ack := map[string]string{"user_action": "confirmed"}
	ackPath := fmt.Sprintf("/api/notifications/%s/acknowledge", n.ID)

	// Pending notifications cannot be acknowledged.
	rec := doJSON(t, mux, "POST", ackPath, ack)
	if rec.Code != http.StatusConflict {
		t.Errorf("ack pending status = %d, want 409", rec.Code)
	}

	if err := ns.Claim(n.ID, n.Version, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := ns.MarkSent(n.ID, n.Version+1, now, nil); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	rec = doJSON(t, mux, "POST", ackPath, ack)
	if rec.Code != http.StatusOK {
		t.Fatalf("ack status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var got model.Notification
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Status != model.StatusAcknowledged {
		t.Errorf("status = %q, want acknowledged", got.Status)
	}
	if got.UserAction == nil || *got.UserAction != model.ActionConfirmed {
		t.Errorf("user_action = %v, want confirmed", got.UserAction)
	}

	// Unknown action names are rejected up front.
	rec = doJSON(t, mux, "POST", ackPath, map[string]string{"user_action": "shrug"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown action status = %d, want 400", rec.Code)
	}
}

func TestAcknowledgeSnoozeSchedulesFollowUp(t *testing.T) {
	ns, mux := setupNotificationAPI(t)
	now := time.Now().UTC()

	n := &model.Notification{
		UserID:      1,
		Kind:        model.KindEventReminder,
		Title:       "Standup",
		Body:        "Standup in 15 minutes",
		ScheduledAt: now,
		Channels:    []model.Channel{model.ChannelInApp},
	}
	if err := ns.Create(n); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := ns.Claim(n.ID, n.Version, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := ns.MarkSent(n.ID, n.Version+1, now, nil); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	rec := doJSON(t, mux, "POST",
		fmt.Sprintf("/api/notifications/%s/acknowledge", n.ID),
		map[string]string{"user_action": "snooze"})
	if rec.Code != http.StatusOK {
		t.Fatalf("snooze status = %d, want 200: %s", rec.Code, rec.Body)
	}

	list, err := ns.ListByUser(1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var snooze *model.Notification
	for i := range list {
		if list[i].Kind == model.KindSnoozeReminder {
			snooze = &list[i]
		}
	}
	if snooze == nil {
		t.Fatal("expected a snooze reminder to be scheduled")
	}
	if snooze.Status != model.StatusPending {
		t.Errorf("snooze status = %q, want pending", snooze.Status)
	}
	if snooze.Title != "Snoozed: Standup" {
		t.Errorf("snooze title = %q", snooze.Title)
	}
	if snooze.ScheduledAt.Before(now.Add(9 * time.Minute)) {
		t.Errorf("snooze scheduled_at = %v, want ~10m after %v", snooze.ScheduledAt, now)
	}
}

func TestCancelNotificationAPI(t *testing.T) {
	ns, mux := setupNotificationAPI(t)
	now := time.Now().UTC()

	n := &model.Notification{
		UserID:      1,
		Kind:        model.KindEventReminder,
		Body:        "Standup in 15 minutes",
		ScheduledAt: now,
		Channels:    []model.Channel{model.ChannelInApp},
	}
	if err := ns.Create(n); err != nil {
		t.Fatalf("create: %v", err)
	}

	path := fmt.Sprintf("/api/notifications/%s/cancel", n.ID)
	rec := doJSON(t, mux, "POST", path, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200: %s", rec.Code, rec.Body)
	}

	// Cancelling twice conflicts.
	rec = doJSON(t, mux, "POST", path, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, mux, "POST", "/api/notifications/6b1e2f9a-0000-4000-8000-000000000000/cancel", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", rec.Code)
	}
}
