package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jdowner/chime/internal/model"
	"github.com/jdowner/chime/internal/store"
)

type NotificationHandler struct {
	notifications *store.NotificationStore
	snoozeDelay   time.Duration
	logger        *slog.Logger
}

func NewNotificationHandler(ns *store.NotificationStore, snoozeDelay time.Duration, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: ns,
		snoozeDelay:   snoozeDelay,
		logger:        logger,
	}
}

type createNotificationRequest struct {
	UserID      int64           `json:"user_id"`
	EventID     *int64          `json:"event_id"`
	Kind        model.Kind      `json:"kind"`
	Title       string          `json:"title"`
	Body        string          `json:"body"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	Priority    model.Priority  `json:"priority"`
	Channels    []model.Channel `json:"channels"`
	MaxRetries  int             `json:"max_retries"`
}

// Create handles POST /api/notifications
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	n := model.Notification{
		UserID:      req.UserID,
		EventID:     req.EventID,
		Kind:        req.Kind,
		Title:       req.Title,
		Body:        req.Body,
		ScheduledAt: req.ScheduledAt,
		Priority:    req.Priority,
		Channels:    req.Channels,
		MaxRetries:  req.MaxRetries,
	}

	if err := h.notifications.Create(&n); err != nil {
		var ve *model.ValidationError
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, ve.Error())
		case errors.Is(err, store.ErrDuplicate):
			writeError(w, http.StatusConflict, "equivalent reminder already scheduled")
		default:
			h.logger.Error("create notification", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create notification")
		}
		return
	}

	writeJSON(w, http.StatusCreated, n)
}

// Get handles GET /api/notifications/{id}
func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	n, err := h.notifications.GetByID(id)
	if err != nil {
		h.logger.Error("get notification", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get notification")
		return
	}
	if n == nil {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// List handles GET /api/notifications?user_id=
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "valid user_id is required")
		return
	}

	list, err := h.notifications.ListByUser(userID)
	if err != nil {
		h.logger.Error("list notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

type acknowledgeRequest struct {
	UserAction model.UserAction `json:"user_action"`
}

// Acknowledge handles POST /api/notifications/{id}/acknowledge. A snooze
// action additionally schedules a follow-up reminder.
func (h *NotificationHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req acknowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !req.UserAction.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown user_action %q", req.UserAction))
		return
	}

	now := time.Now().UTC()
	n, err := h.notifications.Acknowledge(id, req.UserAction, now)
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "only sent notifications can be acknowledged")
			return
		}
		h.logger.Error("acknowledge notification", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to acknowledge notification")
		return
	}
	if n == nil {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}

	if req.UserAction == model.ActionSnooze {
		if err := h.scheduleSnooze(n, now); err != nil {
			h.logger.Error("schedule snooze reminder", "notification_id", n.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) scheduleSnooze(n *model.Notification, now time.Time) error {
	snooze := model.Notification{
		UserID:      n.UserID,
		EventID:     n.EventID,
		Kind:        model.KindSnoozeReminder,
		Title:       "Snoozed: " + n.Title,
		Body:        n.Body,
		ScheduledAt: now.Add(h.snoozeDelay),
		Priority:    n.Priority,
		Channels:    n.Channels,
		MaxRetries:  n.MaxRetries,
	}
	return h.notifications.Create(&snooze)
}

// Cancel handles POST /api/notifications/{id}/cancel
func (h *NotificationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	n, err := h.notifications.Cancel(id, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			writeError(w, http.StatusConflict, "only pending or failed notifications can be cancelled")
			return
		}
		h.logger.Error("cancel notification", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel notification")
		return
	}
	if n == nil {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, n)
}
