package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jdowner/chime/internal/model"
	"github.com/jdowner/chime/internal/reminder"
	"github.com/jdowner/chime/internal/store"
)

type EventHandler struct {
	events        *store.EventStore
	notifications *store.NotificationStore
	generator     *reminder.Generator
	logger        *slog.Logger
}

func NewEventHandler(es *store.EventStore, ns *store.NotificationStore, g *reminder.Generator, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events:        es,
		notifications: ns,
		generator:     g,
		logger:        logger,
	}
}

type eventRequest struct {
	OwnerID   int64      `json:"owner_id"`
	Title     string     `json:"title"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
}

// Create handles POST /api/events and schedules advance reminders for the
// owner per their lead-time preferences.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.OwnerID <= 0 {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	event, err := h.events.Create(req.OwnerID, req.Title, req.StartTime, req.EndTime)
	if err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		h.logger.Error("create event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}

	if _, err := h.generator.GenerateForEvent(event.ID, event.OwnerID); err != nil {
		// The event exists; reminder generation is retried on the next
		// update. Surface the problem in the logs, not to the caller.
		h.logger.Error("generate reminders", "event_id", event.ID, "error", err)
	}

	writeJSON(w, http.StatusCreated, event)
}

// Get handles GET /api/events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	event, err := h.events.GetByID(id)
	if err != nil {
		h.logger.Error("get event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// Update handles PUT /api/events/{id}. Outstanding advance reminders are
// cancelled and regenerated against the new start time.
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	existing, err := h.events.GetByID(id)
	if err != nil {
		h.logger.Error("get event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	event, err := h.events.Update(id, req.Title, req.StartTime, req.EndTime)
	if err != nil {
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		h.logger.Error("update event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update event")
		return
	}

	if _, err := h.generator.RegenerateForEvent(event.ID, event.OwnerID, time.Now().UTC()); err != nil {
		h.logger.Error("regenerate reminders", "event_id", event.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, event)
}

// Delete handles DELETE /api/events/{id} and cancels the event's pending
// reminders.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.notifications.CancelPendingForEvent(id, time.Now().UTC()); err != nil {
		h.logger.Error("cancel event reminders", "event_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	if err := h.events.Delete(id); err != nil {
		h.logger.Error("delete event", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
