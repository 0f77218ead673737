package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jdowner/chime/internal/model"
	"github.com/jdowner/chime/internal/store"
)

type PreferenceHandler struct {
	prefs  *store.PreferenceStore
	logger *slog.Logger
}

func NewPreferenceHandler(ps *store.PreferenceStore, logger *slog.Logger) *PreferenceHandler {
	return &PreferenceHandler{prefs: ps, logger: logger}
}

// Get handles GET /api/users/{id}/preferences
func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	p, err := h.prefs.Get(userID)
	if err != nil {
		h.logger.Error("get preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get preferences")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Put handles PUT /api/users/{id}/preferences
func (h *PreferenceHandler) Put(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var p model.ReminderPreferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	p.UserID = userID
	if len(p.LeadTimes) == 0 {
		writeError(w, http.StatusBadRequest, "lead_times must not be empty")
		return
	}
	for _, m := range p.LeadTimes {
		if m <= 0 {
			writeError(w, http.StatusBadRequest, "lead_times must be positive minutes")
			return
		}
	}
	if p.Timezone == "" {
		p.Timezone = "UTC"
	}

	if err := h.prefs.Put(&p); err != nil {
		h.logger.Error("save preferences", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save preferences")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
