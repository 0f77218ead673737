package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/jdowner/chime/internal/handler"
	"github.com/jdowner/chime/internal/middleware"
	"github.com/jdowner/chime/internal/reminder"
	"github.com/jdowner/chime/internal/store"
	ws "github.com/jdowner/chime/internal/websocket"
)

// Config holds the server's handler-level settings.
type Config struct {
	VAPIDPublicKey string
	SnoozeDelay    time.Duration
}

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	notificationH *handler.NotificationHandler
	eventH        *handler.EventHandler
	preferenceH   *handler.PreferenceHandler
	subscriptionH *handler.SubscriptionHandler
	logger        *slog.Logger
}

func New(db *sql.DB, hub *ws.Hub, generator *reminder.Generator, cfg Config, logger *slog.Logger) *Server {
	notificationStore := store.NewNotificationStore(db)
	eventStore := store.NewEventStore(db)
	preferenceStore := store.NewPreferenceStore(db)
	subscriptionStore := store.NewSubscriptionStore(db)

	return &Server{
		db:            db,
		hub:           hub,
		notificationH: handler.NewNotificationHandler(notificationStore, cfg.SnoozeDelay, logger.With("component", "notification")),
		eventH:        handler.NewEventHandler(eventStore, notificationStore, generator, logger.With("component", "event")),
		preferenceH:   handler.NewPreferenceHandler(preferenceStore, logger.With("component", "preference")),
		subscriptionH: handler.NewSubscriptionHandler(subscriptionStore, cfg.VAPIDPublicKey, logger.With("component", "subscription")),
		logger:        logger,
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	// Notification API routes
	mux.HandleFunc("POST /api/notifications", s.notificationH.Create)
	mux.HandleFunc("GET /api/notifications", s.notificationH.List)
	mux.HandleFunc("GET /api/notifications/{id}", s.notificationH.Get)
	mux.HandleFunc("POST /api/notifications/{id}/acknowledge", s.notificationH.Acknowledge)
	mux.HandleFunc("POST /api/notifications/{id}/cancel", s.notificationH.Cancel)

	// Event API routes
	mux.HandleFunc("POST /api/events", s.eventH.Create)
	mux.HandleFunc("GET /api/events/{id}", s.eventH.Get)
	mux.HandleFunc("PUT /api/events/{id}", s.eventH.Update)
	mux.HandleFunc("DELETE /api/events/{id}", s.eventH.Delete)

	// Preference routes
	mux.HandleFunc("GET /api/users/{id}/preferences", s.preferenceH.Get)
	mux.HandleFunc("PUT /api/users/{id}/preferences", s.preferenceH.Put)

	// Push subscription routes
	mux.HandleFunc("POST /api/push/subscriptions", s.subscriptionH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions", s.subscriptionH.Unsubscribe)
	mux.HandleFunc("GET /api/push/vapid-key", s.subscriptionH.GetVAPIDKey)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
