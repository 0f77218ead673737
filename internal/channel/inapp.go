package channel

import (
	"context"
	"time"
)

type userNotifier interface {
	SendToUser(userID int64, payload any)
}

// InApp hands the message to the websocket hub for the owning user's
// connected clients. The stored notification row is the in-app message of
// record, so handing off counts as delivered even when no client is
// connected; clients catch up from the list API.
type InApp struct {
	hub userNotifier
}

func NewInApp(hub userNotifier) *InApp {
	return &InApp{hub: hub}
}

type inAppPayload struct {
	Type           string    `json:"type"`
	NotificationID string    `json:"notification_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Priority       string    `json:"priority"`
	SentAt         time.Time `json:"sent_at"`
}

func (i *InApp) Send(ctx context.Context, msg Message) error {
	i.hub.SendToUser(msg.UserID, inAppPayload{
		Type:           "notification",
		NotificationID: msg.NotificationID.String(),
		Title:          msg.Title,
		Body:           msg.Body,
		Priority:       string(msg.Priority),
		SentAt:         time.Now().UTC(),
	})
	return nil
}
