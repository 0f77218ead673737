package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/jdowner/chime/internal/model"
)

// ErrNoSubscriptions is returned when a user has no registered push
// endpoints. Transient: the user may subscribe before retries run out.
var ErrNoSubscriptions = errors.New("no push subscriptions for user")

type subscriptionStore interface {
	ListByUser(userID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

// WebPush delivers via the Web Push protocol with VAPID authentication.
type WebPush struct {
	publicKey  string
	privateKey string
	subscriber string
	subs       subscriptionStore
	logger     *slog.Logger
}

func NewWebPush(publicKey, privateKey, subscriber string, subs subscriptionStore, logger *slog.Logger) *WebPush {
	return &WebPush{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		subs:       subs,
		logger:     logger,
	}
}

type webpushPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	Priority string `json:"priority,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

// Send pushes to every endpoint the user registered. Delivery to at least
// one endpoint counts as success; endpoints the push service reports gone
// are pruned.
func (w *WebPush) Send(ctx context.Context, msg Message) error {
	subs, err := w.subs.ListByUser(msg.UserID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return ErrNoSubscriptions
	}

	data, err := json.Marshal(webpushPayload{
		Title:    msg.Title,
		Body:     msg.Body,
		Priority: string(msg.Priority),
		Tag:      msg.NotificationID.String(),
	})
	if err != nil {
		return Permanentf("marshal push payload: %v", err)
	}

	delivered := 0
	var lastErr error
	for _, sub := range subs {
		resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dhKey,
				Auth:   sub.AuthKey,
			},
		}, &webpush.Options{
			VAPIDPublicKey:  w.publicKey,
			VAPIDPrivateKey: w.privateKey,
			Subscriber:      w.subscriber,
			TTL:             86400,
			Urgency:         urgencyFor(msg.Priority),
		})
		if err != nil {
			lastErr = fmt.Errorf("send push: %w", err)
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
			// Subscription expired; drop it so later sends skip the endpoint.
			if err := w.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
				w.logger.Warn("prune expired subscription", "endpoint", sub.Endpoint, "error", err)
			}
			lastErr = fmt.Errorf("push subscription expired (%d)", resp.StatusCode)
		case resp.StatusCode >= 400:
			lastErr = fmt.Errorf("push service returned %d", resp.StatusCode)
		default:
			delivered++
		}
	}

	if delivered == 0 {
		return lastErr
	}
	return nil
}

func urgencyFor(p model.Priority) webpush.Urgency {
	switch p {
	case model.PriorityUrgent, model.PriorityHigh:
		return webpush.UrgencyHigh
	case model.PriorityLow:
		return webpush.UrgencyLow
	default:
		return webpush.UrgencyNormal
	}
}
