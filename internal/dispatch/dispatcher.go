package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jdowner/chime/internal/channel"
	"github.com/jdowner/chime/internal/model"
	"github.com/jdowner/chime/internal/store"
)

// DefaultSendTimeout bounds a single notification's channel fan-out.
const DefaultSendTimeout = 10 * time.Second

type notificationStore interface {
	FindDue(now time.Time) ([]model.Notification, error)
	FindRetryable(now time.Time) ([]model.Notification, error)
	Claim(id uuid.UUID, version int64, now time.Time) error
	MarkSent(id uuid.UUID, version int64, now time.Time, receipt []model.ChannelResult) error
	MarkFailed(id uuid.UUID, version int64, now time.Time, retryCount int, lastError string, receipt []model.ChannelResult) error
}

// FailureEvent is emitted when a notification's retries are exhausted.
type FailureEvent struct {
	NotificationID uuid.UUID `json:"notification_id"`
	UserID         int64     `json:"user_id"`
	EventID        *int64    `json:"event_id,omitempty"`
	RetryCount     int       `json:"retry_count"`
	LastError      string    `json:"last_error"`
}

// Dispatcher turns due pending notifications into delivered ones and
// retries eligible failed ones. RunOnce is safe to invoke concurrently
// from multiple workers against the same store: the store's optimistic
// claim is the sole coordination primitive.
type Dispatcher struct {
	store       notificationStore
	sender      channel.Sender
	sendTimeout time.Duration
	onFailure   func(FailureEvent)
	logger      *slog.Logger
}

func NewDispatcher(st notificationStore, sender channel.Sender, sendTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	return &Dispatcher{
		store:       st,
		sender:      sender,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// OnTerminalFailure registers a callback for the operator-visibility event
// emitted when a notification permanently fails. Must be set before Start.
func (d *Dispatcher) OnTerminalFailure(fn func(FailureEvent)) {
	d.onFailure = fn
}

// RunOnce executes one dispatch cycle at the given instant. Per-record
// delivery failures never surface as errors; only infrastructure failures
// (store unavailable) abort the cycle.
func (d *Dispatcher) RunOnce(ctx context.Context, now time.Time) error {
	due, err := d.store.FindDue(now)
	if err != nil {
		return fmt.Errorf("find due: %w", err)
	}
	retryable, err := d.store.FindRetryable(now)
	if err != nil {
		return fmt.Errorf("find retryable: %w", err)
	}

	batch := append(due, retryable...)
	sort.SliceStable(batch, func(i, j int) bool {
		if !batch[i].ScheduledAt.Equal(batch[j].ScheduledAt) {
			return batch[i].ScheduledAt.Before(batch[j].ScheduledAt)
		}
		return batch[i].RetryCount < batch[j].RetryCount
	})

	for i := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.dispatch(ctx, &batch[i], now); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, n *model.Notification, now time.Time) error {
	if err := d.store.Claim(n.ID, n.Version, now); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another worker (or a cancel) got there first. Expected.
			d.logger.Debug("lost claim race", "notification_id", n.ID)
			return nil
		}
		return fmt.Errorf("claim notification: %w", err)
	}
	claimed := n.Version + 1

	results, sendErr := d.send(ctx, n)
	outcome, lastError := classify(results, sendErr)
	decision := Decide(n, outcome)

	switch decision.Status {
	case model.StatusSent:
		if err := d.store.MarkSent(n.ID, claimed, now, results); err != nil {
			if errors.Is(err, store.ErrConflict) {
				d.logger.Debug("delivery outcome discarded", "notification_id", n.ID)
				return nil
			}
			return fmt.Errorf("mark sent: %w", err)
		}
		d.logger.Info("notification sent",
			"notification_id", n.ID, "user_id", n.UserID, "kind", n.Kind)

	case model.StatusFailed:
		if err := d.store.MarkFailed(n.ID, claimed, now, decision.RetryCount, lastError, results); err != nil {
			if errors.Is(err, store.ErrConflict) {
				d.logger.Debug("delivery outcome discarded", "notification_id", n.ID)
				return nil
			}
			return fmt.Errorf("mark failed: %w", err)
		}
		if decision.Terminal {
			d.emitFailure(n, decision.RetryCount, lastError)
		} else {
			d.logger.Warn("delivery failed, will retry",
				"notification_id", n.ID, "retry_count", decision.RetryCount,
				"max_retries", n.MaxRetries, "error", lastError)
		}
	}
	return nil
}

func (d *Dispatcher) send(ctx context.Context, n *model.Notification) ([]model.ChannelResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	return d.sender.Send(ctx, n.Channels, channel.Message{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Title:          n.Title,
		Body:           n.Body,
		Priority:       n.Priority,
	})
}

func (d *Dispatcher) emitFailure(n *model.Notification, retryCount int, lastError string) {
	ev := FailureEvent{
		NotificationID: n.ID,
		UserID:         n.UserID,
		EventID:        n.EventID,
		RetryCount:     retryCount,
		LastError:      lastError,
	}
	d.logger.Error("notification permanently failed",
		"notification_id", ev.NotificationID, "user_id", ev.UserID,
		"retry_count", ev.RetryCount, "error", ev.LastError)
	if d.onFailure != nil {
		d.onFailure(ev)
	}
}

// classify collapses per-channel results into a single outcome: delivered
// if any channel succeeded, permanent only if every failure was permanent.
func classify(results []model.ChannelResult, err error) (Outcome, string) {
	if err != nil {
		if channel.IsPermanent(err) {
			return OutcomePermanentFailure, err.Error()
		}
		return OutcomeFailed, err.Error()
	}

	delivered := false
	allPermanent := len(results) > 0
	var failures []string
	for _, r := range results {
		if r.Delivered {
			delivered = true
			continue
		}
		if !r.Permanent {
			allPermanent = false
		}
		failures = append(failures, fmt.Sprintf("%s: %s", r.Channel, r.Error))
	}

	if delivered {
		return OutcomeDelivered, ""
	}
	lastError := strings.Join(failures, "; ")
	if allPermanent {
		return OutcomePermanentFailure, lastError
	}
	return OutcomeFailed, lastError
}
