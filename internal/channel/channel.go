// Package channel delivers notifications over concrete transports. The
// dispatcher treats every sender as a black box: per-channel delivery
// failures come back in the results, and the error return is reserved for
// malformed input that no retry can fix.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jdowner/chime/internal/model"
)

// Message is the payload handed to channel senders.
type Message struct {
	NotificationID uuid.UUID
	UserID         int64
	Title          string
	Body           string
	Priority       model.Priority
}

// Sender fans a message out to a set of channels.
type Sender interface {
	Send(ctx context.Context, channels []model.Channel, msg Message) ([]model.ChannelResult, error)
}

// ChannelSender delivers to a single channel kind.
type ChannelSender interface {
	Send(ctx context.Context, msg Message) error
}

// PermanentError marks a failure retrying cannot fix (malformed recipient,
// empty payload). The dispatcher exhausts retries immediately on these.
type PermanentError struct {
	err error
}

func (e *PermanentError) Error() string { return e.err.Error() }
func (e *PermanentError) Unwrap() error { return e.err }

// Permanentf formats a new PermanentError.
func Permanentf(format string, args ...any) error {
	return &PermanentError{err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Mux routes each requested channel to its registered sender and collects
// per-channel outcomes.
type Mux struct {
	senders map[model.Channel]ChannelSender
	logger  *slog.Logger
}

func NewMux(logger *slog.Logger) *Mux {
	return &Mux{
		senders: make(map[model.Channel]ChannelSender),
		logger:  logger,
	}
}

// Register wires a sender for a channel kind. Later registrations replace
// earlier ones.
func (m *Mux) Register(ch model.Channel, s ChannelSender) {
	m.senders[ch] = s
}

func (m *Mux) Send(ctx context.Context, channels []model.Channel, msg Message) ([]model.ChannelResult, error) {
	if len(channels) == 0 {
		return nil, Permanentf("no channels requested")
	}
	if msg.Body == "" {
		return nil, Permanentf("empty message body")
	}

	results := make([]model.ChannelResult, 0, len(channels))
	for _, ch := range channels {
		if !ch.Valid() {
			return nil, Permanentf("unknown channel %q", ch)
		}

		r := model.ChannelResult{Channel: ch}
		sender, ok := m.senders[ch]
		if !ok {
			r.Error = "no sender configured"
			results = append(results, r)
			continue
		}

		if err := sender.Send(ctx, msg); err != nil {
			r.Error = err.Error()
			r.Permanent = IsPermanent(err)
			m.logger.Debug("channel delivery failed",
				"channel", ch, "notification_id", msg.NotificationID, "error", err)
		} else {
			r.Delivered = true
		}
		results = append(results, r)
	}
	return results, nil
}
