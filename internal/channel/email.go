package channel

import (
	"context"
	"fmt"
	"time"

	mail "gopkg.in/mail.v2"

	"github.com/jdowner/chime/internal/model"
)

type recipientStore interface {
	Get(userID int64) (*model.ReminderPreferences, error)
}

// Email delivers over SMTP. Recipient addresses come from the user's
// notification preferences.
type Email struct {
	host     string
	port     int
	username string
	password string
	from     string
	prefs    recipientStore
}

func NewEmail(host string, port int, username, password, from string, prefs recipientStore) *Email {
	return &Email{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		prefs:    prefs,
	}
}

func (e *Email) Send(ctx context.Context, msg Message) error {
	p, err := e.prefs.Get(msg.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	if p.EmailAddress == "" {
		return Permanentf("user %d has no email address", msg.UserID)
	}

	m := mail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", p.EmailAddress)
	m.SetHeader("Subject", msg.Title)
	m.SetBody("text/plain", msg.Body)

	d := mail.NewDialer(e.host, e.port, e.username, e.password)
	d.Timeout = dialTimeout(ctx)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// dialTimeout bounds the SMTP dial by the remaining context budget; the
// dialer has no context support of its own.
func dialTimeout(ctx context.Context) time.Duration {
	const fallback = 10 * time.Second
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	remaining := time.Until(deadline)
	if remaining <= 0 || remaining > fallback {
		return fallback
	}
	return remaining
}
