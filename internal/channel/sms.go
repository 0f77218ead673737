package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SMS delivers through an HTTP gateway (Twilio-style JSON API). The gateway
// is a black box; the engine only distinguishes rejected requests from
// transient failures.
type SMS struct {
	gatewayURL string
	token      string
	prefs      recipientStore
	client     *http.Client
}

func NewSMS(gatewayURL, token string, prefs recipientStore) *SMS {
	return &SMS{
		gatewayURL: gatewayURL,
		token:      token,
		prefs:      prefs,
		client:     &http.Client{},
	}
}

type smsRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *SMS) Send(ctx context.Context, msg Message) error {
	p, err := s.prefs.Get(msg.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient: %w", err)
	}
	if p.PhoneNumber == "" {
		return Permanentf("user %d has no phone number", msg.UserID)
	}

	body, err := json.Marshal(smsRequest{To: p.PhoneNumber, Body: msg.Body})
	if err != nil {
		return fmt.Errorf("marshal sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.gatewayURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	default:
		// 4xx other than rate limiting means the request itself is bad.
		return Permanentf("sms gateway rejected request: %d", resp.StatusCode)
	}
}
