package dispatch

import "github.com/jdowner/chime/internal/model"

// Outcome classifies one delivery attempt across all requested channels.
type Outcome int

const (
	// OutcomeDelivered means at least one channel accepted the message.
	OutcomeDelivered Outcome = iota
	// OutcomeFailed means every channel failed but a retry might fix it.
	OutcomeFailed
	// OutcomePermanentFailure means retrying cannot fix it; retries are
	// exhausted immediately.
	OutcomePermanentFailure
)

// Decision is the next state for a notification after an attempt.
type Decision struct {
	Status     model.Status
	RetryCount int
	Terminal   bool
}

// Decide maps a delivery outcome onto the record's next state. Pure: it
// never touches the store. Every failed attempt increments the retry count,
// including the first attempt out of pending; there is no backoff delay —
// retryable records are reattempted on every subsequent cycle until
// max_retries is exhausted.
func Decide(n *model.Notification, outcome Outcome) Decision {
	switch outcome {
	case OutcomeDelivered:
		return Decision{Status: model.StatusSent, RetryCount: n.RetryCount}
	case OutcomePermanentFailure:
		return Decision{Status: model.StatusFailed, RetryCount: n.MaxRetries, Terminal: true}
	default:
		rc := n.RetryCount + 1
		if rc > n.MaxRetries {
			rc = n.MaxRetries
		}
		return Decision{Status: model.StatusFailed, RetryCount: rc, Terminal: rc >= n.MaxRetries}
	}
}
