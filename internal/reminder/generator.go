// Package reminder derives advance-reminder notifications from calendar
// events and per-user lead-time preferences.
package reminder

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jdowner/chime/internal/model"
	"github.com/jdowner/chime/internal/store"
)

// ErrEventNotFound is returned when the referenced event does not exist.
var ErrEventNotFound = errors.New("event not found")

type eventStore interface {
	GetByID(id int64) (*model.Event, error)
}

type preferenceStore interface {
	Get(userID int64) (*model.ReminderPreferences, error)
}

type notificationStore interface {
	Create(n *model.Notification) error
	CancelPendingForEvent(eventID int64, now time.Time) error
}

type Generator struct {
	events        eventStore
	prefs         preferenceStore
	notifications notificationStore
	logger        *slog.Logger
}

func NewGenerator(events eventStore, prefs preferenceStore, notifications notificationStore, logger *slog.Logger) *Generator {
	return &Generator{
		events:        events,
		prefs:         prefs,
		notifications: notifications,
		logger:        logger,
	}
}

// GenerateForEvent creates one pending advance reminder per configured lead
// time. Idempotent: lead times already scheduled for this (event, user) are
// skipped via the store's uniqueness constraint, never reported as errors.
func (g *Generator) GenerateForEvent(eventID, userID int64) ([]model.Notification, error) {
	event, err := g.events.GetByID(eventID)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if event == nil {
		return nil, ErrEventNotFound
	}

	prefs, err := g.prefs.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}

	channels := prefs.EnabledChannels()
	if len(channels) == 0 {
		channels = []model.Channel{model.ChannelInApp}
	}

	loc, err := time.LoadLocation(prefs.Timezone)
	if err != nil {
		g.logger.Warn("unknown timezone, falling back to UTC",
			"user_id", userID, "timezone", prefs.Timezone)
		loc = time.UTC
	}

	var created []model.Notification
	for _, minutes := range prefs.LeadTimes {
		if minutes <= 0 {
			continue
		}

		// Lead times are subtracted in UTC to sidestep DST ambiguity.
		scheduledAt := event.StartTime.UTC().Add(-time.Duration(minutes) * time.Minute)
		scheduledAt = shiftQuietHours(scheduledAt, prefs.QuietHours, loc)

		n := model.Notification{
			UserID:      userID,
			EventID:     &event.ID,
			Kind:        model.KindAdvanceReminder,
			Title:       fmt.Sprintf("%s starting in %d minutes", event.Title, minutes),
			Body:        fmt.Sprintf("%s starts in %d minutes, at %s.", event.Title, minutes, event.StartTime.In(loc).Format("15:04")),
			ScheduledAt: scheduledAt,
			Priority:    model.PriorityMedium,
			Channels:    channels,
			Metadata: &model.Metadata{
				MinutesBefore:  minutes,
				AllowedActions: []model.UserAction{model.ActionConfirmed, model.ActionSnooze, model.ActionReady},
			},
		}

		err := g.notifications.Create(&n)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create reminder (%dm): %w", minutes, err)
		}
		created = append(created, n)
	}
	return created, nil
}

// RegenerateForEvent cancels the event's outstanding advance reminders and
// creates a fresh set, used when an event is rescheduled.
func (g *Generator) RegenerateForEvent(eventID, userID int64, now time.Time) ([]model.Notification, error) {
	if err := g.notifications.CancelPendingForEvent(eventID, now); err != nil {
		return nil, fmt.Errorf("cancel stale reminders: %w", err)
	}
	return g.GenerateForEvent(eventID, userID)
}

// shiftQuietHours pushes a scheduled instant out of the user's quiet-hours
// window, forward to the window's end. Instants outside the window pass
// through unchanged; the shift never moves backward and never crosses
// midnight more than once.
func shiftQuietHours(t time.Time, q model.QuietHours, loc *time.Location) time.Time {
	if !q.Enabled {
		return t
	}
	start, err := parseClock(q.Start)
	if err != nil {
		return t
	}
	end, err := parseClock(q.End)
	if err != nil {
		return t
	}

	local := t.In(loc)
	mins := local.Hour()*60 + local.Minute()

	var inWindow bool
	if start <= end {
		inWindow = mins >= start && mins < end
	} else {
		// Window spans midnight (e.g. 22:00-07:00).
		inWindow = mins >= start || mins < end
	}
	if !inWindow {
		return t
	}

	windowEnd := time.Date(local.Year(), local.Month(), local.Day(), end/60, end%60, 0, 0, loc)
	if !windowEnd.After(local) {
		windowEnd = windowEnd.AddDate(0, 0, 1)
	}
	return windowEnd.UTC()
}

// parseClock parses "HH:MM" into minutes after midnight.
func parseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("malformed clock value %q", s)
	}
	h, err := strconv.Atoi(s[:2])
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(s[3:])
	if err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock value out of range %q", s)
	}
	return h*60 + m, nil
}
