package event

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActionType selects the strategy that runs once the action window is open.
type ActionType string

const (
	BookClass ActionType = "book-class"
	FetchWOD  ActionType = "fetch-wod"
)

// DatetimeLayout is the scheduling service's timestamp format (second
// precision, no zone).
const DatetimeLayout = "2006-01-02T15:04:05"

// DateLayout matches the date headers rendered by the schedule view.
const DateLayout = "01/02/2006"

var ErrMalformed = errors.New("malformed event")

func ParseAction(s string) (ActionType, error) {
	switch a := ActionType(strings.TrimSpace(strings.ToLower(s))); a {
	case BookClass, FetchWOD:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q (want %s or %s)", s, BookClass, FetchWOD)
	}
}

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) String() string { return c.Username + ":***" }

// Filter holds the matching data for a BookClass event.
type Filter struct {
	TypeSubstring string
	TargetTime    string // "6:00", hour not zero padded
	TargetDate    string // "01/02/2006"
}

type Event struct {
	ID            int64
	UserID        int64
	ActionName    string
	ScheduledTime time.Time
	Credentials   Credentials
	Action        ActionType
	Filter        Filter
}

func (e Event) String() string {
	return fmt.Sprintf("event %d (%s %q at %s)", e.ID, e.Action, e.ActionName, e.ScheduledTime.Format(time.RFC3339))
}

// Record is the wire shape returned by the scheduling service.
type Record struct {
	ActionEventID int64  `json:"action_event_id"`
	ActionName    string `json:"action_name"`
	Datetime      string `json:"datetime"`
	UserID        int64  `json:"user_id,omitempty"`
	Username      string `json:"username"`
	Password      string `json:"password"`
}

// Parse validates a raw record and turns it into an Event for the given
// action. Datetimes without a zone are interpreted in loc.
func Parse(r Record, action ActionType, loc *time.Location) (Event, error) {
	if loc == nil {
		loc = time.Local
	}
	if r.ActionEventID <= 0 {
		return Event{}, fmt.Errorf("%w: missing action_event_id", ErrMalformed)
	}
	if r.Username == "" || r.Password == "" {
		return Event{}, fmt.Errorf("%w: event %d has no credentials", ErrMalformed, r.ActionEventID)
	}
	if _, err := ParseAction(string(action)); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	at, err := time.ParseInLocation(DatetimeLayout, strings.TrimSpace(r.Datetime), loc)
	if err != nil {
		// tolerate servers that send an explicit zone
		at, err = time.Parse(time.RFC3339, strings.TrimSpace(r.Datetime))
		if err != nil {
			return Event{}, fmt.Errorf("%w: event %d datetime %q", ErrMalformed, r.ActionEventID, r.Datetime)
		}
		at = at.In(loc)
	}

	ev := Event{
		ID:            r.ActionEventID,
		UserID:        r.UserID,
		ActionName:    strings.TrimSpace(r.ActionName),
		ScheduledTime: at,
		Credentials:   Credentials{Username: r.Username, Password: r.Password},
		Action:        action,
	}
	if action == BookClass {
		if ev.ActionName == "" {
			return Event{}, fmt.Errorf("%w: event %d has no class type", ErrMalformed, r.ActionEventID)
		}
		ev.Filter = Filter{
			TypeSubstring: ev.ActionName,
			TargetTime:    ClockLabel(at),
			TargetDate:    at.Format(DateLayout),
		}
	}
	return ev, nil
}

// ClockLabel renders t as "H:MM" the way the schedule labels classes.
func ClockLabel(t time.Time) string {
	return fmt.Sprintf("%d:%02d", t.Hour(), t.Minute())
}

// Due returns the events whose scheduled time is strictly after now, in
// their original order.
func Due(events []Event, now time.Time) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.ScheduledTime.After(now) {
			out = append(out, e)
		}
	}
	return out
}
