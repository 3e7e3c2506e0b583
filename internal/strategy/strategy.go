// Package strategy holds the per-action logic that runs once an action
// window is open.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/example/wodify-ap/internal/event"
	"github.com/example/wodify-ap/internal/uisession"
)

// Outcome of a single attempt. Committed means the committing interaction
// happened (or, for extraction, the content was read) and the event may be
// acknowledged.
type Outcome struct {
	Committed bool
	Detail    string
	Records   []WodRecord
	Result    *WodResult
}

type Strategy interface {
	Action() event.ActionType
	// EntryURL is visited right after a successful login.
	EntryURL() string
	// LeadTime is how long before the event's scheduled time the window
	// opens.
	LeadTime() time.Duration
	// SingleShot strategies get exactly one attempt once the window is open.
	SingleShot() bool
	// Attempt inspects the current view and commits at most once. Errors are
	// reserved for session level failures; "not there yet" is a zero Outcome.
	Attempt(ctx context.Context, s uisession.Session, ev event.Event) (Outcome, error)
}

// Registry maps action types to their strategy.
type Registry map[event.ActionType]Strategy

func NewRegistry(strategies ...Strategy) Registry {
	r := make(Registry, len(strategies))
	for _, s := range strategies {
		r[s.Action()] = s
	}
	return r
}

func (r Registry) For(a event.ActionType) (Strategy, error) {
	s, ok := r[a]
	if !ok {
		return nil, fmt.Errorf("no strategy registered for %q", a)
	}
	return s, nil
}
