package schedsvc

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/wodify-ap/internal/event"
	"github.com/example/wodify-ap/internal/logging"
)

// DefaultHorizon covers every event whose window can open before the next
// daily run.
const DefaultHorizon = 24*time.Hour + time.Minute

// Source turns the service's executable events into validated, future
// events for one action type.
type Source struct {
	Client   *Client
	Action   event.ActionType
	Location *time.Location
	Horizon  time.Duration
	Now      func() time.Time
	Log      zerolog.Logger
}

func (s *Source) Due(ctx context.Context) ([]event.Event, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	horizon := s.Horizon
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	log := logging.FromContext(ctx, s.Log)

	start := now().In(loc)
	records, err := s.Client.FetchDue(ctx, start, start.Add(horizon))
	if err != nil {
		return nil, err
	}

	events := make([]event.Event, 0, len(records))
	for _, r := range records {
		ev, err := event.Parse(r, s.Action, loc)
		if err != nil {
			log.Warn().Err(err).Int64("event_id", r.ActionEventID).Msg("skipping event")
			continue
		}
		events = append(events, ev)
	}
	due := event.Due(events, now())
	log.Debug().Int("fetched", len(records)).Int("due", len(due)).Msg("events")
	return due, nil
}
