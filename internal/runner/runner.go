// Package runner executes one engine run: fetch the due events, drive each
// through the executor in order and report the successful ones.
package runner

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/wodify-ap/internal/event"
	"github.com/example/wodify-ap/internal/executor"
	"github.com/example/wodify-ap/internal/ledger"
	"github.com/example/wodify-ap/internal/metrics"
	"github.com/example/wodify-ap/internal/strategy"
)

type Source interface {
	Due(ctx context.Context) ([]event.Event, error)
}

type Executor interface {
	// OpensAt is when the action window of ev opens.
	OpensAt(ev event.Event) time.Time
	Execute(ctx context.Context, ev event.Event) executor.Result
}

type Reporter interface {
	Acknowledge(ctx context.Context, id int64) error
}

// WodSink stores extracted workouts.
type WodSink interface {
	SaveWod(ctx context.Context, userID int64, date time.Time, description string) error
}

// reportTimeout bounds the bookkeeping after an event. It runs even when the
// run context is cancelled so a completed action is still acknowledged.
const reportTimeout = 15 * time.Second

type Runner struct {
	Source   Source
	Executor Executor
	Reporter Reporter
	Sink     WodSink      // optional
	Ledger   ledger.Store // optional
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
	Now      func() time.Time
}

type Summary struct {
	RunID        uuid.UUID
	Fetched      int
	Succeeded    int
	LoginFailed  int
	NotFound     int
	Transient    int
	Acknowledged int
	ReportFailed int
	Expired      int // scheduled time passed while earlier events ran
	Skipped      int // never dequeued, the run was cancelled
}

// OutcomeExpired is the ledger outcome of an event discarded at dequeue.
const OutcomeExpired = "expired"

// Run processes the due events once, strictly one at a time and in the order
// their windows open. An event is only executed while its scheduled time is
// still ahead. Run only fails when the event list cannot be fetched;
// per-event failures are logged, recorded and counted.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	sum := Summary{RunID: uuid.New()}
	log := r.Log.With().Str("run_id", sum.RunID.String()).Logger()
	ctx = log.WithContext(ctx)

	events, err := r.Source.Due(ctx)
	if err != nil {
		log.Error().Err(err).Msg("fetching events failed")
		return sum, err
	}
	sum.Fetched = len(events)
	sort.SliceStable(events, func(i, j int) bool {
		return r.Executor.OpensAt(events[i]).Before(r.Executor.OpensAt(events[j]))
	})
	log.Info().Int("events", len(events)).Msg("run started")

	for i, ev := range events {
		if ctx.Err() != nil {
			sum.Skipped = len(events) - i
			log.Warn().Int("skipped", sum.Skipped).Msg("run cancelled")
			break
		}
		if now := r.now(); !ev.ScheduledTime.After(now) {
			r.expire(ctx, log, sum.RunID, ev, now, &sum)
			continue
		}
		res := r.Executor.Execute(ctx, ev)
		r.finish(ctx, log, sum.RunID, ev, res, &sum)
	}

	r.Metrics.RunFinished(r.now())
	log.Info().
		Int("succeeded", sum.Succeeded).
		Int("acknowledged", sum.Acknowledged).
		Int("report_failed", sum.ReportFailed).
		Int("expired", sum.Expired).
		Msg("run finished")
	return sum, nil
}

// expire discards an event whose scheduled time passed while earlier events
// were processed. It is neither executed nor acknowledged.
func (r *Runner) expire(ctx context.Context, log zerolog.Logger, runID uuid.UUID, ev event.Event, now time.Time, sum *Summary) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	sum.Expired++
	log = log.With().Int64("event_id", ev.ID).Str("action", string(ev.Action)).Logger()
	log.Warn().Time("scheduled", ev.ScheduledTime).Msg("event expired before it could run")
	r.Metrics.Event(string(ev.Action), OutcomeExpired, 0)
	r.record(ctx, log, ledger.Entry{
		RunID:      runID,
		EventID:    ev.ID,
		Action:     string(ev.Action),
		Outcome:    OutcomeExpired,
		Detail:     "scheduled " + ev.ScheduledTime.Format(time.RFC3339),
		FinishedAt: now,
	})
}

func (r *Runner) finish(ctx context.Context, log zerolog.Logger, runID uuid.UUID, ev event.Event, res executor.Result, sum *Summary) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	log = log.With().Int64("event_id", ev.ID).Str("action", string(ev.Action)).Logger()
	entry := ledger.Entry{
		RunID:      runID,
		EventID:    ev.ID,
		Action:     string(ev.Action),
		Outcome:    res.Kind.String(),
		Reason:     res.Reason,
		Detail:     res.Detail,
		Attempts:   res.Attempts,
		FinishedAt: res.Finished,
	}
	if !res.WindowOpenedAt.IsZero() {
		opened := res.WindowOpenedAt
		entry.WindowOpenedAt = &opened
		r.Metrics.Lateness(opened.Sub(res.OpensAt))
	}
	r.Metrics.Event(entry.Action, entry.Outcome, res.Attempts)

	switch res.Kind {
	case executor.Success:
		sum.Succeeded++
		if err := r.report(ctx, log, ev, res); err != nil {
			msg := err.Error()
			entry.AckError = &msg
			sum.ReportFailed++
		} else {
			entry.Acknowledged = true
			sum.Acknowledged++
		}
	case executor.LoginFailed:
		sum.LoginFailed++
		log.Warn().Err(res.Err).Str("reason", res.Reason).Msg("login failed")
	case executor.ActionNotFound:
		sum.NotFound++
		log.Warn().Int("attempts", res.Attempts).Str("detail", res.Detail).Msg("action not found")
	default:
		sum.Transient++
		log.Error().Err(res.Err).Stringer("phase", res.Phase).Msg("event failed")
	}

	r.record(ctx, log, entry)
}

func (r *Runner) record(ctx context.Context, log zerolog.Logger, entry ledger.Entry) {
	if r.Ledger == nil {
		return
	}
	if err := r.Ledger.Record(ctx, entry); err != nil {
		log.Error().Err(err).Msg("ledger write failed")
	}
}

// report stores extracted content, then acknowledges the event exactly once.
// Content that cannot be stored leaves the event unacknowledged.
func (r *Runner) report(ctx context.Context, log zerolog.Logger, ev event.Event, res executor.Result) error {
	if ev.Action == event.FetchWOD && r.Sink != nil {
		if err := r.Sink.SaveWod(ctx, ev.UserID, ev.ScheduledTime, strategy.Describe(res.Records, res.WodResult)); err != nil {
			log.Error().Err(err).Msg("storing wod failed")
			return err
		}
		log.Info().Int("components", len(res.Records)).Msg("wod stored")
	}

	if err := r.Reporter.Acknowledge(ctx, ev.ID); err != nil {
		r.Metrics.Acknowledged(false)
		log.Error().Err(err).Msg("action completed but acknowledgement failed")
		return err
	}
	r.Metrics.Acknowledged(true)
	log.Info().Int("attempts", res.Attempts).Str("detail", res.Detail).Msg("action completed")
	return nil
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
