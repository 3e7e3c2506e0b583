package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wodify-ap/internal/event"
	"github.com/example/wodify-ap/internal/executor"
	"github.com/example/wodify-ap/internal/ledger"
	"github.com/example/wodify-ap/internal/metrics"
	"github.com/example/wodify-ap/internal/schedsvc"
	"github.com/example/wodify-ap/internal/strategy"
)

type fakeSource struct {
	events []event.Event
	err    error
	calls  int
	onDue  func(calls int)
}

func (f *fakeSource) Due(context.Context) ([]event.Event, error) {
	f.calls++
	if f.onDue != nil {
		f.onDue(f.calls)
	}
	return f.events, f.err
}

type fakeExecutor struct {
	mu       sync.Mutex
	results  map[int64]executor.Result
	executed []int64
	inflight int
	overlap  bool
	after    func(id int64)
	lead     time.Duration
}

func (f *fakeExecutor) OpensAt(ev event.Event) time.Time {
	if ev.Action == event.BookClass {
		return ev.ScheduledTime.Add(-f.lead)
	}
	return ev.ScheduledTime
}

func (f *fakeExecutor) Execute(_ context.Context, ev event.Event) executor.Result {
	f.mu.Lock()
	f.inflight++
	if f.inflight > 1 {
		f.overlap = true
	}
	f.executed = append(f.executed, ev.ID)
	res := f.results[ev.ID]
	f.inflight--
	f.mu.Unlock()
	if f.after != nil {
		f.after(ev.ID)
	}
	res.EventID = ev.ID
	res.Action = ev.Action
	return res
}

type fakeReporter struct {
	acks map[int64]int
	fail map[int64]error
}

func (f *fakeReporter) Acknowledge(_ context.Context, id int64) error {
	f.acks[id]++
	return f.fail[id]
}

type fakeSink struct {
	saved []string
	err   error
}

func (f *fakeSink) SaveWod(_ context.Context, _ int64, _ time.Time, description string) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, description)
	return nil
}

var day = time.Date(2026, 10, 20, 6, 0, 0, 0, time.UTC)

func booking(id int64) event.Event {
	return event.Event{ID: id, Action: event.BookClass, ActionName: "CrossFit", ScheduledTime: day}
}

type harness struct {
	src    *fakeSource
	exec   *fakeExecutor
	rep    *fakeReporter
	sink   *fakeSink
	ledger *ledger.Memory
	runner *Runner
	now    time.Time
}

func newHarness(events []event.Event, results map[int64]executor.Result) *harness {
	h := &harness{
		src:    &fakeSource{events: events},
		exec:   &fakeExecutor{results: results},
		rep:    &fakeReporter{acks: map[int64]int{}, fail: map[int64]error{}},
		sink:   &fakeSink{},
		ledger: ledger.NewMemory(100),
		now:    day.Add(-2 * time.Hour),
	}
	h.runner = &Runner{
		Source:   h.src,
		Executor: h.exec,
		Reporter: h.rep,
		Sink:     h.sink,
		Ledger:   h.ledger,
		Metrics:  metrics.New(),
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return h.now },
	}
	return h
}

func TestRunAcknowledgesOnlySuccesses(t *testing.T) {
	h := newHarness(
		[]event.Event{booking(1), booking(2), booking(3), booking(4)},
		map[int64]executor.Result{
			1: {Kind: executor.Success, Attempts: 2, WindowOpenedAt: day.Add(-24 * time.Hour), OpensAt: day.Add(-24 * time.Hour)},
			2: {Kind: executor.LoginFailed, Reason: executor.ReasonInvalidCredentials},
			3: {Kind: executor.ActionNotFound, Attempts: 61},
			4: {Kind: executor.TransientError, Err: errors.New("crash")},
		},
	)

	sum, err := h.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3, 4}, h.exec.executed)
	assert.False(t, h.exec.overlap)
	assert.Equal(t, map[int64]int{1: 1}, h.rep.acks)
	assert.Equal(t, Summary{
		RunID:        sum.RunID,
		Fetched:      4,
		Succeeded:    1,
		LoginFailed:  1,
		NotFound:     1,
		Transient:    1,
		Acknowledged: 1,
	}, sum)

	entries, _ := h.ledger.Recent(context.Background(), 10)
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, sum.RunID, e.RunID)
		assert.Equal(t, e.EventID == 1, e.Acknowledged, "event %d", e.EventID)
	}
	assert.Equal(t, "invalid-credentials", entries[2].Reason)
}

func TestRunFetchFailureIsFatal(t *testing.T) {
	h := newHarness(nil, nil)
	h.src.err = schedsvc.ErrSourceUnavailable

	_, err := h.runner.Run(context.Background())
	assert.ErrorIs(t, err, schedsvc.ErrSourceUnavailable)
	assert.Empty(t, h.exec.executed)
	assert.Empty(t, h.rep.acks)
}

func TestRunAckFailureKeepsGoing(t *testing.T) {
	h := newHarness(
		[]event.Event{booking(1), booking(2)},
		map[int64]executor.Result{
			1: {Kind: executor.Success},
			2: {Kind: executor.Success},
		},
	)
	h.rep.fail[1] = schedsvc.ErrReportFailed

	sum, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.ReportFailed)
	assert.Equal(t, 1, sum.Acknowledged)
	assert.Equal(t, map[int64]int{1: 1, 2: 1}, h.rep.acks)

	unacked, _ := h.ledger.Unacknowledged(context.Background(), 10)
	require.Len(t, unacked, 1)
	assert.Equal(t, int64(1), unacked[0].EventID)
	require.NotNil(t, unacked[0].AckError)
	assert.Contains(t, *unacked[0].AckError, "acknowledgement failed")
}

func TestRunStoresWodBeforeAcknowledging(t *testing.T) {
	ev := event.Event{ID: 9, UserID: 3, Action: event.FetchWOD, ScheduledTime: day}
	h := newHarness([]event.Event{ev}, map[int64]executor.Result{
		9: {Kind: executor.Success, Records: []strategy.WodRecord{{Name: "Metcon", Content: "AMRAP 12"}}},
	})

	_, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Metcon\nAMRAP 12"}, h.sink.saved)
	assert.Equal(t, 1, h.rep.acks[9])
}

func TestRunWodStoreFailureBlocksAck(t *testing.T) {
	ev := event.Event{ID: 9, Action: event.FetchWOD, ScheduledTime: day}
	h := newHarness([]event.Event{ev}, map[int64]executor.Result{9: {Kind: executor.Success}})
	h.sink.err = errors.New("status=500")

	sum, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, h.rep.acks[9])
	assert.Equal(t, 1, sum.ReportFailed)
}

func TestRunStopsBetweenEventsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(
		[]event.Event{booking(1), booking(2), booking(3)},
		map[int64]executor.Result{1: {Kind: executor.Success}},
	)
	h.exec.after = func(int64) { cancel() }

	sum, err := h.runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, h.exec.executed)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 1, h.rep.acks[1], "completed action is still acknowledged")
}

func TestLoopRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(nil, nil)
	h.src.err = errors.New("down")
	h.src.onDue = func(calls int) {
		if calls == 3 {
			cancel()
		}
	}

	err := h.runner.Loop(ctx, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, h.src.calls, 3)
}

func wodAt(id int64, at time.Time) event.Event {
	return event.Event{ID: id, Action: event.FetchWOD, ScheduledTime: at}
}

func TestRunExecutesInWindowOrder(t *testing.T) {
	h := newHarness(
		[]event.Event{wodAt(1, day.Add(10*time.Hour)), wodAt(2, day.Add(5*time.Hour)), booking(3)},
		map[int64]executor.Result{1: {Kind: executor.Success}, 2: {Kind: executor.Success}, 3: {Kind: executor.Success}},
	)
	h.exec.lead = 24 * time.Hour

	sum, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 2, 1}, h.exec.executed)
	assert.Zero(t, sum.Expired)
}

func TestRunDiscardsEventsExpiredAtDequeue(t *testing.T) {
	h := newHarness(
		[]event.Event{wodAt(1, day.Add(10*time.Hour)), wodAt(2, day.Add(5*time.Hour))},
		map[int64]executor.Result{1: {Kind: executor.Success}, 2: {Kind: executor.Success}},
	)
	h.now = day
	// the first execution runs past the second event's time
	h.exec.after = func(id int64) {
		if id == 2 {
			h.now = day.Add(10 * time.Hour)
		}
	}

	sum, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, h.exec.executed)
	assert.Equal(t, map[int64]int{2: 1}, h.rep.acks)
	assert.Equal(t, 1, sum.Expired)
	assert.Equal(t, 1, sum.Succeeded)

	entries, _ := h.ledger.Recent(context.Background(), 10)
	require.Len(t, entries, 2)
	var expired ledger.Entry
	for _, e := range entries {
		if e.EventID == 1 {
			expired = e
		}
	}
	assert.Equal(t, OutcomeExpired, expired.Outcome)
	assert.False(t, expired.Acknowledged)
	assert.False(t, expired.NeedsReconciliation())
}
