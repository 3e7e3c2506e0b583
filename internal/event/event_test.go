package event

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBookClassDerivesFilter(t *testing.T) {
	ev, err := Parse(Record{
		ActionEventID: 42,
		ActionName:    "CrossFit",
		Datetime:      "2026-10-20T06:00:00",
		Username:      "athlete@example.com",
		Password:      "secret",
	}, BookClass, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, int64(42), ev.ID)
	assert.Equal(t, time.Date(2026, 10, 20, 6, 0, 0, 0, time.UTC), ev.ScheduledTime)
	assert.Equal(t, Filter{TypeSubstring: "CrossFit", TargetTime: "6:00", TargetDate: "10/20/2026"}, ev.Filter)
	assert.Equal(t, "athlete@example.com:***", ev.Credentials.String())
}

func TestParseUsesLocation(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	ev, err := Parse(Record{ActionEventID: 1, ActionName: "Yoga", Datetime: "2026-10-20T18:30:00", Username: "u", Password: "p"}, BookClass, loc)
	require.NoError(t, err)
	assert.Equal(t, "18:30", ev.Filter.TargetTime)
	assert.Equal(t, time.Date(2026, 10, 20, 17, 30, 0, 0, time.UTC), ev.ScheduledTime.UTC())
}

func TestParseRejectsMalformedRecords(t *testing.T) {
	tests := []struct {
		name   string
		record Record
		action ActionType
	}{
		{"no id", Record{Datetime: "2026-10-20T06:00:00", Username: "u", Password: "p", ActionName: "x"}, BookClass},
		{"no username", Record{ActionEventID: 1, Datetime: "2026-10-20T06:00:00", Password: "p", ActionName: "x"}, BookClass},
		{"no password", Record{ActionEventID: 1, Datetime: "2026-10-20T06:00:00", Username: "u", ActionName: "x"}, BookClass},
		{"bad datetime", Record{ActionEventID: 1, Datetime: "tomorrow", Username: "u", Password: "p", ActionName: "x"}, BookClass},
		{"no class type", Record{ActionEventID: 1, Datetime: "2026-10-20T06:00:00", Username: "u", Password: "p"}, BookClass},
		{"unknown action", Record{ActionEventID: 1, Datetime: "2026-10-20T06:00:00", Username: "u", Password: "p"}, ActionType("nap")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.record, tt.action, time.UTC)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed))
		})
	}
}

func TestParseFetchWODNeedsNoClassType(t *testing.T) {
	ev, err := Parse(Record{ActionEventID: 7, Datetime: "2026-10-20T05:00:00", Username: "u", Password: "p"}, FetchWOD, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, FetchWOD, ev.Action)
	assert.Equal(t, Filter{}, ev.Filter)
}

func TestDueDropsPastAndPresentEvents(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	events := []Event{
		{ID: 1, ScheduledTime: now.Add(-time.Minute)},
		{ID: 2, ScheduledTime: now},
		{ID: 3, ScheduledTime: now.Add(time.Second)},
		{ID: 4, ScheduledTime: now.Add(23 * time.Hour)},
	}

	due := Due(events, now)
	require.Len(t, due, 2)
	assert.Equal(t, int64(3), due[0].ID)
	assert.Equal(t, int64(4), due[1].ID)
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction(" Book-Class ")
	require.NoError(t, err)
	assert.Equal(t, BookClass, a)

	_, err = ParseAction("dance")
	assert.Error(t, err)
}

func TestClockLabel(t *testing.T) {
	assert.Equal(t, "6:05", ClockLabel(time.Date(2026, 1, 1, 6, 5, 0, 0, time.UTC)))
	assert.Equal(t, "18:00", ClockLabel(time.Date(2026, 1, 1, 18, 0, 0, 0, time.UTC)))
}
