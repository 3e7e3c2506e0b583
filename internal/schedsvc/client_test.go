package schedsvc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wodify-ap/internal/event"
)

type recorded struct {
	Method string
	Path   string
	User   string
	Body   string
	Header http.Header
}

type fakeService struct {
	mu       sync.Mutex
	requests []recorded
	handle   func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	user, _, _ := r.BasicAuth()
	f.mu.Lock()
	f.requests = append(f.requests, recorded{Method: r.Method, Path: r.URL.Path, User: user, Body: string(b), Header: r.Header.Clone()})
	f.mu.Unlock()
	f.handle(w, r)
}

func (f *fakeService) calls() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func newService(t *testing.T, h func(w http.ResponseWriter, r *http.Request)) (*fakeService, *Client) {
	t.Helper()
	f := &fakeService{handle: h}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, New(srv.URL+"/", "wodify-login", "secret")
}

func TestFetchDueRequestsTimespan(t *testing.T) {
	f, c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"action_event_id":42,"action_name":"CrossFit","datetime":"2026-10-20T06:00:00","user_id":3,"username":"a","password":"b"}]`)
	})
	from := time.Date(2026, 10, 19, 5, 30, 0, 0, time.UTC)

	recs, err := c.FetchDue(context.Background(), from, from.Add(DefaultHorizon))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(42), recs[0].ActionEventID)

	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodGet, calls[0].Method)
	assert.Equal(t, "/v1/ap/executable_action_event/timespan/2026-10-19T05:30:00/2026-10-20T05:31:00", calls[0].Path)
	assert.Equal(t, "wodify-login", calls[0].User)
}

func TestFetchDueNon200IsSourceUnavailable(t *testing.T) {
	_, c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.FetchDue(context.Background(), time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Status)
}

func TestFetchDueBadJSON(t *testing.T) {
	_, c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"not":"a list"}`)
	})
	_, err := c.FetchDue(context.Background(), time.Now(), time.Now())
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}

func TestAcknowledge(t *testing.T) {
	tests := []struct {
		status  int
		wantErr bool
	}{
		{http.StatusOK, false},
		{http.StatusNoContent, false},
		{http.StatusNotFound, false},
		{http.StatusGone, false},
		{http.StatusInternalServerError, true},
		{http.StatusForbidden, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			f, c := newService(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			err := c.Acknowledge(context.Background(), 42)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrReportFailed))
			} else {
				assert.NoError(t, err)
			}
			calls := f.calls()
			require.Len(t, calls, 1)
			assert.Equal(t, http.MethodDelete, calls[0].Method)
			assert.Equal(t, "/v1/action_event/42", calls[0].Path)
		})
	}
}

func TestAcknowledgeTwiceIsHarmless(t *testing.T) {
	var mu sync.Mutex
	deleted := map[string]bool{}
	_, c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if deleted[r.URL.Path] {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		deleted[r.URL.Path] = true
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, c.Acknowledge(context.Background(), 9))
	require.NoError(t, c.Acknowledge(context.Background(), 9))
}

func TestAcknowledgeUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", "x", "y")
	err := c.Acknowledge(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrReportFailed))
}

func TestSaveWod(t *testing.T) {
	f, c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	err := c.SaveWod(context.Background(), 3, time.Date(2026, 10, 20, 5, 0, 0, 0, time.UTC), "Metcon\nAMRAP 12")
	require.NoError(t, err)

	calls := f.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/v1/wod", calls[0].Path)
	assert.Equal(t, "wodify-login", calls[0].User)
	assert.Equal(t, "3", calls[0].Header.Get(IDHeader))
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(calls[0].Body), &body))
	assert.Equal(t, "2026-10-20", body["date"])
	assert.Equal(t, float64(3), body["user_id"])
	assert.Equal(t, "Metcon\nAMRAP 12", body["description"])
	assert.Equal(t, false, body["deleted"])
	assert.Greater(t, body["id"].(float64), float64(0))
}

func TestSaveWodRejected(t *testing.T) {
	_, c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})
	err := c.SaveWod(context.Background(), 3, time.Now(), "x")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Status)
}

func TestSetupToleratesExistingEntries(t *testing.T) {
	f, c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusConflict)
			return
		}
		switch r.URL.Path {
		case "/v1/ap/platform":
			_, _ = io.WriteString(w, `[{"id":5,"name":"other"},{"id":7,"name":"wodify"}]`)
		case "/v1/ap/action_provider":
			_, _ = io.WriteString(w, `{"id":11,"name":"wodify-login","platform_id":7}`)
		case "/v1/ap/action":
			_, _ = io.WriteString(w, `[{"id":21,"name":"CrossFit"},{"id":22,"name":"Yoga"}]`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	reg, err := c.Setup(context.Background(), Provider{
		Platform: "wodify",
		Name:     "wodify-login",
		Password: "secret",
		Actions: []ActionDef{
			{Name: "CrossFit", CreateBefore: 168},
			{Name: "Yoga", CreateBefore: 168},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), reg.PlatformID)
	assert.Equal(t, int64(11), reg.ProviderID)
	assert.Equal(t, map[string]int64{"CrossFit": 21, "Yoga": 22}, reg.ActionIDs)

	var posts int
	for _, call := range f.calls() {
		if call.Method == http.MethodPost {
			posts++
		}
	}
	assert.Equal(t, 4, posts)
}

func TestSetupFailsOnServerError(t *testing.T) {
	_, c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.Setup(context.Background(), Provider{Platform: "wodify"})
	assert.ErrorContains(t, err, "create platform")
}

func TestSourceDueSkipsMalformedAndPastEvents(t *testing.T) {
	_, c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"action_event_id":1,"action_name":"CrossFit","datetime":"2026-10-20T06:00:00","username":"a","password":"b"},
			{"action_event_id":2,"action_name":"CrossFit","datetime":"2026-10-19T05:00:00","username":"a","password":"b"},
			{"action_event_id":3,"action_name":"CrossFit","datetime":"2026-10-20T07:00:00","username":"","password":""},
			{"action_event_id":4,"action_name":"Yoga","datetime":"not a time","username":"a","password":"b"},
			{"action_event_id":5,"action_name":"Yoga","datetime":"2026-10-19T18:00:00","username":"a","password":"b"}
		]`)
	})
	now := time.Date(2026, 10, 19, 5, 30, 0, 0, time.UTC)
	src := &Source{
		Client:   c,
		Action:   event.BookClass,
		Location: time.UTC,
		Now:      func() time.Time { return now },
		Log:      zerolog.Nop(),
	}

	evs, err := src.Due(context.Background())
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, int64(1), evs[0].ID)
	assert.Equal(t, int64(5), evs[1].ID)
	assert.Equal(t, "18:00", evs[1].Filter.TargetTime)
}

func TestSourceDuePropagatesFetchFailure(t *testing.T) {
	_, c := newService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	src := &Source{Client: c, Action: event.FetchWOD, Log: zerolog.Nop()}

	_, err := src.Due(context.Background())
	assert.True(t, errors.Is(err, ErrSourceUnavailable))
}
