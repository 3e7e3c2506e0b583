// Package schedsvc talks to the scheduling service: it lists executable
// action events, acknowledges them, stores fetched workouts and registers
// the provider.
package schedsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/wodify-ap/internal/event"
)

// IDHeader names the user a provider acts for on user-scoped endpoints.
const IDHeader = "id"

var (
	ErrSourceUnavailable = errors.New("scheduling service unavailable")
	ErrReportFailed      = errors.New("acknowledgement failed")
)

// StatusError carries the HTTP status of a rejected request.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: status=%d: %s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: status=%d", e.Op, e.Status)
}

// Client authenticates as an action provider with HTTP basic auth.
type Client struct {
	hc       *http.Client
	baseURL  string
	name     string
	password string
}

func New(baseURL, name, password string) *Client {
	return &Client{
		hc:       &http.Client{Timeout: 10 * time.Second},
		baseURL:  strings.TrimRight(baseURL, "/"),
		name:     name,
		password: password,
	}
}

// WithHTTPClient replaces the underlying http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.hc = hc
	return c
}

// FetchDue lists the events executable between from and to.
func (c *Client) FetchDue(ctx context.Context, from, to time.Time) ([]event.Record, error) {
	p := fmt.Sprintf("/v1/ap/executable_action_event/timespan/%s/%s",
		from.Format(event.DatetimeLayout), to.Format(event.DatetimeLayout))
	status, body, err := c.do(ctx, http.MethodGet, p, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, statusErr("fetch events", status, body))
	}
	var out []event.Record
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: decode events: %w", ErrSourceUnavailable, err)
	}
	return out, nil
}

// Acknowledge deletes the event so it is not offered again. An event that is
// already gone counts as acknowledged.
func (c *Client) Acknowledge(ctx context.Context, id int64) error {
	status, body, err := c.do(ctx, http.MethodDelete, "/v1/action_event/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return fmt.Errorf("%w: event %d: %w", ErrReportFailed, id, err)
	}
	switch status {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound, http.StatusGone:
		return nil
	}
	return fmt.Errorf("%w: event %d: %w", ErrReportFailed, id, statusErr("acknowledge", status, body))
}

type wod struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	Date        string  `json:"date"`
	Description *string `json:"description"`
	Deleted     bool    `json:"deleted"`
}

// SaveWod stores a workout description for the user's date. A workout that
// already exists for that day is left as it is.
func (c *Client) SaveWod(ctx context.Context, userID int64, date time.Time, description string) error {
	w := wod{
		ID:          newID(),
		UserID:      userID,
		Date:        date.Format("2006-01-02"),
		Description: &description,
	}
	jb, err := json.Marshal(w)
	if err != nil {
		return err
	}
	hdr := http.Header{IDHeader: []string{strconv.FormatInt(userID, 10)}}
	status, body, err := c.doWith(ctx, http.MethodPost, "/v1/wod", jb, hdr)
	if err != nil {
		return fmt.Errorf("save wod: %w", err)
	}
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusConflict:
		return nil
	}
	return statusErr("save wod", status, body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	return c.doWith(ctx, method, path, body, nil)
}

func (c *Client) doWith(ctx context.Context, method, path string, body []byte, hdr http.Header) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.SetBasicAuth(c.name, c.password)
	req.Header.Set("accept", "application/json")
	if body != nil {
		req.Header.Set("content-type", "application/json")
	}
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}

func statusErr(op string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &StatusError{Op: op, Status: status, Body: msg}
}
