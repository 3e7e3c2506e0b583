// Package uisessiontest provides an in-memory Session that replays HTML
// snapshots and records every interaction.
package uisessiontest

import (
	"context"
	"sync"
	"time"

	"github.com/example/wodify-ap/internal/uisession"
)

type Session struct {
	mu sync.Mutex

	// Pages are served by HTML; each Refresh advances to the next one and the
	// last page sticks.
	Pages []string
	// Markers lists selectors Present reports as found.
	Markers map[string]bool
	Texts   map[string]string

	NavigateErr error
	ClickErr    error
	RefreshErr  error
	PanicOn     string // method name that panics, for crash simulation

	Navigations []string
	Fills       map[string]string
	Clicks      []string
	Refreshes   int
	Closes      int

	page int
}

func New(pages ...string) *Session {
	return &Session{
		Pages:   pages,
		Markers: map[string]bool{},
		Texts:   map[string]string{},
		Fills:   map[string]string{},
	}
}

func (s *Session) maybePanic(method string) {
	if s.PanicOn == method {
		panic("uisessiontest: simulated driver crash in " + method)
	}
}

func (s *Session) Navigate(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybePanic("Navigate")
	if s.Closes > 0 {
		return uisession.ErrClosed
	}
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	s.Navigations = append(s.Navigations, url)
	return nil
}

func (s *Session) Fill(_ context.Context, selector, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybePanic("Fill")
	s.Fills[selector] = text
	return nil
}

func (s *Session) Click(_ context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybePanic("Click")
	if s.ClickErr != nil {
		return s.ClickErr
	}
	s.Clicks = append(s.Clicks, selector)
	return nil
}

func (s *Session) Present(ctx context.Context, selector string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybePanic("Present")
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.Markers[selector], nil
}

func (s *Session) Text(_ context.Context, selector string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Texts[selector], nil
}

func (s *Session) Refresh(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybePanic("Refresh")
	if s.RefreshErr != nil {
		return s.RefreshErr
	}
	s.Refreshes++
	if s.page < len(s.Pages)-1 {
		s.page++
	}
	return nil
}

func (s *Session) HTML(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maybePanic("HTML")
	if len(s.Pages) == 0 {
		return "<html><body></body></html>", nil
	}
	return s.Pages[s.page], nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closes++
	s.maybePanic("Close")
	return nil
}

// Browser hands out a prepared session, or OpenErr.
type Browser struct {
	Session *Session
	// Next, when set, builds a fresh session for every Open instead.
	Next        func() *Session
	OpenErr     error
	PanicOnOpen bool
	Opens       int
	Opened      []*Session
}

func (b *Browser) Open(context.Context) (uisession.Session, error) {
	b.Opens++
	if b.PanicOnOpen {
		panic("uisessiontest: simulated driver crash in Open")
	}
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	s := b.Session
	if b.Next != nil {
		s = b.Next()
	}
	b.Opened = append(b.Opened, s)
	return s, nil
}
