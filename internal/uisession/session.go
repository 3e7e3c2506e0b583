// Package uisession wraps one authenticated browser context against the
// third-party web application. The engine only sees the Session interface;
// the chromedp-backed implementation lives in chrome.go.
package uisession

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by any call on a session after Close.
var ErrClosed = errors.New("ui session closed")

// Session is a single browser context. Selectors are CSS selectors or XPath
// expressions; implementations must accept both.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// Fill clears the matched input and types text into it.
	Fill(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	// Present reports whether selector matches within the given duration. A
	// miss is not an error.
	Present(ctx context.Context, selector string, within time.Duration) (bool, error)
	Text(ctx context.Context, selector string) (string, error)
	Refresh(ctx context.Context) error
	// HTML returns the serialized document as currently rendered.
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Browser hands out fresh, isolated sessions.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}
