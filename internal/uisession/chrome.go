package uisession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

type ChromeOptions struct {
	Headless bool
	// RemoteURL points at an already running browser's devtools websocket.
	// When empty a local browser process is started per session.
	RemoteURL string
	UserAgent string
}

// Chrome opens one browser context per session via chromedp.
type Chrome struct {
	opts ChromeOptions
	log  zerolog.Logger
}

func NewChrome(opts ChromeOptions, log zerolog.Logger) *Chrome {
	return &Chrome{opts: opts, log: log.With().Str("component", "chrome").Logger()}
}

func (c *Chrome) Open(ctx context.Context) (Session, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if c.opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), c.opts.RemoteURL)
	} else {
		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		opts = append(opts, chromedp.Flag("headless", c.opts.Headless))
		if c.opts.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(c.opts.UserAgent))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	logf := func(format string, args ...any) { c.log.Debug().Msgf(format, args...) }
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logf), chromedp.WithErrorf(logf))

	s := &chromeSession{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}
	// first Run starts the browser; start from a clean cookie jar
	if err := s.run(ctx, network.ClearBrowserCookies()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	c.log.Debug().Bool("headless", c.opts.Headless).Msg("browser session opened")
	return s, nil
}

type chromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// run executes actions on the tab while honouring cancellation of the
// caller's ctx.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *chromeSession) Fill(ctx context.Context, selector, text string) error {
	return s.run(ctx,
		chromedp.WaitReady(selector, chromedp.BySearch),
		chromedp.Clear(selector, chromedp.BySearch),
		chromedp.SendKeys(selector, text, chromedp.BySearch),
	)
}

func (s *chromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx,
		chromedp.ScrollIntoView(selector, chromedp.BySearch),
		chromedp.Click(selector, chromedp.BySearch),
	)
}

func (s *chromeSession) Present(ctx context.Context, selector string, within time.Duration) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, within)
	defer cancel()
	err := s.run(probeCtx, chromedp.WaitReady(selector, chromedp.BySearch))
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return false, nil
	default:
		return false, err
	}
}

func (s *chromeSession) Text(ctx context.Context, selector string) (string, error) {
	var out string
	err := s.run(ctx, chromedp.Text(selector, &out, chromedp.BySearch))
	return out, err
}

func (s *chromeSession) Refresh(ctx context.Context) error {
	return s.run(ctx, chromedp.Reload())
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var out string
	err := s.run(ctx, chromedp.OuterHTML("html", &out, chromedp.ByQuery))
	return out, err
}

func (s *chromeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
