// Package executor drives one event through login, the wait for its action
// window and the deadline-bounded attempt loop.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/example/wodify-ap/internal/event"
	"github.com/example/wodify-ap/internal/logging"
	"github.com/example/wodify-ap/internal/strategy"
	"github.com/example/wodify-ap/internal/uisession"
)

// LoginForm describes the third-party login page.
type LoginForm struct {
	URL            string
	Username       string
	Password       string
	Submit         string
	LoggedInMarker string

	// Optional, used only to classify a failed login.
	Feedback    string
	InvalidText string
	Captcha     string
}

type Config struct {
	Login LoginForm
	// LoginProbe bounds the wait for the logged-in marker.
	LoginProbe time.Duration
	// WaitGranularity is the polling step while waiting for the window.
	WaitGranularity time.Duration
	// AttemptDeadline is measured from window open.
	AttemptDeadline time.Duration
	// AttemptInterval is the minimum spacing between attempts.
	AttemptInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		LoginProbe:      10 * time.Second,
		WaitGranularity: 500 * time.Millisecond,
		AttemptDeadline: time.Minute,
		AttemptInterval: time.Second,
	}
}

// classifyProbe bounds each lookup made while explaining a failed login.
const classifyProbe = time.Second

type Executor struct {
	browser    uisession.Browser
	strategies strategy.Registry
	cfg        Config
	clock      Clock
	log        zerolog.Logger
}

func New(browser uisession.Browser, strategies strategy.Registry, cfg Config, clock Clock, log zerolog.Logger) *Executor {
	if clock == nil {
		clock = RealClock{}
	}
	if cfg.WaitGranularity <= 0 {
		cfg.WaitGranularity = DefaultConfig().WaitGranularity
	}
	return &Executor{
		browser:    browser,
		strategies: strategies,
		cfg:        cfg,
		clock:      clock,
		log:        log,
	}
}

// OpensAt is when the action window of ev opens. Events without a
// registered strategy open at their scheduled time.
func (e *Executor) OpensAt(ev event.Event) time.Time {
	strat, err := e.strategies.For(ev.Action)
	if err != nil {
		return ev.ScheduledTime
	}
	return ev.ScheduledTime.Add(-strat.LeadTime())
}

// Execute processes one event to a terminal state. It never panics and never
// returns without releasing the session it opened. A logger attached to ctx
// takes precedence over the executor's own.
func (e *Executor) Execute(ctx context.Context, ev event.Event) (res Result) {
	log := logging.FromContext(ctx, e.log).With().Int64("event_id", ev.ID).Str("action", string(ev.Action)).Logger()
	res = Result{EventID: ev.ID, Action: ev.Action, Phase: Idle}
	defer func() { res.Finished = e.clock.Now() }()
	defer func() {
		if r := recover(); r != nil {
			res = transient(res, fmt.Errorf("session crashed: %v", r))
		}
	}()

	strat, err := e.strategies.For(ev.Action)
	if err != nil {
		return transient(res, err)
	}

	sess, err := e.browser.Open(ctx)
	if err != nil {
		return transient(res, fmt.Errorf("open session: %w", err))
	}
	defer closeSession(sess, log)

	m := &machine{log: log, res: &res}
	return e.run(ctx, m, sess, strat, ev)
}

// closeSession releases sess. A failing close never changes the outcome.
func closeSession(sess uisession.Session, log zerolog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("closing ui session")
		}
	}()
	if err := sess.Close(); err != nil {
		log.Warn().Err(err).Msg("closing ui session")
	}
}

func (e *Executor) run(ctx context.Context, m *machine, sess uisession.Session, strat strategy.Strategy, ev event.Event) Result {
	m.enter(LoggingIn)
	reason, err := e.login(ctx, sess, ev)
	if err != nil {
		return transient(*m.res, err)
	}
	if reason != "" {
		m.res.Kind = LoginFailed
		m.res.Reason = reason
		m.res.Err = fmt.Errorf("%w: %s", ErrLoginFailed, reason)
		return *m.res
	}
	m.log.Debug().Msg("login successful")

	if u := strat.EntryURL(); u != "" {
		if err := sess.Navigate(ctx, u); err != nil {
			return transient(*m.res, fmt.Errorf("open %s: %w", u, err))
		}
	}

	m.enter(AwaitingWindow)
	opensAt := ev.ScheduledTime.Add(-strat.LeadTime())
	m.res.OpensAt = opensAt
	if err := e.waitUntil(ctx, opensAt); err != nil {
		return transient(*m.res, err)
	}
	opened := e.clock.Now()
	m.res.WindowOpenedAt = opened
	m.log.Info().Time("opens_at", opensAt).Dur("lateness", opened.Sub(opensAt)).Msg("ready")

	m.enter(Attempting)
	return e.attempt(ctx, m, sess, strat, ev, opened)
}

// login submits the credentials. A non-empty reason means the third party
// rejected the login; err is reserved for session failures.
func (e *Executor) login(ctx context.Context, sess uisession.Session, ev event.Event) (reason string, err error) {
	form := e.cfg.Login
	if err := sess.Navigate(ctx, form.URL); err != nil {
		return "", fmt.Errorf("open login page: %w", err)
	}
	if err := sess.Fill(ctx, form.Username, ev.Credentials.Username); err != nil {
		return "", fmt.Errorf("fill username: %w", err)
	}
	if err := sess.Fill(ctx, form.Password, ev.Credentials.Password); err != nil {
		return "", fmt.Errorf("fill password: %w", err)
	}
	if err := sess.Click(ctx, form.Submit); err != nil {
		return "", fmt.Errorf("submit login: %w", err)
	}

	ok, err := sess.Present(ctx, form.LoggedInMarker, e.cfg.LoginProbe)
	if err != nil {
		return "", fmt.Errorf("probe login marker: %w", err)
	}
	if ok {
		return "", nil
	}
	return e.classifyLogin(ctx, sess), nil
}

func (e *Executor) classifyLogin(ctx context.Context, sess uisession.Session) string {
	form := e.cfg.Login
	if form.Feedback != "" {
		if ok, _ := sess.Present(ctx, form.Feedback, classifyProbe); ok {
			msg, _ := sess.Text(ctx, form.Feedback)
			if form.InvalidText == "" || strings.Contains(msg, form.InvalidText) {
				return ReasonInvalidCredentials
			}
		}
	}
	if form.Captcha != "" {
		if ok, _ := sess.Present(ctx, form.Captcha, classifyProbe); ok {
			return ReasonCaptchaRequired
		}
	}
	return ReasonUnknown
}

// waitUntil blocks until the clock reaches target, polling at most
// WaitGranularity apart so it never overshoots by more than one step.
func (e *Executor) waitUntil(ctx context.Context, target time.Time) error {
	for {
		now := e.clock.Now()
		if !now.Before(target) {
			return nil
		}
		step := target.Sub(now)
		if step > e.cfg.WaitGranularity {
			step = e.cfg.WaitGranularity
		}
		if err := e.sleep(ctx, step); err != nil {
			return err
		}
	}
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-e.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) attempt(ctx context.Context, m *machine, sess uisession.Session, strat strategy.Strategy, ev event.Event, opened time.Time) Result {
	deadline := opened.Add(e.cfg.AttemptDeadline)
	limit := rate.Inf
	if e.cfg.AttemptInterval > 0 {
		limit = rate.Every(e.cfg.AttemptInterval)
	}
	limiter := rate.NewLimiter(limit, 1)

	for {
		if err := e.pace(ctx, limiter, deadline); err != nil {
			return transient(*m.res, err)
		}
		m.res.Attempts++
		if err := sess.Refresh(ctx); err != nil {
			return transient(*m.res, fmt.Errorf("refresh: %w", err))
		}
		if m.res.Attempts == 1 {
			m.log.Info().Msg("reload done")
		}

		out, err := strat.Attempt(ctx, sess, ev)
		if err != nil {
			return transient(*m.res, err)
		}
		m.res.Detail = out.Detail
		if out.Committed {
			m.res.Kind = Success
			m.res.Records = out.Records
			m.res.WodResult = out.Result
			return *m.res
		}
		if strat.SingleShot() || !e.clock.Now().Before(deadline) {
			m.res.Kind = ActionNotFound
			m.res.Err = fmt.Errorf("%w: %s", ErrActionWindowMissed, out.Detail)
			return *m.res
		}
	}
}

// pace waits for the next attempt slot, never past the deadline.
func (e *Executor) pace(ctx context.Context, limiter *rate.Limiter, deadline time.Time) error {
	now := e.clock.Now()
	delay := limiter.ReserveN(now, 1).DelayFrom(now)
	if remaining := deadline.Sub(now); delay > remaining {
		delay = remaining
	}
	if delay <= 0 {
		return ctx.Err()
	}
	return e.sleep(ctx, delay)
}

func transient(res Result, err error) Result {
	res.Kind = TransientError
	res.Err = fmt.Errorf("%w: %w", ErrTransientSession, err)
	return res
}

// machine tracks the phase of one event; phases only move forward.
type machine struct {
	log zerolog.Logger
	res *Result
}

func (m *machine) enter(p Phase) {
	if p <= m.res.Phase {
		return
	}
	m.log.Debug().Stringer("from", m.res.Phase).Stringer("to", p).Msg("phase")
	m.res.Phase = p
}
