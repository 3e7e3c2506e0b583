package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/wodify-ap/internal/event"
	"github.com/example/wodify-ap/internal/strategy"
)

var (
	ErrLoginFailed        = errors.New("login failed")
	ErrActionWindowMissed = errors.New("action window missed")
	ErrTransientSession   = errors.New("transient session error")
)

// Kind classifies the terminal state of one event. The zero value is not a
// valid outcome.
type Kind int

const (
	Success Kind = iota + 1
	LoginFailed
	ActionNotFound
	TransientError
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case LoginFailed:
		return "login_failed"
	case ActionNotFound:
		return "action_not_found"
	case TransientError:
		return "transient_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Login failure reasons.
const (
	ReasonInvalidCredentials = "invalid-credentials"
	ReasonCaptchaRequired    = "captcha-required"
	ReasonUnknown            = "unknown"
)

type Phase int

const (
	Idle Phase = iota
	LoggingIn
	AwaitingWindow
	Attempting
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case LoggingIn:
		return "logging_in"
	case AwaitingWindow:
		return "awaiting_window"
	case Attempting:
		return "attempting"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type Result struct {
	EventID int64
	Action  event.ActionType
	Kind    Kind
	// Phase is the last phase entered before the event reached its
	// terminal state.
	Phase  Phase
	Reason string
	Err    error
	Detail string

	Records        []strategy.WodRecord
	WodResult      *strategy.WodResult
	Attempts       int
	OpensAt        time.Time
	WindowOpenedAt time.Time
	Finished       time.Time
}

func (r Result) Succeeded() bool { return r.Kind == Success }
