package dictation

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupported is reported when the host has no speech-to-text capability.
var ErrUnsupported = errors.New("dictation: speech recognition is not supported")

// Engine is a speech-to-text capability. Supports is consulted once, when a
// Controller is built.
type Engine interface {
	Supports() bool
	Open(ctx context.Context) (Session, error)
}

// Session is one continuous recognition session. Events are delivered in the
// order the engine produced them; the channel is closed after the session ends.
type Session interface {
	Events() <-chan Event
	// Feed pushes captured audio to engines that recognize server-side.
	Feed(audio []byte) error
	// Stop asks the engine to finish. Trailing results and the Ended event
	// arrive afterwards on Events.
	Stop() error
	// Abort releases the session without waiting for the engine. Events is
	// closed shortly after.
	Abort()
}

// Segment is one recognized span of speech.
type Segment struct {
	Text       string
	Final      bool
	Confidence float64
}

type EventKind int

const (
	EventResult EventKind = iota
	EventEnded
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventResult:
		return "result"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a tagged engine notification. For EventResult, segments before
// ResultIndex were already reported by earlier events.
type Event struct {
	Kind        EventKind
	ResultIndex int
	Results     []Segment
	Err         error
}

func ResultEvent(index int, results ...Segment) Event {
	return Event{Kind: EventResult, ResultIndex: index, Results: results}
}

// FinalSegment is a result event holding a single final segment.
func FinalSegment(text string) Event {
	return ResultEvent(0, Segment{Text: text, Final: true})
}

// InterimSegment is a result event holding a single tentative segment.
func InterimSegment(text string) Event {
	return ResultEvent(0, Segment{Text: text})
}

func SessionEnded() Event {
	return Event{Kind: EventEnded}
}

func Failure(reason Reason, detail string) Event {
	return Event{Kind: EventError, Err: &EngineError{Reason: reason, Detail: detail}}
}

// Reason classifies runtime engine errors. The values follow the error codes
// browsers report for speech recognition so relayed errors keep their meaning.
type Reason string

const (
	ReasonNoSpeech     Reason = "no-speech"
	ReasonAborted      Reason = "aborted"
	ReasonAudioCapture Reason = "audio-capture"
	ReasonNetwork      Reason = "network"
	ReasonNotAllowed   Reason = "not-allowed"
	ReasonService      Reason = "service-not-allowed"
	ReasonLanguage     Reason = "language-not-supported"
	ReasonUnknown      Reason = "unknown"
)

// ParseReason maps an engine-reported code onto a Reason.
func ParseReason(code string) Reason {
	switch r := Reason(code); r {
	case ReasonNoSpeech, ReasonAborted, ReasonAudioCapture, ReasonNetwork,
		ReasonNotAllowed, ReasonService, ReasonLanguage:
		return r
	case "bad-grammar":
		return ReasonLanguage
	default:
		return ReasonUnknown
	}
}

type EngineError struct {
	Reason Reason
	Detail string
}

func (e *EngineError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("dictation: %s", e.Reason)
	}
	return fmt.Sprintf("dictation: %s: %s", e.Reason, e.Detail)
}

func asEngineError(err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return &EngineError{Reason: ReasonUnknown, Detail: err.Error()}
}
