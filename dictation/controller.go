package dictation

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	default:
		return "unknown"
	}
}

// Controller drives one dictation session at a time on behalf of a single
// editor. Finalized text accumulates in the transcript until the consumer
// calls ResetTranscript.
type Controller struct {
	engine    Engine
	supported bool
	logger    zerolog.Logger

	// ops serializes Start, Stop and Close so an Open in flight cannot race a
	// second Start.
	ops sync.Mutex

	mu         sync.Mutex
	state      State
	session    Session
	transcript strings.Builder
	err        error
	closed     bool
	updates    chan struct{}
}

type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController checks the engine's capability once. A nil engine is treated
// as absent.
func NewController(engine Engine, opts ...Option) *Controller {
	c := &Controller{
		engine:  engine,
		logger:  log.With().Str("component", "dictation").Logger(),
		updates: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.supported = engine != nil && engine.Supports()
	if !c.supported {
		c.logger.Debug().Msg("speech recognition unavailable, dictation disabled")
	}
	return c
}

func (c *Controller) IsSupported() bool { return c.supported }

func (c *Controller) IsListening() bool {
	return c.State() == Listening
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.String()
}

// Err returns the last engine error, or nil. A successful Start clears it.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Updates signals that state, transcript or error changed. Signals coalesce;
// readers should re-read the controller after each one. The channel is closed
// by Close.
func (c *Controller) Updates() <-chan struct{} {
	return c.updates
}

// Start opens a recognition session and returns without waiting for speech.
// It is a no-op while already listening, after Close, or when recognition is
// unsupported. An engine failure is recorded in Err.
func (c *Controller) Start(ctx context.Context) {
	if !c.supported {
		return
	}

	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if c.closed || c.state == Listening {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	sess, err := c.engine.Open(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.err = asEngineError(err)
		c.logger.Warn().Err(err).Msg("could not start dictation session")
		c.notify()
		return
	}

	c.session = sess
	c.state = Listening
	c.err = nil
	c.notify()
	go c.pump(sess)
}

// Stop requests the current session to end. The controller stays Listening
// until the engine confirms with an Ended event.
func (c *Controller) Stop() {
	if !c.supported {
		return
	}

	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	sess := c.session
	listening := c.state == Listening
	c.mu.Unlock()
	if !listening || sess == nil {
		return
	}

	if err := sess.Stop(); err != nil {
		c.logger.Warn().Err(err).Msg("engine refused stop, ending session")
		c.handle(sess, SessionEnded())
		sess.Abort()
	}
}

// ResetTranscript clears the accumulated text without touching the session.
func (c *Controller) ResetTranscript() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transcript.Len() == 0 {
		return
	}
	c.transcript.Reset()
	c.notify()
}

// TakeTranscript returns the accumulated text and clears it atomically.
// Segments appended after the call stay in the buffer for the next one.
func (c *Controller) TakeTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := c.transcript.String()
	if text == "" {
		return ""
	}
	c.transcript.Reset()
	c.notify()
	return text
}

// Feed forwards captured audio to the active session. Audio arriving while
// idle is dropped.
func (c *Controller) Feed(audio []byte) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		return
	}
	if err := sess.Feed(audio); err != nil {
		c.logger.Debug().Err(err).Int("bytes", len(audio)).Msg("dropped audio chunk")
	}
}

// Close tears the controller down with its editor: any session is stopped,
// the transcript is discarded and Updates is closed.
func (c *Controller) Close() {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sess := c.session
	c.session = nil
	c.state = Idle
	c.transcript.Reset()
	close(c.updates)
	c.mu.Unlock()

	if sess != nil {
		stopSession(c.logger, sess)
	}
}

func (c *Controller) pump(sess Session) {
	for ev := range sess.Events() {
		c.handle(sess, ev)
	}
	// A channel closed without Ended still ends the session.
	c.handle(sess, SessionEnded())
}

// handle applies one engine event. Events of a session that is no longer
// current are dropped.
func (c *Controller) handle(sess Session, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || sess != c.session {
		return
	}

	switch ev.Kind {
	case EventResult:
		if c.appendFinal(ev) {
			c.notify()
		}
	case EventError:
		err := ev.Err
		if err == nil {
			err = &EngineError{Reason: ReasonUnknown}
		}
		c.err = asEngineError(err)
		c.detach()
		c.logger.Info().Err(err).Msg("dictation session failed")
		go stopSession(c.logger, sess)
	case EventEnded:
		c.detach()
	}
}

func (c *Controller) appendFinal(ev Event) bool {
	start := ev.ResultIndex
	if start < 0 {
		start = 0
	}
	changed := false
	for i := start; i < len(ev.Results); i++ {
		seg := ev.Results[i]
		if !seg.Final {
			continue
		}
		c.transcript.WriteString(seg.Text)
		c.transcript.WriteByte(' ')
		changed = true
	}
	return changed
}

func (c *Controller) detach() {
	c.session = nil
	c.state = Idle
	c.notify()
}

// notify must be called with mu held.
func (c *Controller) notify() {
	if c.closed {
		return
	}
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

func stopSession(logger zerolog.Logger, sess Session) {
	if err := sess.Stop(); err != nil {
		logger.Debug().Err(err).Msg("stopping dictation session")
	}
}
