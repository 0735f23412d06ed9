package dictation

import (
	"context"
	"errors"
	"sync"
)

// Command is sent to the client that owns the recognizer of a Relay.
type Command string

const (
	CommandStart Command = "start"
	CommandStop  Command = "stop"
)

var (
	ErrNoSession = errors.New("dictation: no relay session open")
	ErrBacklog   = errors.New("dictation: relay session backlog full")
)

// Relay is an Engine whose recognizer runs in the client, typically the
// browser's speech recognition. The client reports whether it has one, is
// told to start and stop through the signal callback, and reports results
// back through Deliver.
type Relay struct {
	supported bool
	signal    func(Command) error

	mu      sync.Mutex
	current *relaySession
}

func NewRelay(supported bool, signal func(Command) error) *Relay {
	return &Relay{supported: supported, signal: signal}
}

func (r *Relay) Supports() bool { return r.supported && r.signal != nil }

func (r *Relay) Open(ctx context.Context) (Session, error) {
	if !r.Supports() {
		return nil, ErrUnsupported
	}

	r.mu.Lock()
	if r.current != nil {
		r.current.end()
	}
	s := &relaySession{relay: r, events: make(chan Event, 64)}
	r.current = s
	r.mu.Unlock()

	if err := r.signal(CommandStart); err != nil {
		r.mu.Lock()
		if r.current == s {
			r.current = nil
		}
		s.end()
		r.mu.Unlock()
		return nil, &EngineError{Reason: ReasonNetwork, Detail: err.Error()}
	}
	return s, nil
}

// Deliver hands a client-reported event to the open session. An Ended event
// closes the session.
func (r *Relay) Deliver(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.current
	if s == nil {
		return ErrNoSession
	}
	select {
	case s.events <- ev:
	default:
		// The consumer is stalled; drop the session rather than block the
		// client connection.
		s.end()
		r.current = nil
		return ErrBacklog
	}
	if ev.Kind == EventEnded {
		s.end()
		r.current = nil
	}
	return nil
}

type relaySession struct {
	relay  *Relay
	events chan Event
	closed bool
}

func (s *relaySession) Events() <-chan Event { return s.events }

// Feed is a no-op: audio never leaves the client.
func (s *relaySession) Feed([]byte) error { return nil }

func (s *relaySession) Stop() error {
	s.relay.mu.Lock()
	open := !s.closed
	s.relay.mu.Unlock()
	if !open {
		return nil
	}
	return s.relay.signal(CommandStop)
}

// Abort ends the session as if the client had reported its end.
func (s *relaySession) Abort() {
	s.relay.mu.Lock()
	defer s.relay.mu.Unlock()
	s.end()
	if s.relay.current == s {
		s.relay.current = nil
	}
}

// end must be called with the relay lock held.
func (s *relaySession) end() {
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}
