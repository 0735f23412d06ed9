package dictation

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type commandLog struct {
	mu   sync.Mutex
	cmds []Command
	err  error
}

func (l *commandLog) signal(cmd Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cmds = append(l.cmds, cmd)
	return l.err
}

func (l *commandLog) sent() []Command {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Command(nil), l.cmds...)
}

func TestRelayRoundTrip(t *testing.T) {
	var log commandLog
	relay := NewRelay(true, log.signal)
	c := NewController(relay)
	defer c.Close()

	c.Start(context.Background())
	if !c.IsListening() {
		t.Fatal("controller should listen once the relay opened")
	}

	if err := relay.Deliver(ResultEvent(0, Segment{Text: "buy milk", Final: true}, Segment{Text: "and"})); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	waitFor(t, "relayed segment", func() bool { return c.Transcript() == "buy milk " })

	c.Stop()
	if !c.IsListening() {
		t.Error("controller should wait for the client to report the end")
	}
	if err := relay.Deliver(SessionEnded()); err != nil {
		t.Fatalf("Deliver end: %v", err)
	}
	waitFor(t, "idle", func() bool { return !c.IsListening() })

	got := log.sent()
	if len(got) != 2 || got[0] != CommandStart || got[1] != CommandStop {
		t.Errorf("commands = %v, want [start stop]", got)
	}
	if err := relay.Deliver(FinalSegment("late")); !errors.Is(err, ErrNoSession) {
		t.Errorf("Deliver after end = %v, want ErrNoSession", err)
	}
}

func TestRelayClientError(t *testing.T) {
	var log commandLog
	relay := NewRelay(true, log.signal)
	c := NewController(relay)
	defer c.Close()
	c.Start(context.Background())

	_ = relay.Deliver(Failure(ParseReason("no-speech"), ""))
	_ = relay.Deliver(SessionEnded())

	waitFor(t, "error", func() bool { return c.Err() != nil })
	if c.IsListening() {
		t.Error("controller should be idle after a relayed error")
	}
	if got := c.Err().Error(); got != "dictation: no-speech" {
		t.Errorf("Err() = %q", got)
	}
}

func TestRelayUnsupported(t *testing.T) {
	var log commandLog
	for name, relay := range map[string]*Relay{
		"client without recognizer": NewRelay(false, log.signal),
		"no signal channel":         NewRelay(true, nil),
	} {
		t.Run(name, func(t *testing.T) {
			if relay.Supports() {
				t.Fatal("Supports() = true, want false")
			}
			if _, err := relay.Open(context.Background()); !errors.Is(err, ErrUnsupported) {
				t.Errorf("Open() error = %v, want ErrUnsupported", err)
			}
		})
	}
	if len(log.sent()) != 0 {
		t.Errorf("commands = %v, want none", log.sent())
	}
}

func TestRelaySignalFailure(t *testing.T) {
	log := commandLog{err: errors.New("socket closed")}
	relay := NewRelay(true, log.signal)
	c := NewController(relay)
	defer c.Close()

	c.Start(context.Background())

	var ee *EngineError
	if c.IsListening() || !errors.As(c.Err(), &ee) || ee.Reason != ReasonNetwork {
		t.Errorf("listening=%v err=%v, want idle with network error", c.IsListening(), c.Err())
	}
	if err := relay.Deliver(FinalSegment("x")); !errors.Is(err, ErrNoSession) {
		t.Errorf("Deliver = %v, want ErrNoSession", err)
	}
}

func TestParseReason(t *testing.T) {
	tests := map[string]Reason{
		"not-allowed":            ReasonNotAllowed,
		"network":                ReasonNetwork,
		"audio-capture":          ReasonAudioCapture,
		"bad-grammar":            ReasonLanguage,
		"language-not-supported": ReasonLanguage,
		"":                       ReasonUnknown,
		"something-new":          ReasonUnknown,
	}
	for code, want := range tests {
		if got := ParseReason(code); got != want {
			t.Errorf("ParseReason(%q) = %q, want %q", code, got, want)
		}
	}
}

func TestRelayStopFailureReleasesSession(t *testing.T) {
	var log commandLog
	relay := NewRelay(true, log.signal)
	c := NewController(relay)
	defer c.Close()

	c.Start(context.Background())
	log.mu.Lock()
	log.err = errors.New("client gone")
	log.mu.Unlock()

	c.Stop()

	if c.IsListening() {
		t.Error("controller still listening after the stop command failed")
	}
	if err := relay.Deliver(FinalSegment("late")); !errors.Is(err, ErrNoSession) {
		t.Errorf("Deliver after abort = %v, want ErrNoSession", err)
	}
}
