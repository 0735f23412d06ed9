package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"voice-notes/config"
	"voice-notes/dictation"
	"voice-notes/domain"
	"voice-notes/editor"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	dictationWriteWait = 10 * time.Second
	dictationHelloWait = 10 * time.Second
	dictationReadLimit = 1 << 20
)

// dictationMessage is any frame the editor client sends as text.
type dictationMessage struct {
	Type string `json:"type"`

	// hello
	Supported bool `json:"supported"`

	// focus
	Field string `json:"field"`

	// edit
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Color   *string `json:"color"`

	// result, error: relayed from the client's recognizer
	ResultIndex int              `json:"resultIndex"`
	Results     []relayedSegment `json:"results"`
	Error       string           `json:"error"`
}

type relayedSegment struct {
	Transcript string  `json:"transcript"`
	IsFinal    bool    `json:"isFinal"`
	Confidence float64 `json:"confidence"`
}

type dictationState struct {
	Type       string       `json:"type"`
	Supported  bool         `json:"supported"`
	Listening  bool         `json:"listening"`
	Transcript string       `json:"transcript"`
	Error      string       `json:"error,omitempty"`
	Draft      editor.Draft `json:"draft"`
}

type dictationCommand struct {
	Type    string            `json:"type"`
	Command dictation.Command `json:"command"`
}

type dictationSaved struct {
	Type string       `json:"type"`
	Note *domain.Note `json:"note"`
}

type dictationError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// HandleDictation runs a websocket editing session: one draft note and one
// dictation controller that merges finalized speech into the focused field.
func (s *Server) HandleDictation() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		draft := editor.New()
		if id := r.URL.Query().Get("note"); id != "" {
			note, err := s.findNote(r, id)
			if err != nil {
				s.noteError(w, r, err, "HandleDictation", id)
				return
			}
			draft = editor.FromNote(*note)
		}

		conn, err := s.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("dictation upgrade failed")
			return
		}
		defer conn.Close()
		conn.SetReadLimit(dictationReadLimit)

		d := &dictationConn{
			s:      s,
			r:      r,
			conn:   conn,
			draft:  draft,
			logger: log.With().Uint("profile", ProfileID(r.Context())).Str("component", "dictation").Logger(),
		}
		d.run(r.Context())
	}
}

// dictationEngine picks the recognizer for one connection. The browser relay
// is bound to the connection; server-side engines are shared.
func (s *Server) dictationEngine(clientSupported bool, signal func(dictation.Command) error) (dictation.Engine, *dictation.Relay) {
	switch s.Config.DictationEngine {
	case config.EngineDeepgram:
		return dictation.NewDeepgramEngine(dictation.DeepgramConfig{
			APIKey:    s.Config.DeepgramAPIKey,
			Model:     s.Config.DeepgramModel,
			Language:  s.Config.DictationLanguage,
			Punctuate: true,
		}), nil
	case config.EngineGoogle:
		if s.speech == nil {
			return nil, nil
		}
		return s.speech, nil
	default:
		relay := dictation.NewRelay(clientSupported, signal)
		return relay, relay
	}
}

type dictationConn struct {
	s      *Server
	r      *http.Request
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex

	draftMu sync.Mutex
	draft   *editor.Draft

	ctrl  *dictation.Controller
	relay *dictation.Relay
}

func (d *dictationConn) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hello, err := d.readHello()
	if err != nil {
		d.logger.Debug().Err(err).Msg("dictation client sent no hello")
		_ = d.send(dictationError{Type: "error", Error: "expected hello"})
		return
	}

	engine, relay := d.s.dictationEngine(hello.Supported, d.signal)
	d.relay = relay
	d.ctrl = dictation.NewController(engine, dictation.WithLogger(d.logger))

	watched := make(chan struct{})
	go func() {
		defer close(watched)
		d.watch()
	}()
	defer func() {
		d.ctrl.Close()
		<-watched
	}()

	_ = d.sendState()

	for {
		typ, data, err := d.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.logger.Debug().Err(err).Msg("dictation connection closed")
			}
			return
		}
		if typ == websocket.BinaryMessage {
			d.ctrl.Feed(data)
			continue
		}

		msg := dictationMessage{}
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = d.send(dictationError{Type: "error", Error: "malformed message"})
			continue
		}
		d.dispatch(ctx, msg)
	}
}

func (d *dictationConn) readHello() (dictationMessage, error) {
	msg := dictationMessage{}
	_ = d.conn.SetReadDeadline(time.Now().Add(dictationHelloWait))
	defer d.conn.SetReadDeadline(time.Time{})

	if err := d.conn.ReadJSON(&msg); err != nil {
		return msg, err
	}
	if msg.Type != "hello" {
		return msg, &websocket.CloseError{Code: websocket.ClosePolicyViolation, Text: "expected hello"}
	}
	return msg, nil
}

func (d *dictationConn) dispatch(ctx context.Context, msg dictationMessage) {
	switch msg.Type {
	case "start":
		d.ctrl.Start(ctx)
	case "stop":
		d.ctrl.Stop()
	case "reset":
		d.ctrl.ResetTranscript()
	case "focus":
		field, err := editor.ParseField(msg.Field)
		if err != nil {
			_ = d.send(dictationError{Type: "error", Error: err.Error()})
			return
		}
		d.draftMu.Lock()
		d.draft.Focus(field)
		d.draftMu.Unlock()
		_ = d.sendState()
	case "edit":
		d.draftMu.Lock()
		err := d.draft.Edit(msg.Title, msg.Content, msg.Color)
		d.draftMu.Unlock()
		if err != nil {
			_ = d.send(dictationError{Type: "error", Error: err.Error()})
			return
		}
		_ = d.sendState()
	case "result", "end", "error":
		d.deliver(msg)
	case "save":
		d.save()
	default:
		_ = d.send(dictationError{Type: "error", Error: "unknown message type " + msg.Type})
	}
}

// deliver hands recognizer output reported by the client to the relay.
func (d *dictationConn) deliver(msg dictationMessage) {
	if d.relay == nil {
		_ = d.send(dictationError{Type: "error", Error: "recognition runs on the server"})
		return
	}

	var ev dictation.Event
	switch msg.Type {
	case "result":
		segs := make([]dictation.Segment, 0, len(msg.Results))
		for _, r := range msg.Results {
			segs = append(segs, dictation.Segment{Text: r.Transcript, Final: r.IsFinal, Confidence: r.Confidence})
		}
		ev = dictation.ResultEvent(msg.ResultIndex, segs...)
	case "end":
		ev = dictation.SessionEnded()
	default:
		ev = dictation.Failure(dictation.ParseReason(msg.Error), "")
	}

	if err := d.relay.Deliver(ev); err != nil {
		d.logger.Debug().Err(err).Str("event", ev.Kind.String()).Msg("dropped relayed event")
	}
}

func (d *dictationConn) save() {
	d.draftMu.Lock()
	defer d.draftMu.Unlock()

	if err := d.draft.Validate(); err != nil {
		_ = d.send(dictationError{Type: "error", Error: err.Error()})
		return
	}

	profileID := ProfileID(d.r.Context())
	fields := d.draft.Note(profileID)
	var note *domain.Note
	var err error
	if d.draft.NoteID == "" {
		note = &fields
		err = d.s.createNote(d.r, note)
	} else {
		note, err = d.s.findNote(d.r, d.draft.NoteID)
		if err == nil {
			note.Title = fields.Title
			note.Content = fields.Content
			note.Color = fields.Color
			err = d.s.saveNote(d.r, note)
		}
	}
	if err != nil {
		d.logger.Warn().Err(err).Msg("saving dictated note")
		_ = d.send(dictationError{Type: "error", Error: "could not save note"})
		return
	}

	d.draft.NoteID = note.ID
	_ = d.send(dictationSaved{Type: "saved", Note: note})
}

// watch merges new transcript text into the draft on every controller change
// and pushes the resulting state to the client.
func (d *dictationConn) watch() {
	for range d.ctrl.Updates() {
		d.draftMu.Lock()
		d.draft.Absorb(d.ctrl)
		d.draftMu.Unlock()
		if err := d.sendState(); err != nil {
			d.logger.Debug().Err(err).Msg("could not push dictation state")
		}
	}
}

func (d *dictationConn) signal(cmd dictation.Command) error {
	return d.send(dictationCommand{Type: "command", Command: cmd})
}

func (d *dictationConn) sendState() error {
	state := dictationState{
		Type:       "state",
		Supported:  d.ctrl.IsSupported(),
		Listening:  d.ctrl.IsListening(),
		Transcript: d.ctrl.Transcript(),
	}
	if err := d.ctrl.Err(); err != nil {
		state.Error = err.Error()
	}
	d.draftMu.Lock()
	state.Draft = *d.draft
	d.draftMu.Unlock()

	return d.send(state)
}

func (d *dictationConn) send(v interface{}) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_ = d.conn.SetWriteDeadline(time.Now().Add(dictationWriteWait))
	return d.conn.WriteJSON(v)
}
