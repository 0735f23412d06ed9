package dictation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const deepgramWSURL = "wss://api.deepgram.com/v1/listen"

// DeepgramConfig holds configuration for the Deepgram streaming engine.
type DeepgramConfig struct {
	APIKey      string
	URL         string // defaults to the public listen endpoint
	Model       string // e.g. "nova-2"
	Language    string // e.g. "en-US"
	Encoding    string // e.g. "linear16"
	SampleRate  int
	Channels    int
	Punctuate   bool
	Endpointing int // milliseconds of silence, 0 for the provider default
}

// DeepgramEngine recognizes audio fed over a websocket by Deepgram's
// streaming API.
type DeepgramEngine struct {
	cfg    DeepgramConfig
	dialer *websocket.Dialer
}

func NewDeepgramEngine(cfg DeepgramConfig) *DeepgramEngine {
	if cfg.URL == "" {
		cfg.URL = deepgramWSURL
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "linear16"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &DeepgramEngine{cfg: cfg, dialer: websocket.DefaultDialer}
}

func (e *DeepgramEngine) Supports() bool { return e.cfg.APIKey != "" }

func (e *DeepgramEngine) listenURL() (string, error) {
	u, err := url.Parse(e.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	if e.cfg.Model != "" {
		q.Set("model", e.cfg.Model)
	}
	if e.cfg.Language != "" {
		q.Set("language", e.cfg.Language)
	}
	q.Set("encoding", e.cfg.Encoding)
	q.Set("sample_rate", strconv.Itoa(e.cfg.SampleRate))
	q.Set("channels", strconv.Itoa(e.cfg.Channels))
	q.Set("punctuate", strconv.FormatBool(e.cfg.Punctuate))
	q.Set("interim_results", "true")
	if e.cfg.Endpointing > 0 {
		q.Set("endpointing", strconv.Itoa(e.cfg.Endpointing))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (e *DeepgramEngine) Open(ctx context.Context) (Session, error) {
	if !e.Supports() {
		return nil, ErrUnsupported
	}
	listen, err := e.listenURL()
	if err != nil {
		return nil, &EngineError{Reason: ReasonService, Detail: err.Error()}
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+e.cfg.APIKey)

	conn, resp, err := e.dialer.DialContext(ctx, listen, headers)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &EngineError{Reason: ReasonNotAllowed, Detail: resp.Status}
		}
		return nil, &EngineError{Reason: ReasonNetwork, Detail: fmt.Sprintf("connect to Deepgram: %v", err)}
	}

	s := &deepgramSession{
		conn:   conn,
		events: make(chan Event, 100),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.Abort()
		case <-s.done:
		}
	}()
	return s, nil
}

// deepgramResponse is the subset of a Deepgram websocket message we use.
type deepgramResponse struct {
	Type    string `json:"type"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
	IsFinal     bool   `json:"is_final"`
	Description string `json:"description"`
}

type deepgramSession struct {
	conn   *websocket.Conn
	events chan Event
	done   chan struct{}

	mu        sync.Mutex // serializes writes
	stopOnce  sync.Once
	abortOnce sync.Once
	stopped   bool
}

func (s *deepgramSession) Events() <-chan Event { return s.events }

func (s *deepgramSession) Feed(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("deepgram: session is stopping")
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, audio)
}

// Stop asks Deepgram to flush pending results; it closes the socket once done.
func (s *deepgramSession) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stopped = true
		err = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	})
	return err
}

func (s *deepgramSession) Abort() {
	s.abortOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		_ = s.conn.Close()
	})
}

func (s *deepgramSession) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *deepgramSession) readLoop() {
	defer func() {
		s.events <- SessionEnded()
		close(s.events)
		close(s.done)
		_ = s.conn.Close()
	}()

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if !s.isStopped() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.events <- Failure(ReasonNetwork, err.Error())
			}
			return
		}

		var resp deepgramResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			log.Debug().Err(err).Msg("deepgram: unparseable message")
			continue
		}

		switch resp.Type {
		case "Results":
		case "Error":
			s.events <- Failure(ReasonService, resp.Description)
			return
		default:
			continue
		}

		if len(resp.Channel.Alternatives) == 0 {
			continue
		}
		alt := resp.Channel.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}
		s.events <- ResultEvent(0, Segment{
			Text:       alt.Transcript,
			Final:      resp.IsFinal,
			Confidence: alt.Confidence,
		})
	}
}
