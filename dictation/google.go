package dictation

import (
	"context"
	"errors"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type GoogleConfig struct {
	CredentialsFile string
	LanguageCode    string
	SampleRateHertz int32
}

// GoogleEngine streams audio to Google Cloud Speech-to-Text.
type GoogleEngine struct {
	cfg    GoogleConfig
	client *speech.Client
}

// NewGoogleEngine creates the speech client up front. When that fails the
// engine reports itself unsupported instead of failing the caller.
func NewGoogleEngine(ctx context.Context, cfg GoogleConfig) *GoogleEngine {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.SampleRateHertz == 0 {
		cfg.SampleRateHertz = 16000
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		log.Warn().Err(err).Msg("google speech client unavailable")
		return &GoogleEngine{cfg: cfg}
	}
	return &GoogleEngine{cfg: cfg, client: client}
}

func (e *GoogleEngine) Supports() bool { return e.client != nil }

func (e *GoogleEngine) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

func (e *GoogleEngine) Open(ctx context.Context) (Session, error) {
	if !e.Supports() {
		return nil, ErrUnsupported
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, err := e.client.StreamingRecognize(ctx)
	if err != nil {
		cancel()
		return nil, googleError(err)
	}
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            e.cfg.SampleRateHertz,
					LanguageCode:               e.cfg.LanguageCode,
					AudioChannelCount:          1,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: true,
			},
		},
	})
	if err != nil {
		cancel()
		return nil, googleError(err)
	}

	s := &googleSession{stream: stream, cancel: cancel, events: make(chan Event, 100)}
	go s.recvLoop()
	return s, nil
}

type googleSession struct {
	stream speechpb.Speech_StreamingRecognizeClient
	cancel context.CancelFunc
	events chan Event

	mu      sync.Mutex
	stopped bool
}

func (s *googleSession) Events() <-chan Event { return s.events }

func (s *googleSession) Feed(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("google speech: session is stopping")
	}
	return s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: audio},
	})
}

// Stop half-closes the stream; the service answers with the remaining
// results and then io.EOF.
func (s *googleSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	return s.stream.CloseSend()
}

// Abort cancels the stream; recvLoop then ends the session.
func (s *googleSession) Abort() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
}

func (s *googleSession) recvLoop() {
	defer func() {
		s.cancel()
		s.events <- SessionEnded()
		close(s.events)
	}()

	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.events <- Event{Kind: EventError, Err: googleError(err)}
			return
		}
		if st := resp.GetError(); st != nil && st.GetCode() != int32(codes.OK) {
			s.events <- Failure(reasonForCode(codes.Code(st.GetCode())), st.GetMessage())
			return
		}
		if segs := segmentsFromResponse(resp); len(segs) > 0 {
			s.events <- ResultEvent(0, segs...)
		}
	}
}

// segmentsFromResponse keeps the top alternative of every result.
func segmentsFromResponse(resp *speechpb.StreamingRecognizeResponse) []Segment {
	var segs []Segment
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		segs = append(segs, Segment{
			Text:       alts[0].GetTranscript(),
			Final:      result.GetIsFinal(),
			Confidence: float64(alts[0].GetConfidence()),
		})
	}
	return segs
}

func googleError(err error) *EngineError {
	if st, ok := status.FromError(err); ok {
		return &EngineError{Reason: reasonForCode(st.Code()), Detail: st.Message()}
	}
	return &EngineError{Reason: ReasonNetwork, Detail: err.Error()}
}

func reasonForCode(code codes.Code) Reason {
	switch code {
	case codes.PermissionDenied, codes.Unauthenticated:
		return ReasonNotAllowed
	case codes.InvalidArgument:
		return ReasonLanguage
	case codes.Canceled, codes.DeadlineExceeded, codes.OutOfRange:
		return ReasonAborted
	case codes.Unavailable, codes.ResourceExhausted:
		return ReasonNetwork
	default:
		return ReasonService
	}
}
