package dictation

import (
	"testing"

	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"
	"google.golang.org/grpc/codes"
)

func TestSegmentsFromResponse(t *testing.T) {
	resp := &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			{
				IsFinal: true,
				Alternatives: []*speechpb.SpeechRecognitionAlternative{
					{Transcript: "call mom", Confidence: 0.92},
					{Transcript: "call tom", Confidence: 0.41},
				},
			},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "tomor"}}},
			{IsFinal: true},
		},
	}

	segs := segmentsFromResponse(resp)

	if len(segs) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(segs), segs)
	}
	if segs[0].Text != "call mom" || !segs[0].Final {
		t.Errorf("first segment = %+v", segs[0])
	}
	if segs[1].Text != "tomor" || segs[1].Final {
		t.Errorf("second segment = %+v", segs[1])
	}
}

func TestReasonForCode(t *testing.T) {
	tests := []struct {
		code codes.Code
		want Reason
	}{
		{codes.PermissionDenied, ReasonNotAllowed},
		{codes.Unauthenticated, ReasonNotAllowed},
		{codes.InvalidArgument, ReasonLanguage},
		{codes.OutOfRange, ReasonAborted},
		{codes.Unavailable, ReasonNetwork},
		{codes.Internal, ReasonService},
	}
	for _, tt := range tests {
		if got := reasonForCode(tt.code); got != tt.want {
			t.Errorf("reasonForCode(%v) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestGoogleEngineWithoutClientIsUnsupported(t *testing.T) {
	eng := &GoogleEngine{}
	if eng.Supports() {
		t.Error("Supports() = true without a client")
	}
	if err := eng.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
