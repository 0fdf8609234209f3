package transcription

import (
	"context"
	"fmt"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// Method names accepted at submission time.
const (
	MethodAzure      = "azure"
	MethodWhisperAPI = "whisper_api"
)

// Transcriber converts one audio file into timed text segments.
// Implementations are external collaborators; the pipeline only relies on
// this contract.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)
}

// Config holds every backend credential. A method whose credentials are
// missing fails at construction, not mid-pipeline.
type Config struct {
	AzureSpeechKey      string
	AzureSpeechRegion   string
	AzureSpeechEndpoint string

	OpenAIEndpoint    string
	OpenAIKey         string
	WhisperDeployment string

	TimeoutSeconds int
}

// New selects the concrete backend for a method. Unknown methods and
// missing credentials are configuration errors.
func New(method string, cfg Config) (Transcriber, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case MethodAzure:
		return newAzureClient(cfg)
	case MethodWhisperAPI:
		return newWhisperClient(cfg)
	default:
		return nil, fmt.Errorf("unknown transcription method: %s", method)
	}
}

// SpeakerTurnSource is the batch speaker-turn path.
type SpeakerTurnSource interface {
	SpeakerTurns(ctx context.Context, audioPath string, opts Options) ([]SpeakerTurn, error)
}

// StreamingSpeakerTurnSource is the chunked streaming path.
type StreamingSpeakerTurnSource interface {
	StreamSpeakerTurns(ctx context.Context, audioPath string, opts Options) ([]SpeakerTurn, error)
}

// NewFastDiarization returns the single-call speaker-turn backend.
func NewFastDiarization(cfg Config) (SpeakerTurnSource, error) {
	return newAzureClient(cfg)
}

// NewRealtimeDiarization returns the chunked fallback backend.
func NewRealtimeDiarization(cfg Config) (StreamingSpeakerTurnSource, error) {
	return newRealtimeClient(cfg)
}

// Methods returns the method names the given configuration can serve.
func Methods(cfg Config) []string {
	ret := make([]string, 0, 2)
	if cfg.AzureSpeechRegion != "" || cfg.AzureSpeechEndpoint != "" {
		ret = append(ret, MethodAzure)
	}
	if cfg.OpenAIEndpoint != "" {
		ret = append(ret, MethodWhisperAPI)
	}
	return ret
}

// EnsureLanguage fills in Result.Language by detecting it from the full
// text when the backend did not report one.
func EnsureLanguage(result *Result) {
	if result == nil || result.Language != "" || result.FullText == "" {
		return
	}
	if lang := whatlanggo.DetectLang(result.FullText).Iso6391(); lang != "" {
		result.Language = lang
	}
}

func joinSegmentText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
