package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const azureTranscribeAPIVersion = "2024-11-15"

// azureClient calls the Azure Speech fast transcription REST API. It is
// also the fast diarization path: the same call returns speaker-attributed
// phrases when diarization is enabled.
type azureClient struct {
	endpoint   string
	key        string
	httpClient *http.Client
}

func newAzureClient(cfg Config) (*azureClient, error) {
	endpoint := strings.TrimSuffix(cfg.AzureSpeechEndpoint, "/")
	if endpoint == "" {
		if cfg.AzureSpeechRegion == "" {
			return nil, fmt.Errorf("azure speech region or endpoint is required")
		}
		endpoint = fmt.Sprintf("https://%s.api.cognitive.microsoft.com", cfg.AzureSpeechRegion)
	}
	if cfg.AzureSpeechKey == "" {
		return nil, fmt.Errorf("azure speech key is required")
	}

	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 300
	}

	return &azureClient{
		endpoint: endpoint,
		key:      cfg.AzureSpeechKey,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}, nil
}

// transcribeDefinition is the JSON definition part of the multipart
// request, mirroring the fast transcription API contract.
type transcribeDefinition struct {
	Locales     []string             `json:"locales,omitempty"`
	Diarization *diarizationSettings `json:"diarization,omitempty"`
	PhraseList  *phraseListSettings  `json:"phraseList,omitempty"`
}

type diarizationSettings struct {
	Enabled     bool `json:"enabled"`
	MaxSpeakers int  `json:"maxSpeakers,omitempty"`
}

type phraseListSettings struct {
	Phrases []string `json:"phrases"`
}

type transcribeResponse struct {
	DurationMilliseconds int64 `json:"durationMilliseconds"`
	CombinedPhrases      []struct {
		Text string `json:"text"`
	} `json:"combinedPhrases"`
	Phrases []struct {
		Speaker              int     `json:"speaker"`
		OffsetMilliseconds   int64   `json:"offsetMilliseconds"`
		DurationMilliseconds int64   `json:"durationMilliseconds"`
		Text                 string  `json:"text"`
		Locale               string  `json:"locale"`
		Confidence           float64 `json:"confidence"`
	} `json:"phrases"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *azureClient) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	resp, err := c.transcribe(ctx, audioPath, opts)
	if err != nil {
		return nil, err
	}

	segments := make([]Segment, 0, len(resp.Phrases))
	for _, phrase := range resp.Phrases {
		start := float64(phrase.OffsetMilliseconds) / 1000
		seg := Segment{
			Text:       phrase.Text,
			StartTime:  start,
			EndTime:    start + float64(phrase.DurationMilliseconds)/1000,
			Confidence: phrase.Confidence,
		}
		if opts.EnableDiarization && phrase.Speaker > 0 {
			seg.SpeakerID = fmt.Sprintf("Speaker %d", phrase.Speaker)
		}
		segments = append(segments, seg)
	}

	fullText := ""
	if len(resp.CombinedPhrases) > 0 {
		fullText = resp.CombinedPhrases[0].Text
	}
	if fullText == "" {
		fullText = joinSegmentText(segments)
	}

	language := opts.Language
	if language == "" && len(resp.Phrases) > 0 {
		language = resp.Phrases[0].Locale
	}

	result := &Result{
		Segments: segments,
		FullText: fullText,
		Duration: float64(resp.DurationMilliseconds) / 1000,
		Language: language,
	}
	EnsureLanguage(result)
	return result, nil
}

// SpeakerTurns runs the same fast transcription call with diarization
// forced on and returns only the speaker turns. Used by the diarization
// coordinator's fast path.
func (c *azureClient) SpeakerTurns(ctx context.Context, audioPath string, opts Options) ([]SpeakerTurn, error) {
	opts.EnableDiarization = true
	resp, err := c.transcribe(ctx, audioPath, opts)
	if err != nil {
		return nil, err
	}

	turns := make([]SpeakerTurn, 0, len(resp.Phrases))
	for _, phrase := range resp.Phrases {
		if phrase.Speaker <= 0 {
			continue
		}
		start := float64(phrase.OffsetMilliseconds) / 1000
		turns = append(turns, SpeakerTurn{
			SpeakerID: fmt.Sprintf("Speaker %d", phrase.Speaker),
			StartTime: start,
			EndTime:   start + float64(phrase.DurationMilliseconds)/1000,
		})
	}
	return turns, nil
}

func (c *azureClient) transcribe(ctx context.Context, audioPath string, opts Options) (*transcribeResponse, error) {
	definition := transcribeDefinition{}
	if opts.Language != "" {
		definition.Locales = []string{opts.Language}
	}
	for _, candidate := range opts.LanguageCandidates {
		if candidate != "" && candidate != opts.Language {
			definition.Locales = append(definition.Locales, candidate)
		}
	}
	if opts.EnableDiarization {
		definition.Diarization = &diarizationSettings{
			Enabled:     true,
			MaxSpeakers: opts.MaxSpeakers,
		}
	}
	if len(opts.CustomTerms) > 0 {
		definition.PhraseList = &phraseListSettings{Phrases: opts.CustomTerms}
	}

	body, contentType, err := buildTranscribeBody(audioPath, definition)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/speechtotext/transcriptions:transcribe?api-version=%s", c.endpoint, azureTranscribeAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Ocp-Apim-Subscription-Key", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, fmt.Errorf("transcription request timed out: %w", err)
		}
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("azure speech error %s: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("azure speech request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	return &parsed, nil
}

func buildTranscribeBody(audioPath string, definition transcribeDefinition) (io.Reader, string, error) {
	audioData, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio file: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filePart, err := writer.CreateFormFile("audio", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := filePart.Write(audioData); err != nil {
		return nil, "", err
	}

	definitionJSON, err := json.Marshal(definition)
	if err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("definition", string(definitionJSON)); err != nil {
		return nil, "", err
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
