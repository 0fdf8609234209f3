package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const whisperAPIVersion = "2024-06-01"

// whisperClient calls a Whisper deployment behind the Azure OpenAI audio
// transcription endpoint. Whisper does not diarize; speaker labels come
// from the diarization merge afterwards.
type whisperClient struct {
	endpoint   string
	key        string
	deployment string
	httpClient *http.Client
}

func newWhisperClient(cfg Config) (*whisperClient, error) {
	endpoint := strings.TrimSuffix(cfg.OpenAIEndpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("openai endpoint is required for whisper_api")
	}
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("openai api key is required for whisper_api")
	}
	deployment := cfg.WhisperDeployment
	if deployment == "" {
		deployment = "whisper"
	}

	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 300
	}

	return &whisperClient{
		endpoint:   endpoint,
		key:        cfg.OpenAIKey,
		deployment: deployment,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}, nil
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Text       string  `json:"text"`
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		AvgLogprob float64 `json:"avg_logprob"`
	} `json:"segments"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *whisperClient) Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error) {
	body, contentType, err := c.buildBody(audioPath, opts)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/audio/transcriptions?api-version=%s",
		c.endpoint, c.deployment, whisperAPIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("api-key", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, fmt.Errorf("whisper request timed out: %w", err)
		}
		return nil, fmt.Errorf("whisper request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed whisperResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, fmt.Errorf("whisper error %s: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("whisper request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	segments := make([]Segment, 0, len(parsed.Segments))
	for _, seg := range parsed.Segments {
		segments = append(segments, Segment{
			Text:       strings.TrimSpace(seg.Text),
			StartTime:  seg.Start,
			EndTime:    seg.End,
			Confidence: logprobToConfidence(seg.AvgLogprob),
		})
	}

	fullText := strings.TrimSpace(parsed.Text)
	if fullText == "" {
		fullText = joinSegmentText(segments)
	}

	result := &Result{
		Segments: segments,
		FullText: fullText,
		Duration: parsed.Duration,
		Language: parsed.Language,
	}
	EnsureLanguage(result)
	return result, nil
}

func (c *whisperClient) buildBody(audioPath string, opts Options) (io.Reader, string, error) {
	audioData, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read audio file: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	filePart, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := filePart.Write(audioData); err != nil {
		return nil, "", err
	}

	fields := map[string]string{
		"response_format": "verbose_json",
	}
	if opts.Language != "" {
		fields["language"] = shortLanguageCode(opts.Language)
	}
	if opts.Temperature != nil {
		fields["temperature"] = strconv.FormatFloat(*opts.Temperature, 'f', -1, 64)
	}
	prompt := opts.InitialPrompt
	if prompt == "" && len(opts.CustomTerms) > 0 {
		// Whisper has no phrase list; seed custom terms through the prompt.
		prompt = "Vocabulary: " + strings.Join(opts.CustomTerms, ", ")
	}
	if prompt != "" {
		fields["prompt"] = prompt
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

// logprobToConfidence maps a whisper avg_logprob to a 0-1 confidence.
func logprobToConfidence(logprob float64) float64 {
	confidence := math.Exp(logprob)
	if confidence > 1 {
		return 1
	}
	if confidence < 0 {
		return 0
	}
	return confidence
}

// shortLanguageCode reduces a BCP-47 tag like "en-US" to the bare code
// whisper expects.
func shortLanguageCode(lang string) string {
	if idx := strings.IndexAny(lang, "-_"); idx > 0 {
		return strings.ToLower(lang[:idx])
	}
	return strings.ToLower(lang)
}
