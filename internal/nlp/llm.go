package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// LLMConfig holds the configuration for the LLM-backed analyzer. Any
// OpenAI-compatible chat completion endpoint works.
type LLMConfig struct {
	APIURL         string
	APIKey         string
	Model          string
	MaxTokens      int
	Temperature    float64
	TimeoutSeconds int
}

func (c LLMConfig) validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return fmt.Errorf("llm api url is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("llm api key is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("llm model is required")
	}
	return nil
}

// LLMAnalyzer implements Analyzer against a chat completion API. Each
// feature is one prompt constrained to JSON output, so features stay
// independently callable and independently failable.
type LLMAnalyzer struct {
	config     LLMConfig
	httpClient *http.Client
}

func NewLLMAnalyzer(config LLMConfig) (*LLMAnalyzer, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4000
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 60
	}
	return &LLMAnalyzer{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (a *LLMAnalyzer) KeyPhrases(ctx context.Context, text string) ([]KeyPhrase, error) {
	const system = "You extract key phrases from meeting transcripts. " +
		"Respond with only a JSON array of objects with fields \"text\" and \"count\", " +
		"most important first, at most 15 entries."
	content, err := a.chat(ctx, system, text)
	if err != nil {
		return nil, err
	}
	var phrases []KeyPhrase
	if err := decodeJSONReply(content, &phrases); err != nil {
		return nil, err
	}
	return phrases, nil
}

func (a *LLMAnalyzer) Sentiment(ctx context.Context, text string) (*Sentiment, error) {
	const system = "You classify the overall sentiment of meeting transcripts. " +
		"Respond with only a JSON object with fields \"positive\", \"neutral\", \"negative\" " +
		"(floats summing to 1) and \"overall\" (one of positive, neutral, negative)."
	content, err := a.chat(ctx, system, text)
	if err != nil {
		return nil, err
	}
	var sentiment Sentiment
	if err := decodeJSONReply(content, &sentiment); err != nil {
		return nil, err
	}
	return &sentiment, nil
}

func (a *LLMAnalyzer) SegmentSentiments(ctx context.Context, texts []string) ([]SentimentScore, error) {
	const system = "You classify the sentiment of each numbered utterance independently. " +
		"Respond with only a JSON array, one object per utterance in order, with fields " +
		"\"label\" (positive, neutral or negative) and \"confidence\" (0 to 1)."

	var prompt strings.Builder
	for i, text := range texts {
		fmt.Fprintf(&prompt, "%d. %s\n", i+1, text)
	}
	content, err := a.chat(ctx, system, prompt.String())
	if err != nil {
		return nil, err
	}
	var scores []SentimentScore
	if err := decodeJSONReply(content, &scores); err != nil {
		return nil, err
	}
	if len(scores) != len(texts) {
		return nil, fmt.Errorf("got %d scores for %d utterances", len(scores), len(texts))
	}
	return scores, nil
}

func (a *LLMAnalyzer) Entities(ctx context.Context, text string) ([]Entity, error) {
	const system = "You extract named entities (people, organizations, products, places, dates) " +
		"from meeting transcripts. Respond with only a JSON array of objects with fields " +
		"\"text\", \"category\" and \"confidence\" (0 to 1), at most 20 entries."
	content, err := a.chat(ctx, system, text)
	if err != nil {
		return nil, err
	}
	var entities []Entity
	if err := decodeJSONReply(content, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

func (a *LLMAnalyzer) ActionItems(ctx context.Context, text string) ([]ActionItem, error) {
	const system = "You extract concrete action items from meeting transcripts. " +
		"Respond with only a JSON array of strings, at most 10 entries, " +
		"each a single actionable task."
	content, err := a.chat(ctx, system, text)
	if err != nil {
		return nil, err
	}
	var items []string
	if err := decodeJSONReply(content, &items); err != nil {
		return nil, err
	}
	ret := make([]ActionItem, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			ret = append(ret, ActionItem{Text: trimmed})
		}
	}
	return ret, nil
}

func (a *LLMAnalyzer) Summary(ctx context.Context, text string, sentences int) (string, error) {
	if sentences <= 0 {
		sentences = 3
	}
	system := fmt.Sprintf(
		"You summarize meeting transcripts in at most %d sentences. "+
			"Respond with only the summary text.", sentences)
	content, err := a.chat(ctx, system, text)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (a *LLMAnalyzer) chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	request := chatRequest{
		Model: a.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   a.config.MaxTokens,
		Temperature: a.config.Temperature,
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(a.config.APIURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return "", fmt.Errorf("request timed out: %w", err)
		}
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", fmt.Errorf("llm error %s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// decodeJSONReply tolerates the code fences chat models like to wrap
// JSON in.
func decodeJSONReply(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	if err := json.Unmarshal([]byte(trimmed), target); err != nil {
		return fmt.Errorf("unexpected reply format: %w", err)
	}
	return nil
}
