package nlp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func llmFixture(t *testing.T, reply string) (*LLMAnalyzer, *chatRequest) {
	t.Helper()
	var lastRequest chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastRequest))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)

	analyzer, err := NewLLMAnalyzer(LLMConfig{
		APIURL: srv.URL,
		APIKey: "sk-test",
		Model:  "test-model",
	})
	require.NoError(t, err)
	return analyzer, &lastRequest
}

func TestNewLLMAnalyzer_Validation(t *testing.T) {
	_, err := NewLLMAnalyzer(LLMConfig{APIKey: "k", Model: "m"})
	assert.Error(t, err)
	_, err = NewLLMAnalyzer(LLMConfig{APIURL: "https://x", Model: "m"})
	assert.Error(t, err)
	_, err = NewLLMAnalyzer(LLMConfig{APIURL: "https://x", APIKey: "k"})
	assert.Error(t, err)
}

func TestLLMAnalyzer_KeyPhrases(t *testing.T) {
	analyzer, lastRequest := llmFixture(t, `[{"text":"roadmap","count":4},{"text":"budget","count":2}]`)

	phrases, err := analyzer.KeyPhrases(context.Background(), "transcript text")
	require.NoError(t, err)
	require.Len(t, phrases, 2)
	assert.Equal(t, "roadmap", phrases[0].Text)

	assert.Equal(t, "test-model", lastRequest.Model)
	require.Len(t, lastRequest.Messages, 2)
	assert.Equal(t, "system", lastRequest.Messages[0].Role)
	assert.Equal(t, "transcript text", lastRequest.Messages[1].Content)
}

func TestLLMAnalyzer_StripsCodeFences(t *testing.T) {
	analyzer, _ := llmFixture(t, "```json\n[{\"text\":\"roadmap\",\"count\":4}]\n```")

	phrases, err := analyzer.KeyPhrases(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, phrases, 1)
}

func TestLLMAnalyzer_SegmentSentimentsCountMismatch(t *testing.T) {
	analyzer, _ := llmFixture(t, `[{"label":"positive","confidence":0.9}]`)

	_, err := analyzer.SegmentSentiments(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 utterances")
}

func TestLLMAnalyzer_ActionItemsSkipEmpty(t *testing.T) {
	analyzer, _ := llmFixture(t, `["send the deck", "  ", "book the room"]`)

	items, err := analyzer.ActionItems(context.Background(), "text")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "send the deck", items[0].Text)
}

func TestLLMAnalyzer_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "rate_limit", "message": "slow down"},
		})
	}))
	t.Cleanup(srv.Close)

	analyzer, err := NewLLMAnalyzer(LLMConfig{APIURL: srv.URL, APIKey: "k", Model: "m"})
	require.NoError(t, err)

	_, err = analyzer.Summary(context.Background(), "text", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slow down")
}

func TestDecodeJSONReply(t *testing.T) {
	var out []int
	require.NoError(t, decodeJSONReply("[1,2,3]", &out))
	assert.Equal(t, []int{1, 2, 3}, out)

	out = nil
	require.NoError(t, decodeJSONReply("```\n[4]\n```", &out))
	assert.Equal(t, []int{4}, out)

	assert.Error(t, decodeJSONReply("not json", &out))
}
