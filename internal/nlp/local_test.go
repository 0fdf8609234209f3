package nlp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalAnalyzer_KeyPhrases(t *testing.T) {
	analyzer := NewLocalAnalyzer()
	text := "The migration plan covers the database migration. Migration starts Monday. The database team owns the rollback."

	phrases, err := analyzer.KeyPhrases(context.Background(), text)
	require.NoError(t, err)
	require.NotEmpty(t, phrases)
	assert.Equal(t, "migration", phrases[0].Text)
	assert.Equal(t, 3, phrases[0].Count)

	for _, phrase := range phrases {
		assert.GreaterOrEqual(t, phrase.Count, 2, "singletons should be filtered: %q", phrase.Text)
		assert.False(t, stopWords[phrase.Text], "stop word leaked: %q", phrase.Text)
	}
}

func TestLocalAnalyzer_SentimentPositive(t *testing.T) {
	analyzer := NewLocalAnalyzer()

	sentiment, err := analyzer.Sentiment(context.Background(), "Great progress, the launch went well. Excellent work everyone.")
	require.NoError(t, err)
	assert.Equal(t, "positive", sentiment.Overall)
	assert.Greater(t, sentiment.Positive, sentiment.Negative)
}

func TestLocalAnalyzer_SentimentNoKeywordsIsNeutral(t *testing.T) {
	analyzer := NewLocalAnalyzer()

	sentiment, err := analyzer.Sentiment(context.Background(), "The meeting covers quarterly planning topics.")
	require.NoError(t, err)
	assert.Equal(t, "neutral", sentiment.Overall)
	assert.InDelta(t, 1.0, sentiment.Neutral, 1e-9)
}

func TestLocalAnalyzer_SentimentDilutedByLength(t *testing.T) {
	analyzer := NewLocalAnalyzer()

	// One positive keyword buried in a long document should not dominate.
	filler := strings.Repeat("the quarterly planning document describes upcoming milestones ", 20)
	sentiment, err := analyzer.Sentiment(context.Background(), filler+"great")
	require.NoError(t, err)
	assert.Equal(t, "neutral", sentiment.Overall)
}

func TestLocalAnalyzer_SegmentSentiments(t *testing.T) {
	analyzer := NewLocalAnalyzer()

	scores, err := analyzer.SegmentSentiments(context.Background(), []string{
		"great great great",
		"broken broken failed",
		"",
	})
	require.NoError(t, err)
	require.Len(t, scores, 3)
	assert.Equal(t, "positive", scores[0].Label)
	assert.Equal(t, "negative", scores[1].Label)
	assert.Equal(t, "neutral", scores[2].Label)
	assert.InDelta(t, 1.0, scores[2].Confidence, 1e-9)
}

func TestLocalAnalyzer_Entities(t *testing.T) {
	analyzer := NewLocalAnalyzer()

	entities, err := analyzer.Entities(context.Background(), "Yesterday Alice Johnson met the team from Acme Corp in Berlin.")
	require.NoError(t, err)

	texts := make([]string, 0, len(entities))
	for _, e := range entities {
		texts = append(texts, e.Text)
	}
	assert.Contains(t, texts, "Alice Johnson")
	assert.Contains(t, texts, "Acme Corp")
	assert.Contains(t, texts, "Berlin")
	// "Yesterday" only capitalizes because it opens the sentence.
	assert.NotContains(t, texts, "Yesterday")
}

func TestLocalAnalyzer_ActionItems(t *testing.T) {
	analyzer := NewLocalAnalyzer()
	text := "TODO: schedule the security review with the platform team.\n" +
		"We need to update the onboarding documentation before Friday. " +
		"@carol will prepare the budget forecast for next quarter."

	items, err := analyzer.ActionItems(context.Background(), text)
	require.NoError(t, err)
	require.NotEmpty(t, items)

	joined := make([]string, 0, len(items))
	for _, item := range items {
		assert.Greater(t, len(item.Text), 10)
		joined = append(joined, item.Text)
	}
	assert.Contains(t, strings.Join(joined, "|"), "schedule the security review")
}

func TestLocalAnalyzer_SummaryShortTextReturnedWhole(t *testing.T) {
	analyzer := NewLocalAnalyzer()
	text := "First sentence. Second sentence."

	summary, err := analyzer.Summary(context.Background(), text, 3)
	require.NoError(t, err)
	assert.Equal(t, text, summary)
}

func TestLocalAnalyzer_SummaryPicksTopSentencesInOrder(t *testing.T) {
	analyzer := NewLocalAnalyzer()
	text := "The budget review starts today. Totally unrelated filler here. " +
		"The budget covers engineering and marketing. More filler text follows. " +
		"Final budget approval lands next week."

	summary, err := analyzer.Summary(context.Background(), text, 2)
	require.NoError(t, err)
	assert.Contains(t, summary, "budget")
	assert.True(t, strings.HasSuffix(summary, "."))
	// Picked sentences keep original order.
	first := strings.Index(summary, "The budget covers")
	second := strings.Index(summary, "Final budget approval")
	if first >= 0 && second >= 0 {
		assert.Less(t, first, second)
	}
}
