package nlp

import "context"

// Analyzer is the contract an NLP backend must satisfy. Each method maps
// to one feature and fails independently of the others.
type Analyzer interface {
	KeyPhrases(ctx context.Context, text string) ([]KeyPhrase, error)
	Sentiment(ctx context.Context, text string) (*Sentiment, error)
	Entities(ctx context.Context, text string) ([]Entity, error)
	ActionItems(ctx context.Context, text string) ([]ActionItem, error)
	Summary(ctx context.Context, text string, sentences int) (string, error)
	// SegmentSentiments classifies each document independently.
	SegmentSentiments(ctx context.Context, texts []string) ([]SentimentScore, error)
}
