package nlp

// Feature names a caller can enable. Each runs as an independently
// tracked sub-task of the nlp stage.
const (
	FeatureKeyPhrases       = "key_phrases"
	FeatureSentiment        = "sentiment"
	FeatureSegmentSentiment = "segment_sentiment"
	FeatureEntities         = "entities"
	FeatureActionItems      = "action_items"
	FeatureSummary          = "summary"
)

// AllFeatures returns every supported feature name.
func AllFeatures() []string {
	return []string{
		FeatureKeyPhrases,
		FeatureSentiment,
		FeatureSegmentSentiment,
		FeatureEntities,
		FeatureActionItems,
		FeatureSummary,
	}
}

type KeyPhrase struct {
	Text  string `json:"text"`
	Count int    `json:"count"`
}

type Sentiment struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
	Overall  string  `json:"overall"`
}

// SentimentScore is one classified document: a label plus the backend's
// confidence in it.
type SentimentScore struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type SegmentSentiment struct {
	Index      int     `json:"index"`
	Speaker    string  `json:"speaker,omitempty"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type Entity struct {
	Text       string  `json:"text"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

type ActionItem struct {
	Text string `json:"text"`
}

// Analysis aggregates whatever features succeeded; failed features are
// simply absent.
type Analysis struct {
	KeyPhrases        []KeyPhrase        `json:"key_phrases,omitempty"`
	Topics            []string           `json:"topics,omitempty"`
	Sentiment         *Sentiment         `json:"sentiment,omitempty"`
	SegmentSentiments []SegmentSentiment `json:"segment_sentiments,omitempty"`
	Entities          []Entity           `json:"entities,omitempty"`
	ActionItems       []ActionItem       `json:"action_items,omitempty"`
	Summary           string             `json:"summary,omitempty"`
}
