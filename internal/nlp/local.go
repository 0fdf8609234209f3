package nlp

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// LocalAnalyzer is a heuristic backend that needs no credentials. It keeps
// the pipeline runnable when no cloud analyzer is configured; cloud
// backends plug in behind the same Analyzer interface.
type LocalAnalyzer struct{}

func NewLocalAnalyzer() *LocalAnalyzer {
	return &LocalAnalyzer{}
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "it": true, "this": true, "that": true, "i": true, "we": true,
	"you": true, "they": true, "he": true, "she": true, "so": true, "as": true,
	"have": true, "has": true, "had": true, "do": true, "does": true, "did": true,
	"not": true, "no": true, "yes": true, "will": true, "would": true,
	"can": true, "could": true, "should": true, "our": true, "your": true,
	"my": true, "me": true, "us": true, "them": true, "there": true,
	"what": true, "which": true, "who": true, "how": true, "when": true,
	"about": true, "just": true, "like": true, "okay": true, "ok": true,
}

var positiveWords = map[string]bool{
	"good": true, "great": true, "excellent": true, "agree": true,
	"agreed": true, "perfect": true, "happy": true, "glad": true,
	"love": true, "nice": true, "well": true, "thanks": true,
	"thank": true, "success": true, "successful": true, "progress": true,
	"improve": true, "improved": true, "best": true, "better": true,
	"awesome": true, "fantastic": true, "done": true, "resolved": true,
}

var negativeWords = map[string]bool{
	"bad": true, "problem": true, "problems": true, "issue": true,
	"issues": true, "fail": true, "failed": true, "failure": true,
	"wrong": true, "worse": true, "worst": true, "concern": true,
	"concerned": true, "blocked": true, "blocker": true, "delay": true,
	"delayed": true, "risk": true, "broken": true, "bug": true,
	"unfortunately": true, "difficult": true, "hard": true, "missing": true,
}

var actionItemPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)(?:TODO|Action|Follow-up|Task):\s*(.+?)(?:\n|$)`),
	regexp.MustCompile(`(?im)(?:we need to|we should|must|will)\s+(.+?)(?:\.|,|\n|$)`),
	regexp.MustCompile(`(?im)(@\w+)\s+(?:will|to|should)\s+(.+?)(?:\.|,|\n|$)`),
}

func (a *LocalAnalyzer) KeyPhrases(_ context.Context, text string) ([]KeyPhrase, error) {
	counts := make(map[string]int)
	for _, word := range tokenize(text) {
		if len(word) < 3 || stopWords[word] {
			continue
		}
		counts[word]++
	}

	phrases := make([]KeyPhrase, 0, len(counts))
	for word, count := range counts {
		if count < 2 {
			continue
		}
		phrases = append(phrases, KeyPhrase{Text: word, Count: count})
	}
	sort.Slice(phrases, func(i, j int) bool {
		if phrases[i].Count == phrases[j].Count {
			return phrases[i].Text < phrases[j].Text
		}
		return phrases[i].Count > phrases[j].Count
	})
	if len(phrases) > 15 {
		phrases = phrases[:15]
	}
	return phrases, nil
}

func (a *LocalAnalyzer) Sentiment(_ context.Context, text string) (*Sentiment, error) {
	score := scoreSentiment(text)
	return &Sentiment{
		Positive: score.positive,
		Neutral:  score.neutral,
		Negative: score.negative,
		Overall:  score.overall(),
	}, nil
}

func (a *LocalAnalyzer) SegmentSentiments(_ context.Context, texts []string) ([]SentimentScore, error) {
	ret := make([]SentimentScore, 0, len(texts))
	for _, text := range texts {
		score := scoreSentiment(text)
		label := score.overall()
		confidence := score.neutral
		switch label {
		case "positive":
			confidence = score.positive
		case "negative":
			confidence = score.negative
		}
		ret = append(ret, SentimentScore{Label: label, Confidence: confidence})
	}
	return ret, nil
}

func (a *LocalAnalyzer) Entities(_ context.Context, text string) ([]Entity, error) {
	entities := make([]Entity, 0)
	seen := make(map[string]bool)

	for _, sentence := range splitSentences(text) {
		words := strings.Fields(sentence)
		run := make([]string, 0, 3)
		flush := func() {
			if len(run) == 0 {
				return
			}
			candidate := strings.Join(run, " ")
			run = run[:0]
			key := strings.ToLower(candidate)
			if seen[key] || stopWords[key] {
				return
			}
			seen[key] = true
			entities = append(entities, Entity{
				Text:       candidate,
				Category:   "Unknown",
				Confidence: 0.5,
			})
		}
		for i, word := range words {
			trimmed := strings.TrimFunc(word, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsNumber(r)
			})
			// Sentence-initial capitals are not evidence of a name.
			if i > 0 && trimmed != "" && unicode.IsUpper([]rune(trimmed)[0]) {
				run = append(run, trimmed)
				continue
			}
			flush()
		}
		flush()
	}

	if len(entities) > 20 {
		entities = entities[:20]
	}
	return entities, nil
}

func (a *LocalAnalyzer) ActionItems(_ context.Context, text string) ([]ActionItem, error) {
	items := make([]ActionItem, 0)
	seen := make(map[string]bool)

	for _, pattern := range actionItemPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			action := strings.TrimSpace(match[len(match)-1])
			if len(action) <= 10 || seen[strings.ToLower(action)] {
				continue
			}
			seen[strings.ToLower(action)] = true
			items = append(items, ActionItem{Text: action})
		}
	}

	if len(items) > 10 {
		items = items[:10]
	}
	return items, nil
}

// Summary scores sentences by key-word frequency and returns the top ones
// in original order.
func (a *LocalAnalyzer) Summary(ctx context.Context, text string, sentenceCount int) (string, error) {
	if sentenceCount <= 0 {
		sentenceCount = 3
	}
	sentences := splitSentences(text)
	if len(sentences) <= sentenceCount {
		return strings.TrimSpace(text), nil
	}

	phrases, _ := a.KeyPhrases(ctx, text)
	weights := make(map[string]int, len(phrases))
	for _, phrase := range phrases {
		weights[phrase.Text] = phrase.Count
	}

	type scored struct {
		index int
		score int
	}
	ranked := make([]scored, 0, len(sentences))
	for i, sentence := range sentences {
		score := 0
		for _, word := range tokenize(sentence) {
			score += weights[word]
		}
		ranked = append(ranked, scored{index: i, score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score == ranked[j].score {
			return ranked[i].index < ranked[j].index
		}
		return ranked[i].score > ranked[j].score
	})

	picked := ranked[:sentenceCount]
	sort.Slice(picked, func(i, j int) bool { return picked[i].index < picked[j].index })

	parts := make([]string, 0, len(picked))
	for _, s := range picked {
		parts = append(parts, strings.TrimSpace(sentences[s.index]))
	}
	summary := strings.Join(parts, " ")
	if !strings.HasSuffix(summary, ".") {
		summary += "."
	}
	return summary, nil
}

type sentimentCounts struct {
	positive float64
	neutral  float64
	negative float64
}

func (s sentimentCounts) overall() string {
	if s.positive > s.negative && s.positive > s.neutral {
		return "positive"
	}
	if s.negative > s.positive && s.negative > s.neutral {
		return "negative"
	}
	return "neutral"
}

func scoreSentiment(text string) sentimentCounts {
	words := tokenize(text)
	if len(words) == 0 {
		return sentimentCounts{neutral: 1}
	}

	var pos, neg float64
	for _, word := range words {
		if positiveWords[word] {
			pos++
		} else if negativeWords[word] {
			neg++
		}
	}
	hits := pos + neg
	if hits == 0 {
		return sentimentCounts{neutral: 1}
	}

	// Dilute by document length so one keyword in a long text stays neutral.
	weight := hits / float64(len(words)) * 4
	if weight > 1 {
		weight = 1
	}
	return sentimentCounts{
		positive: pos / hits * weight,
		negative: neg / hits * weight,
		neutral:  1 - weight,
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

var sentenceSplitter = regexp.MustCompile(`[.!?]+\s+`)

func splitSentences(text string) []string {
	parts := sentenceSplitter.Split(strings.TrimSpace(text), -1)
	ret := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ret = append(ret, trimmed)
		}
	}
	return ret
}
