package nlp

import (
	"context"
	"fmt"
	"sync"

	"github.com/MimeLyc/meeting-transcriber/internal/transcription"
	"github.com/MimeLyc/meeting-transcriber/pkg/log"
)

// Sub-task status values reported per feature, matching the stage tracker
// vocabulary.
const (
	TaskRunning = "running"
	TaskDone    = "done"
	TaskError   = "error"
)

// Report receives per-feature status updates. May be nil.
type Report func(feature, status string)

// Options controls a single analysis run.
type Options struct {
	// Features to run. Empty means all of them.
	Features []string
	// SummarySentences caps the extractive summary length.
	SummarySentences int
	// SentimentConfidenceThreshold downgrades segment labels whose
	// confidence falls strictly below it to neutral. Zero disables the
	// check.
	SentimentConfidenceThreshold float64
}

// Runner fans analysis features out concurrently against one Analyzer.
// Features fail independently: a failed feature lands in the error map
// and never cancels its siblings.
type Runner struct {
	analyzer Analyzer
}

func NewRunner(analyzer Analyzer) *Runner {
	return &Runner{analyzer: analyzer}
}

// Run executes the requested features and returns the aggregated analysis
// plus a map of per-feature failures. The analysis is non-nil whenever at
// least one feature succeeded; err is non-nil only when every requested
// feature failed.
func (r *Runner) Run(
	ctx context.Context,
	text string,
	segments []transcription.Segment,
	opts Options,
	report Report,
) (*Analysis, map[string]error, error) {
	if r.analyzer == nil {
		return nil, nil, fmt.Errorf("no analyzer configured")
	}

	features := opts.Features
	if len(features) == 0 {
		features = AllFeatures()
	}

	notify := func(feature, status string) {
		if report != nil {
			report(feature, status)
		}
	}

	analysis := &Analysis{}
	failures := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup

	// Unknown features are recorded before any worker starts, so the
	// failure map is only ever written under mu once goroutines exist.
	type featureRun struct {
		feature string
		run     func(ctx context.Context) error
	}
	runs := make([]featureRun, 0, len(features))
	for _, feature := range features {
		run, ok := r.featureFunc(feature, text, segments, opts, analysis, &mu)
		if !ok {
			failures[feature] = fmt.Errorf("unknown analysis feature %q", feature)
			notify(feature, TaskError)
			continue
		}
		runs = append(runs, featureRun{feature: feature, run: run})
	}

	for _, fr := range runs {
		run := fr.run
		wg.Add(1)
		notify(fr.feature, TaskRunning)
		go func(feature string) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					log.Error("Analysis feature %s panicked: %v", feature, p)
					mu.Lock()
					failures[feature] = fmt.Errorf("feature %s panicked: %v", feature, p)
					mu.Unlock()
					notify(feature, TaskError)
				}
			}()

			if err := run(ctx); err != nil {
				log.Warn("Analysis feature %s failed: %v", feature, err)
				mu.Lock()
				failures[feature] = err
				mu.Unlock()
				notify(feature, TaskError)
				return
			}
			notify(feature, TaskDone)
		}(fr.feature)
	}
	wg.Wait()

	if len(failures) == len(features) {
		return nil, failures, fmt.Errorf("all %d analysis features failed", len(features))
	}
	return analysis, failures, nil
}

// featureFunc maps a feature name to a closure that runs it and writes its
// result into analysis under mu.
func (r *Runner) featureFunc(
	feature, text string,
	segments []transcription.Segment,
	opts Options,
	analysis *Analysis,
	mu *sync.Mutex,
) (func(ctx context.Context) error, bool) {
	switch feature {
	case FeatureKeyPhrases:
		return func(ctx context.Context) error {
			phrases, err := r.analyzer.KeyPhrases(ctx, text)
			if err != nil {
				return err
			}
			mu.Lock()
			analysis.KeyPhrases = phrases
			analysis.Topics = topicsFromPhrases(phrases)
			mu.Unlock()
			return nil
		}, true
	case FeatureSentiment:
		return func(ctx context.Context) error {
			sentiment, err := r.analyzer.Sentiment(ctx, text)
			if err != nil {
				return err
			}
			mu.Lock()
			analysis.Sentiment = sentiment
			mu.Unlock()
			return nil
		}, true
	case FeatureSegmentSentiment:
		return func(ctx context.Context) error {
			texts := make([]string, len(segments))
			for i, seg := range segments {
				texts[i] = seg.Text
			}
			scores, err := r.analyzer.SegmentSentiments(ctx, texts)
			if err != nil {
				return err
			}
			if len(scores) != len(segments) {
				return fmt.Errorf("got %d sentiment scores for %d segments", len(scores), len(segments))
			}
			ret := make([]SegmentSentiment, len(scores))
			for i, score := range scores {
				label := score.Label
				if opts.SentimentConfidenceThreshold > 0 && score.Confidence < opts.SentimentConfidenceThreshold {
					label = "neutral"
				}
				ret[i] = SegmentSentiment{
					Index:      i,
					Speaker:    segments[i].SpeakerID,
					Label:      label,
					Confidence: score.Confidence,
				}
			}
			mu.Lock()
			analysis.SegmentSentiments = ret
			mu.Unlock()
			return nil
		}, true
	case FeatureEntities:
		return func(ctx context.Context) error {
			entities, err := r.analyzer.Entities(ctx, text)
			if err != nil {
				return err
			}
			mu.Lock()
			analysis.Entities = entities
			mu.Unlock()
			return nil
		}, true
	case FeatureActionItems:
		return func(ctx context.Context) error {
			items, err := r.analyzer.ActionItems(ctx, text)
			if err != nil {
				return err
			}
			mu.Lock()
			analysis.ActionItems = items
			mu.Unlock()
			return nil
		}, true
	case FeatureSummary:
		return func(ctx context.Context) error {
			summary, err := r.analyzer.Summary(ctx, text, opts.SummarySentences)
			if err != nil {
				return err
			}
			mu.Lock()
			analysis.Summary = summary
			mu.Unlock()
			return nil
		}, true
	}
	return nil, false
}

// topicsFromPhrases derives a deduplicated topic list from the strongest
// key phrases.
func topicsFromPhrases(phrases []KeyPhrase) []string {
	seen := make(map[string]bool)
	topics := make([]string, 0, 10)
	for _, phrase := range phrases {
		key := phrase.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		topics = append(topics, key)
		if len(topics) == 10 {
			break
		}
	}
	return topics
}
