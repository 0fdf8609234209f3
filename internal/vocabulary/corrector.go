package vocabulary

import (
	"strings"

	"github.com/MimeLyc/meeting-transcriber/internal/transcription"
)

// Match filters the corrections to only entries whose misheard form
// appears in the given texts. Case-sensitive substring matching, which is
// correct for proper nouns.
func Match(corrections map[string]string, texts []string) map[string]string {
	matched := make(map[string]string)

	for misheard, canonical := range corrections {
		for _, text := range texts {
			if strings.Contains(text, misheard) {
				matched[misheard] = canonical
				break
			}
		}
	}

	return matched
}

// Apply rewrites known mis-transcriptions in place across the segments
// and the combined text. Returns the number of corrections that matched.
func Apply(result *transcription.Result, corrections map[string]string) int {
	if result == nil || len(corrections) == 0 {
		return 0
	}

	texts := make([]string, 0, len(result.Segments)+1)
	for _, seg := range result.Segments {
		texts = append(texts, seg.Text)
	}
	texts = append(texts, result.FullText)

	matched := Match(corrections, texts)
	for misheard, canonical := range matched {
		for i := range result.Segments {
			result.Segments[i].Text = strings.ReplaceAll(result.Segments[i].Text, misheard, canonical)
		}
		result.FullText = strings.ReplaceAll(result.FullText, misheard, canonical)
	}
	return len(matched)
}

// MergeTerms appends vocabulary terms to a custom term list, skipping
// duplicates while preserving order.
func MergeTerms(existing, extra []string) []string {
	if len(extra) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing))
	for _, term := range existing {
		seen[term] = true
	}
	merged := existing
	for _, term := range extra {
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		merged = append(merged, term)
	}
	return merged
}
