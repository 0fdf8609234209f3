package diarization

import "github.com/MimeLyc/meeting-transcriber/internal/transcription"

// MergeSpeakerTurns assigns each segment the speaker whose labeled
// interval has the greatest temporal overlap with it. Equal overlaps break
// toward the earliest-starting interval. Segments no turn overlaps keep
// whatever speaker they already carry.
func MergeSpeakerTurns(
	segments []transcription.Segment,
	turns []transcription.SpeakerTurn,
) []transcription.Segment {
	merged := make([]transcription.Segment, len(segments))
	copy(merged, segments)
	if len(turns) == 0 {
		return merged
	}

	for i := range merged {
		best := -1
		bestOverlap := 0.0
		for t, turn := range turns {
			o := overlap(merged[i].StartTime, merged[i].EndTime, turn.StartTime, turn.EndTime)
			if o <= 0 {
				continue
			}
			if o > bestOverlap || (o == bestOverlap && best >= 0 && turn.StartTime < turns[best].StartTime) {
				best = t
				bestOverlap = o
			}
		}
		if best >= 0 {
			merged[i].SpeakerID = turns[best].SpeakerID
		}
	}
	return merged
}

func overlap(aStart, aEnd, bStart, bEnd float64) float64 {
	start := aStart
	if bStart > start {
		start = bStart
	}
	end := aEnd
	if bEnd < end {
		end = bEnd
	}
	return end - start
}

// Speakers returns the distinct speaker labels across segments, in first
// appearance order.
func Speakers(segments []transcription.Segment) []string {
	seen := make(map[string]bool)
	ret := make([]string, 0)
	for _, seg := range segments {
		if seg.SpeakerID == "" || seen[seg.SpeakerID] {
			continue
		}
		seen[seg.SpeakerID] = true
		ret = append(ret, seg.SpeakerID)
	}
	return ret
}
