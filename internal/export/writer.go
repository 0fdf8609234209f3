package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/MimeLyc/meeting-transcriber/internal/transcription"
)

// Supported transcript formats.
const (
	FormatSRT  = "srt"
	FormatVTT  = "vtt"
	FormatText = "txt"
)

// Render writes the transcript segments in the requested format. Unknown
// formats are an error so the API can reject them up front.
func Render(w io.Writer, format string, result *transcription.Result) error {
	if result == nil {
		return fmt.Errorf("no transcription result")
	}
	switch strings.ToLower(format) {
	case FormatSRT:
		return WriteSRT(w, result.Segments)
	case FormatVTT:
		return WriteVTT(w, result.Segments)
	case FormatText, "":
		return WriteText(w, result.Segments)
	default:
		return fmt.Errorf("unsupported transcript format: %s", format)
	}
}

// ContentType returns the MIME type for a transcript format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case FormatSRT:
		return "application/x-subrip"
	case FormatVTT:
		return "text/vtt"
	default:
		return "text/plain; charset=utf-8"
	}
}

// WriteSRT renders numbered SubRip cues. Speaker labels are prefixed to
// the cue text when present.
func WriteSRT(w io.Writer, segments []transcription.Segment) error {
	writer := bufio.NewWriter(w)
	for i, seg := range segments {
		fmt.Fprintf(writer, "%d\n", i+1)
		fmt.Fprintf(writer, "%s --> %s\n", formatTimestamp(seg.StartTime, ","), formatTimestamp(seg.EndTime, ","))
		fmt.Fprintf(writer, "%s\n\n", cueText(seg))
	}
	return writer.Flush()
}

// WriteVTT renders WebVTT cues.
func WriteVTT(w io.Writer, segments []transcription.Segment) error {
	writer := bufio.NewWriter(w)
	fmt.Fprint(writer, "WEBVTT\n\n")
	for _, seg := range segments {
		fmt.Fprintf(writer, "%s --> %s\n", formatTimestamp(seg.StartTime, "."), formatTimestamp(seg.EndTime, "."))
		fmt.Fprintf(writer, "%s\n\n", cueText(seg))
	}
	return writer.Flush()
}

// WriteText renders a plain readable transcript, one utterance per line.
func WriteText(w io.Writer, segments []transcription.Segment) error {
	writer := bufio.NewWriter(w)
	for _, seg := range segments {
		if seg.SpeakerID != "" {
			fmt.Fprintf(writer, "[%s] %s: %s\n", formatTimestamp(seg.StartTime, "."), seg.SpeakerID, seg.Text)
		} else {
			fmt.Fprintf(writer, "[%s] %s\n", formatTimestamp(seg.StartTime, "."), seg.Text)
		}
	}
	return writer.Flush()
}

func cueText(seg transcription.Segment) string {
	if seg.SpeakerID != "" {
		return seg.SpeakerID + ": " + seg.Text
	}
	return seg.Text
}

// formatTimestamp renders seconds as HH:MM:SS<sep>mmm, the shared shape
// of SRT and VTT timestamps.
func formatTimestamp(seconds float64, sep string) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	hours := millis / 3600000
	minutes := millis / 60000 % 60
	secs := millis / 1000 % 60
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", hours, minutes, secs, sep, ms)
}
