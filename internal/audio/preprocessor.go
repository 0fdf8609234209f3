package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MimeLyc/meeting-transcriber/pkg/file"
	"github.com/MimeLyc/meeting-transcriber/pkg/log"
)

// Parameter sets ffmpeg accepts for speech input. Requests outside them
// are clamped to the nearest supported value.
var (
	validSampleRates = []int{8000, 16000, 22050, 44100, 48000}
	validBitRates    = []int{16000, 32000, 64000, 128000, 192000, 256000}
)

const (
	minChannels = 1
	maxChannels = 2

	defaultSampleRate = 16000
	defaultChannels   = 1
	defaultBitRate    = 128000
)

// Info describes an audio stream as reported by ffprobe.
type Info struct {
	Codec      string
	SampleRate int
	Channels   int
	BitRate    int
	Duration   float64
}

// Preprocessor shells out to ffmpeg/ffprobe to validate and normalize
// uploads before they reach a transcription backend.
type Preprocessor struct {
	ffmpegCmd  string
	ffprobeCmd string
}

func NewPreprocessor() Preprocessor {
	return Preprocessor{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
	}
}

// Probe reads stream parameters from the first audio stream.
func (p Preprocessor) Probe(ctx context.Context, path string) (*Info, error) {
	cmdPath, err := exec.LookPath(p.ffprobeCmd)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	cmd := exec.CommandContext(ctx, cmdPath, p.probeArgs(path)...)

	output, err := cmd.Output()
	if err != nil {
		log.Error("Failed to run ffprobe on %s: %v", path, err)
		return nil, err
	}

	var probeResult struct {
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
			BitRate    string `json:"bit_rate"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
			BitRate  string `json:"bit_rate"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probeResult); err != nil {
		log.Error("Failed to parse ffprobe output: %v", err)
		return nil, err
	}

	for _, stream := range probeResult.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		info := &Info{Codec: stream.CodecName, Channels: stream.Channels}
		info.SampleRate, _ = strconv.Atoi(stream.SampleRate)
		info.BitRate, _ = strconv.Atoi(stream.BitRate)
		if info.BitRate == 0 {
			info.BitRate, _ = strconv.Atoi(probeResult.Format.BitRate)
		}
		info.Duration, _ = strconv.ParseFloat(probeResult.Format.Duration, 64)
		return info, nil
	}
	return nil, fmt.Errorf("no audio stream in %s", path)
}

// NormalizeOptions are the target parameters for a converted file. Zero
// fields fall back to the defaults.
type NormalizeOptions struct {
	SampleRate int
	Channels   int
	BitRate    int
	// Denoise applies an FFT noise filter before encoding.
	Denoise bool
}

// Normalize converts the input to mono/stereo WAV at a supported sample
// rate and returns the path of the converted file, written next to the
// input with a "_normalized" suffix.
func (p Preprocessor) Normalize(ctx context.Context, path string, opts NormalizeOptions) (string, error) {
	cmdPath, err := exec.LookPath(p.ffmpegCmd)
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found: %w", err)
	}

	output := filepath.Join(
		filepath.Dir(path),
		file.ReplaceExt(file.AppendSuffix(filepath.Base(path), "_normalized"), ".wav"),
	)

	args := p.normalizeArgs(path, output, opts)
	log.Debug("Running ffmpeg %v", args)
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Error("ffmpeg failed for %s: %v: %s", path, err, string(out))
		return "", fmt.Errorf("audio normalization failed: %w", err)
	}
	return output, nil
}

func (p Preprocessor) probeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		"-select_streams", "a",
		path,
	}
}

func (p Preprocessor) normalizeArgs(input, output string, opts NormalizeOptions) []string {
	args := []string{
		"-y",
		"-i", input,
		"-ar", strconv.Itoa(ClampSampleRate(opts.SampleRate)),
		"-ac", strconv.Itoa(ClampChannels(opts.Channels)),
		"-b:a", strconv.Itoa(ClampBitRate(opts.BitRate)),
	}
	if opts.Denoise {
		args = append(args, "-af", "afftdn")
	}
	return append(args, output)
}

// ClampSampleRate snaps a requested rate to the nearest supported one.
func ClampSampleRate(rate int) int {
	if rate == 0 {
		return defaultSampleRate
	}
	return nearest(rate, validSampleRates)
}

// ClampBitRate snaps a requested bit rate to the nearest supported one.
func ClampBitRate(rate int) int {
	if rate == 0 {
		return defaultBitRate
	}
	return nearest(rate, validBitRates)
}

// ClampChannels bounds the channel count to mono or stereo.
func ClampChannels(channels int) int {
	if channels == 0 {
		return defaultChannels
	}
	if channels < minChannels {
		return minChannels
	}
	if channels > maxChannels {
		return maxChannels
	}
	return channels
}

// ParseBitRate accepts values like "128k" or "128000" and returns bits
// per second. Unparseable input returns zero so callers fall back to the
// default.
func ParseBitRate(raw string) int {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return 0
	}
	multiplier := 1
	if strings.HasSuffix(raw, "k") {
		multiplier = 1000
		raw = strings.TrimSuffix(raw, "k")
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value * multiplier
}

func nearest(value int, valid []int) int {
	best := valid[0]
	for _, v := range valid[1:] {
		if abs(value-v) < abs(value-best) {
			best = v
		}
	}
	return best
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
