package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/MimeLyc/meeting-transcriber/pkg/log"
)

const (
	realtimeWindowSeconds = 60.0
	realtimeRetries       = 1
)

// realtimeClient is the slower diarization fallback. It cuts the audio
// into fixed windows with ffmpeg and pushes them through the speech API
// one at a time, so a transient failure costs one window retry instead of
// the whole file. Speaker labels are normalized by first appearance per
// window; cross-window identity is approximate, which is the accuracy
// trade the fallback accepts.
type realtimeClient struct {
	azure         *azureClient
	ffmpegCmd     string
	ffprobeCmd    string
	windowSeconds float64
}

func newRealtimeClient(cfg Config) (*realtimeClient, error) {
	azure, err := newAzureClient(cfg)
	if err != nil {
		return nil, err
	}
	return &realtimeClient{
		azure:         azure,
		ffmpegCmd:     "ffmpeg",
		ffprobeCmd:    "ffprobe",
		windowSeconds: realtimeWindowSeconds,
	}, nil
}

func (c *realtimeClient) StreamSpeakerTurns(ctx context.Context, audioPath string, opts Options) ([]SpeakerTurn, error) {
	duration, err := c.probeDuration(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "realtime-diarize-")
	if err != nil {
		return nil, fmt.Errorf("create chunk directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	turns := make([]SpeakerTurn, 0)
	for offset := 0.0; offset < duration; offset += c.windowSeconds {
		window := c.windowSeconds
		if offset+window > duration {
			window = duration - offset
		}

		chunkPath := filepath.Join(tmpDir, fmt.Sprintf("chunk_%06d.wav", int(offset)))
		if err := c.cutWindow(ctx, audioPath, chunkPath, offset, window); err != nil {
			return nil, err
		}

		chunkTurns, err := c.windowTurns(ctx, chunkPath, opts)
		if err != nil {
			return nil, fmt.Errorf("window at %.0fs failed: %w", offset, err)
		}
		for _, turn := range chunkTurns {
			turn.StartTime += offset
			turn.EndTime += offset
			turns = append(turns, turn)
		}
		_ = os.Remove(chunkPath)
	}

	sort.Slice(turns, func(i, j int) bool { return turns[i].StartTime < turns[j].StartTime })
	return mergeAdjacentTurns(turns), nil
}

func (c *realtimeClient) windowTurns(ctx context.Context, chunkPath string, opts Options) ([]SpeakerTurn, error) {
	var lastErr error
	for attempt := 0; attempt <= realtimeRetries; attempt++ {
		turns, err := c.azure.SpeakerTurns(ctx, chunkPath, opts)
		if err == nil {
			return turns, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, err
		}
		log.Warn("Realtime diarization window attempt %d failed: %v", attempt+1, err)
	}
	return nil, lastErr
}

func (c *realtimeClient) probeDuration(ctx context.Context, audioPath string) (float64, error) {
	cmdPath, err := exec.LookPath(c.ffprobeCmd)
	if err != nil {
		return 0, fmt.Errorf("ffprobe not found: %w", err)
	}
	cmd := exec.CommandContext(ctx, cmdPath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		audioPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probe duration: %w", err)
	}

	var probeResult struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probeResult); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	duration, err := strconv.ParseFloat(probeResult.Format.Duration, 64)
	if err != nil || duration <= 0 {
		return 0, fmt.Errorf("no duration in %s", audioPath)
	}
	return duration, nil
}

func (c *realtimeClient) cutWindow(ctx context.Context, input, output string, offset, window float64) error {
	cmdPath, err := exec.LookPath(c.ffmpegCmd)
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	cmd := exec.CommandContext(ctx, cmdPath,
		"-y",
		"-ss", fmt.Sprintf("%.3f", offset),
		"-t", fmt.Sprintf("%.3f", window),
		"-i", input,
		"-ar", "16000",
		"-ac", "1",
		output,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cut audio window: %w: %s", err, string(out))
	}
	return nil
}

// mergeAdjacentTurns joins consecutive turns of the same speaker so
// window boundaries do not split one continuous utterance.
func mergeAdjacentTurns(turns []SpeakerTurn) []SpeakerTurn {
	if len(turns) < 2 {
		return turns
	}
	merged := make([]SpeakerTurn, 0, len(turns))
	current := turns[0]
	for _, turn := range turns[1:] {
		if turn.SpeakerID == current.SpeakerID && turn.StartTime <= current.EndTime+1 {
			if turn.EndTime > current.EndTime {
				current.EndTime = turn.EndTime
			}
			continue
		}
		merged = append(merged, current)
		current = turn
	}
	return append(merged, current)
}
