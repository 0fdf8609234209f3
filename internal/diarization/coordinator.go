package diarization

import (
	"context"
	"fmt"
	"time"

	"github.com/MimeLyc/meeting-transcriber/internal/transcription"
	"github.com/MimeLyc/meeting-transcriber/pkg/log"
)

// Sub-task names reported while the coordinator runs, so callers can see
// exactly which path produced the speaker labels.
const (
	SubTaskFastAPI          = "fast_api"
	SubTaskRealtimeFallback = "realtime_fallback"
	SubTaskMerge            = "merge"
)

// Sub-task status values, matching the stage tracker vocabulary.
const (
	TaskRunning = "running"
	TaskDone    = "done"
	TaskError   = "error"
)

// Report receives sub-task status updates. May be nil.
type Report func(task, status string)

// FastDiarizer is the batch path: one call, all speaker turns at once.
type FastDiarizer interface {
	SpeakerTurns(ctx context.Context, audioPath string, opts transcription.Options) ([]transcription.SpeakerTurn, error)
}

// RealtimeDiarizer is the slower streaming path used as fallback.
type RealtimeDiarizer interface {
	StreamSpeakerTurns(ctx context.Context, audioPath string, opts transcription.Options) ([]transcription.SpeakerTurn, error)
}

const defaultFastTimeout = 4 * time.Minute

// Coordinator attaches speaker labels to transcript segments. It tries the
// fast path under a bounded timeout and falls back to the realtime path;
// labels are merged onto segments by greatest timestamp overlap. Both
// paths failing is reported as an error, but the caller keeps its
// unlabeled segments: diarization never discards transcription output.
type Coordinator struct {
	fast        FastDiarizer
	realtime    RealtimeDiarizer
	fastTimeout time.Duration
}

func NewCoordinator(fast FastDiarizer, realtime RealtimeDiarizer, fastTimeout time.Duration) *Coordinator {
	if fastTimeout <= 0 {
		fastTimeout = defaultFastTimeout
	}
	return &Coordinator{
		fast:        fast,
		realtime:    realtime,
		fastTimeout: fastTimeout,
	}
}

func (c *Coordinator) Run(
	ctx context.Context,
	audioPath string,
	segments []transcription.Segment,
	opts transcription.Options,
	report Report,
) ([]transcription.Segment, error) {
	notify := func(task, status string) {
		if report != nil {
			report(task, status)
		}
	}

	turns, fastErr := c.runFast(ctx, audioPath, opts, notify)
	if fastErr != nil {
		log.Warn("Fast diarization failed, falling back to realtime: %v", fastErr)
		notify(SubTaskFastAPI, TaskError)

		var realtimeErr error
		turns, realtimeErr = c.runRealtime(ctx, audioPath, opts, notify)
		if realtimeErr != nil {
			notify(SubTaskRealtimeFallback, TaskError)
			return segments, fmt.Errorf("diarization failed on both paths: fast: %v; realtime: %v", fastErr, realtimeErr)
		}
		notify(SubTaskRealtimeFallback, TaskDone)
	} else {
		notify(SubTaskFastAPI, TaskDone)
	}

	notify(SubTaskMerge, TaskRunning)
	merged := MergeSpeakerTurns(segments, turns)
	notify(SubTaskMerge, TaskDone)
	return merged, nil
}

func (c *Coordinator) runFast(
	ctx context.Context,
	audioPath string,
	opts transcription.Options,
	notify func(task, status string),
) ([]transcription.SpeakerTurn, error) {
	if c.fast == nil {
		return nil, fmt.Errorf("no fast diarization backend configured")
	}

	notify(SubTaskFastAPI, TaskRunning)
	fastCtx, cancel := context.WithTimeout(ctx, c.fastTimeout)
	defer cancel()

	return c.fast.SpeakerTurns(fastCtx, audioPath, opts)
}

func (c *Coordinator) runRealtime(
	ctx context.Context,
	audioPath string,
	opts transcription.Options,
	notify func(task, status string),
) ([]transcription.SpeakerTurn, error) {
	if c.realtime == nil {
		return nil, fmt.Errorf("no realtime diarization backend configured")
	}

	notify(SubTaskRealtimeFallback, TaskRunning)
	return c.realtime.StreamSpeakerTurns(ctx, audioPath, opts)
}
