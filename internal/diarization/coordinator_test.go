package diarization

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/meeting-transcriber/internal/transcription"
)

type fakeFast struct {
	turns []transcription.SpeakerTurn
	err   error
	delay time.Duration
	calls int
}

func (f *fakeFast) SpeakerTurns(ctx context.Context, _ string, _ transcription.Options) ([]transcription.SpeakerTurn, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.turns, f.err
}

type fakeRealtime struct {
	turns []transcription.SpeakerTurn
	err   error
	calls int
}

func (f *fakeRealtime) StreamSpeakerTurns(context.Context, string, transcription.Options) ([]transcription.SpeakerTurn, error) {
	f.calls++
	return f.turns, f.err
}

type reportRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *reportRecorder) report(task, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, task+":"+status)
}

func TestCoordinator_FastPathSucceeds(t *testing.T) {
	fast := &fakeFast{turns: []transcription.SpeakerTurn{turn(0, 10, "Speaker 1")}}
	realtime := &fakeRealtime{}
	recorder := &reportRecorder{}
	coordinator := NewCoordinator(fast, realtime, time.Second)

	merged, err := coordinator.Run(context.Background(), "a.wav", []transcription.Segment{seg(0, 5, "")}, transcription.Options{}, recorder.report)
	require.NoError(t, err)
	assert.Equal(t, "Speaker 1", merged[0].SpeakerID)
	assert.Zero(t, realtime.calls)
	assert.Equal(t, []string{
		SubTaskFastAPI + ":" + TaskRunning,
		SubTaskFastAPI + ":" + TaskDone,
		SubTaskMerge + ":" + TaskRunning,
		SubTaskMerge + ":" + TaskDone,
	}, recorder.entries)
}

func TestCoordinator_FastTimeoutFallsBackToRealtime(t *testing.T) {
	fast := &fakeFast{delay: 200 * time.Millisecond}
	realtime := &fakeRealtime{turns: []transcription.SpeakerTurn{turn(0, 10, "Speaker 2")}}
	recorder := &reportRecorder{}
	coordinator := NewCoordinator(fast, realtime, 10*time.Millisecond)

	merged, err := coordinator.Run(context.Background(), "a.wav", []transcription.Segment{seg(0, 5, "")}, transcription.Options{}, recorder.report)
	require.NoError(t, err)
	assert.Equal(t, "Speaker 2", merged[0].SpeakerID)
	assert.Equal(t, 1, realtime.calls)
	assert.Contains(t, recorder.entries, SubTaskFastAPI+":"+TaskError)
	assert.Contains(t, recorder.entries, SubTaskRealtimeFallback+":"+TaskDone)
}

func TestCoordinator_BothPathsFailKeepsSegments(t *testing.T) {
	fast := &fakeFast{err: errors.New("fast unavailable")}
	realtime := &fakeRealtime{err: errors.New("stream dropped")}
	coordinator := NewCoordinator(fast, realtime, time.Second)

	segments := []transcription.Segment{seg(0, 5, ""), seg(5, 10, "")}
	got, err := coordinator.Run(context.Background(), "a.wav", segments, transcription.Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both paths")
	assert.Len(t, got, 2)
}

func TestCoordinator_NoBackendsConfigured(t *testing.T) {
	coordinator := NewCoordinator(nil, nil, time.Second)

	segments := []transcription.Segment{seg(0, 5, "")}
	got, err := coordinator.Run(context.Background(), "a.wav", segments, transcription.Options{}, nil)
	require.Error(t, err)
	assert.Len(t, got, 1)
}

func TestCoordinator_NilReportIsSafe(t *testing.T) {
	fast := &fakeFast{turns: []transcription.SpeakerTurn{turn(0, 10, "Speaker 1")}}
	coordinator := NewCoordinator(fast, nil, time.Second)

	_, err := coordinator.Run(context.Background(), "a.wav", nil, transcription.Options{}, nil)
	require.NoError(t, err)
}
