package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/meeting-transcriber/internal/jobs"
)

// gaugeRunner records how many jobs run at once.
type gaugeRunner struct {
	mu      sync.Mutex
	current int
	peak    int
	ran     []string
	errFor  map[string]error
	block   time.Duration
}

func (g *gaugeRunner) Run(_ context.Context, jobID string) error {
	g.mu.Lock()
	g.current++
	if g.current > g.peak {
		g.peak = g.current
	}
	g.ran = append(g.ran, jobID)
	err := g.errFor[jobID]
	g.mu.Unlock()

	if g.block > 0 {
		time.Sleep(g.block)
	}

	g.mu.Lock()
	g.current--
	g.mu.Unlock()
	return err
}

func TestClampConcurrency(t *testing.T) {
	assert.Equal(t, 3, ClampConcurrency(0))
	assert.Equal(t, 1, ClampConcurrency(-5))
	assert.Equal(t, 1, ClampConcurrency(1))
	assert.Equal(t, 7, ClampConcurrency(7))
	assert.Equal(t, 10, ClampConcurrency(25))
}

func TestScheduler_SubmitRunsJob(t *testing.T) {
	store := jobs.NewStore(nil)
	runner := &gaugeRunner{}
	scheduler := NewScheduler(store, runner, 2)

	job := scheduler.Submit(context.Background(), Submission{Filename: "a.wav", InputPath: "/tmp/a.wav"}, jobs.Options{})
	require.NotEmpty(t, job.ID)

	// The snapshot is listable before the job necessarily runs.
	_, ok := store.Get(job.ID)
	assert.True(t, ok)

	scheduler.Wait()
	assert.Equal(t, []string{job.ID}, runner.ran)
}

func TestScheduler_PerBatchConcurrencyBound(t *testing.T) {
	store := jobs.NewStore(nil)
	runner := &gaugeRunner{block: 30 * time.Millisecond}
	// The process-wide bound is wider than the batch's own bound; the
	// caller-supplied value must win.
	scheduler := NewScheduler(store, runner, 8)

	subs := make([]Submission, 8)
	for i := range subs {
		subs[i] = Submission{Filename: fmt.Sprintf("f%d.wav", i), InputPath: "/tmp/x.wav"}
	}
	scheduler.SubmitBatch(context.Background(), subs, jobs.Options{}, 2)
	scheduler.Wait()

	assert.Len(t, runner.ran, 8)
	assert.LessOrEqual(t, runner.peak, 2)
	assert.GreaterOrEqual(t, runner.peak, 1)
}

func TestScheduler_SequentialBatchRunsInSubmissionOrder(t *testing.T) {
	store := jobs.NewStore(nil)
	runner := &gaugeRunner{block: time.Millisecond}
	scheduler := NewScheduler(store, runner, 4)

	created := scheduler.SubmitBatch(context.Background(), []Submission{
		{Filename: "a.wav"}, {Filename: "b.wav"}, {Filename: "c.wav"}, {Filename: "d.wav"},
	}, jobs.Options{}, 1)
	scheduler.Wait()

	want := make([]string, 0, len(created))
	for _, job := range created {
		want = append(want, job.ID)
	}
	assert.Equal(t, want, runner.ran)
	assert.Equal(t, 1, runner.peak)
}

func TestScheduler_BatchCreatesAllJobsUpFront(t *testing.T) {
	store := jobs.NewStore(nil)
	var sawAll atomic.Bool
	runner := runnerFunc(func(context.Context, string) error {
		// Every job a worker picks up must already see the whole batch.
		sawAll.Store(store.Len() == 4)
		return nil
	})
	scheduler := NewScheduler(store, runner, 1)

	created := scheduler.SubmitBatch(context.Background(), []Submission{
		{Filename: "a.wav"}, {Filename: "b.wav"}, {Filename: "c.wav"}, {Filename: "d.wav"},
	}, jobs.Options{}, 1)
	scheduler.Wait()

	require.Len(t, created, 4)
	assert.Equal(t, "a.wav", created[0].Filename)
	assert.Equal(t, "d.wav", created[3].Filename)
	assert.True(t, sawAll.Load())
}

func TestScheduler_FailureIsolation(t *testing.T) {
	store := jobs.NewStore(nil)
	runner := &gaugeRunner{errFor: map[string]error{}}
	scheduler := NewScheduler(store, runner, 1)

	failing := scheduler.Submit(context.Background(), Submission{Filename: "bad.wav"}, jobs.Options{})
	runner.mu.Lock()
	runner.errFor[failing.ID] = errors.New("pipeline exploded")
	runner.mu.Unlock()
	ok := scheduler.Submit(context.Background(), Submission{Filename: "good.wav"}, jobs.Options{})

	scheduler.Wait()
	assert.Contains(t, runner.ran, failing.ID)
	assert.Contains(t, runner.ran, ok.ID)
}

func TestScheduler_CancelledContextSkipsPendingJobs(t *testing.T) {
	store := jobs.NewStore(nil)
	runner := &gaugeRunner{}
	scheduler := NewScheduler(store, runner, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	scheduler.Submit(ctx, Submission{Filename: "a.wav"}, jobs.Options{})
	scheduler.Wait()

	assert.Empty(t, runner.ran)
}

type runnerFunc func(ctx context.Context, jobID string) error

func (f runnerFunc) Run(ctx context.Context, jobID string) error { return f(ctx, jobID) }
