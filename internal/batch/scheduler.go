package batch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/MimeLyc/meeting-transcriber/internal/jobs"
	"github.com/MimeLyc/meeting-transcriber/pkg/log"
)

const (
	minConcurrency     = 1
	maxConcurrency     = 10
	defaultConcurrency = 3
)

// Runner drives one job through the pipeline.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// Submission is one file in a batch request.
type Submission struct {
	Filename  string
	InputPath string
}

// Scheduler admits submitted jobs into the pipeline under a concurrency
// bound: single submissions share the process-wide bound, batches carry
// their own. Job failures are isolated: one failed file never stops its
// batch siblings.
type Scheduler struct {
	store  *jobs.Store
	runner Runner
	sem    *semaphore.Weighted

	wg sync.WaitGroup
}

// NewScheduler builds a scheduler with the given concurrency, clamped to
// [1, 10]. Zero means the default of 3.
func NewScheduler(store *jobs.Store, runner Runner, concurrency int) *Scheduler {
	return &Scheduler{
		store:  store,
		runner: runner,
		sem:    semaphore.NewWeighted(int64(ClampConcurrency(concurrency))),
	}
}

// ClampConcurrency bounds a requested worker count to the supported range.
func ClampConcurrency(n int) int {
	if n == 0 {
		return defaultConcurrency
	}
	if n < minConcurrency {
		return minConcurrency
	}
	if n > maxConcurrency {
		return maxConcurrency
	}
	return n
}

// Submit creates one job and schedules it under the process-wide bound.
// The returned snapshot is immediately visible to listings while the job
// waits for a worker slot.
func (s *Scheduler) Submit(ctx context.Context, sub Submission, opts jobs.Options) *jobs.Job {
	job := s.store.Create(sub.Filename, sub.InputPath, opts)
	s.launch(ctx, job.ID, s.sem)
	return job
}

// SubmitBatch creates all jobs before any of them starts running, so the
// returned IDs are in submission order and every job is listable at once.
// Each batch runs under its own bound, clamped to [1, 10]; zero means the
// default. A bound of one runs the batch on a single worker, in
// submission order.
func (s *Scheduler) SubmitBatch(ctx context.Context, subs []Submission, opts jobs.Options, maxConcurrent int) []*jobs.Job {
	created := make([]*jobs.Job, 0, len(subs))
	for _, sub := range subs {
		created = append(created, s.store.Create(sub.Filename, sub.InputPath, opts))
	}

	bound := ClampConcurrency(maxConcurrent)
	sem := semaphore.NewWeighted(int64(bound))
	if bound == 1 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for _, job := range created {
				s.runOne(ctx, job.ID, sem)
			}
		}()
		return created
	}

	for _, job := range created {
		s.launch(ctx, job.ID, sem)
	}
	return created
}

func (s *Scheduler) launch(ctx context.Context, jobID string, sem *semaphore.Weighted) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runOne(ctx, jobID, sem)
	}()
}

func (s *Scheduler) runOne(ctx context.Context, jobID string, sem *semaphore.Weighted) {
	if err := sem.Acquire(ctx, 1); err != nil {
		log.Warn("Job %s never started: %v", jobID, err)
		return
	}
	defer sem.Release(1)

	if err := s.runner.Run(ctx, jobID); err != nil {
		log.Error("Job %s failed: %v", jobID, err)
	}
}

// Wait blocks until every scheduled job has finished. Used on shutdown
// and in tests.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
