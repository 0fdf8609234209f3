package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MimeLyc/meeting-transcriber/pkg/log"
)

// ErrNotFound is returned by Update and Delete when the job no longer
// exists. An orchestrator that sees it mid-run must stop silently: the
// caller deleted the job and nothing should be resurrected.
var ErrNotFound = errors.New("job not found")

// Persister keeps durable snapshots of job records so completed job
// metadata survives a restart.
type Persister interface {
	LoadJobs(ctx context.Context) ([]*Job, error)
	UpsertJob(ctx context.Context, job *Job) error
	DeleteJob(ctx context.Context, jobID string) error
}

// Store is the authoritative in-memory job table. Every reader gets a
// snapshot copy; every writer goes through Update under the store lock.
type Store struct {
	maxJobs   int
	persister Persister

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewStore(persister Persister) *Store {
	s := &Store{
		maxJobs:   1000,
		persister: persister,
		jobs:      make(map[string]*Job),
	}
	s.hydrateFromPersister(context.Background())
	return s
}

// Create inserts a new pending job with an immutable options snapshot and
// returns its snapshot. Safe for concurrent submissions.
func (s *Store) Create(filename, inputPath string, opts Options) *Job {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Filename:  filename,
		InputPath: inputPath,
		Options:   opts,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	snapshot := cloneJob(job)
	s.mu.Unlock()

	s.persistJob(snapshot)
	return snapshot
}

// Get returns an immutable copy of the job.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return cloneJob(job), true
}

// Update applies mutate to the job under the store lock and persists the
// result. Returns ErrNotFound if the job was deleted.
func (s *Store) Update(id string, mutate func(*Job)) error {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	mutate(job)
	job.UpdatedAt = time.Now().UTC()
	pruned := s.pruneTerminalJobsLocked()
	snapshot := cloneJob(job)
	s.mu.Unlock()

	s.persistJob(snapshot)
	s.deleteFromPersister(pruned)
	return nil
}

// Delete removes the job. Safe to call while the job is still running: the
// orchestrator's next Update fails with ErrNotFound and it halts.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	_, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.jobs, id)
	s.mu.Unlock()

	s.deleteFromPersister([]string{id})
	return nil
}

// List returns lightweight summaries sorted by creation time, newest first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	ret := make([]Summary, 0, len(s.jobs))
	for _, job := range s.jobs {
		ret = append(ret, job.Summary())
	}
	s.mu.RUnlock()

	sort.Slice(ret, func(i, j int) bool {
		if ret[i].CreatedAt.Equal(ret[j].CreatedAt) {
			return ret[i].ID < ret[j].ID
		}
		return ret[i].CreatedAt.After(ret[j].CreatedAt)
	})
	return ret
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Snapshot re-persists every job. Scheduled periodically so a crash
// between per-update writes loses at most one interval of metadata.
func (s *Store) Snapshot(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}

	s.mu.RLock()
	snapshots := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshots = append(snapshots, cloneJob(job))
	}
	s.mu.RUnlock()

	for _, job := range snapshots {
		if err := s.persister.UpsertJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// pruneTerminalJobsLocked evicts the oldest terminal jobs once the table
// grows past maxJobs. Pending and processing jobs are never evicted.
func (s *Store) pruneTerminalJobsLocked() []string {
	if s.maxJobs <= 0 || len(s.jobs) <= s.maxJobs {
		return nil
	}

	type candidate struct {
		id        string
		updatedAt time.Time
	}
	terminal := make([]candidate, 0, len(s.jobs))
	for id, job := range s.jobs {
		if job == nil || !job.Status.Terminal() {
			continue
		}
		terminal = append(terminal, candidate{id: id, updatedAt: job.UpdatedAt})
	}
	if len(terminal) == 0 {
		return nil
	}

	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].updatedAt.Before(terminal[j].updatedAt)
	})

	toRemove := len(s.jobs) - s.maxJobs
	if toRemove > len(terminal) {
		toRemove = len(terminal)
	}

	pruned := make([]string, 0, toRemove)
	for i := 0; i < toRemove; i++ {
		delete(s.jobs, terminal[i].id)
		pruned = append(pruned, terminal[i].id)
	}
	return pruned
}

func (s *Store) hydrateFromPersister(ctx context.Context) {
	if s.persister == nil {
		return
	}
	loaded, err := s.persister.LoadJobs(ctx)
	if err != nil {
		log.Error("Failed to load jobs from persister: %v", err)
		return
	}

	now := time.Now().UTC()
	toPersist := make([]*Job, 0)
	s.mu.Lock()
	for _, raw := range loaded {
		if raw == nil || raw.ID == "" {
			continue
		}
		job := cloneJob(raw)
		if !job.Status.Terminal() {
			// In-flight work does not survive a restart; callers treat a
			// vanished pipeline as failure.
			job.Status = StatusFailed
			job.Error = "job interrupted by service restart"
			job.CompletedAt = &now
			job.UpdatedAt = now
			toPersist = append(toPersist, cloneJob(job))
		}
		s.jobs[job.ID] = job
	}
	s.mu.Unlock()

	for _, job := range toPersist {
		s.persistJob(job)
	}
}

func (s *Store) persistJob(job *Job) {
	if s.persister == nil || job == nil {
		return
	}
	if err := s.persister.UpsertJob(context.Background(), job); err != nil {
		log.Error("Failed to persist job %s: %v", job.ID, err)
	}
}

func (s *Store) deleteFromPersister(ids []string) {
	if s.persister == nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		if err := s.persister.DeleteJob(context.Background(), id); err != nil {
			log.Error("Failed to delete job %s from persister: %v", id, err)
		}
	}
}
