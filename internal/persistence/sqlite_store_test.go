package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/meeting-transcriber/internal/jobs"
	"github.com/MimeLyc/meeting-transcriber/internal/transcription"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "transcriber.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleJob(id string, status jobs.Status) *jobs.Job {
	now := time.Now().UTC().Truncate(time.Second)
	return &jobs.Job{
		ID:        id,
		Filename:  "meeting.wav",
		InputPath: "/data/uploads/" + id + ".wav",
		Options:   jobs.Options{Method: "azure", Language: "en", EnableNLP: true},
		Status:    status,
		Progress:  "Transcribing",
		Plan:      []jobs.StageName{jobs.StagePreprocessing, jobs.StageTranscription},
		Stages: map[jobs.StageName]*jobs.Stage{
			jobs.StagePreprocessing: {Status: jobs.StageStatusDone, Progress: 100},
			jobs.StageTranscription: {Status: jobs.StageStatusRunning, Progress: 40},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteStore_RequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("")
	assert.Error(t, err)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := sampleJob("job-1", jobs.StatusProcessing)
	started := job.CreatedAt.Add(time.Second)
	job.StartedAt = &started
	require.NoError(t, store.UpsertJob(ctx, job))

	loaded, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.Filename, got.Filename)
	assert.Equal(t, jobs.StatusProcessing, got.Status)
	assert.Equal(t, job.Options, got.Options)
	assert.Equal(t, job.Plan, got.Plan)
	require.NotNil(t, got.Stages[jobs.StageTranscription])
	assert.Equal(t, 40, got.Stages[jobs.StageTranscription].Progress)
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.Result)
	assert.Nil(t, got.CompletedAt)
}

func TestSQLiteStore_UpsertOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := sampleJob("job-1", jobs.StatusProcessing)
	require.NoError(t, store.UpsertJob(ctx, job))

	job.Status = jobs.StatusCompleted
	job.Result = &jobs.Result{Transcription: &transcription.Result{FullText: "hello", Language: "en"}}
	completed := time.Now().UTC().Truncate(time.Second)
	job.CompletedAt = &completed
	require.NoError(t, store.UpsertJob(ctx, job))

	loaded, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, jobs.StatusCompleted, loaded[0].Status)
	require.NotNil(t, loaded[0].Result)
	assert.Equal(t, "hello", loaded[0].Result.Transcription.FullText)
	require.NotNil(t, loaded[0].CompletedAt)
}

func TestSQLiteStore_DeleteJob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertJob(ctx, sampleJob("job-1", jobs.StatusPending)))
	require.NoError(t, store.DeleteJob(ctx, "job-1"))
	// Deleting a missing row is not an error.
	require.NoError(t, store.DeleteJob(ctx, "job-1"))

	loaded, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestSQLiteStore_DeleteTerminalBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := sampleJob("old-done", jobs.StatusCompleted)
	old.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.UpsertJob(ctx, old))

	oldActive := sampleJob("old-active", jobs.StatusProcessing)
	oldActive.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.UpsertJob(ctx, oldActive))

	fresh := sampleJob("fresh-done", jobs.StatusCompleted)
	require.NoError(t, store.UpsertJob(ctx, fresh))

	n, err := store.DeleteTerminalBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	loaded, err := store.LoadJobs(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(loaded))
	for _, job := range loaded {
		ids = append(ids, job.ID)
	}
	assert.ElementsMatch(t, []string{"old-active", "fresh-done"}, ids)
}

func TestSQLiteStore_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcriber.db")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.UpsertJob(context.Background(), sampleJob("job-1", jobs.StatusPending)))
	require.NoError(t, first.Close())

	// Reopening reapplies init against an already-migrated schema.
	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	loaded, err := second.LoadJobs(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}
