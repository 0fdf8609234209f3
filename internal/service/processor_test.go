package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/meeting-transcriber/internal/batch"
	"github.com/MimeLyc/meeting-transcriber/internal/config"
	"github.com/MimeLyc/meeting-transcriber/internal/jobs"
	"github.com/MimeLyc/meeting-transcriber/internal/nlp"
	"github.com/MimeLyc/meeting-transcriber/internal/pipeline"
)

type noopRunner struct{}

func (noopRunner) Run(context.Context, string) error { return nil }

func newTestProcessor(t *testing.T) (*Processor, *jobs.Store, *batch.Scheduler) {
	t.Helper()

	cfg := &config.Config{
		Processing: config.ProcessingConfig{
			DefaultMethod:                "azure",
			DefaultLanguage:              "en",
			MaxConcurrentJobs:            2,
			SummarySentences:             3,
			SentimentConfidenceThreshold: 0.6,
			AudioSampleRate:              16000,
			AudioChannels:                1,
			AudioBitRate:                 "128k",
		},
		System: config.SystemConfig{
			DataDir:              t.TempDir(),
			UploadRetentionHours: 24,
			SnapshotCron:         "*/5 * * * *",
			CleanupCron:          "0 * * * *",
		},
	}

	settings, err := config.NewRuntimeSettingsStore(
		filepath.Join(cfg.System.DataDir, "settings.json"),
		cfg.RuntimeSettings(),
	)
	require.NoError(t, err)

	store := jobs.NewStore(nil)
	scheduler := batch.NewScheduler(store, noopRunner{}, cfg.Processing.MaxConcurrentJobs)
	return NewProcessor(cfg, store, scheduler, settings, cron.New()), store, scheduler
}

func TestIsSupportedUpload(t *testing.T) {
	assert.True(t, IsSupportedUpload("meeting.wav"))
	assert.True(t, IsSupportedUpload("MEETING.MP3"))
	assert.True(t, IsSupportedUpload("standup.m4a"))
	assert.True(t, IsSupportedUpload("recording.mkv"))
	assert.False(t, IsSupportedUpload("notes.txt"))
	assert.False(t, IsSupportedUpload("archive.zip"))
	assert.False(t, IsSupportedUpload("noextension"))
}

func TestDefaultOptions_FillsZeroFields(t *testing.T) {
	processor, _, _ := newTestProcessor(t)

	opts, err := processor.DefaultOptions(jobs.Options{})
	require.NoError(t, err)
	assert.Equal(t, "azure", opts.Method)
	assert.Equal(t, "en", opts.Language)
	assert.Equal(t, 3, opts.SummarySentences)
	assert.InDelta(t, 0.6, opts.SentimentConfidenceThreshold, 1e-9)
	assert.Equal(t, nlp.AllFeatures(), opts.NLPFeatures)
	assert.Equal(t, 16000, opts.AudioSampleRate)
	assert.Equal(t, 1, opts.AudioChannels)
	assert.Equal(t, "128k", opts.AudioBitRate)
}

func TestDefaultOptions_KeepsExplicitValues(t *testing.T) {
	processor, _, _ := newTestProcessor(t)

	opts, err := processor.DefaultOptions(jobs.Options{
		Method:           "whisper-api",
		Language:         "de",
		SummarySentences: 5,
		NLPFeatures:      []string{nlp.FeatureSummary},
	})
	require.NoError(t, err)
	assert.Equal(t, "whisper-api", opts.Method)
	assert.Equal(t, "de", opts.Language)
	assert.Equal(t, 5, opts.SummarySentences)
	assert.Equal(t, []string{nlp.FeatureSummary}, opts.NLPFeatures)
}

func TestDefaultOptions_CandidatesSuppressLanguageDefault(t *testing.T) {
	processor, _, _ := newTestProcessor(t)

	opts, err := processor.DefaultOptions(jobs.Options{LanguageCandidates: []string{"en", "de"}})
	require.NoError(t, err)
	assert.Empty(t, opts.Language)
}

func TestSubmitUpload(t *testing.T) {
	processor, store, scheduler := newTestProcessor(t)

	job, err := processor.SubmitUpload(context.Background(), "standup.wav", strings.NewReader("fake audio"), jobs.Options{})
	require.NoError(t, err)
	scheduler.Wait()

	stored, ok := store.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, "standup.wav", stored.Filename)
	assert.Equal(t, "azure", stored.Options.Method)

	content, err := os.ReadFile(stored.InputPath)
	require.NoError(t, err)
	assert.Equal(t, "fake audio", string(content))
	// Stored under a generated name, not the client-provided one.
	assert.NotContains(t, stored.InputPath, "standup")
	assert.True(t, strings.HasSuffix(stored.InputPath, ".wav"))
}

func TestSubmitUpload_RejectsUnsupportedType(t *testing.T) {
	processor, store, _ := newTestProcessor(t)

	_, err := processor.SubmitUpload(context.Background(), "notes.txt", strings.NewReader("text"), jobs.Options{})
	require.Error(t, err)
	assert.True(t, pipeline.IsErrorType(err, pipeline.ErrInput))
	assert.Zero(t, store.Len())
}

func TestSubmitBatch(t *testing.T) {
	processor, _, scheduler := newTestProcessor(t)

	created, err := processor.SubmitBatch(context.Background(), []Upload{
		{Filename: "a.wav", Content: strings.NewReader("a")},
		{Filename: "b.mp3", Content: strings.NewReader("b")},
	}, jobs.Options{}, 2)
	require.NoError(t, err)
	scheduler.Wait()

	require.Len(t, created, 2)
	assert.Equal(t, "a.wav", created[0].Filename)
	assert.Equal(t, "b.mp3", created[1].Filename)
}

func TestSubmitBatch_OneBadFileRejectsAll(t *testing.T) {
	processor, store, _ := newTestProcessor(t)

	_, err := processor.SubmitBatch(context.Background(), []Upload{
		{Filename: "a.wav", Content: strings.NewReader("a")},
		{Filename: "b.txt", Content: strings.NewReader("b")},
	}, jobs.Options{}, 0)
	require.Error(t, err)
	assert.True(t, pipeline.IsErrorType(err, pipeline.ErrInput))
	assert.Zero(t, store.Len())

	// The already-landed sibling upload is removed again.
	entries, err := os.ReadDir(processor.cfg.UploadDir())
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestSubmitBatch_EmptyBatch(t *testing.T) {
	processor, _, _ := newTestProcessor(t)

	_, err := processor.SubmitBatch(context.Background(), nil, jobs.Options{}, 0)
	require.Error(t, err)
	assert.True(t, pipeline.IsErrorType(err, pipeline.ErrInput))
}

func TestSchedule_RegistersCrons(t *testing.T) {
	processor, _, _ := newTestProcessor(t)

	require.NoError(t, processor.Schedule(context.Background()))
	assert.Len(t, processor.cron.Entries(), 2)
}

func TestCleanupUploads_SkipsLiveJobs(t *testing.T) {
	processor, store, _ := newTestProcessor(t)
	uploadDir := processor.cfg.UploadDir()
	require.NoError(t, os.MkdirAll(uploadDir, 0o755))

	stale := filepath.Join(uploadDir, "stale.wav")
	inUse := filepath.Join(uploadDir, "inuse.wav")
	old := time.Now().Add(-48 * time.Hour)
	for _, path := range []string{stale, inUse} {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		require.NoError(t, os.Chtimes(path, old, old))
	}

	store.Create("inuse.wav", inUse, jobs.Options{})

	processor.cleanupUploads()

	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(inUse)
	assert.NoError(t, err)
}
