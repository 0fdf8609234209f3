package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/meeting-transcriber/internal/batch"
	"github.com/MimeLyc/meeting-transcriber/internal/config"
	"github.com/MimeLyc/meeting-transcriber/internal/jobs"
	"github.com/MimeLyc/meeting-transcriber/internal/nlp"
	"github.com/MimeLyc/meeting-transcriber/internal/pipeline"
	"github.com/MimeLyc/meeting-transcriber/internal/transcription"
	"github.com/MimeLyc/meeting-transcriber/pkg/file"
	"github.com/MimeLyc/meeting-transcriber/pkg/log"
)

// audioExts are the upload extensions accepted at submission time.
// Container formats are included because ffmpeg extracts their audio
// track during preprocessing.
var audioExts = []string{
	".wav", ".mp3", ".m4a", ".aac", ".flac", ".ogg", ".opus", ".wma", ".webm", ".mp4", ".mkv",
}

func IsSupportedUpload(filename string) bool {
	return slices.Contains(audioExts, strings.ToLower(filepath.Ext(filename)))
}

// Processor owns submission intake and scheduled maintenance: it lands
// uploads on disk, fills in option defaults from runtime settings, hands
// jobs to the batch scheduler, and runs the snapshot and cleanup crons.
type Processor struct {
	cfg       *config.Config
	store     *jobs.Store
	scheduler *batch.Scheduler
	settings  *config.RuntimeSettingsStore
	cron      *cron.Cron

	group singleflight.Group
}

func NewProcessor(
	cfg *config.Config,
	store *jobs.Store,
	scheduler *batch.Scheduler,
	settings *config.RuntimeSettingsStore,
	cronEngine *cron.Cron,
) *Processor {
	return &Processor{
		cfg:       cfg,
		store:     store,
		scheduler: scheduler,
		settings:  settings,
		cron:      cronEngine,
	}
}

// NewTranscriberFactory builds the method resolver the orchestrator uses,
// bound to the configured backend credentials.
func NewTranscriberFactory(cfg *config.Config) pipeline.TranscriberFactory {
	backendCfg := transcription.Config{
		AzureSpeechKey:      cfg.Backends.AzureSpeechKey,
		AzureSpeechRegion:   cfg.Backends.AzureSpeechRegion,
		AzureSpeechEndpoint: cfg.Backends.AzureSpeechEndpoint,
		OpenAIEndpoint:      cfg.Backends.OpenAIEndpoint,
		OpenAIKey:           cfg.Backends.OpenAIKey,
		WhisperDeployment:   cfg.Backends.WhisperDeployment,
		TimeoutSeconds:      cfg.Backends.TimeoutSeconds,
	}
	return func(method string) (transcription.Transcriber, error) {
		return transcription.New(method, backendCfg)
	}
}

// DefaultOptions merges a submission's explicit options with the current
// runtime settings and static configuration. Zero-valued fields inherit
// the defaults; the returned snapshot is what the job captures.
func (p *Processor) DefaultOptions(opts jobs.Options) (jobs.Options, error) {
	settings, err := p.settings.GetRuntimeSettings()
	if err != nil {
		return jobs.Options{}, err
	}

	if opts.Method == "" {
		opts.Method = settings.DefaultMethod
	}
	if opts.Language == "" && len(opts.LanguageCandidates) == 0 {
		opts.Language = settings.DefaultLanguage
	}
	if opts.SummarySentences == 0 {
		opts.SummarySentences = settings.SummarySentences
	}
	if opts.SentimentConfidenceThreshold == 0 {
		opts.SentimentConfidenceThreshold = settings.SentimentConfidenceThreshold
	}
	if len(opts.NLPFeatures) == 0 {
		opts.NLPFeatures = nlp.AllFeatures()
	}
	if opts.AudioSampleRate == 0 {
		opts.AudioSampleRate = p.cfg.Processing.AudioSampleRate
	}
	if opts.AudioChannels == 0 {
		opts.AudioChannels = p.cfg.Processing.AudioChannels
	}
	if opts.AudioBitRate == "" {
		opts.AudioBitRate = p.cfg.Processing.AudioBitRate
	}
	return opts, nil
}

// SubmitUpload lands one uploaded file in the upload directory and
// schedules its job. Validation failures surface synchronously as input
// errors; nothing is scheduled for an invalid upload.
func (p *Processor) SubmitUpload(ctx context.Context, filename string, src io.Reader, opts jobs.Options) (*jobs.Job, error) {
	path, err := p.saveUpload(filename, src)
	if err != nil {
		return nil, err
	}

	opts, err = p.DefaultOptions(opts)
	if err != nil {
		return nil, err
	}
	return p.scheduler.Submit(ctx, batch.Submission{Filename: filename, InputPath: path}, opts), nil
}

// Upload is one named stream in a batch submission.
type Upload struct {
	Filename string
	Content  io.Reader
}

// SubmitBatch validates and lands every upload before any job is created,
// so one bad file rejects the whole request instead of half-submitting it.
// Jobs are returned in submission order and run under the caller's
// concurrency bound (zero means the scheduler default).
func (p *Processor) SubmitBatch(ctx context.Context, uploads []Upload, opts jobs.Options, maxConcurrent int) ([]*jobs.Job, error) {
	if len(uploads) == 0 {
		return nil, pipeline.NewError(pipeline.ErrInput, "no files in batch")
	}

	subs := make([]batch.Submission, 0, len(uploads))
	for _, upload := range uploads {
		path, err := p.saveUpload(upload.Filename, upload.Content)
		if err != nil {
			for _, sub := range subs {
				_ = os.Remove(sub.InputPath)
			}
			return nil, err
		}
		subs = append(subs, batch.Submission{Filename: upload.Filename, InputPath: path})
	}

	opts, err := p.DefaultOptions(opts)
	if err != nil {
		return nil, err
	}
	return p.scheduler.SubmitBatch(ctx, subs, opts, maxConcurrent), nil
}

func (p *Processor) saveUpload(filename string, src io.Reader) (string, error) {
	if !IsSupportedUpload(filename) {
		return "", pipeline.NewError(pipeline.ErrInput, "unsupported file type").
			WithContext("filename", filename)
	}

	if err := os.MkdirAll(p.cfg.UploadDir(), 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}

	path := filepath.Join(p.cfg.UploadDir(), uuid.NewString()+strings.ToLower(filepath.Ext(filename)))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}

// Schedule registers the maintenance crons: periodic job table snapshots
// and stale upload cleanup. Overlapping triggers are collapsed through
// singleflight.
func (p *Processor) Schedule(ctx context.Context) error {
	settings, err := p.settings.GetRuntimeSettings()
	if err != nil {
		return err
	}

	if _, err := p.cron.AddFunc(settings.SnapshotCron, func() {
		_, _, _ = p.group.Do("snapshot", func() (any, error) {
			if err := p.store.Snapshot(ctx); err != nil {
				log.Error("Job snapshot failed: %v", err)
			}
			return nil, nil
		})
	}); err != nil {
		return fmt.Errorf("schedule snapshot: %w", err)
	}

	if _, err := p.cron.AddFunc(p.cfg.System.CleanupCron, func() {
		_, _, _ = p.group.Do("cleanup", func() (any, error) {
			p.cleanupUploads()
			return nil, nil
		})
	}); err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	return nil
}

// cleanupUploads removes uploads past the retention window that no live
// job still references.
func (p *Processor) cleanupUploads() {
	retention := time.Duration(p.cfg.System.UploadRetentionHours) * time.Hour
	cutoff := time.Now().Add(-retention)

	stale, err := file.FindOlderThan(p.cfg.UploadDir(), cutoff)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error("Upload cleanup scan failed: %v", err)
		}
		return
	}

	inUse := make(map[string]bool)
	for _, summary := range p.store.List() {
		if job, ok := p.store.Get(summary.ID); ok && !job.Status.Terminal() {
			inUse[job.InputPath] = true
		}
	}

	removed := 0
	for _, path := range stale {
		if inUse[path] {
			continue
		}
		if err := os.Remove(path); err != nil {
			log.Warn("Failed to remove stale upload %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info("Removed %d stale uploads", removed)
	}
}
