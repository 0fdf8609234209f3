package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/MimeLyc/meeting-transcriber/internal/audio"
	"github.com/MimeLyc/meeting-transcriber/internal/diarization"
	"github.com/MimeLyc/meeting-transcriber/internal/jobs"
	"github.com/MimeLyc/meeting-transcriber/internal/nlp"
	"github.com/MimeLyc/meeting-transcriber/internal/transcription"
	"github.com/MimeLyc/meeting-transcriber/internal/vocabulary"
	"github.com/MimeLyc/meeting-transcriber/pkg/log"
)

// Preprocessor prepares an upload for transcription.
type Preprocessor interface {
	Probe(ctx context.Context, path string) (*audio.Info, error)
	Normalize(ctx context.Context, path string, opts audio.NormalizeOptions) (string, error)
}

// TranscriberFactory resolves a submission method to a backend.
type TranscriberFactory func(method string) (transcription.Transcriber, error)

// Diarizer attaches speaker labels to segments.
type Diarizer interface {
	Run(ctx context.Context, audioPath string, segments []transcription.Segment, opts transcription.Options, report diarization.Report) ([]transcription.Segment, error)
}

// AnalysisRunner fans NLP features out over the transcript.
type AnalysisRunner interface {
	Run(ctx context.Context, text string, segments []transcription.Segment, opts nlp.Options, report nlp.Report) (*nlp.Analysis, map[string]error, error)
}

// Orchestrator drives one job through its planned stages. Preprocessing
// and transcription are required: their failure fails the job.
// Diarization and analysis are best-effort: their failure marks the stage
// error and the job still completes with what it has.
type Orchestrator struct {
	tracker      *jobs.Tracker
	store        *jobs.Store
	preprocessor Preprocessor
	transcribers TranscriberFactory
	diarizer     Diarizer
	analysis     AnalysisRunner
	vocab        *vocabulary.Dir
}

type Option func(*Orchestrator)

// WithVocabulary enables per-language custom term hints and
// mis-transcription corrections loaded from dir.
func WithVocabulary(dir *vocabulary.Dir) Option {
	return func(o *Orchestrator) {
		o.vocab = dir
	}
}

func NewOrchestrator(
	store *jobs.Store,
	preprocessor Preprocessor,
	transcribers TranscriberFactory,
	diarizer Diarizer,
	analysis AnalysisRunner,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		tracker:      jobs.NewTracker(store),
		store:        store,
		preprocessor: preprocessor,
		transcribers: transcribers,
		diarizer:     diarizer,
		analysis:     analysis,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Plan returns the stages a job with these options will run, in order.
func Plan(opts jobs.Options) []jobs.StageName {
	plan := []jobs.StageName{jobs.StagePreprocessing, jobs.StageTranscription}
	if opts.EnableDiarization {
		plan = append(plan, jobs.StageDiarization)
	}
	if opts.EnableNLP {
		plan = append(plan, jobs.StageNLP)
	}
	return plan
}

// Run executes the pipeline for one stored job. A job deleted mid-flight
// halts silently; every other failure lands on the job record. Run itself
// only returns an error for failures worth surfacing to the scheduler.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, ok := o.store.Get(jobID)
	if !ok {
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("Job %s panicked: %v", jobID, p)
			o.fail(jobID, fmt.Sprintf("internal error: %v", p))
		}
	}()

	if err := o.tracker.Begin(jobID, Plan(job.Options)); err != nil {
		return o.halt(err)
	}

	audioPath, cleanup, err := o.runPreprocessing(ctx, jobID, job)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return o.failWith(jobID, err)
	}

	result, err := o.runTranscription(ctx, jobID, audioPath, job.Options)
	if err != nil {
		return o.failWith(jobID, err)
	}

	if job.Options.EnableDiarization {
		if err := o.runDiarization(ctx, jobID, audioPath, result, job.Options); err != nil {
			return o.halt(err)
		}
	}

	jobResult := &jobs.Result{Transcription: result}
	if job.Options.EnableNLP {
		analysis, err := o.runAnalysis(ctx, jobID, result, job.Options)
		if err != nil {
			return o.halt(err)
		}
		jobResult.NLPAnalysis = analysis
	}

	return o.halt(o.tracker.Complete(jobID, jobResult))
}

func (o *Orchestrator) runPreprocessing(ctx context.Context, jobID string, job *jobs.Job) (string, func(), error) {
	if err := o.tracker.StartStage(jobID, jobs.StagePreprocessing, "Validating audio"); err != nil {
		return "", nil, err
	}

	info, err := o.preprocessor.Probe(ctx, job.InputPath)
	if err != nil {
		o.finishStage(jobID, jobs.StagePreprocessing, jobs.StageStatusError, "Audio validation failed")
		return "", nil, WrapError(err, ErrAudio, "input is not a readable audio file").
			WithContext("path", job.InputPath)
	}
	log.Debug("Job %s input: codec=%s rate=%d channels=%d duration=%.1fs",
		jobID, info.Codec, info.SampleRate, info.Channels, info.Duration)

	if err := o.tracker.Progress(jobID, jobs.StagePreprocessing, 50, "Normalizing audio"); err != nil {
		return "", nil, err
	}

	normalized, err := o.preprocessor.Normalize(ctx, job.InputPath, audio.NormalizeOptions{
		SampleRate: job.Options.AudioSampleRate,
		Channels:   job.Options.AudioChannels,
		BitRate:    audio.ParseBitRate(job.Options.AudioBitRate),
		Denoise:    true,
	})
	if err != nil {
		o.finishStage(jobID, jobs.StagePreprocessing, jobs.StageStatusError, "Audio conversion failed")
		return "", nil, WrapError(err, ErrAudio, "audio normalization failed").
			WithContext("path", job.InputPath)
	}
	cleanup := func() {
		if err := os.Remove(normalized); err != nil && !os.IsNotExist(err) {
			log.Warn("Failed to remove temp audio %s: %v", normalized, err)
		}
	}

	if err := o.tracker.FinishStage(jobID, jobs.StagePreprocessing, jobs.StageStatusDone, "Audio ready"); err != nil {
		return "", cleanup, err
	}
	return normalized, cleanup, nil
}

func (o *Orchestrator) runTranscription(ctx context.Context, jobID, audioPath string, opts jobs.Options) (*transcription.Result, error) {
	if err := o.tracker.StartStage(jobID, jobs.StageTranscription, "Transcribing audio"); err != nil {
		return nil, err
	}

	backend, err := o.transcribers(opts.Method)
	if err != nil {
		o.finishStage(jobID, jobs.StageTranscription, jobs.StageStatusError, "Backend unavailable")
		return nil, WrapError(err, ErrConfig, "transcription backend unavailable").
			WithContext("method", opts.Method)
	}

	topts := transcriptionOptions(opts)
	vocab, hasVocab := o.lookupVocabulary(opts.Language)
	if hasVocab {
		topts.CustomTerms = vocabulary.MergeTerms(topts.CustomTerms, vocab.Terms)
	}

	var result *transcription.Result
	err = SafeExecute(func() error {
		var terr error
		result, terr = backend.Transcribe(ctx, audioPath, topts)
		return terr
	})
	if err != nil {
		o.finishStage(jobID, jobs.StageTranscription, jobs.StageStatusError, "Transcription failed")
		return nil, WrapError(err, ErrTranscription, "transcription failed").
			WithContext("method", opts.Method)
	}
	transcription.EnsureLanguage(result)

	if !hasVocab {
		vocab, hasVocab = o.lookupVocabulary(result.Language)
	}
	if hasVocab {
		if n := vocabulary.Apply(result, vocab.Corrections); n > 0 {
			log.Debug("Job %s: applied %d vocabulary corrections", jobID, n)
		}
	}

	if err := o.tracker.FinishStage(jobID, jobs.StageTranscription, jobs.StageStatusDone, "Transcription complete"); err != nil {
		return nil, err
	}
	return result, nil
}

// runDiarization labels result.Segments in place. Failure leaves the
// unlabeled segments intact and only the stage marked error.
func (o *Orchestrator) runDiarization(ctx context.Context, jobID, audioPath string, result *transcription.Result, opts jobs.Options) error {
	if err := o.tracker.StartStage(jobID, jobs.StageDiarization, "Identifying speakers"); err != nil {
		return err
	}

	report := func(task, status string) {
		o.subTask(jobID, jobs.StageDiarization, task, status)
	}
	labeled, err := o.diarizer.Run(ctx, audioPath, result.Segments, transcriptionOptions(opts), report)
	result.Segments = labeled
	if err != nil {
		log.Warn("Job %s diarization failed: %v", jobID, err)
		return o.tracker.FinishStage(jobID, jobs.StageDiarization, jobs.StageStatusError, "Speaker identification failed")
	}
	return o.tracker.FinishStage(jobID, jobs.StageDiarization, jobs.StageStatusDone, "Speakers identified")
}

func (o *Orchestrator) runAnalysis(ctx context.Context, jobID string, result *transcription.Result, opts jobs.Options) (*nlp.Analysis, error) {
	if err := o.tracker.StartStage(jobID, jobs.StageNLP, "Analyzing transcript"); err != nil {
		return nil, err
	}

	report := func(feature, status string) {
		o.subTask(jobID, jobs.StageNLP, feature, status)
	}
	analysis, failures, err := o.analysis.Run(ctx, result.FullText, result.Segments, nlp.Options{
		Features:                     opts.NLPFeatures,
		SummarySentences:             opts.SummarySentences,
		SentimentConfidenceThreshold: opts.SentimentConfidenceThreshold,
	}, report)
	if err != nil {
		log.Warn("Job %s analysis failed: %v", jobID, err)
		return nil, o.tracker.FinishStage(jobID, jobs.StageNLP, jobs.StageStatusError, "Analysis failed")
	}

	detail := "Analysis complete"
	if len(failures) > 0 {
		detail = fmt.Sprintf("Analysis complete (%d features failed)", len(failures))
	}
	return analysis, o.tracker.FinishStage(jobID, jobs.StageNLP, jobs.StageStatusDone, detail)
}

// failWith records the pipeline error on the job and reports required
// failures to the caller.
func (o *Orchestrator) failWith(jobID string, err error) error {
	if errors.Is(err, jobs.ErrNotFound) {
		return nil
	}
	o.fail(jobID, err.Error())
	return err
}

func (o *Orchestrator) fail(jobID, message string) {
	if err := o.tracker.Fail(jobID, message); err != nil && !errors.Is(err, jobs.ErrNotFound) {
		log.Error("Failed to record job %s failure: %v", jobID, err)
	}
}

// halt swallows ErrNotFound: a deleted job simply stops being driven.
func (o *Orchestrator) halt(err error) error {
	if errors.Is(err, jobs.ErrNotFound) {
		return nil
	}
	return err
}

func (o *Orchestrator) lookupVocabulary(lang string) (vocabulary.Vocabulary, bool) {
	if o.vocab == nil {
		return vocabulary.Vocabulary{}, false
	}
	return o.vocab.Lookup(lang)
}

func (o *Orchestrator) finishStage(jobID string, name jobs.StageName, status jobs.StageStatus, detail string) {
	if err := o.tracker.FinishStage(jobID, name, status, detail); err != nil && !errors.Is(err, jobs.ErrNotFound) {
		log.Error("Failed to finish stage %s for job %s: %v", name, jobID, err)
	}
}

func (o *Orchestrator) subTask(jobID string, stage jobs.StageName, task, status string) {
	if err := o.tracker.SubTask(jobID, stage, task, jobs.StageStatus(status)); err != nil && !errors.Is(err, jobs.ErrNotFound) {
		log.Error("Failed to record sub-task %s/%s for job %s: %v", stage, task, jobID, err)
	}
}

func transcriptionOptions(opts jobs.Options) transcription.Options {
	return transcription.Options{
		Language:           opts.Language,
		LanguageCandidates: opts.LanguageCandidates,
		EnableDiarization:  opts.EnableDiarization,
		MaxSpeakers:        opts.MaxSpeakers,
		CustomTerms:        opts.CustomTerms,
		ChunkSize:          opts.ChunkSize,
	}
}
