package jobs

import (
	"time"

	"github.com/MimeLyc/meeting-transcriber/internal/nlp"
	"github.com/MimeLyc/meeting-transcriber/internal/transcription"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether a job in this status can never change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type StageName string

const (
	StagePreprocessing StageName = "preprocessing"
	StageTranscription StageName = "transcription"
	StageDiarization   StageName = "diarization"
	StageNLP           StageName = "nlp"
)

type StageStatus string

const (
	StageStatusPending StageStatus = "pending"
	StageStatusRunning StageStatus = "running"
	StageStatusDone    StageStatus = "done"
	StageStatusError   StageStatus = "error"
)

func (s StageStatus) Terminal() bool {
	return s == StageStatusDone || s == StageStatusError
}

// Stage is one tracked phase of a job's pipeline. Progress is 0-100 and
// never decreases while the stage is running. SubTasks is only populated
// by fan-out stages (diarization, nlp).
type Stage struct {
	Status   StageStatus            `json:"status"`
	Progress int                    `json:"progress"`
	Detail   string                 `json:"detail,omitempty"`
	SubTasks map[string]StageStatus `json:"sub_tasks,omitempty"`
}

// Options is the immutable configuration snapshot captured at submission.
// A running job never observes a mutated copy.
type Options struct {
	Method                       string   `json:"method"`
	Language                     string   `json:"language,omitempty"`
	LanguageCandidates           []string `json:"language_candidates,omitempty"`
	EnableDiarization            bool     `json:"enable_diarization"`
	EnableNLP                    bool     `json:"enable_nlp"`
	ChunkSize                    int      `json:"chunk_size,omitempty"`
	WhisperModel                 string   `json:"whisper_model,omitempty"`
	MaxSpeakers                  int      `json:"max_speakers,omitempty"`
	CustomTerms                  []string `json:"custom_terms,omitempty"`
	NLPFeatures                  []string `json:"nlp_features,omitempty"`
	SummarySentences             int      `json:"summary_sentences,omitempty"`
	SentimentConfidenceThreshold float64  `json:"sentiment_confidence_threshold,omitempty"`
	AudioChannels                int      `json:"audio_channels,omitempty"`
	AudioSampleRate              int      `json:"audio_sample_rate,omitempty"`
	AudioBitRate                 string   `json:"audio_bit_rate,omitempty"`
}

// Result is written exactly once, on successful completion. NLPAnalysis is
// absent when the nlp stage was disabled or failed entirely.
type Result struct {
	Transcription *transcription.Result `json:"transcription,omitempty"`
	NLPAnalysis   *nlp.Analysis         `json:"nlp_analysis,omitempty"`
}

type Job struct {
	ID          string                `json:"id"`
	Filename    string                `json:"filename"`
	InputPath   string                `json:"input_path"`
	Options     Options               `json:"options"`
	Status      Status                `json:"status"`
	Progress    string                `json:"progress,omitempty"`
	Plan        []StageName           `json:"plan,omitempty"`
	Stages      map[StageName]*Stage  `json:"stages,omitempty"`
	Result      *Result               `json:"result,omitempty"`
	Error       string                `json:"error,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
}

// Summary is the lightweight listing view, without result payloads.
type Summary struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Method    string    `json:"method"`
	Status    Status    `json:"status"`
	Progress  string    `json:"progress,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (j *Job) Summary() Summary {
	return Summary{
		ID:        j.ID,
		Filename:  j.Filename,
		Method:    j.Options.Method,
		Status:    j.Status,
		Progress:  j.Progress,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// cloneJob deep-copies the mutable parts of a job so readers never share
// state with the store. Result is write-once and treated as immutable, so
// the pointer is shared.
func cloneJob(job *Job) *Job {
	if job == nil {
		return nil
	}
	tmp := *job
	if job.Plan != nil {
		tmp.Plan = append([]StageName(nil), job.Plan...)
	}
	if job.Stages != nil {
		tmp.Stages = make(map[StageName]*Stage, len(job.Stages))
		for name, stage := range job.Stages {
			tmp.Stages[name] = cloneStage(stage)
		}
	}
	return &tmp
}

func cloneStage(stage *Stage) *Stage {
	if stage == nil {
		return nil
	}
	tmp := *stage
	if stage.SubTasks != nil {
		tmp.SubTasks = make(map[string]StageStatus, len(stage.SubTasks))
		for name, status := range stage.SubTasks {
			tmp.SubTasks[name] = status
		}
	}
	return &tmp
}
