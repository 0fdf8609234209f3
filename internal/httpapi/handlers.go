package httpapi

import (
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/MimeLyc/meeting-transcriber/internal/config"
	"github.com/MimeLyc/meeting-transcriber/internal/export"
	"github.com/MimeLyc/meeting-transcriber/internal/jobs"
	"github.com/MimeLyc/meeting-transcriber/internal/nlp"
	"github.com/MimeLyc/meeting-transcriber/internal/pipeline"
	"github.com/MimeLyc/meeting-transcriber/internal/service"
)

// maxUploadBytes bounds the in-memory part of multipart parsing; larger
// bodies spill to disk.
const maxUploadBytes = 32 << 20

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	upload, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer upload.Close()

	opts, err := parseOptions(r.Form)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := s.processor.SubmitUpload(r.Context(), header.Filename, upload, opts)
	if err != nil {
		writeSubmissionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
	}
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "files field is required")
		return
	}

	uploads := make([]service.Upload, 0, len(headers))
	closers := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range closers {
			_ = f.Close()
		}
	}()
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload "+header.Filename)
			return
		}
		closers = append(closers, f)
		uploads = append(uploads, service.Upload{Filename: header.Filename, Content: f})
	}

	opts, err := parseOptions(r.Form)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxConcurrent, err := parseBatchConcurrency(r.Form)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.processor.SubmitBatch(r.Context(), uploads, opts, maxConcurrent)
	if err != nil {
		writeSubmissionError(w, err)
		return
	}

	ids := make([]string, 0, len(created))
	for _, job := range created {
		ids = append(ids, job.ID)
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_ids": ids,
		"jobs":    created,
	})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.store.List())
}

type jobDetailResponse struct {
	*jobs.Job
	ProgressPercent int `json:"progress_percent"`
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id = strings.TrimSuffix(id, "/")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if rest, found := strings.CutSuffix(id, "/transcript"); found {
		s.handleTranscript(w, r, rest)
		return
	}
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		job, ok := s.store.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, jobDetailResponse{
			Job:             job,
			ProgressPercent: jobs.Aggregate(job),
		})
	case http.MethodDelete:
		if err := s.store.Delete(id); err != nil {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleTranscript serves the completed transcript in the requested
// format (txt, srt or vtt).
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	job, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != jobs.StatusCompleted || job.Result == nil || job.Result.Transcription == nil {
		writeError(w, http.StatusConflict, "job has no transcript yet")
		return
	}

	format := r.URL.Query().Get("format")
	w.Header().Set("Content-Type", export.ContentType(format))
	if err := export.Render(w, format, job.Result.Transcription); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"jobs":   s.store.Len(),
	})
}

// parseOptions maps multipart form fields onto job options. Unset fields
// stay zero so the processor fills in runtime defaults; malformed values
// and unknown feature names are rejected, never deferred to the pipeline.
func parseOptions(form url.Values) (jobs.Options, error) {
	opts := jobs.Options{
		Method:   form.Get("method"),
		Language: form.Get("language"),
	}
	if raw := form.Get("language_candidates"); raw != "" {
		opts.LanguageCandidates = splitList(raw)
	}
	opts.EnableDiarization = parseBool(form.Get("enable_diarization"), true)
	opts.EnableNLP = parseBool(form.Get("enable_nlp"), true)

	var err error
	if opts.MaxSpeakers, err = parseIntField(form, "max_speakers"); err != nil {
		return jobs.Options{}, err
	}
	if opts.ChunkSize, err = parseIntField(form, "chunk_size"); err != nil {
		return jobs.Options{}, err
	}
	if opts.SummarySentences, err = parseIntField(form, "summary_sentences"); err != nil {
		return jobs.Options{}, err
	}
	if raw := form.Get("sentiment_confidence_threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return jobs.Options{}, fmt.Errorf("invalid sentiment_confidence_threshold %q", raw)
		}
		opts.SentimentConfidenceThreshold = v
	}
	if raw := form.Get("custom_terms"); raw != "" {
		opts.CustomTerms = splitList(raw)
	}
	if raw := form.Get("nlp_features"); raw != "" {
		opts.NLPFeatures = splitList(raw)
		for _, feature := range opts.NLPFeatures {
			if !slices.Contains(nlp.AllFeatures(), feature) {
				return jobs.Options{}, fmt.Errorf("unknown nlp feature %q", feature)
			}
		}
	}
	opts.WhisperModel = form.Get("whisper_model")
	return opts, nil
}

// parseBatchConcurrency reads the batch-only fields: parallel=false forces
// sequential execution, max_concurrent carries the caller's bound. Zero is
// returned when neither is set, leaving the choice to the scheduler.
func parseBatchConcurrency(form url.Values) (int, error) {
	if !parseBool(form.Get("parallel"), true) {
		return 1, nil
	}
	return parseIntField(form, "max_concurrent")
}

func parseIntField(form url.Values, name string) (int, error) {
	raw := form.Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return v, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	ret := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ret = append(ret, trimmed)
		}
	}
	return ret
}

func parseBool(raw string, defaultValue bool) bool {
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

// writeSubmissionError maps classified intake failures to status codes.
func writeSubmissionError(w http.ResponseWriter, err error) {
	if pipeline.IsErrorType(err, pipeline.ErrInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
