package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/meeting-transcriber/internal/audio"
	"github.com/MimeLyc/meeting-transcriber/internal/batch"
	"github.com/MimeLyc/meeting-transcriber/internal/config"
	"github.com/MimeLyc/meeting-transcriber/internal/diarization"
	"github.com/MimeLyc/meeting-transcriber/internal/httpapi"
	"github.com/MimeLyc/meeting-transcriber/internal/jobs"
	"github.com/MimeLyc/meeting-transcriber/internal/nlp"
	"github.com/MimeLyc/meeting-transcriber/internal/persistence"
	"github.com/MimeLyc/meeting-transcriber/internal/pipeline"
	"github.com/MimeLyc/meeting-transcriber/internal/service"
	"github.com/MimeLyc/meeting-transcriber/internal/transcription"
	"github.com/MimeLyc/meeting-transcriber/internal/vocabulary"
	"github.com/MimeLyc/meeting-transcriber/pkg/log"
)

// Scheduler registers the background maintenance work.
type Scheduler interface {
	Schedule(ctx context.Context) error
}

// CronEngine is the subset of cron.Cron the runner needs.
type CronEngine interface {
	Start()
	Stop() context.Context
}

// HTTPServer is the subset of the API server the runner needs.
type HTTPServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	log.InitLogger(log.ParseLevel(os.Getenv("LOG_LEVEL")))

	settingsPath := config.RuntimeSettingsFilePath()
	opts := make([]config.Option, 0, 1)
	if settings, err := config.LoadRuntimeSettingsFile(settingsPath); err == nil {
		opts = append(opts, config.WithRuntimeSettings(settings))
	} else if !os.IsNotExist(err) {
		log.Warn("Ignoring unreadable settings file %s: %v", settingsPath, err)
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	if err := os.MkdirAll(cfg.System.DataDir, 0o755); err != nil {
		log.Fatal("Failed to create data directory: %v", err)
	}

	// One process per data directory: a second instance would corrupt the
	// in-memory/SQLite ownership of the job table.
	dirLock := flock.New(filepath.Join(cfg.System.DataDir, ".lock"))
	locked, err := dirLock.TryLock()
	if err != nil {
		log.Fatal("Failed to lock data directory: %v", err)
	}
	if !locked {
		log.Fatal("Data directory %s is in use by another instance", cfg.System.DataDir)
	}
	defer dirLock.Unlock()

	sqliteStore, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		log.Fatal("Failed to open database: %v", err)
	}
	defer sqliteStore.Close()

	store := jobs.NewStore(sqliteStore)

	settingsStore, err := config.NewRuntimeSettingsStore(settingsPath, cfg.RuntimeSettings())
	if err != nil {
		log.Fatal("Failed to initialize runtime settings: %v", err)
	}

	backendCfg := transcription.Config{
		AzureSpeechKey:      cfg.Backends.AzureSpeechKey,
		AzureSpeechRegion:   cfg.Backends.AzureSpeechRegion,
		AzureSpeechEndpoint: cfg.Backends.AzureSpeechEndpoint,
		OpenAIEndpoint:      cfg.Backends.OpenAIEndpoint,
		OpenAIKey:           cfg.Backends.OpenAIKey,
		WhisperDeployment:   cfg.Backends.WhisperDeployment,
		TimeoutSeconds:      cfg.Backends.TimeoutSeconds,
	}

	var fast diarization.FastDiarizer
	if source, err := transcription.NewFastDiarization(backendCfg); err == nil {
		fast = source
	} else {
		log.Warn("Fast diarization unavailable: %v", err)
	}
	var realtime diarization.RealtimeDiarizer
	if source, err := transcription.NewRealtimeDiarization(backendCfg); err == nil {
		realtime = source
	} else {
		log.Warn("Realtime diarization unavailable: %v", err)
	}
	coordinator := diarization.NewCoordinator(
		fast,
		realtime,
		time.Duration(cfg.Processing.DiarizationFastTimeoutSec)*time.Second,
	)

	var analyzer nlp.Analyzer = nlp.NewLocalAnalyzer()
	if cfg.NLP.Backend == "llm" {
		llmAnalyzer, err := nlp.NewLLMAnalyzer(nlp.LLMConfig{
			APIURL:         cfg.NLP.LLMAPIURL,
			APIKey:         cfg.NLP.LLMAPIKey,
			Model:          cfg.NLP.LLMModel,
			MaxTokens:      cfg.NLP.LLMMaxTokens,
			Temperature:    cfg.NLP.LLMTemperature,
			TimeoutSeconds: cfg.NLP.LLMTimeout,
		})
		if err != nil {
			log.Fatal("Failed to configure LLM analyzer: %v", err)
		}
		analyzer = llmAnalyzer
	}

	orchestrator := pipeline.NewOrchestrator(
		store,
		audio.NewPreprocessor(),
		service.NewTranscriberFactory(cfg),
		coordinator,
		nlp.NewRunner(analyzer),
		pipeline.WithVocabulary(vocabulary.NewDir(cfg.System.DataDir)),
	)
	scheduler := batch.NewScheduler(store, orchestrator, cfg.Processing.MaxConcurrentJobs)

	cronEngine := cron.New()
	processor := service.NewProcessor(cfg, store, scheduler, settingsStore, cronEngine)

	server := httpapi.NewServer(
		processor,
		store,
		httpapi.WithUI(cfg.HTTP.UIStaticDir, cfg.HTTP.UIEnabled),
		httpapi.WithRuntimeSettingsStore(settingsStore),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runWithComponents(ctx, cfg, processor, cronEngine, server); err != nil {
		log.Fatal("Service exited with error: %v", err)
	}
	scheduler.Wait()
}

func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	scheduler Scheduler,
	cronEngine CronEngine,
	httpSrv HTTPServer,
) error {
	if err := scheduler.Schedule(ctx); err != nil {
		return err
	}
	cronEngine.Start()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe(cfg.HTTP.Addr)
	}()
	log.Info("Listening on %s", cfg.HTTP.Addr)

	var serveErr error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP shutdown error: %v", err)
		}
		serveErr = <-errCh
	case serveErr = <-errCh:
	}
	cronEngine.Stop()

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}
