package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"
)

const DefaultRuntimeSettingsFile = "/app/config/settings.json"

// RuntimeSettings are the knobs operators may change through the API
// without restarting the service. They only affect jobs submitted after
// the change; running jobs keep their captured options.
type RuntimeSettings struct {
	DefaultMethod                string  `json:"default_method"`
	DefaultLanguage              string  `json:"default_language"`
	MaxConcurrentJobs            int     `json:"max_concurrent_jobs"`
	SummarySentences             int     `json:"summary_sentences"`
	SentimentConfidenceThreshold float64 `json:"sentiment_confidence_threshold"`
	SnapshotCron                 string  `json:"snapshot_cron"`
}

func RuntimeSettingsFilePath() string {
	return getEnvString("SETTINGS_FILE", DefaultRuntimeSettingsFile)
}

func (s RuntimeSettings) Validate() error {
	if strings.TrimSpace(s.DefaultMethod) == "" {
		return fmt.Errorf("default_method is required")
	}
	if strings.TrimSpace(s.DefaultLanguage) == "" {
		return fmt.Errorf("default_language is required")
	}
	if _, err := language.Parse(s.DefaultLanguage); err != nil {
		return fmt.Errorf("invalid default_language: %w", err)
	}
	if s.MaxConcurrentJobs < 1 || s.MaxConcurrentJobs > 10 {
		return fmt.Errorf("max_concurrent_jobs must be between 1 and 10")
	}
	if s.SummarySentences < 1 {
		return fmt.Errorf("summary_sentences must be positive")
	}
	if s.SentimentConfidenceThreshold < 0 || s.SentimentConfidenceThreshold > 1 {
		return fmt.Errorf("sentiment_confidence_threshold must be within [0, 1]")
	}
	if strings.TrimSpace(s.SnapshotCron) == "" {
		return fmt.Errorf("snapshot_cron is required")
	}
	if _, err := cron.ParseStandard(s.SnapshotCron); err != nil {
		return fmt.Errorf("invalid snapshot_cron: %w", err)
	}
	return nil
}

func (c *Config) RuntimeSettings() RuntimeSettings {
	return RuntimeSettings{
		DefaultMethod:                c.Processing.DefaultMethod,
		DefaultLanguage:              c.Processing.DefaultLanguage,
		MaxConcurrentJobs:            c.Processing.MaxConcurrentJobs,
		SummarySentences:             c.Processing.SummarySentences,
		SentimentConfidenceThreshold: c.Processing.SentimentConfidenceThreshold,
		SnapshotCron:                 c.System.SnapshotCron,
	}
}

func WithRuntimeSettings(settings RuntimeSettings) Option {
	return func(c *Config) {
		if strings.TrimSpace(settings.DefaultMethod) != "" {
			c.Processing.DefaultMethod = settings.DefaultMethod
		}
		if _, err := language.Parse(settings.DefaultLanguage); err == nil {
			c.Processing.DefaultLanguage = settings.DefaultLanguage
		}
		if settings.MaxConcurrentJobs >= 1 && settings.MaxConcurrentJobs <= 10 {
			c.Processing.MaxConcurrentJobs = settings.MaxConcurrentJobs
		}
		if settings.SummarySentences >= 1 {
			c.Processing.SummarySentences = settings.SummarySentences
		}
		if settings.SentimentConfidenceThreshold > 0 && settings.SentimentConfidenceThreshold <= 1 {
			c.Processing.SentimentConfidenceThreshold = settings.SentimentConfidenceThreshold
		}
		if strings.TrimSpace(settings.SnapshotCron) != "" {
			c.System.SnapshotCron = settings.SnapshotCron
		}
	}
}

func LoadRuntimeSettingsFile(path string) (RuntimeSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeSettings{}, err
	}
	var settings RuntimeSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return RuntimeSettings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings, nil
}

func WriteRuntimeSettingsFile(path string, settings RuntimeSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RuntimeSettingsStore holds the current settings in memory and writes
// updates through to the settings file atomically.
type RuntimeSettingsStore struct {
	path string

	mu      sync.RWMutex
	current RuntimeSettings
}

func NewRuntimeSettingsStore(path string, initial RuntimeSettings) (*RuntimeSettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("settings file path is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &RuntimeSettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *RuntimeSettingsStore) GetRuntimeSettings() (RuntimeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

func (s *RuntimeSettingsStore) UpdateRuntimeSettings(next RuntimeSettings) (RuntimeSettings, error) {
	if err := next.Validate(); err != nil {
		return RuntimeSettings{}, err
	}
	if err := WriteRuntimeSettingsFile(s.path, next); err != nil {
		return RuntimeSettings{}, err
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return next, nil
}
