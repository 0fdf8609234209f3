package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/text/language"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// Transcription Backends:
// - AZURE_SPEECH_KEY: Azure Speech resource key
// - AZURE_SPEECH_REGION: Azure Speech region (e.g. eastus)
// - AZURE_SPEECH_ENDPOINT: custom endpoint, overrides region
// - AZURE_OPENAI_ENDPOINT: Azure OpenAI endpoint for Whisper
// - AZURE_OPENAI_KEY: Azure OpenAI key
// - WHISPER_DEPLOYMENT: Whisper deployment name (default: whisper)
// - TRANSCRIBE_TIMEOUT: per-request timeout in seconds (default: 300)
//
// Processing Configuration:
// - DEFAULT_METHOD: transcription method for submissions that omit one (default: azure)
// - DEFAULT_LANGUAGE: BCP-47 language hint (default: en)
// - MAX_CONCURRENT_JOBS: batch worker bound, clamped to 1..10 (default: 3)
// - DIARIZATION_FAST_TIMEOUT: fast path timeout in seconds (default: 240)
// - SUMMARY_SENTENCES: extractive summary length (default: 3)
// - SENTIMENT_CONFIDENCE_THRESHOLD: below it segment labels become neutral (default: 0.6)
// - AUDIO_SAMPLE_RATE: target sample rate in Hz (default: 16000)
// - AUDIO_CHANNELS: target channel count (default: 1)
// - AUDIO_BIT_RATE: target bit rate (default: 128k)
//
// NLP Configuration:
// - NLP_BACKEND: analysis backend, local or llm (default: local)
// - LLM_API_URL: OpenAI-compatible endpoint (default: https://openrouter.ai/api/v1)
// - LLM_API_KEY: API key, required when NLP_BACKEND is llm
// - LLM_MODEL: model name (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS: response token cap (default: 4000)
// - LLM_TEMPERATURE: sampling temperature (default: 0.2)
// - LLM_TIMEOUT: request timeout in seconds (default: 60)
//
// System Configuration:
// - DATA_DIR: database, uploads and settings root (default: /app/data)
// - UPLOAD_RETENTION_HOURS: stale upload retention (default: 24)
// - SNAPSHOT_CRON: job table snapshot schedule (default: */5 * * * *)
// - CLEANUP_CRON: upload cleanup schedule (default: 0 * * * *)
// - TZ: timezone (default: UTC)
//
// HTTP Configuration:
// - HTTP_ADDR: listen address (default: :8080)
// - UI_STATIC_DIR: static UI directory (default: /app/web)
// - UI_ENABLED: serve the UI (default: true)

type Config struct {
	Backends   BackendConfig    `json:"backends"`
	Processing ProcessingConfig `json:"processing"`
	NLP        NLPConfig        `json:"nlp"`
	System     SystemConfig     `json:"system"`
	HTTP       HTTPConfig       `json:"http"`
}

// NLPConfig selects the analysis backend. The local backend needs no
// credentials; the llm backend talks to any OpenAI-compatible endpoint.
type NLPConfig struct {
	Backend        string  `json:"backend"`
	LLMAPIURL      string  `json:"llm_api_url"`
	LLMAPIKey      string  `json:"llm_api_key"`
	LLMModel       string  `json:"llm_model"`
	LLMMaxTokens   int     `json:"llm_max_tokens"`
	LLMTemperature float64 `json:"llm_temperature"`
	LLMTimeout     int     `json:"llm_timeout"`
}

// BackendConfig holds credentials for the transcription backends.
type BackendConfig struct {
	AzureSpeechKey      string `json:"azure_speech_key"`
	AzureSpeechRegion   string `json:"azure_speech_region"`
	AzureSpeechEndpoint string `json:"azure_speech_endpoint"`

	OpenAIEndpoint    string `json:"openai_endpoint"`
	OpenAIKey         string `json:"openai_key"`
	WhisperDeployment string `json:"whisper_deployment"`

	TimeoutSeconds int `json:"timeout_seconds"`
}

// ProcessingConfig holds pipeline defaults applied to submissions that do
// not override them.
type ProcessingConfig struct {
	DefaultMethod                string  `json:"default_method"`
	DefaultLanguage              string  `json:"default_language"`
	MaxConcurrentJobs            int     `json:"max_concurrent_jobs"`
	DiarizationFastTimeoutSec    int     `json:"diarization_fast_timeout_sec"`
	SummarySentences             int     `json:"summary_sentences"`
	SentimentConfidenceThreshold float64 `json:"sentiment_confidence_threshold"`
	AudioSampleRate              int     `json:"audio_sample_rate"`
	AudioChannels                int     `json:"audio_channels"`
	AudioBitRate                 string  `json:"audio_bit_rate"`
}

// SystemConfig holds the system configuration.
type SystemConfig struct {
	DataDir              string `json:"data_dir"`
	UploadRetentionHours int    `json:"upload_retention_hours"`
	SnapshotCron         string `json:"snapshot_cron"`
	CleanupCron          string `json:"cleanup_cron"`
	TZ                   string `json:"tz"`
}

// HTTPConfig holds the HTTP server configuration.
type HTTPConfig struct {
	Addr        string `json:"addr"`
	UIStaticDir string `json:"ui_static_dir"`
	UIEnabled   bool   `json:"ui_enabled"`
}

func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "transcriber.db")
}

func (c *Config) UploadDir() string {
	return filepath.Join(c.System.DataDir, "uploads")
}

// Option is a function type for configuring Config.
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment
// variables and options.
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Backends: BackendConfig{
			AzureSpeechKey:      getEnvString("AZURE_SPEECH_KEY", ""),
			AzureSpeechRegion:   getEnvString("AZURE_SPEECH_REGION", ""),
			AzureSpeechEndpoint: getEnvString("AZURE_SPEECH_ENDPOINT", ""),
			OpenAIEndpoint:      getEnvString("AZURE_OPENAI_ENDPOINT", ""),
			OpenAIKey:           getEnvString("AZURE_OPENAI_KEY", ""),
			WhisperDeployment:   getEnvString("WHISPER_DEPLOYMENT", "whisper"),
			TimeoutSeconds:      getEnvInt("TRANSCRIBE_TIMEOUT", 300),
		},
		Processing: ProcessingConfig{
			DefaultMethod:                getEnvString("DEFAULT_METHOD", "azure"),
			DefaultLanguage:              getEnvString("DEFAULT_LANGUAGE", "en"),
			MaxConcurrentJobs:            getEnvInt("MAX_CONCURRENT_JOBS", 3),
			DiarizationFastTimeoutSec:    getEnvInt("DIARIZATION_FAST_TIMEOUT", 240),
			SummarySentences:             getEnvInt("SUMMARY_SENTENCES", 3),
			SentimentConfidenceThreshold: getEnvFloat("SENTIMENT_CONFIDENCE_THRESHOLD", 0.6),
			AudioSampleRate:              getEnvInt("AUDIO_SAMPLE_RATE", 16000),
			AudioChannels:                getEnvInt("AUDIO_CHANNELS", 1),
			AudioBitRate:                 getEnvString("AUDIO_BIT_RATE", "128k"),
		},
		NLP: NLPConfig{
			Backend:        getEnvString("NLP_BACKEND", "local"),
			LLMAPIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			LLMAPIKey:      getEnvString("LLM_API_KEY", ""),
			LLMModel:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 4000),
			LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
			LLMTimeout:     getEnvInt("LLM_TIMEOUT", 60),
		},
		System: SystemConfig{
			DataDir:              getEnvString("DATA_DIR", "/app/data"),
			UploadRetentionHours: getEnvInt("UPLOAD_RETENTION_HOURS", 24),
			SnapshotCron:         getEnvString("SNAPSHOT_CRON", "*/5 * * * *"),
			CleanupCron:          getEnvString("CLEANUP_CRON", "0 * * * *"),
			TZ:                   getEnvString("TZ", "UTC"),
		},
		HTTP: HTTPConfig{
			Addr:        getEnvString("HTTP_ADDR", ":8080"),
			UIStaticDir: getEnvString("UI_STATIC_DIR", "/app/web"),
			UIEnabled:   getEnvBool("UI_ENABLED", true),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set.
func (c *Config) validate() error {
	hasAzure := c.Backends.AzureSpeechKey != "" &&
		(c.Backends.AzureSpeechRegion != "" || c.Backends.AzureSpeechEndpoint != "")
	hasWhisper := c.Backends.OpenAIEndpoint != "" && c.Backends.OpenAIKey != ""
	if !hasAzure && !hasWhisper {
		return fmt.Errorf("no transcription backend configured: set AZURE_SPEECH_KEY or AZURE_OPENAI_ENDPOINT")
	}
	if _, err := language.Parse(c.Processing.DefaultLanguage); err != nil {
		return fmt.Errorf("invalid DEFAULT_LANGUAGE %q: %w", c.Processing.DefaultLanguage, err)
	}
	switch c.NLP.Backend {
	case "local":
	case "llm":
		if c.NLP.LLMAPIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required when NLP_BACKEND is llm")
		}
	default:
		return fmt.Errorf("unknown NLP_BACKEND %q", c.NLP.Backend)
	}
	return nil
}

// getEnvString gets a string value from environment variables with default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
