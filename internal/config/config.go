package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the companion voice service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	RequestTimeout   time.Duration
	MetricsNamespace string
	TimingEnabled    bool

	ProviderMode string

	AnthropicAPIKey  string
	AnthropicBaseURL string
	DialogueModel    string
	ReplyMaxTokens   int
	ContextBudget    int

	OpenAIAPIKey  string
	OpenAIBaseURL string
	WhisperModel  string
	TTSModel      string
	TTSFormat     string
	SpeechRate    float64

	Language     string
	HistoryLimit int

	DatabaseURL    string
	ArchiveTimeout time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":3000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "compagnon"),
		ProviderMode:     envOrDefault("PROVIDER_MODE", "auto"),
		AnthropicBaseURL: envOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		DialogueModel:    envOrDefault("DIALOGUE_MODEL_ID", "claude-sonnet-4-20250514"),
		OpenAIBaseURL:    envOrDefault("OPENAI_BASE_URL", "https://api.openai.com"),
		WhisperModel:     envOrDefault("WHISPER_MODEL_ID", "whisper-1"),
		TTSModel:         envOrDefault("TTS_MODEL_ID", "tts-1"),
		TTSFormat:        envOrDefault("TTS_OUTPUT_FORMAT", "mp3"),
		// Slightly slower speech for senior listeners.
		SpeechRate:      0.95,
		Language:        envOrDefault("SPEECH_LANGUAGE", "fr"),
		HistoryLimit:    10,
		ReplyMaxTokens:  150,
		ContextBudget:   2048,
		AnthropicAPIKey: trimmedEnv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    trimmedEnv("OPENAI_API_KEY"),
		DatabaseURL:     trimmedEnv("DATABASE_URL"),
		TimingEnabled:   true,
		ShutdownTimeout: 15 * time.Second,
		RequestTimeout:  30 * time.Second,
		ArchiveTimeout:  2 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RequestTimeout, err = durationFromEnv("APP_REQUEST_TIMEOUT", cfg.RequestTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ArchiveTimeout, err = durationFromEnv("APP_ARCHIVE_TIMEOUT", cfg.ArchiveTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TimingEnabled, err = boolFromEnv("APP_TIMING_ENABLED", cfg.TimingEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("SESSION_HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.ReplyMaxTokens, err = intFromEnv("REPLY_MAX_TOKENS", cfg.ReplyMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextBudget, err = intFromEnv("CONTEXT_TOKEN_BUDGET", cfg.ContextBudget)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechRate, err = floatFromEnv("TTS_SPEECH_RATE", cfg.SpeechRate)
	if err != nil {
		return Config{}, err
	}

	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("SESSION_HISTORY_LIMIT must be positive")
	}
	if cfg.ReplyMaxTokens <= 0 {
		return Config{}, fmt.Errorf("REPLY_MAX_TOKENS must be positive")
	}
	if cfg.ContextBudget <= 0 {
		return Config{}, fmt.Errorf("CONTEXT_TOKEN_BUDGET must be positive")
	}
	if cfg.SpeechRate < 0.25 || cfg.SpeechRate > 4.0 {
		return Config{}, fmt.Errorf("TTS_SPEECH_RATE must be in [0.25, 4.0]")
	}
	if cfg.RequestTimeout < time.Second {
		return Config{}, fmt.Errorf("APP_REQUEST_TIMEOUT must be at least 1s")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.ProviderMode)) {
	case "auto", "live", "mock":
	default:
		return Config{}, fmt.Errorf("invalid PROVIDER_MODE: %q (expected auto|live|mock)", cfg.ProviderMode)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
