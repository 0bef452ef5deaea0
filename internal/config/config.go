package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the interview practice service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	SessionTokenTTL        time.Duration
	SessionJanitorInterval time.Duration
	UpstreamTimeout        time.Duration

	OpenAIAPIKey string
	AI           AIConfig

	TranscribeProvider    string
	AssemblyAIAPIKey      string
	AssemblyAISpeechModel string

	DatabaseURL string

	STUNURLs         []string
	TranscriptPacing time.Duration

	MaxAudioBytes  int
	LogTranscripts bool
}

// Load reads environment variables (after an optional .env file) and applies
// defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}

	cfg := Config{
		BindAddr:               envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:       envOrDefault("APP_METRICS_NAMESPACE", "mockwise"),
		ShutdownTimeout:        15 * time.Second,
		SessionTokenTTL:        DefaultSessionTokenTTL,
		SessionJanitorInterval: 30 * time.Second,
		UpstreamTimeout:        20 * time.Second,
		OpenAIAPIKey:           stringsTrimSpace("OPENAI_API_KEY"),
		AI: AIConfig{
			Model:            envOrDefault("REALTIME_MODEL", DefaultRealtimeModel),
			BaseURL:          strings.TrimRight(envOrDefault("REALTIME_BASE_URL", DefaultRealtimeBaseURL), "/"),
			Voice:            envOrDefault("REALTIME_VOICE", DefaultRealtimeVoice),
			BaseInstructions: envOrDefault("REALTIME_INSTRUCTIONS", DefaultBaseInstructions),
		},
		TranscribeProvider:     strings.ToLower(envOrDefault("TRANSCRIBE_PROVIDER", "auto")),
		AssemblyAIAPIKey:       stringsTrimSpace("ASSEMBLYAI_API_KEY"),
		AssemblyAISpeechModel:  envOrDefault("ASSEMBLYAI_SPEECH_MODEL", "nano"),
		DatabaseURL:            stringsTrimSpace("DATABASE_URL"),
		STUNURLs:               splitList(envOrDefault("STUN_URLS", DefaultSTUNURL)),
		TranscriptPacing:       DefaultTranscriptPacing,
		// Matches the upload ceiling of the hosted transcription APIs.
		MaxAudioBytes: 25 << 20,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTokenTTL, err = durationFromEnv("SESSION_TOKEN_TTL", cfg.SessionTokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionJanitorInterval, err = durationFromEnv("SESSION_JANITOR_INTERVAL", cfg.SessionJanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.UpstreamTimeout, err = durationFromEnv("UPSTREAM_TIMEOUT", cfg.UpstreamTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TranscriptPacing, err = durationFromEnv("TRANSCRIPT_PACING", cfg.TranscriptPacing)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxAudioBytes, err = intFromEnv("TRANSCRIBE_MAX_AUDIO_BYTES", cfg.MaxAudioBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.LogTranscripts, err = boolFromEnv("APP_LOG_TRANSCRIPTS", cfg.LogTranscripts)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and required values.
func (c Config) Validate() error {
	if c.SessionTokenTTL < time.Second {
		return fmt.Errorf("SESSION_TOKEN_TTL must be at least 1s")
	}
	if c.SessionJanitorInterval <= 0 {
		return fmt.Errorf("SESSION_JANITOR_INTERVAL must be positive")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	if c.MaxAudioBytes <= 0 {
		return fmt.Errorf("TRANSCRIBE_MAX_AUDIO_BYTES must be positive")
	}
	if c.TranscriptPacing < 0 {
		return fmt.Errorf("TRANSCRIPT_PACING must be >= 0")
	}
	switch c.TranscribeProvider {
	case "auto", "assemblyai", "mock":
	default:
		return fmt.Errorf("invalid TRANSCRIBE_PROVIDER: %q (expected auto|assemblyai|mock)", c.TranscribeProvider)
	}
	return c.AI.Validate()
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
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
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
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
