package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime settings for the pagelens daemon.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	// StoreURL selects the persisted key/value backend; empty means in-memory.
	StoreURL string

	AIBaseURL      string
	AIDefaultModel string
	AIChatTimeout  time.Duration
	ScanTimeout    time.Duration

	SessionRetention       time.Duration
	SessionCacheSize       int
	SessionJanitorInterval time.Duration

	CredentialBackend string
	OnboardingURL     string
	SettingsSeedFile  string
}

// LoadDotEnv reads KEY=VALUE pairs from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8787"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "pagelens"),
		StoreURL:          stringsTrimSpace("STORE_URL"),
		AIBaseURL:         envOrDefault("AI_BASE_URL", "https://api.openai.com/v1"),
		AIDefaultModel:    envOrDefault("AI_DEFAULT_MODEL", "gpt-3.5-turbo"),
		CredentialBackend: strings.ToLower(envOrDefault("CREDENTIAL_BACKEND", "store")),
		OnboardingURL:     stringsTrimSpace("ONBOARDING_URL"),
		SettingsSeedFile:  stringsTrimSpace("SETTINGS_SEED_FILE"),

		ShutdownTimeout:  15 * time.Second,
		AIChatTimeout:    30 * time.Second,
		ScanTimeout:      15 * time.Second,
		SessionRetention: 24 * time.Hour,
		SessionCacheSize: 128,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.AIChatTimeout, err = durationFromEnv("AI_CHAT_TIMEOUT", cfg.AIChatTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ScanTimeout, err = durationFromEnv("SCAN_TIMEOUT", cfg.ScanTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionRetention, err = durationFromEnv("SESSION_RETENTION", cfg.SessionRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionCacheSize, err = intFromEnv("SESSION_CACHE_SIZE", cfg.SessionCacheSize)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionJanitorInterval, err = durationFromEnv("SESSION_JANITOR_INTERVAL", cfg.SessionJanitorInterval)
	if err != nil {
		return Config{}, err
	}

	if cfg.AIChatTimeout < time.Second {
		return Config{}, fmt.Errorf("AI_CHAT_TIMEOUT must be at least 1s")
	}
	if cfg.ScanTimeout < time.Second {
		return Config{}, fmt.Errorf("SCAN_TIMEOUT must be at least 1s")
	}
	if cfg.SessionRetention < time.Minute {
		return Config{}, fmt.Errorf("SESSION_RETENTION must be at least 1m")
	}
	if cfg.SessionCacheSize <= 0 {
		return Config{}, fmt.Errorf("SESSION_CACHE_SIZE must be positive")
	}
	if cfg.SessionJanitorInterval < 0 {
		return Config{}, fmt.Errorf("SESSION_JANITOR_INTERVAL must be >= 0")
	}
	switch cfg.CredentialBackend {
	case "store", "keyring":
	default:
		return Config{}, fmt.Errorf("CREDENTIAL_BACKEND must be one of store, keyring")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
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
