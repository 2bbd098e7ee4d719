package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8787" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8787")
	}
	if cfg.StoreURL != "" {
		t.Fatalf("StoreURL = %q, want empty default", cfg.StoreURL)
	}
	if cfg.AIChatTimeout != 30*time.Second || cfg.ScanTimeout != 15*time.Second {
		t.Fatalf("timeouts = %v / %v, want 30s / 15s", cfg.AIChatTimeout, cfg.ScanTimeout)
	}
	if cfg.SessionRetention != 24*time.Hour {
		t.Fatalf("SessionRetention = %v, want 24h", cfg.SessionRetention)
	}
	if cfg.SessionJanitorInterval != 0 {
		t.Fatalf("SessionJanitorInterval = %v, want disabled", cfg.SessionJanitorInterval)
	}
	if cfg.CredentialBackend != "store" || cfg.AIDefaultModel != "gpt-3.5-turbo" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("STORE_URL", "sqlite:///tmp/pagelens.db")
	t.Setenv("AI_CHAT_TIMEOUT", "5s")
	t.Setenv("SESSION_JANITOR_INTERVAL", "10m")
	t.Setenv("CREDENTIAL_BACKEND", "Keyring")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.StoreURL != "sqlite:///tmp/pagelens.db" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.AIChatTimeout != 5*time.Second || cfg.SessionJanitorInterval != 10*time.Minute {
		t.Fatalf("durations = %v / %v", cfg.AIChatTimeout, cfg.SessionJanitorInterval)
	}
	if cfg.CredentialBackend != "keyring" || !cfg.AllowAnyOrigin {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"AI_CHAT_TIMEOUT":      "500ms",
		"SCAN_TIMEOUT":         "bogus",
		"SESSION_RETENTION":    "30s",
		"SESSION_CACHE_SIZE":   "0",
		"CREDENTIAL_BACKEND":   "vault",
		"APP_ALLOW_ANY_ORIGIN": "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%s should fail", key, value)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("APP_BIND_ADDR=:7000\nAI_DEFAULT_MODEL=gpt-4o-mini\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("AI_DEFAULT_MODEL", "preset")
	// godotenv only fills variables that are absent, not empty.
	os.Unsetenv("APP_BIND_ADDR")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":7000" {
		t.Fatalf("BindAddr = %q, want value from .env", cfg.BindAddr)
	}
	if cfg.AIDefaultModel != "preset" {
		t.Fatalf("AIDefaultModel = %q, process env should win", cfg.AIDefaultModel)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() on missing file error = %v", err)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"STORE_URL",
		"AI_BASE_URL",
		"AI_DEFAULT_MODEL",
		"AI_CHAT_TIMEOUT",
		"SCAN_TIMEOUT",
		"SESSION_RETENTION",
		"SESSION_CACHE_SIZE",
		"SESSION_JANITOR_INTERVAL",
		"CREDENTIAL_BACKEND",
		"ONBOARDING_URL",
		"SETTINGS_SEED_FILE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
