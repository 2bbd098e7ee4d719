// Package settings holds the user-level preferences persisted under
// kvstore.KeySettings.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ent0n29/pagelens/internal/kvstore"
)

type Settings struct {
	AIProvider    string `json:"aiProvider" yaml:"aiProvider"`
	AutoScan      bool   `json:"autoScan" yaml:"autoScan"`
	Notifications bool   `json:"notifications" yaml:"notifications"`
	Theme         string `json:"theme" yaml:"theme"`
	AIModel       string `json:"aiModel,omitempty" yaml:"aiModel"`
	SchemaVersion int    `json:"schemaVersion" yaml:"-"`
}

// DefaultModel is used when neither the caller nor AI_DEFAULT_MODEL names one.
const DefaultModel = "gpt-3.5-turbo"

var ErrInvalidSettings = errors.New("invalid settings")

// Defaults returns the first-install settings with aiModel set to model, or
// DefaultModel when model is blank.
func Defaults(model string) Settings {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	return Settings{
		AIProvider:    "openai",
		AutoScan:      true,
		Notifications: true,
		Theme:         "light",
		AIModel:       model,
		SchemaVersion: kvstore.SchemaVersion,
	}
}

// Validate rejects values the popup cannot render.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.AIProvider) == "" {
		return fmt.Errorf("%w: aiProvider is required", ErrInvalidSettings)
	}
	switch s.Theme {
	case "light", "dark", "auto":
	default:
		return fmt.Errorf("%w: unknown theme %q", ErrInvalidSettings, s.Theme)
	}
	return nil
}

// LoadSeed overlays the YAML file at path onto Defaults(model). An empty path
// returns the defaults unchanged.
//
//	aiProvider: openai
//	theme: dark
//	autoScan: false
func LoadSeed(path, model string) (Settings, error) {
	s := Defaults(model)
	path = strings.TrimSpace(path)
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings seed: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings seed %s: %w", path, err)
	}
	s.SchemaVersion = kvstore.SchemaVersion
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Load returns the persisted settings overlaid on base, or base when none are
// stored. Fields missing from the stored document keep base's values.
func Load(ctx context.Context, kv kvstore.Store, base Settings) (Settings, error) {
	s := base
	raw, err := kv.Get(ctx, kvstore.KeySettings)
	if errors.Is(err, kvstore.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return base, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return base, fmt.Errorf("decode settings: %w", err)
	}
	if strings.TrimSpace(s.AIModel) == "" {
		s.AIModel = base.AIModel
	}
	return s, nil
}

func Save(ctx context.Context, kv kvstore.Store, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.SchemaVersion = kvstore.SchemaVersion
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := kv.Set(ctx, kvstore.KeySettings, raw); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
