package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ent0n29/pagelens/internal/aiclient"
	"github.com/ent0n29/pagelens/internal/config"
	"github.com/ent0n29/pagelens/internal/credentials"
	"github.com/ent0n29/pagelens/internal/kvstore"
	"github.com/ent0n29/pagelens/internal/session"
)

func loadConfig() (config.Config, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return config.Config{}, err
	}
	return config.Load()
}

// deps is the storage side shared by the server and the maintenance commands.
type deps struct {
	kv       kvstore.Store
	vault    *credentials.Vault
	sessions *session.Store
}

func openDeps(ctx context.Context, cfg config.Config) (*deps, error) {
	kv, err := kvstore.NewStore(ctx, cfg.StoreURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	backend, err := credentials.NewBackend(cfg.CredentialBackend, kv)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	model := strings.TrimSpace(cfg.AIDefaultModel)
	if model == "" {
		model = aiclient.DefaultModel
	}
	return &deps{
		kv:       kv,
		vault:    credentials.NewVault(backend, credentials.Base64Codec{}, kv, model),
		sessions: session.NewStore(kv, cfg.SessionRetention, cfg.SessionCacheSize),
	}, nil
}

func (d *deps) Close() error {
	return d.kv.Close()
}
