package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/pagelens/internal/aiclient"
	"github.com/ent0n29/pagelens/internal/bridge"
	"github.com/ent0n29/pagelens/internal/coordinator"
	"github.com/ent0n29/pagelens/internal/httpapi"
	"github.com/ent0n29/pagelens/internal/observability"
	"github.com/ent0n29/pagelens/internal/settings"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	seed, err := settings.LoadSeed(cfg.SettingsSeedFile, cfg.AIDefaultModel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := openDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	log.Printf("store mode: %s, credential backend: %s", d.kv.Mode(), d.vault.BackendName())

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	scanners := bridge.NewScannerBridge(cfg.ScanTimeout)
	popups := bridge.NewPopupHub()

	var opener coordinator.Opener
	if cfg.OnboardingURL != "" {
		opener = coordinator.BrowserOpener{}
	}
	coord, err := coordinator.New(coordinator.Options{
		KV:            d.kv,
		Vault:         d.vault,
		Sessions:      d.sessions,
		AI:            aiclient.New(cfg.AIBaseURL, nil),
		Scanner:       scanners,
		Popup:         popups,
		Opener:        opener,
		Metrics:       metrics,
		ChatTimeout:   cfg.AIChatTimeout,
		OnboardingURL: cfg.OnboardingURL,
		DefaultModel:  cfg.AIDefaultModel,
		SeedSettings:  &seed,
	})
	if err != nil {
		return err
	}

	api := httpapi.New(cfg, coord, scanners, popups, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	d.sessions.StartJanitor(ctx, cfg.SessionJanitorInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
			_ = httpServer.Close()
		}
		coord.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Printf("shutdown complete")
	return nil
}
