package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/ent0n29/pagelens/internal/kvstore"
	"github.com/ent0n29/pagelens/internal/protocol"
	"github.com/ent0n29/pagelens/internal/session"
	"github.com/ent0n29/pagelens/internal/settings"
)

// onInstalled bootstraps a fresh install: default settings, no sessions, no
// credentials, then the onboarding view. Updates and browser restarts are ignored.
func (c *Coordinator) onInstalled(ctx context.Context, event any) error {
	ev := event.(protocol.Installed)
	if ev.Reason != "install" {
		return nil
	}

	if err := kvstore.EnsureSchema(ctx, c.kv); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := settings.Save(ctx, c.kv, c.seed); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	existing, err := c.sessions.List(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, sess := range existing {
		if err := c.sessions.Delete(ctx, sess.TabID); err != nil {
			return fmt.Errorf("reset sessions: %w", err)
		}
	}
	c.metrics.SetActiveSessions(0)

	if err := c.vault.Clear(ctx); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	installedAt := strconv.FormatInt(c.now().UnixMilli(), 10)
	if err := c.kv.Set(ctx, kvstore.KeyInstalledAt, []byte(installedAt)); err != nil {
		return fmt.Errorf("write install time: %w", err)
	}

	if c.opener != nil && c.onboardingURL != "" {
		if err := c.opener.Open(c.onboardingURL); err != nil {
			log.Printf("open onboarding view failed: %v", err)
		}
	}
	log.Printf("first install bootstrap complete")
	return nil
}

// onTabActivated runs the cleanup pass, then makes sure the tab has a session.
func (c *Coordinator) onTabActivated(ctx context.Context, event any) error {
	ev := event.(protocol.TabActivated)

	removed, err := c.sessions.Cleanup(ctx)
	if err != nil {
		log.Printf("session cleanup failed: %v", err)
	} else if removed > 0 {
		log.Printf("session cleanup removed %d sessions", removed)
	}

	if _, err := c.sessions.Get(ctx, ev.TabID.String()); err != nil {
		return err
	}
	if all, err := c.sessions.List(ctx); err == nil {
		c.metrics.SetActiveSessions(len(all))
	}
	return nil
}

// onTabUpdated refreshes the stored URL once navigation completes.
func (c *Coordinator) onTabUpdated(ctx context.Context, event any) error {
	ev := event.(protocol.TabUpdated)
	if ev.Status != "complete" || ev.URL == "" {
		return nil
	}
	tabID := ev.TabID.String()
	sess, err := c.sessions.Get(ctx, tabID)
	if err != nil {
		return err
	}
	if sess.URL == ev.URL {
		return nil
	}
	patch, err := session.NewPatch(map[string]any{"url": ev.URL})
	if err != nil {
		return err
	}
	if _, err := c.sessions.Update(ctx, tabID, patch); err != nil {
		return err
	}
	return nil
}

// OnboardingStatus summarizes install and authentication state.
type OnboardingStatus struct {
	Installed         bool       `json:"installed"`
	InstalledAt       *time.Time `json:"installedAt,omitempty"`
	Authenticated     bool       `json:"authenticated"`
	LastAuth          *time.Time `json:"lastAuth,omitempty"`
	CredentialBackend string     `json:"credentialBackend"`
	StoreMode         string     `json:"storeMode"`
}

func (c *Coordinator) Status(ctx context.Context) OnboardingStatus {
	status := OnboardingStatus{
		CredentialBackend: c.vault.BackendName(),
		StoreMode:         c.kv.Mode(),
	}
	raw, err := c.kv.Get(ctx, kvstore.KeyInstalledAt)
	switch {
	case err == nil:
		if ms, perr := strconv.ParseInt(string(raw), 10, 64); perr == nil {
			t := time.UnixMilli(ms).UTC()
			status.Installed = true
			status.InstalledAt = &t
		}
	case !errors.Is(err, kvstore.ErrNotFound):
		log.Printf("read install time failed: %v", err)
	}
	if _, err := c.credentials(ctx); err == nil {
		status.Authenticated = true
	}
	if t, ok := c.vault.LastAuth(ctx); ok {
		status.LastAuth = &t
	}
	return status
}

// VerifyCredentials asks the AI API whether the stored key is still accepted.
// It is false without contacting the API when no key is stored.
func (c *Coordinator) VerifyCredentials(ctx context.Context) bool {
	creds, err := c.credentials(ctx)
	if err != nil {
		return false
	}
	return c.ai.ValidateCredentials(ctx, creds)
}
