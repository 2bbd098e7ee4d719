package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ent0n29/pagelens/internal/coordinator"
)

type onboardingCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type onboardingStatusResponse struct {
	coordinator.OnboardingStatus
	AIBaseURL   string `json:"aiBaseUrl"`
	Scanners    int    `json:"scanners"`
	Popups      int    `json:"popups"`

	// KeyAccepted is only set when the caller asked for ?verify=true and a
	// key is stored.
	KeyAccepted *bool             `json:"keyAccepted,omitempty"`
	Checks      []onboardingCheck `json:"checks"`
}

func (s *Server) handleOnboardingStatus(w http.ResponseWriter, r *http.Request) {
	status := s.coordinator.Status(r.Context())
	var accepted *bool
	if verify, _ := strconv.ParseBool(r.URL.Query().Get("verify")); verify && status.Authenticated {
		ok := s.coordinator.VerifyCredentials(r.Context())
		accepted = &ok
	}
	respondJSON(w, http.StatusOK, onboardingStatusResponse{
		OnboardingStatus: status,
		AIBaseURL:        s.cfg.AIBaseURL,
		Scanners:         s.scanners.ConnectedCount(),
		Popups:           s.popups.Len(),
		KeyAccepted:      accepted,
		Checks:           s.onboardingChecks(status, accepted),
	})
}

func (s *Server) onboardingChecks(status coordinator.OnboardingStatus, accepted *bool) []onboardingCheck {
	checks := make([]onboardingCheck, 0, 5)

	if status.Installed {
		checks = append(checks, onboardingCheck{
			ID:     "installed",
			Status: "ok",
			Label:  "Extension installed",
			Detail: status.InstalledAt.Format("2006-01-02 15:04:05Z07:00"),
		})
	} else {
		checks = append(checks, onboardingCheck{
			ID:     "installed",
			Status: "warn",
			Label:  "Extension installed",
			Detail: "no install event received",
			Fix:    "POST /v1/events/installed with {\"reason\":\"install\"} once after installing.",
		})
	}

	if status.Authenticated {
		checks = append(checks, onboardingCheck{
			ID:     "credentials",
			Status: "ok",
			Label:  "AI API key",
			Detail: fmt.Sprintf("stored in %s", status.CredentialBackend),
		})
	} else {
		checks = append(checks, onboardingCheck{
			ID:     "credentials",
			Status: "error",
			Label:  "AI API key",
			Detail: "not connected",
			Fix:    "Send authenticateUser with your OpenAI API key.",
		})
	}

	switch {
	case accepted == nil:
	case *accepted:
		checks = append(checks, onboardingCheck{
			ID:     "credentials_live",
			Status: "ok",
			Label:  "AI API key accepted",
			Detail: s.cfg.AIBaseURL,
		})
	default:
		checks = append(checks, onboardingCheck{
			ID:     "credentials_live",
			Status: "error",
			Label:  "AI API key accepted",
			Detail: "the AI API rejected the stored key or could not be reached",
			Fix:    "Check the key and AI_BASE_URL, then send authenticateUser again.",
		})
	}

	switch strings.TrimSpace(status.StoreMode) {
	case "in-memory":
		checks = append(checks, onboardingCheck{
			ID:     "store",
			Status: "warn",
			Label:  "Session persistence",
			Detail: "in-memory only",
			Fix:    "Set STORE_URL to a sqlite, postgres or redis URL to keep sessions across restarts.",
		})
	default:
		checks = append(checks, onboardingCheck{
			ID:     "store",
			Status: "ok",
			Label:  "Session persistence",
			Detail: status.StoreMode,
		})
	}

	if n := s.scanners.ConnectedCount(); n > 0 {
		checks = append(checks, onboardingCheck{
			ID:     "scanner",
			Status: "ok",
			Label:  "Page scanner",
			Detail: fmt.Sprintf("%d tab(s) connected", n),
		})
	} else {
		checks = append(checks, onboardingCheck{
			ID:     "scanner",
			Status: "warn",
			Label:  "Page scanner",
			Detail: "no tab connected",
			Fix:    "Open a product page so its scanner connects to /v1/scanner/ws.",
		})
	}
	return checks
}
