package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/ent0n29/pagelens/internal/aiclient"
)

const (
	FrameScanPage   = "scanPage"
	FrameScanResult = "scanResult"
)

// ScanRequest is sent to the page scanner of one tab.
type ScanRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// ScanResult answers a ScanRequest with the same ID.
type ScanResult struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// ParseScannerFrame returns a ScanResult for scan replies and a Command for
// anything the scanner pushes on its own (pageScanned).
func ParseScannerFrame(raw []byte) (any, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}
	if env.Type == FrameScanResult {
		var res ScanResult
		if err := json.Unmarshal(raw, &res); err != nil {
			return nil, err
		}
		if res.ID == "" {
			return nil, fmt.Errorf("invalid %s: missing id", FrameScanResult)
		}
		return res, nil
	}
	return ParseCommand(raw)
}

// PopupNotification is pushed to open popups.
type PopupNotification struct {
	Target   string             `json:"target"`
	Type     string             `json:"type"`
	TabID    TabID              `json:"tabId"`
	Analysis *aiclient.Analysis `json:"analysis,omitempty"`
}

func AnalysisComplete(tabID TabID, analysis aiclient.Analysis) PopupNotification {
	return PopupNotification{
		Target:   "popup",
		Type:     "analysisComplete",
		TabID:    tabID,
		Analysis: &analysis,
	}
}
