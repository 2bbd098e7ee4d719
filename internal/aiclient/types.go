package aiclient

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/ent0n29/pagelens/internal/pagedata"
)

// ChatMessage is one prior turn of the popup conversation.
type ChatMessage struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Role maps the popup's sender label to a completion role. Only "user" is a
// user turn; everything else ("ai", "assistant") was produced by the model.
func (m ChatMessage) Role() string {
	if strings.EqualFold(strings.TrimSpace(m.Sender), "user") {
		return "user"
	}
	return "assistant"
}

// Analysis is the structured result of AnalyzePageData.
type Analysis struct {
	Insights        Prose             `json:"insights"`
	Recommendations []Prose           `json:"recommendations"`
	SimilarProducts []json.RawMessage `json:"similar_products"`
	Advice          Prose             `json:"advice"`
	// Degraded is set when the model reply could not be parsed and the
	// fallback analysis was substituted.
	Degraded   bool      `json:"degraded,omitempty"`
	AnalyzedAt time.Time `json:"analyzedAt,omitempty"`
}

// Alternative is one suggested replacement product.
type Alternative struct {
	Name   pagedata.Text `json:"name"`
	Price  pagedata.Text `json:"price,omitempty"`
	Rating pagedata.Text `json:"rating,omitempty"`
	Reason pagedata.Text `json:"reason,omitempty"`
}

// SimilarProducts wraps the alternatives with a degraded marker.
type SimilarProducts struct {
	Products []Alternative `json:"products"`
	Degraded bool          `json:"degraded"`
}

// CannedReview is returned by the review placeholder.
type CannedReview struct {
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

// Prose is free text the model may return as a string, a list of strings, or
// an object; lists are joined with newlines and objects kept as compact JSON.
type Prose string

func (p *Prose) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*p = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = Prose(s)
	case '[':
		var items []Prose
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if s := strings.TrimSpace(string(it)); s != "" {
				parts = append(parts, s)
			}
		}
		*p = Prose(strings.Join(parts, "\n"))
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, b); err != nil {
			return err
		}
		*p = Prose(buf.String())
	}
	return nil
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string              `json:"model"`
	Messages    []completionMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature"`
	Stream      bool                `json:"stream"`
}

type completionResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
