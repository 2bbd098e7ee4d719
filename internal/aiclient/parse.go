package aiclient

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// ParseOr strictly decodes raw into T. When decoding fails it returns
// fallback() and false, so callers can mark the result as degraded.
func ParseOr[T any](raw string, fallback func() T) (T, bool) {
	body := bytes.TrimSpace([]byte(unfence(raw)))
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return fallback(), false
	}
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return fallback(), false
	}
	return out, true
}

// unfence strips a surrounding markdown code fence (```json ... ```), which
// chat models add around JSON more often than not.
func unfence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		return s
	}
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}

func parseAnalysis(reply string, now time.Time) Analysis {
	analysis, ok := ParseOr(reply, func() Analysis {
		return fallbackAnalysis(reply)
	})
	if ok {
		if analysis.Recommendations == nil {
			analysis.Recommendations = []Prose{}
		}
		if analysis.SimilarProducts == nil {
			analysis.SimilarProducts = []json.RawMessage{}
		}
		analysis.Degraded = false
	}
	analysis.AnalyzedAt = now
	return analysis
}

func fallbackAnalysis(reply string) Analysis {
	return Analysis{
		Insights:        Prose(truncate(reply, analysisFallbackPrefix)),
		Recommendations: []Prose{"Check for better prices", "Read reviews"},
		SimilarProducts: []json.RawMessage{},
		Advice:          "Consider comparing with similar products",
		Degraded:        true,
	}
}

// Unparseable reply.
func fallbackAlternatives() []Alternative {
	return []Alternative{
		{Name: "Alternative Product 1", Price: "$99", Rating: "4.5", Reason: "Better value for money"},
		{Name: "Alternative Product 2", Price: "$89", Rating: "4.3", Reason: "Higher quality materials"},
	}
}

// Failed request.
func fallbackSimilarProducts() []Alternative {
	return []Alternative{
		{Name: "Similar Product 1", Price: "$99", Rating: "4.5"},
		{Name: "Similar Product 2", Price: "$89", Rating: "4.3"},
	}
}
