package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

type ActionLatency struct {
	Action      string  `json:"action"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   int    `json:"count"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	WindowSize  int             `json:"window_size"`
	Actions     []ActionLatency `json:"actions"`
	Failures    []OutcomeCount  `json:"failures,omitempty"`
}

// latencyWindow keeps the last maxSamples observations per action in a ring.
type latencyWindow struct {
	mu         sync.RWMutex
	maxSamples int
	actions    map[string]*ring
	outcomes   map[string]int
}

type ring struct {
	values []float64
	next   int
	filled bool
	last   float64
}

func newLatencyWindow(maxSamples int) *latencyWindow {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &latencyWindow{
		maxSamples: maxSamples,
		actions:    make(map[string]*ring),
		outcomes:   make(map[string]int),
	}
}

func (w *latencyWindow) Observe(action string, ms float64) {
	if action == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	r, ok := w.actions[action]
	if !ok {
		r = &ring{values: make([]float64, w.maxSamples)}
		w.actions[action] = r
	}
	r.values[r.next] = ms
	r.last = ms
	r.next++
	if r.next >= len(r.values) {
		r.next = 0
		r.filled = true
	}
}

func (w *latencyWindow) ObserveOutcome(outcome string) {
	outcome = strings.TrimSpace(outcome)
	if outcome == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outcomes[outcome]++
}

func (w *latencyWindow) Snapshot() LatencySnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	names := make([]string, 0, len(w.actions))
	for name := range w.actions {
		names = append(names, name)
	}
	sort.Strings(names)

	actions := make([]ActionLatency, 0, len(names))
	for _, name := range names {
		r := w.actions[name]
		n := r.next
		if r.filled {
			n = len(r.values)
		}
		if n == 0 {
			continue
		}
		samples := append([]float64(nil), r.values[:n]...)
		sort.Float64s(samples)
		sum := 0.0
		for _, v := range samples {
			sum += v
		}
		actions = append(actions, ActionLatency{
			Action:      name,
			Samples:     n,
			LastMS:      round2(r.last),
			AvgMS:       round2(sum / float64(n)),
			P50MS:       round2(quantile(samples, 0.50)),
			P95MS:       round2(quantile(samples, 0.95)),
			P99MS:       round2(quantile(samples, 0.99)),
			TargetP95MS: actionTargetP95MS(name),
		})
	}

	outcomeNames := make([]string, 0, len(w.outcomes))
	for name := range w.outcomes {
		outcomeNames = append(outcomeNames, name)
	}
	sort.Strings(outcomeNames)
	failures := make([]OutcomeCount, 0, len(outcomeNames))
	for _, name := range outcomeNames {
		failures = append(failures, OutcomeCount{Outcome: name, Count: w.outcomes[name]})
	}

	return LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Actions:     actions,
		Failures:    failures,
	}
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// actionTargetP95MS is the latency budget per command; zero means none.
func actionTargetP95MS(action string) float64 {
	switch action {
	case "getSession", "updateSession", "recordInteraction", "getSettings", "saveSettings":
		return 50
	case "authenticateUser":
		return 3000
	case "scanTab":
		return 5000
	case "chatWithAI", "getRecommendations", "getSimilarProducts":
		return 10000
	default:
		return 0
	}
}
