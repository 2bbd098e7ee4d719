package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := newLatencyWindow(8)
	w.Observe("chatWithAI", 500)
	w.Observe("chatWithAI", 700)
	w.Observe("chatWithAI", 900)
	w.ObserveOutcome("rate_limited")
	w.ObserveOutcome("rate_limited")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Actions) != 1 {
		t.Fatalf("len(Actions) = %d, want 1", len(snap.Actions))
	}
	a := snap.Actions[0]
	if a.Action != "chatWithAI" || a.Samples != 3 {
		t.Fatalf("unexpected action stats: %+v", a)
	}
	if a.LastMS != 900 || a.P50MS != 700 {
		t.Fatalf("LastMS = %.2f P50MS = %.2f, want 900 / 700", a.LastMS, a.P50MS)
	}
	if a.P95MS <= 700 || a.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", a.P95MS)
	}
	if a.TargetP95MS != 10000 {
		t.Fatalf("TargetP95MS = %.2f, want 10000", a.TargetP95MS)
	}
	if len(snap.Failures) != 1 || snap.Failures[0].Count != 2 {
		t.Fatalf("Failures = %+v", snap.Failures)
	}
}

func TestLatencyWindowWraps(t *testing.T) {
	w := newLatencyWindow(2)
	for _, v := range []float64{1, 2, 3} {
		w.Observe("getSession", v)
	}
	snap := w.Snapshot()
	if snap.Actions[0].Samples != 2 || snap.Actions[0].AvgMS != 2.5 {
		t.Fatalf("unexpected wrapped stats: %+v", snap.Actions[0])
	}
}

func TestMetricsObserveCommand(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry(), "test")
	m.ObserveCommand("getSession", "ok", 3*time.Millisecond)
	m.ObserveCommand("getSession", "invalid_request", time.Millisecond)

	var metric dto.Metric
	if err := m.Commands.WithLabelValues("getSession", "ok").Write(&metric); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := metric.GetCounter().GetValue(); got != 1 {
		t.Fatalf("commands ok = %v, want 1", got)
	}
	snap := m.SnapshotLatency()
	if len(snap.Actions) != 1 || snap.Actions[0].Samples != 2 {
		t.Fatalf("latency snapshot = %+v", snap)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveCommand("x", "ok", time.Millisecond)
	if len(nilMetrics.SnapshotLatency().Actions) != 0 {
		t.Fatalf("nil metrics should yield an empty snapshot")
	}
}
