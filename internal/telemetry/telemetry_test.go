package telemetry

import (
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg, slog.Default())

	added := time.Now().Add(-20 * time.Millisecond)
	started := time.Now().Add(-10 * time.Millisecond)

	rec.QueueNew("j1", added)
	rec.ProcessStarted("j1", added, started)
	rec.ProcessSuccess("j1", added, started)
	rec.QueueFull("j2")

	if got := testutil.ToFloat64(rec.events.WithLabelValues("queue.new")); got != 1 {
		t.Errorf("queue.new count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.events.WithLabelValues("queue.full")); got != 1 {
		t.Errorf("queue.full count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.events.WithLabelValues("process.success")); got != 1 {
		t.Errorf("process.success count = %v, want 1", got)
	}
}

func TestRecorderGaugesTrackOccupancy(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg, slog.Default())

	added := time.Now()
	rec.QueueNew("a", added)
	rec.QueueNew("b", added)
	if got := testutil.ToFloat64(rec.waiting); got != 2 {
		t.Fatalf("waiting gauge = %v, want 2", got)
	}

	rec.ProcessStarted("a", added, time.Now())
	if got := testutil.ToFloat64(rec.waiting); got != 1 {
		t.Errorf("waiting gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(rec.running); got != 1 {
		t.Errorf("running gauge = %v, want 1", got)
	}

	rec.ProcessTimeout("a", added, time.Now())
	rec.QueueAbort("b", added)
	if got := testutil.ToFloat64(rec.running); got != 0 {
		t.Errorf("running gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(rec.waiting); got != 0 {
		t.Errorf("waiting gauge = %v, want 0", got)
	}
}
