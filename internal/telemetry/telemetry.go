// Package telemetry translates render queue events into prometheus metrics
// and slog records. The queue itself never touches a metrics library; it
// only sees the renderqueue.Events interface this package implements.
package telemetry

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/danielledeleo/wikiprint/internal/renderqueue"
)

// Recorder implements renderqueue.Events.
type Recorder struct {
	log *slog.Logger

	events         *prometheus.CounterVec
	queueWait      prometheus.Histogram
	renderDuration prometheus.Histogram
	waiting        prometheus.Gauge
	running        prometheus.Gauge
}

// New registers the queue metrics on reg and returns the recorder. A nil
// logger falls back to slog.Default.
func New(reg prometheus.Registerer, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		log: log,
		events: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "wikiprint",
			Name:      "queue_events_total",
			Help:      "Render queue lifecycle events by kind.",
		}, []string{"event"}),
		queueWait: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "wikiprint",
			Name:      "queue_wait_seconds",
			Help:      "Time jobs spent waiting before their render started.",
			Buckets:   prometheus.DefBuckets,
		}),
		renderDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "wikiprint",
			Name:      "render_duration_seconds",
			Help:      "Time from render start to settlement, successful or not.",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 90},
		}),
		waiting: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "wikiprint",
			Name:      "queue_waiting_jobs",
			Help:      "Jobs admitted but not yet started.",
		}),
		running: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "wikiprint",
			Name:      "queue_running_jobs",
			Help:      "Jobs currently rendering.",
		}),
	}
}

func (r *Recorder) QueueNew(jobID string, addedAt time.Time) {
	r.events.WithLabelValues("queue.new").Inc()
	r.waiting.Inc()
	r.log.Debug("job queued", "job", jobID)
}

func (r *Recorder) QueueFull(jobID string) {
	r.events.WithLabelValues("queue.full").Inc()
	r.log.Warn("render queue full, rejecting job", "job", jobID)
}

func (r *Recorder) QueueTimeout(jobID string, addedAt time.Time) {
	r.events.WithLabelValues("queue.timeout").Inc()
	r.waiting.Dec()
	r.log.Warn("job timed out in queue", "job", jobID, "waited", time.Since(addedAt))
}

func (r *Recorder) QueueAbort(jobID string, addedAt time.Time) {
	r.events.WithLabelValues("queue.abort").Inc()
	r.waiting.Dec()
	// Cancellation is a normal outcome, never an error.
	r.log.Debug("job cancelled while waiting", "job", jobID, "waited", time.Since(addedAt))
}

func (r *Recorder) ProcessStarted(jobID string, addedAt, startedAt time.Time) {
	r.events.WithLabelValues("process.started").Inc()
	r.waiting.Dec()
	r.running.Inc()
	r.queueWait.Observe(startedAt.Sub(addedAt).Seconds())
	r.log.Debug("render started", "job", jobID, "waited", startedAt.Sub(addedAt))
}

func (r *Recorder) ProcessSuccess(jobID string, addedAt, startedAt time.Time) {
	r.events.WithLabelValues("process.success").Inc()
	r.running.Dec()
	r.renderDuration.Observe(time.Since(startedAt).Seconds())
	r.log.Debug("render succeeded", "job", jobID, "took", time.Since(startedAt))
}

func (r *Recorder) ProcessFailure(jobID string, addedAt, startedAt time.Time, err error) {
	r.events.WithLabelValues("process.failure").Inc()
	r.running.Dec()
	r.renderDuration.Observe(time.Since(startedAt).Seconds())
	r.log.Error("render failed", "job", jobID, "took", time.Since(startedAt), "error", err)
}

func (r *Recorder) ProcessAbort(jobID string, addedAt, startedAt time.Time) {
	r.events.WithLabelValues("process.abort").Inc()
	r.running.Dec()
	r.renderDuration.Observe(time.Since(startedAt).Seconds())
	r.log.Debug("render cancelled", "job", jobID, "took", time.Since(startedAt))
}

func (r *Recorder) ProcessTimeout(jobID string, addedAt, startedAt time.Time) {
	r.events.WithLabelValues("process.timeout").Inc()
	r.running.Dec()
	r.renderDuration.Observe(time.Since(startedAt).Seconds())
	r.log.Warn("render exceeded execution timeout", "job", jobID, "took", time.Since(startedAt))
}

var _ renderqueue.Events = (*Recorder)(nil)
