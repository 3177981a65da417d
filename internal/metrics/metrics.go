// Package metrics exposes the Prometheus counters and histograms the
// lifecycle engine updates on every create/start/destroy. It is pure
// observability: nothing here feeds back into scheduling or fairness
// decisions, which stay deliberately out of scope.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CreateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "epicbox_sandbox_create_duration_seconds",
		Help:    "Time taken to create a sandbox container, including file staging.",
		Buckets: prometheus.DefBuckets,
	})

	StartDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "epicbox_sandbox_start_duration_seconds",
		Help:    "Time taken to attach, pump I/O, and inspect a sandbox run.",
		Buckets: prometheus.DefBuckets,
	})

	DestroyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "epicbox_sandbox_destroy_duration_seconds",
		Help:    "Time taken to force-remove a sandbox container.",
		Buckets: prometheus.DefBuckets,
	})

	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "epicbox_sandbox_runs_total",
		Help: "Total sandbox runs by terminal outcome.",
	}, []string{"outcome"})

	TimeoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "epicbox_sandbox_timeouts_total",
		Help: "Total runs terminated by wall-clock or cpu-time deadline.",
	})

	OOMKilledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "epicbox_sandbox_oom_killed_total",
		Help: "Total runs terminated by the kernel OOM-killer.",
	})
)

func init() {
	prometheus.MustRegister(
		CreateDuration,
		StartDuration,
		DestroyDuration,
		RunsTotal,
		TimeoutsTotal,
		OOMKilledTotal,
	)
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times one operation and reports it to a histogram on
// ObserveDuration.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Outcome records a terminal Result's classification: "ok", "timeout",
// or "oom".
func Outcome(timeout, oomKilled bool) string {
	switch {
	case oomKilled:
		return "oom"
	case timeout:
		return "timeout"
	default:
		return "ok"
	}
}

// RecordResult updates the run-outcome counters for one terminated run.
func RecordResult(timeout, oomKilled bool) {
	RunsTotal.WithLabelValues(Outcome(timeout, oomKilled)).Inc()
	if timeout {
		TimeoutsTotal.Inc()
	}
	if oomKilled {
		OOMKilledTotal.Inc()
	}
}
