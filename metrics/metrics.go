// CLAUDE:SUMMARY Prometheus collectors for pipeline runs, per-category cell outcomes and processing-service calls.
// Package metrics exposes the coursesync Prometheus collectors. They are
// registered on the default registry at init; Handler serves them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/coursesync/linkproc"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursesync_runs_total",
			Help: "Pipeline runs, labeled by status (ok, partial, error).",
		},
		[]string{"status"},
	)
	CellsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursesync_cells_processed_total",
			Help: "Cells rewritten to a re-hosted link, labeled by file category.",
		},
		[]string{"category"},
	)
	CellsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursesync_cells_failed_total",
			Help: "Cells left unchanged or needing manual review, labeled by file category.",
		},
		[]string{"category"},
	)
	GroupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursesync_group_duration_seconds",
			Help:    "Time to classify and process one link group.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"category"},
	)
	ServiceCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursesync_service_calls_total",
			Help: "Processing service calls, labeled by service, strategy and result.",
		},
		[]string{"service", "strategy", "result"},
	)
	ServiceCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursesync_service_call_duration_seconds",
			Help:    "Duration of processing service calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "strategy"},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(CellsProcessed)
	prometheus.MustRegister(CellsFailed)
	prometheus.MustRegister(GroupDuration)
	prometheus.MustRegister(ServiceCalls)
	prometheus.MustRegister(ServiceCallDuration)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Recorder feeds the collectors. It implements linkproc.Observer and
// connectivity.Observer.
type Recorder struct{}

// ObserveGroup records one processed group.
func (Recorder) ObserveGroup(cat linkproc.FileCategory, d time.Duration, processed, failed int) {
	c := string(cat)
	GroupDuration.WithLabelValues(c).Observe(d.Seconds())
	if processed > 0 {
		CellsProcessed.WithLabelValues(c).Add(float64(processed))
	}
	if failed > 0 {
		CellsFailed.WithLabelValues(c).Add(float64(failed))
	}
}

// ObserveCall records one processing service call.
func (Recorder) ObserveCall(service, strategy string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	ServiceCalls.WithLabelValues(service, strategy, result).Inc()
	ServiceCallDuration.WithLabelValues(service, strategy).Observe(d.Seconds())
}

// ObserveRun records the end of a run. A nil report means the run failed
// before processing.
func (Recorder) ObserveRun(report *linkproc.RunReport) {
	RunsTotal.WithLabelValues(RunStatus(report)).Inc()
}

// RunStatus is "error" without a report, "partial" when some cell failed,
// "ok" otherwise.
func RunStatus(report *linkproc.RunReport) string {
	switch {
	case report == nil:
		return "error"
	case report.Failed > 0:
		return "partial"
	default:
		return "ok"
	}
}
