package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sidecar"

// Metrics counts what a run did. The zero value (see NoMetrics) records
// nothing, so callers never need to check for nil.
type Metrics struct {
	registry *prometheus.Registry
	matches  *prometheus.CounterVec
	restores *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	tool     prometheus.Histogram
}

// NewMetrics registers the run metrics on reg. A nil reg yields NoMetrics.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return NoMetrics()
	}

	matches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "match_total",
		Help:      "Sidecars matched to a media file, by strategy.",
	}, []string{"strategy"})
	restores := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "restore_total",
		Help:      "Work items executed, by outcome.",
	}, []string{"outcome"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skipped_total",
		Help:      "Sidecars that produced no work item, by reason.",
	}, []string{"reason"})
	tool := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tool_duration_seconds",
		Help:      "Duration of a single exiftool invocation.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})
	reg.MustRegister(matches, restores, skipped, tool)

	return &Metrics{
		registry: reg,
		matches:  matches,
		restores: restores,
		skipped:  skipped,
		tool:     tool,
	}
}

func NoMetrics() *Metrics {
	return &Metrics{}
}

func (x *Metrics) IncMatch(strategy string) {
	if x == nil || x.matches == nil {
		return
	}
	x.matches.WithLabelValues(normalizeLabel(strategy)).Inc()
}

func (x *Metrics) IncRestore(outcome string) {
	if x == nil || x.restores == nil {
		return
	}
	x.restores.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (x *Metrics) IncSkipped(reason string) {
	if x == nil || x.skipped == nil {
		return
	}
	x.skipped.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (x *Metrics) ObserveTool(d time.Duration) {
	if x == nil || x.tool == nil {
		return
	}
	x.tool.Observe(d.Seconds())
}

// WriteTextfile dumps the metrics in the node exporter textfile format.
func (x *Metrics) WriteTextfile(path string) error {
	if x == nil || x.registry == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, x.registry)
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
