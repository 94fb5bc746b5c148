package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type CounterOption func(*prometheus.CounterOpts)

type counterOptions []CounterOption

func (co counterOptions) apply(o prometheus.CounterOpts) prometheus.CounterOpts {
	for _, f := range co {
		f(&o)
	}
	return o
}

// WithConstLabels attaches labels with fixed values to every counter.
func WithConstLabels(labels prometheus.Labels) CounterOption {
	return func(o *prometheus.CounterOpts) {
		o.ConstLabels = labels
	}
}

// MetricSet counts operations of one kind, labeled by labelNames, and the time they took.
type MetricSet struct {
	LabelNames       []string
	StartedCounter   *prometheus.CounterVec
	HandledCounter   *prometheus.CounterVec
	HandledHistogram *prometheus.HistogramVec
}

func NewMetricSet(app, kind string, labelNames []string, opts ...CounterOption) *MetricSet {
	co := counterOptions(opts)

	ho := prometheus.HistogramOpts{
		Name:        fmt.Sprintf("%s_%s_handling_seconds", app, kind),
		Help:        "Histogram of the time (seconds) spent per operation.",
		ConstLabels: co.apply(prometheus.CounterOpts{}).ConstLabels,
		// Builds take minutes, installs with many items can take most of an hour.
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 2400},
	}

	return &MetricSet{
		LabelNames: labelNames,
		StartedCounter: prometheus.NewCounterVec(
			co.apply(prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_%s_started_total", app, kind),
				Help: "Total number of operations started.",
			}), labelNames),
		HandledCounter: prometheus.NewCounterVec(
			co.apply(prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_%s_handled_total", app, kind),
				Help: "Total number of operations completed, by status.",
			}), append(append([]string{}, labelNames...), "status")),
		HandledHistogram: prometheus.NewHistogramVec(ho, labelNames),
	}
}

func (m *MetricSet) Observe(startTime, endTime time.Time, status string, labelValues []string) {
	m.StartedCounter.WithLabelValues(labelValues...).Inc()
	counterLabels := append([]string{}, labelValues...)
	counterLabels = append(counterLabels, status)
	m.HandledCounter.WithLabelValues(counterLabels...).Inc()
	if !startTime.IsZero() && !endTime.Before(startTime) {
		m.HandledHistogram.WithLabelValues(labelValues...).Observe(endTime.Sub(startTime).Seconds())
	}
}

func (m *MetricSet) Describe(ch chan<- *prometheus.Desc) {
	m.StartedCounter.Describe(ch)
	m.HandledCounter.Describe(ch)
	m.HandledHistogram.Describe(ch)
}

func (m *MetricSet) Collect(ch chan<- prometheus.Metric) {
	m.StartedCounter.Collect(ch)
	m.HandledCounter.Collect(ch)
	m.HandledHistogram.Collect(ch)
}
