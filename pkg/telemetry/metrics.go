// See:
//   https://godoc.org/github.com/prometheus/client_golang/prometheus/push#Pusher.Push
//   https://prometheus.io/docs/instrumenting/pushing/
package telemetry

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics is a collector of per-target and per-run metrics for one application.
type Metrics struct {
	targets *MetricSet
	runs    *prom.CounterVec
}

var _ prom.Collector = &Metrics{}

func NewMetrics(app string, counterOpts ...CounterOption) *Metrics {
	return &Metrics{
		targets: NewMetricSet(app, "target", []string{"target"}, counterOpts...),
		runs: prom.NewCounterVec(
			counterOptions(counterOpts).apply(prom.CounterOpts{
				Name: fmt.Sprintf("%s_runs_total", app),
				Help: "Total number of runs, by result.",
			}), []string{"result"}),
	}
}

// ObserveTarget records that target ended up in status after the given span of time.
func (m *Metrics) ObserveTarget(target, status string, started, finished time.Time) {
	m.targets.Observe(started, finished, status, []string{target})
}

func (m *Metrics) ObserveRun(result string) {
	m.runs.WithLabelValues(result).Inc()
}

func (m *Metrics) Describe(ch chan<- *prom.Desc) {
	m.targets.Describe(ch)
	m.runs.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prom.Metric) {
	m.targets.Collect(ch)
	m.runs.Collect(ch)
}

// pushBase can be something like http://pushgateway:9091
func (m *Metrics) Push(pushBase, job string) error {
	return push.New(pushBase, job).
		Collector(m).
		Push()
}
