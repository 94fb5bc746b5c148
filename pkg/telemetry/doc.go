// Package telemetry records the outcome of every target a run reconciles as Prometheus metrics
// and optionally pushes them to a Pushgateway at the end of the run.
//
// Exported metrics:
// - attempts per target (*_target_started_total)
// - outcomes per target and status (*_target_handled_total)
// - time spent per target (*_target_handling_seconds_bucket)
// - runs per result (*_runs_total)
package telemetry
