// Package monitor records plugin execution outcomes.
//
// The Monitor keeps an append-only log of every dispatched execution
// together with per-plugin aggregates (usage count, failure rate,
// average and last execution time). When constructed with a Metrics
// collector it also publishes Prometheus instruments for executions,
// durations, active workers and circuit-breaker trips.
package monitor
