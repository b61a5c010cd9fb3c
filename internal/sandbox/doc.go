// Package sandbox is the orchestration layer of the plugin execution core.
//
// A Sandbox owns the plugin registry, the bounded worker pool and the
// execution monitor. Every execution follows the same path: registry
// checks first (unknown or disabled plugins never touch the pool), then a
// permission snapshot, a pool lease, a single dispatch, and outcome
// bookkeeping. A dispatch that ends in an interrupt or fault discards the
// execution unit; the pool replaces it lazily.
package sandbox
