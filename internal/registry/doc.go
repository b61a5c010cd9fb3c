// Package registry tracks per-plugin execution contexts: granted
// permissions, the enabled flag, crash counting, module paths, and health.
//
// Register is the reset point: it overwrites any prior context, clears the
// crash count, and enables the plugin. A plugin whose crash streak reaches
// the configured threshold is disabled in place, and that disablement is
// sticky; re-registration is the only sanctioned way to clear a tripped
// breaker.
//
// Permission checks are deliberately infallible: CheckPermission answers
// false for unknown plugins, disabled plugins, and missing grants alike,
// so the privileged action executor can use it as a plain guard.
package registry
