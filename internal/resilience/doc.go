/*
Package resilience provides the crash-count circuit breaker used to
auto-disable chronically failing plugins.

# Overview

Each plugin context owns one Breaker. The breaker counts consecutive
execution failures and trips open when the streak reaches its threshold
(three by default). An open breaker stays open: there is deliberately no
half-open probing and no time-based recovery, because a crashing plugin
gains nothing from being retried on a schedule. Only an explicit Reset
(performed when the plugin is re-registered) or a recorded success closes
it again.

# Usage

	breaker := resilience.New(3)
	if breaker.RecordFailure() {
		// streak reached the threshold, disable the plugin
	}
	breaker.RecordSuccess() // clears the streak
	breaker.Reset()         // re-registration path
*/
package resilience
