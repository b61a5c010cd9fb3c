/*
Package worker provides the bounded pool of isolated execution units.

# Overview

Each Worker is a goroutine owning one hardened goja VM; the host talks to it
exclusively through typed messages. The Pool bounds how many units exist,
hands each checked-out unit to exactly one caller at a time, and prefers
re-acquiring the unit a plugin last ran on so its warm module cache is
reused.

# Contention

When every unit is busy and the pool is at its bound, Acquire suspends on a
timer with exponential backoff rather than busy polling; a release nudges
one waiter early. Exhaustion is an internal condition resolved by waiting,
never an error the caller sees.

# Failure

A unit that times out or escapes with a fault is discarded instead of being
returned to the pool; the next Acquire lazily creates a replacement. An idle
reaper trims units that have not run recently, keeping a floor of one.
*/
package worker
