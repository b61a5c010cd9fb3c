/*
Package executor implements the code that runs inside an isolated execution
unit.

# Overview

Each unit owns one goja VM with a hardened global scope: no require, no
process, inert timers, and a console whose output is redirected into
LogMessages instead of a shared global. Plugin modules are resolved by path,
wrapped CommonJS-style, compiled once, and cached; a module must export a
manifest and a search entrypoint named either "search" or "onSearch".

# Boundary rules

Everything crossing back to the host is deep-sanitized into plain data.
Function values are dropped wherever they appear, so no callback from
untrusted code can ever reach the privileged side; side effects are
expressed only as declarative actionData interpreted elsewhere.

Thrown errors, rejected promises, and timeouts all surface as failed
ResultMessages. A timeout interrupts the VM mid-flight, and the unit is
considered unusable afterwards; the pool discards it rather than handing it
to another caller.
*/
package executor
