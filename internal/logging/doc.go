// Package logging provides structured logging built on zap.
//
// Production builds emit JSON; development builds emit colorized console
// output with stack traces on errors. Subsystems take a Named child of
// the root logger rather than constructing their own.
package logging
