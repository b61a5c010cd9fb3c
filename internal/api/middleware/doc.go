// Package middleware provides gin middleware for the sandbox HTTP API:
// CORS, per-IP and global rate limiting, and structured request logging.
package middleware
