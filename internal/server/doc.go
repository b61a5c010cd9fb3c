// Package server provides HTTP setup and initialization for the sandbox
// daemon.
//
// This package wires all components:
//   - HTTP routing with Gin framework
//   - Middleware stack (recovery, request logging, CORS, rate limiting)
//   - The sandbox execution core and its worker pool
//   - Prometheus metrics registry and exposition
//   - Marketplace client and WebSocket event hub
//
// Server Lifecycle:
//  1. Load configuration from environment/flags
//  2. Initialize logger (production or development)
//  3. Build the sandbox, hub and marketplace client
//  4. Setup HTTP routes and middleware
//  5. Serve until the context is canceled
//  6. Drain connections and terminate execution units
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv := server.New(cfg, logger)
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
