// Package ws streams sandbox events to the launcher over WebSocket.
//
// Every host-bound message produced by plugin code (console logs,
// notifications) and every breaker-trip notice is broadcast to all
// connected clients. Clients may also drive executions over the stream:
// an execute frame is decoded, dispatched to the sandbox, and answered
// with a result frame on the same connection.
//
// Message Types (Client → Server):
//   - ping: keep-alive ping
//   - execute: run a plugin and stream the result back
//
// Message Types (Server → Client):
//   - system: connection established
//   - pong: ping reply
//   - result: reply to an execute frame
//   - log: plugin console output
//   - notification: plugin or sandbox notification
//
// Example Usage:
//
//	hub := ws.NewHub()
//	handler := ws.NewHandler(hub, sandbox, logger)
//	router.GET("/stream", handler.HandleConnection)
package ws
