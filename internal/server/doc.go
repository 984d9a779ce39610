// Package server provides the bulkmail HTTP API.
//
// All application routes pass through the authorization gate, which
// resolves the browser session and applies the route table. The routes are:
//
//   - GET  /             signed-in account summary (protected)
//   - GET  /login        redirect into the consent flow (guest only)
//   - GET  /auth/login   redirect to Google's consent screen
//   - GET  /auth/callback exchange the authorization code, start a session
//   - GET  /auth/status  whether a credential is stored
//   - POST /auth/refresh force a credential refresh
//   - POST /auth/logout  end the browser session
//   - POST /send         send one message
//   - POST /upload       parse a recipient CSV
//   - GET  /logs         list the delivery log
//
// Health endpoints (/healthz, /readyz, /healthz/detailed) bypass the gate.
// Prometheus metrics are served by MetricsServer on a dedicated port.
//
// Errors are returned as {"message": "..."} with a status chosen by
// StatusFor: missing or unrefreshable credentials give 401, malformed
// messages 400, Gmail rejections 502.
package server
