// Package session keeps browser sessions for the HTTP server.
//
// Sessions live in process memory and are addressed by the "session_id"
// cookie. A session either carries a signed-in Principal or nothing. The
// Manager implements the lookup consumed by the request gate.
package session
