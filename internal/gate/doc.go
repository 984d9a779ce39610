// Package gate is the request authorization middleware of the HTTP server.
//
// Every request path is classified as public, protected or guest-only by
// prefix matching against Routes. The caller's session is resolved once per
// request and stored on the request context. Anonymous callers of protected
// paths are redirected to the login page with the original location in a
// "redirect" query parameter, and signed-in callers of guest-only paths are
// sent to the root. CORS preflight requests are answered directly and CORS
// headers are added to every response that reaches a handler.
package gate
