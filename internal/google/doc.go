// Package google manages the OAuth2 credential bulkmail sends Gmail messages with.
//
// The Manager owns the credential lifecycle: it builds the consent URL,
// exchanges authorization codes, and refreshes expired access tokens on
// demand. Every exchange and refresh writes the resulting token set through a
// credential.Store before returning, so a new token survives restarts and is
// visible to the next request.
//
// There is no background refresh. Callers ask for FreshCredential before each
// send; a still-valid token is returned without contacting Google.
package google
