// Package dispatch sends composed messages through Gmail and records every
// attempt in the delivery log.
//
// A send obtains a fresh credential, composes the MIME message, submits it
// and appends one delivery log entry whatever the outcome. SendBatch repeats
// this for a recipient list and stops early when the credential itself is
// unusable.
package dispatch
