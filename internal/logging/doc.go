// Package logging provides structured logging utilities for bulkmail.
//
// All logging goes through log/slog. This package fixes the attribute names
// and keeps personal data out of the operational stream:
//   - recipient and account addresses are hashed (Recipient, Account, UserHash)
//   - tokens are reduced to their length (SanitizeToken)
//
// The delivery log, not slog, is the record that carries full recipient
// addresses.
//
// Usage:
//
//	logger := logging.WithService(slog.Default(), "gmail")
//	logger.Info("sent", logging.Operation("send"), logging.Recipient(to))
package logging
