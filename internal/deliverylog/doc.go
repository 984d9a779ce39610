// Package deliverylog records one entry per send attempt.
//
// The log is append-only. Lines renders it for display, oldest first, in the
// form
//
//	2026-10-19 14:03:05 - jane@example.com - sent
//	2026-10-19 14:03:06 - bob@example.com - failed: Invalid To header
//
// Two sinks are provided: a plain text file (default) and a SQLite table.
package deliverylog
