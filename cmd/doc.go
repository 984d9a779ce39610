// Package cmd implements the command-line interface for bulkmail.
//
// This package provides the following commands:
//   - serve: Start the HTTP API used by the browser front end
//   - auth: Authorize the sending Gmail account and inspect the stored credential
//   - send: Send one message per recipient of a CSV file
//   - logs: Print the delivery log
//   - version: Display version information
//
// Every command reads the same configuration, see package config.
package cmd
