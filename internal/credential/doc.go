// Package credential persists the single OAuth2 token set the mailer sends with.
//
// A Store holds at most one TokenSet. Save fully overwrites the previous value
// and Load reports absence (never saved, unreadable, or corrupt) with a false
// return instead of an error, so callers can always fall back to the consent
// flow.
//
// Three backends are provided:
//   - FileStore: a JSON file written atomically with mode 0600 (default)
//   - MemoryStore: process-local, used in tests and for throwaway runs
//   - ValkeyStore: a single key in Valkey/Redis, for multi-instance deployments
package credential
