// Package storage persists the reset event lists, the board message
// references and the audit log.
//
// Three drivers share one Store contract:
//   - file: a JSON document written atomically, plus an audit JSON Lines file
//   - sqlite: modernc.org/sqlite with embedded migrations
//   - badger: an embedded key-value store
//
// Load and Save failures wrap ErrStoreUnavailable so the scheduler can skip a
// tick and retry on the next one.
package storage
