// Package storage provides transcript storage backends: an in-memory map for
// tests and ephemeral runs, and SQLite for everything else.
//
// The SQLite backend can run on either of two drivers:
//
//   - "sqlite"  modernc.org/sqlite, pure Go, the default
//   - "sqlite3" github.com/mattn/go-sqlite3, cgo
package storage
