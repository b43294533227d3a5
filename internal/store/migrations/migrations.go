// Package migrations embeds the SQLite schema migrations for the learning store.
package migrations

import "embed"

// FS holds the goose migration files.
//
//go:embed *.sql
var FS embed.FS
