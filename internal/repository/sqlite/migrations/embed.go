package migrations

import "embed"

// FS contains embedded SQLite migrations for the on-device record store.
//
//go:embed *.sql
var FS embed.FS
