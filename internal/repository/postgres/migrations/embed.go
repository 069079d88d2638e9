package migrations

import "embed"

// FS contains embedded Postgres migrations for the shared record store.
//
//go:embed *.sql
var FS embed.FS
