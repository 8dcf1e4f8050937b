package migrations

import "embed"

// FS contains embedded SQLite migrations for the correlation history.
//
//go:embed *.sql
var FS embed.FS
