package migrations

import "embed"

// FS contains embedded SQLite migrations for the raw telemetry table.
//
//go:embed *.sql
var FS embed.FS
