// Package migrations embeds the SQL schema applied by db.Migrator.
package migrations

import "embed"

// FS holds the numbered *.sql migration files.
//
//go:embed *.sql
var FS embed.FS
