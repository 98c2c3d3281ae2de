// Package migrations embeds the SQL schema migrations for the cache store.
package migrations

import "embed"

// FS holds the *.up.sql migration files.
//
//go:embed *.sql
var FS embed.FS
