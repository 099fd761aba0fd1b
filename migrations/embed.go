// Package migrations embeds the per-tenant schema migrations.
package migrations

import "embed"

// FS holds the numbered *.sql files at its root.
//
//go:embed *.sql
var FS embed.FS
