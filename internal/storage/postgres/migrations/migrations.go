// Package migrations embeds the Postgres schema migrations.
package migrations

import "embed"

// FS holds the *.up.sql / *.down.sql files in golang-migrate naming.
//
//go:embed *.sql
var FS embed.FS
