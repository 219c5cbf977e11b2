// Package migrations embeds the SQL schema migrations applied to Postgres.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
