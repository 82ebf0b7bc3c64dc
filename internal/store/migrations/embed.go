// Package migrations embeds the SQL schema migrations for chitchat.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
