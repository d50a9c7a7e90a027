// Package migrations embeds the read-model schema migrations the server
// applies at startup via database.Migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
