// Package migrations embeds the goose SQL migrations for the identities
// and refresh_tokens tables.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
