// Package migrations embeds the registry schema. database.Migrate applies the
// *.up.sql files at startup; the *.down.sql files are for manual rollback.
package migrations

import "embed"

//go:embed *.up.sql *.down.sql
var FS embed.FS
