// Package migrations embeds the SQL schema so binaries carry their migrations.
package migrations

import "embed"

// FS holds the goose SQL files under sql/.
//
//go:embed sql/*.sql
var FS embed.FS

// Dir is the directory inside FS that goose reads.
const Dir = "sql"
