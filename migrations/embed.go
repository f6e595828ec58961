// Package migrations holds the versioned schema of the local till database.
// Files are applied in order by goose when the local store is opened.
package migrations

import "embed"

// FS contains the SQL migration files.
//
//go:embed *.sql
var FS embed.FS
