// Package migrations contains the embedded schema of the SQLite store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
