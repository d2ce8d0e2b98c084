// Package migrations embeds the versioned schema for the measurement
// database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
