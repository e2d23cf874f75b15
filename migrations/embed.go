// Package migrations holds the SQL schema, applied in filename order by
// psico-server migrate up.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
