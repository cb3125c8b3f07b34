package migrations

import "embed"

// Files exposes all SQL migration files.
//
//go:embed *.sql
var Files embed.FS
