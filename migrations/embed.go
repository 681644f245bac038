package migrations

import "embed"

// Files exposes embedded SQL migration files. Postgres files live
// under postgres/, SQLite files under sqlite/, each applied in
// lexicographical order.
//
//go:embed postgres/*.sql sqlite/*.sql
var Files embed.FS
