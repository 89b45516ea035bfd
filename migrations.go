package companionbot

import "embed"

// MigrationsFS holds the Postgres schema applied at start.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
