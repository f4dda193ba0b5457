package migrate

import "embed"

// Migrations holds the goose SQL files compiled into every binary, so dev
// auto-run and cmd/migrate work outside the repository checkout.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const embeddedDir = "migrations"
