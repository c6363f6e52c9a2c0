package postgres

import "embed"

// Migrations embeds the goose SQL migrations for this package's schema,
// passed to database.NewMigrator by the composition root.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory goose reads within Migrations.
const MigrationsDir = "migrations"
