package postgres

import "embed"

// Migrations holds the goose SQL migrations for the settlement schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS
