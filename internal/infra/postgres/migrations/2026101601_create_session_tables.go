package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var (
	//go:embed sql/create_session_tables.up.sql
	createSessionTablesSQL string

	//go:embed sql/create_session_tables.down.sql
	dropSessionTablesSQL string
)

// Migrations holds the schema for quizzes, rooms, participants and responses.
var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createSessionTablesSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, dropSessionTablesSQL)
			return err
		},
	)
}
