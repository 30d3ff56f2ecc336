package main

import (
	"context"
	"database/sql"
	"fmt"
	root "qrscanner"
	"qrscanner/pkg/logger"

	"github.com/pressly/goose/v3"
	"github.com/riverqueue/river/riverdriver/riverdatabasesql"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func migrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Creates or upgrades the scans and job queue tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			strg, closeStrg := getPostgres(ctx, a.cfg)
			defer closeStrg()

			applied, err := migrate(ctx, strg.DB.(*sql.DB))
			if err != nil {
				return err
			}
			logger.Info(ctx, "database migrated", zap.Ints("riverVersions", applied))

			return nil
		},
	}
}

// migrate applies the embedded scans migrations followed by the river queue
// ones and returns the river versions it had to apply.
func migrate(ctx context.Context, db *sql.DB) ([]int, error) {
	goose.SetBaseFS(root.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("could not set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return nil, fmt.Errorf("could not migrate scans tables: %w", err)
	}

	migrator, err := rivermigrate.New(riverdatabasesql.New(db), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create river migrator: %w", err)
	}
	// without a target version every pending migration is applied
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return nil, fmt.Errorf("could not migrate river tables: %w", err)
	}

	applied := make([]int, 0, len(res.Versions))
	for _, v := range res.Versions {
		applied = append(applied, v.Version)
	}

	return applied, nil
}
