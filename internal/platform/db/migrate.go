package db

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Migrate applies every pending goose migration found under dir in fsys.
// Already-applied versions are skipped, so calling it on every start is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, dir string, log *zap.Logger) error {
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	stdDB := stdlib.OpenDBFromPool(pool)
	defer stdDB.Close()

	before, err := goose.GetDBVersionContext(ctx, stdDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if err := goose.UpContext(ctx, stdDB, dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	after, err := goose.GetDBVersionContext(ctx, stdDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	log.Info("schema migrated", zap.Int64("from_version", before), zap.Int64("to_version", after))
	return nil
}
