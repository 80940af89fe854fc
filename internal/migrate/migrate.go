// Package migrate applies embedded SQL migrations on startup.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/and161185/visitguard/migrations"
)

func provider(dsn string) (*goose.Provider, *sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, err
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("goose provider: %w", err)
	}
	return p, db, nil
}

// Up runs all pending migrations and returns the resulting schema version.
func Up(ctx context.Context, logger *zap.Logger, dsn string) (int64, error) {
	p, db, err := provider(dsn)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	res, err := p.Up(ctx)
	if err != nil {
		return 0, err
	}
	for _, r := range res {
		logger.Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.Duration("took", r.Duration))
	}
	return p.GetDBVersion(ctx)
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, logger *zap.Logger, dsn string) error {
	p, db, err := provider(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	r, err := p.Down(ctx)
	if err != nil {
		return err
	}
	logger.Info("migration rolled back", zap.Int64("version", r.Source.Version))
	return nil
}
