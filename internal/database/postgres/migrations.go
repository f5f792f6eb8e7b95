package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func (p *Pool) migrationProvider() (*goose.Provider, error) {
	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, p.db, fsys)
	if err != nil {
		return nil, fmt.Errorf("create migration provider: %w", err)
	}
	return provider, nil
}

// Migrate applies all pending migrations automatically on startup
func (p *Pool) Migrate(ctx context.Context) error {
	provider, err := p.migrationProvider()
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		slog.InfoContext(ctx, "applied migration", "driver", "postgres", "version", r.Source.Path, "duration", r.Duration)
	}
	return nil
}

// MigrationsApplied returns the file names of the applied migrations in version order
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	provider, err := p.migrationProvider()
	if err != nil {
		return nil, err
	}

	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}

	var versions []string
	for _, s := range statuses {
		if s.State == goose.StateApplied {
			versions = append(versions, path.Base(s.Source.Path))
		}
	}
	return versions, nil
}
