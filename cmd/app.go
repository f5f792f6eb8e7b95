package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/database/postgres"
	"github.com/kozaktomas/facewatch/internal/database/sqlite"
	"github.com/kozaktomas/facewatch/internal/detector"
	"github.com/kozaktomas/facewatch/internal/enroll"
	"github.com/kozaktomas/facewatch/internal/facematch"
)

// app holds the collaborators shared by the commands that touch enrolled users.
type app struct {
	repo    database.Repository
	engine  detector.Engine
	service *enroll.Service
}

// openRepository opens the configured database backend.
func openRepository(ctx context.Context, cfg *config.Config) (database.Repository, error) {
	if err := os.MkdirAll(cfg.System.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	switch cfg.Database.Driver {
	case "postgres":
		repo, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
		}
		return repo, nil
	default:
		if dir := filepath.Dir(cfg.Database.URL); dir != "." && cfg.Database.URL != ":memory:" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		repo, err := sqlite.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
		}
		return repo, nil
	}
}

// newApp opens the repository and the face engine, then loads every stored
// embedding into a fresh matcher and the face index.
func newApp(ctx context.Context) (*app, error) {
	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	engine, err := detector.Open(*cfg, logger)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("opening face engine: %w", err)
	}

	matcher, err := facematch.NewMatcher(facematch.NewStore(), cfg.Detection.Tolerance)
	if err != nil {
		engine.Close()
		repo.Close()
		return nil, err
	}

	service := enroll.NewService(enroll.Deps{
		Repo:      repo,
		Engine:    engine,
		Matcher:   matcher,
		IndexPath: cfg.Database.IndexPath,
		Jitters:   cfg.Detection.Jitters,
		Logger:    logger,
	})

	n, err := service.LoadAll(ctx)
	if err != nil {
		engine.Close()
		repo.Close()
		return nil, err
	}
	logger.Debug("enrolled embeddings loaded", "embeddings", n, "driver", cfg.Database.Driver,
		"detector", engine.Name())

	return &app{repo: repo, engine: engine, service: service}, nil
}

func (a *app) Close() error {
	return errors.Join(a.engine.Close(), a.repo.Close())
}
