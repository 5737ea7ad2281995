package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/zatekoja/shopdiscovery/internal/adapters/catalog"
	"github.com/zatekoja/shopdiscovery/internal/adapters/database"
	"github.com/zatekoja/shopdiscovery/internal/domain/entities"
	"github.com/zatekoja/shopdiscovery/internal/domain/repositories"
	"github.com/zatekoja/shopdiscovery/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/shopdiscovery/pkg/config"
)

// openCatalog returns the catalog store: a JSON fixture file when path is
// set, PostgreSQL otherwise. The returned close func is never nil.
func openCatalog(ctx context.Context, cfg *config.Config, path string, logger zerolog.Logger) (repositories.CatalogRepository, func() error, error) {
	if path != "" {
		list, err := loadCatalogFile(path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("path", path).Int("entities", len(list)).Msg("catalog loaded from file")
		return catalog.NewMemory(list...), func() error { return nil }, nil
	}

	pg, err := postgres.NewClient(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, nil, err
	}
	return database.NewPostgresCatalogAdapter(pg), pg.Close, nil
}

func loadCatalogFile(path string) ([]*entities.CatalogEntity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var list []*entities.CatalogEntity
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}
	prepareCatalog(list, time.Now().UTC())
	return list, nil
}

// prepareCatalog fills in ids and timestamps the file left empty. Stores key
// entities by id, so rows without one would otherwise collapse into one.
func prepareCatalog(list []*entities.CatalogEntity, now time.Time) {
	for _, e := range list {
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
	}
}
