package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"maidlink/internal/domain"
	"maidlink/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

type CatalogService struct {
	ledger  domain.Ledger
	catalog *models.Catalog
	logger  *zerolog.Logger
}

func NewCatalogService(ledger domain.Ledger, catalog *models.Catalog, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{ledger: ledger, catalog: catalog, logger: logger}
}

func (s *CatalogService) ListServices() []models.ServicePackage {
	return s.catalog.Packages()
}

func (s *CatalogService) ListServiceAreas() []string {
	return s.catalog.Areas()
}

func (s *CatalogService) ListCleaners(ctx context.Context, onlyAvailable bool) ([]*models.Cleaner, error) {
	cleaners, err := s.ledger.ListCleaners(ctx, onlyAvailable)
	if err != nil {
		return nil, fmt.Errorf("failed to list cleaners: %w", err)
	}
	if cleaners == nil {
		cleaners = []*models.Cleaner{}
	}
	return cleaners, nil
}

func (s *CatalogService) GetCleaner(ctx context.Context, id string) (*models.Cleaner, error) {
	c, err := s.ledger.GetCleaner(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, domain.ErrCleanerNotFound)
	}
	return c, nil
}

type cleanersFile struct {
	Cleaners []models.Cleaner `yaml:"cleaners"`
}

// SeedCleaners upserts the cleaners listed in a YAML file. A missing file is not an error.
// Existing rating aggregates survive reseeding.
func (s *CatalogService) SeedCleaners(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info().Str("path", path).Msg("No cleaners seed file, skipping")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read cleaners file: %w", err)
	}

	var file cleanersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse cleaners file: %w", err)
	}

	seen := make(map[string]bool, len(file.Cleaners))
	for i := range file.Cleaners {
		c := &file.Cleaners[i]
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" || strings.TrimSpace(c.Name) == "" {
			return 0, fmt.Errorf("cleaner #%d: id and name are required", i+1)
		}
		if seen[c.ID] {
			return 0, fmt.Errorf("duplicate cleaner id %s", c.ID)
		}
		seen[c.ID] = true
		if c.Rating < 0 || c.Rating > models.MaxRatingScore {
			return 0, fmt.Errorf("cleaner %s: rating must be within [0,%d]", c.ID, models.MaxRatingScore)
		}
	}

	for i := range file.Cleaners {
		if err := s.ledger.UpsertCleaner(ctx, &file.Cleaners[i]); err != nil {
			return i, err
		}
	}
	s.logger.Info().Int("count", len(file.Cleaners)).Str("path", path).Msg("Cleaners seeded")
	return len(file.Cleaners), nil
}
