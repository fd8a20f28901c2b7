package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/duck57/poke-db/internal/domain"
)

// SubmitterByID fetches one submitter.
func (s *Store) SubmitterByID(ctx context.Context, id uint) (domain.Submitter, error) {
	var sub domain.Submitter
	if err := s.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return domain.Submitter{}, notFound(err, domain.ErrUnknownSubmitter)
	}
	return sub, nil
}

// SaveSubmitter inserts or replaces a submitter by id.
func (s *Store) SaveSubmitter(ctx context.Context, sub *domain.Submitter) error {
	return s.db.WithContext(ctx).Save(sub).Error
}

// ListSubmitters returns every submitter ordered by id.
func (s *Store) ListSubmitters(ctx context.Context) ([]domain.Submitter, error) {
	var out []domain.Submitter
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SpeciesByName fetches one species by its exact name.
func (s *Store) SpeciesByName(ctx context.Context, name string) (domain.Species, error) {
	var sp domain.Species
	if err := s.db.WithContext(ctx).First(&sp, "name = ?", name).Error; err != nil {
		return domain.Species{}, notFound(err, domain.ErrSpeciesNotFound)
	}
	return sp, nil
}

// AllSpecies returns the full species table ordered by dex number.
func (s *Store) AllSpecies(ctx context.Context) ([]domain.Species, error) {
	var out []domain.Species
	if err := s.db.WithContext(ctx).Order("dex_number, name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("load species: %w", err)
	}
	return out, nil
}

// SaveSpecies upserts species rows by name.
func (s *Store) SaveSpecies(ctx context.Context, species ...domain.Species) error {
	if len(species) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&species).Error
}
