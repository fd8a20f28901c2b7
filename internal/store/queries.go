package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/duck57/poke-db/internal/domain"
)

// CurrentResident returns the ledger row for (rotation, park) with its park.
func (s *Store) CurrentResident(ctx context.Context, rotation, park uint) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.db.WithContext(ctx).Scopes(ledgerWithPark).
		Where("rotation_number = ? AND park_id = ?", rotation, park).
		First(&e).Error
	if err != nil {
		return domain.LedgerEntry{}, notFound(err, ErrLedgerEntryNotFound)
	}
	return e, nil
}

// ParkHistory lists a park's ledger rows, newest rotation first.
func (s *Store) ParkHistory(ctx context.Context, park uint, limit int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("park_id = ?", park).
		Order("rotation_number DESC").
		Scopes(limitRows(limit)).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("park %d history: %w", park, err)
	}
	return out, nil
}

// SpeciesHistory lists ledger rows holding any of the named species within
// scope, newest rotation first.
func (s *Store) SpeciesHistory(ctx context.Context, names []string, scope domain.PlaceScope, limit int) ([]domain.LedgerEntry, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var out []domain.LedgerEntry
	err := s.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Scopes(ledgerWithPark, ledgerScope(scope), limitRows(limit)).
		Where("ledger_entries.species_name IN ?", names).
		Order("ledger_entries.rotation_number DESC, ledger_entries.park_id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("species history: %w", err)
	}
	return out, nil
}

// RotationEntries lists the ledger for one rotation within scope, ordered by
// park name.
func (s *Store) RotationEntries(ctx context.Context, rotation uint, scope domain.PlaceScope) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := s.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Scopes(ledgerWithPark, ledgerScope(scope)).
		Joins("JOIN parks ON parks.id = ledger_entries.park_id").
		Where("ledger_entries.rotation_number = ?", rotation).
		Order("parks.official_name").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("rotation %d entries: %w", rotation, err)
	}
	return out, nil
}

// EmptyParks lists canonical parks within scope that have no ledger row for
// the rotation.
func (s *Store) EmptyParks(ctx context.Context, rotation uint, scope domain.PlaceScope) ([]domain.Park, error) {
	reported := s.db.Session(&gorm.Session{NewDB: true}).WithContext(ctx).
		Model(&domain.LedgerEntry{}).Select("park_id").
		Where("rotation_number = ?", rotation)
	var out []domain.Park
	err := s.db.WithContext(ctx).Model(&domain.Park{}).
		Scopes(withParkDetail, parkScope(scope)).
		Where("parks.duplicate_of_id IS NULL").
		Where("parks.id NOT IN (?)", reported).
		Order("parks.official_name").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("empty parks for rotation %d: %w", rotation, err)
	}
	return out, nil
}

func limitRows(limit int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if limit > 0 {
			return db.Limit(limit)
		}
		return db
	}
}
