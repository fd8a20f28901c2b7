package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/duck57/poke-db/internal/domain"
)

// ErrLedgerEntryNotFound indicates no ledger row exists for the key.
var ErrLedgerEntryNotFound = errors.New("ledger entry not found")

// LedgerEntry fetches the row for (rotation, park).
func (s *Store) LedgerEntry(ctx context.Context, rotation, park uint) (domain.LedgerEntry, error) {
	return s.ledgerEntry(s.db.WithContext(ctx), rotation, park)
}

// lockedLedgerEntry reads the row with FOR UPDATE. A locking read returns the
// latest committed row even inside a repeatable-read transaction and holds
// writers in other transactions off until this one ends. SQLite ignores the
// lock clause.
func (s *Store) lockedLedgerEntry(ctx context.Context, rotation, park uint) (domain.LedgerEntry, error) {
	return s.ledgerEntry(s.db.WithContext(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}), rotation, park)
}

func (s *Store) ledgerEntry(db *gorm.DB, rotation, park uint) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := db.Where("rotation_number = ? AND park_id = ?", rotation, park).First(&e).Error
	if err != nil {
		return domain.LedgerEntry{}, notFound(err, ErrLedgerEntryNotFound)
	}
	return e, nil
}

// GetOrCreateLedgerEntry returns the row for (rotation, park), inserting
// defaults when none exists. created is true only for the caller whose insert
// won; a caller that loses the unique-key race gets the winner's row. Both
// reads lock the row, so inside Tx the entry stays fixed until commit.
func (s *Store) GetOrCreateLedgerEntry(ctx context.Context, rotation, park uint, defaults domain.LedgerEntry) (entry domain.LedgerEntry, created bool, err error) {
	entry, err = s.lockedLedgerEntry(ctx, rotation, park)
	if err == nil {
		return entry, false, nil
	}
	if !errors.Is(err, ErrLedgerEntryNotFound) {
		return domain.LedgerEntry{}, false, err
	}

	entry = defaults
	entry.ID = 0
	entry.RotationNumber = rotation
	entry.ParkID = park
	entry.Park = nil

	createErr := s.db.WithContext(ctx).Omit(clause.Associations).Create(&entry).Error
	if createErr != nil {
		if !errors.Is(createErr, gorm.ErrDuplicatedKey) {
			return domain.LedgerEntry{}, false, fmt.Errorf("create ledger entry: %w", createErr)
		}
		// Another writer inserted the same key first.
		existing, findErr := s.lockedLedgerEntry(ctx, rotation, park)
		if findErr != nil {
			return domain.LedgerEntry{}, false, fmt.Errorf("re-read ledger entry after duplicate insert: %w", findErr)
		}
		return existing, false, nil
	}
	return entry, true, nil
}

// UpdateLedgerEntry writes the species, confirmation and modifier fields of e.
func (s *Store) UpdateLedgerEntry(ctx context.Context, e *domain.LedgerEntry) error {
	res := s.db.WithContext(ctx).Model(e).
		Select("SpeciesName", "SpeciesText", "DexNumber", "Confirmed", "LastModifiedByID", "SpecialNotes", "UpdatedAt").
		Updates(e)
	if res.Error != nil {
		return fmt.Errorf("update ledger entry %d: %w", e.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrLedgerEntryNotFound
	}
	return nil
}

// CountLedgerEntries counts rows for (rotation, park). Used to check the
// one-row-per-key invariant.
func (s *Store) CountLedgerEntries(ctx context.Context, rotation, park uint) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("rotation_number = ? AND park_id = ?", rotation, park).
		Count(&n).Error
	return int(n), err
}

func ledgerWithPark(db *gorm.DB) *gorm.DB {
	return db.Preload("Park").Preload("Park.Neighborhood").Preload("Park.Neighborhood.Region")
}
