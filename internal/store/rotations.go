package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/duck57/poke-db/internal/domain"
)

// RotationByNumber fetches one rotation.
func (s *Store) RotationByNumber(ctx context.Context, n uint) (domain.RotationPeriod, error) {
	var r domain.RotationPeriod
	err := s.db.WithContext(ctx).First(&r, "number = ?", n).Error
	if err != nil {
		return domain.RotationPeriod{}, notFound(err, domain.ErrRotationNotFound)
	}
	return r, nil
}

// RotationByDay fetches the rotation starting on the given UTC calendar day.
func (s *Store) RotationByDay(ctx context.Context, day string) (domain.RotationPeriod, error) {
	var r domain.RotationPeriod
	err := s.db.WithContext(ctx).First(&r, "day = ?", day).Error
	if err != nil {
		return domain.RotationPeriod{}, notFound(err, domain.ErrRotationNotFound)
	}
	return r, nil
}

// RotationAt returns the latest rotation effective at or before t.
func (s *Store) RotationAt(ctx context.Context, t time.Time) (domain.RotationPeriod, error) {
	var r domain.RotationPeriod
	err := s.db.WithContext(ctx).
		Where("effective <= ?", t.UTC()).
		Order("effective DESC").
		First(&r).Error
	if err != nil {
		return domain.RotationPeriod{}, notFound(err, domain.ErrRotationNotFound)
	}
	return r, nil
}

// EarliestRotation returns the first rotation on record.
func (s *Store) EarliestRotation(ctx context.Context) (domain.RotationPeriod, error) {
	var r domain.RotationPeriod
	err := s.db.WithContext(ctx).Order("effective ASC").First(&r).Error
	if err != nil {
		return domain.RotationPeriod{}, notFound(err, domain.ErrNoRotations)
	}
	return r, nil
}

// LatestRotation returns the highest-numbered rotation.
func (s *Store) LatestRotation(ctx context.Context) (domain.RotationPeriod, error) {
	var r domain.RotationPeriod
	err := s.db.WithContext(ctx).Order("number DESC").First(&r).Error
	if err != nil {
		return domain.RotationPeriod{}, notFound(err, domain.ErrNoRotations)
	}
	return r, nil
}

// ListRotations returns up to limit rotations, newest first. limit <= 0 means all.
func (s *Store) ListRotations(ctx context.Context, limit int) ([]domain.RotationPeriod, error) {
	var out []domain.RotationPeriod
	q := s.db.WithContext(ctx).Order("number DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// InsertRotation allocates the next rotation number and stores r. It fails with
// domain.ErrDuplicateRotation when a rotation already starts on the same day
// and with domain.ErrRotationOrder when r does not start after the latest
// rotation, so numbers keep increasing with time. Call it inside Tx so the
// checks, the number allocation and the insert are atomic.
func (s *Store) InsertRotation(ctx context.Context, r *domain.RotationPeriod) error {
	r.Effective = r.Effective.UTC()
	r.Day = domain.DayKey(r.Effective)

	_, err := s.RotationByDay(ctx, r.Day)
	switch {
	case err == nil:
		return fmt.Errorf("%s: %w", r.Day, domain.ErrDuplicateRotation)
	case !errors.Is(err, domain.ErrRotationNotFound):
		return err
	}

	latest, err := s.LatestRotation(ctx)
	switch {
	case err == nil:
		if !r.Effective.After(latest.Effective) {
			return fmt.Errorf("%s is not after rotation %d (%s): %w",
				r.Day, latest.Number, latest.Day, domain.ErrRotationOrder)
		}
	case !errors.Is(err, domain.ErrNoRotations):
		return err
	}

	var maxNum uint
	if err := s.db.WithContext(ctx).Model(&domain.RotationPeriod{}).
		Select("COALESCE(MAX(number), 0)").Scan(&maxNum).Error; err != nil {
		return fmt.Errorf("read latest rotation number: %w", err)
	}
	r.Number = maxNum + 1

	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%s: %w", r.Day, domain.ErrDuplicateRotation)
		}
		return fmt.Errorf("insert rotation: %w", err)
	}
	return nil
}

// DeleteRotation removes a rotation together with its ledger rows and the raw
// reports filed against it.
func (s *Store) DeleteRotation(ctx context.Context, n uint) error {
	db := s.db.WithContext(ctx)
	if err := db.Where("rotation_number = ?", n).Delete(&domain.RawReport{}).Error; err != nil {
		return fmt.Errorf("delete raw reports: %w", err)
	}
	if err := db.Where("rotation_number = ?", n).Delete(&domain.LedgerEntry{}).Error; err != nil {
		return fmt.Errorf("delete ledger entries: %w", err)
	}
	res := db.Where("number = ?", n).Delete(&domain.RotationPeriod{})
	if res.Error != nil {
		return fmt.Errorf("delete rotation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrRotationNotFound
	}
	return nil
}

// CountManualEntries counts ledger rows in a rotation that did not come from
// permanent-species synthesis by the system submitter.
func (s *Store) CountManualEntries(ctx context.Context, rotation, systemSubmitterID uint) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Joins("JOIN parks ON parks.id = ledger_entries.park_id").
		Where("ledger_entries.rotation_number = ?", rotation).
		Where("NOT (COALESCE(parks.permanent_species, '') <> '' AND COALESCE(ledger_entries.last_modified_by_id, 0) = ?)", systemSubmitterID).
		Count(&n).Error
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
