package store

import (
	"context"
	"fmt"

	"github.com/duck57/poke-db/internal/domain"
)

// LatestCursor returns the most recent import cursor for a source. ok is
// false when the source has never been imported.
func (s *Store) LatestCursor(ctx context.Context, source string) (cursor domain.ImportCursor, ok bool, err error) {
	var out []domain.ImportCursor
	err = s.db.WithContext(ctx).
		Where("source = ?", source).
		Order("end_row DESC, id DESC").
		Limit(1).Find(&out).Error
	if err != nil {
		return domain.ImportCursor{}, false, fmt.Errorf("load cursor for %s: %w", source, err)
	}
	if len(out) == 0 {
		return domain.ImportCursor{}, false, nil
	}
	return out[0], true, nil
}

// SaveCursor records a completed import batch.
func (s *Store) SaveCursor(ctx context.Context, c *domain.ImportCursor) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("save cursor for %s: %w", c.Source, err)
	}
	return nil
}
