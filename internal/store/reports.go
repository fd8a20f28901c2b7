package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/duck57/poke-db/internal/domain"
)

var (
	// ErrReportNotFound indicates no raw report matches the lookup.
	ErrReportNotFound = errors.New("raw report not found")
	// ErrReplayedReport indicates a report with the same source reference is
	// already in the log.
	ErrReplayedReport = errors.New("report already filed for source reference")
)

// AppendReport inserts a raw report. The log is append-only; rows are never
// updated afterwards.
func (s *Store) AppendReport(ctx context.Context, r *domain.RawReport) error {
	r.Timestamp = r.Timestamp.UTC()
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		if r.SourceRef != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%s: %w", *r.SourceRef, ErrReplayedReport)
		}
		return fmt.Errorf("append raw report: %w", err)
	}
	return nil
}

// ReportBySourceRef fetches the report filed for an upstream record.
func (s *Store) ReportBySourceRef(ctx context.Context, ref string) (domain.RawReport, error) {
	var r domain.RawReport
	if err := s.db.WithContext(ctx).Where("source_ref = ?", ref).First(&r).Error; err != nil {
		return domain.RawReport{}, notFound(err, ErrReportNotFound)
	}
	return r, nil
}

// PriorReportsFor lists reports filed against a ledger entry, through either
// the live link or the retained unlink id, most recent first.
func (s *Store) PriorReportsFor(ctx context.Context, entryID uint) ([]domain.RawReport, error) {
	var out []domain.RawReport
	err := s.db.WithContext(ctx).
		Where("ledger_entry_id = ? OR ledger_unlink_id = ?", entryID, entryID).
		Order("timestamp DESC, id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("load prior reports for ledger entry %d: %w", entryID, err)
	}
	return out, nil
}

// ReportsForRotation lists every report resolved to a rotation, oldest first.
func (s *Store) ReportsForRotation(ctx context.Context, rotation uint) ([]domain.RawReport, error) {
	var out []domain.RawReport
	err := s.db.WithContext(ctx).
		Where("rotation_number = ?", rotation).
		Order("timestamp, id").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
