// Package rotation maintains the calendar of nest-shift rotations.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/duck57/poke-db/internal/domain"
	"github.com/duck57/poke-db/internal/keylock"
	"github.com/duck57/poke-db/internal/observability"
	"github.com/duck57/poke-db/internal/store"
)

// Server tags written on reports the calendar files.
const (
	ServerPermanent = "rotation-permanent"
	ServerUndo      = "rotation-undo"
)

// Reporter files a report through the reconciler.
type Reporter interface {
	Submit(ctx context.Context, sub domain.Submission) (domain.ReportOutcome, error)
}

// SubmitterLookup resolves the acting submitter.
type SubmitterLookup interface {
	Lookup(ctx context.Context, id uint) (domain.Submitter, error)
}

// Calendar resolves, creates and undoes rotations.
type Calendar struct {
	store      *store.Store
	gate       *keylock.Gate
	submitters SubmitterLookup
	reporter   Reporter
	systemID   uint
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewCalendar creates a Calendar. gate must be the same gate the reconciler
// holds shared while submitting.
func NewCalendar(s *store.Store, gate *keylock.Gate, submitters SubmitterLookup, systemID uint, metrics *observability.Metrics, logger *slog.Logger) *Calendar {
	return &Calendar{
		store:      s,
		gate:       gate,
		submitters: submitters,
		systemID:   systemID,
		metrics:    metrics,
		logger:     logger,
	}
}

// SetReporter wires the reconciler used to file permanent-species reports on
// Create. The reconciler itself depends on the calendar, so this is set after
// both exist.
func (c *Calendar) SetReporter(r Reporter) {
	c.reporter = r
}

// Resolve accepts a rotation number (a numeric string of fewer than four
// characters) or a date expression understood by domain.ParseDateExpr.
// A rotation number that does not exist resolves to the current rotation.
func (c *Calendar) Resolve(ctx context.Context, expr string) (domain.RotationPeriod, error) {
	if n, ok := domain.IsRotationNumber(expr); ok {
		r, err := c.store.RotationByNumber(ctx, n)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, domain.ErrRotationNotFound) {
			return domain.RotationPeriod{}, err
		}
		c.logger.Warn("rotation number not found, using current rotation", "rotation", n)
		return c.ForTime(ctx, domain.Now())
	}
	t, _, err := domain.ParseDateExpr(expr, domain.Now())
	if err != nil {
		return domain.RotationPeriod{}, err
	}
	return c.ForTime(ctx, t)
}

// ForTime returns the latest rotation effective at or before t. A time before
// every rotation resolves to the earliest rotation; only an empty calendar
// fails, with domain.ErrNoRotations.
func (c *Calendar) ForTime(ctx context.Context, t time.Time) (domain.RotationPeriod, error) {
	r, err := c.store.RotationAt(ctx, t)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, domain.ErrRotationNotFound) {
		return domain.RotationPeriod{}, err
	}
	first, err := c.store.EarliestRotation(ctx)
	if err != nil {
		return domain.RotationPeriod{}, err
	}
	c.logger.Warn("date precedes every rotation, using earliest",
		"requested", t.UTC().Format(time.RFC3339), "rotation", first.Number)
	return first, nil
}

// Number fetches a rotation by its number.
func (c *Calendar) Number(ctx context.Context, n uint) (domain.RotationPeriod, error) {
	return c.store.RotationByNumber(ctx, n)
}

// List returns up to limit rotations, newest first.
func (c *Calendar) List(ctx context.Context, limit int) ([]domain.RotationPeriod, error) {
	return c.store.ListRotations(ctx, limit)
}

// NewRotation describes a rotation to create.
type NewRotation struct {
	Effective time.Time
	// Live marks Effective as read from the clock; it is always snapped to
	// the nest-shift schedule.
	Live     bool
	Note     string
	ActingID uint
}

// Created is the result of Create.
type Created struct {
	Rotation  domain.RotationPeriod
	Permanent []domain.ReportOutcome
}

// Create starts a new rotation and files one confirmed report for every park
// with a permanent species. Only unrestricted submitters may create rotations.
func (c *Calendar) Create(ctx context.Context, req NewRotation) (Created, error) {
	if _, err := c.authorize(ctx, req.ActingID); err != nil {
		return Created{}, err
	}

	r := domain.RotationPeriod{
		Effective: domain.NestShiftTime(req.Effective, req.Live),
		Note:      req.Note,
	}
	release := c.gate.Exclusive()
	err := c.store.Tx(ctx, func(tx *store.Store) error {
		return tx.InsertRotation(ctx, &r)
	})
	release()
	if err != nil {
		return Created{}, err
	}
	c.metrics.RotationChanges.WithLabelValues("create").Inc()
	c.logger.Info("rotation created", "rotation", r.Number, "effective", r.Effective.Format(time.RFC3339))

	out := Created{Rotation: r}
	if c.reporter == nil {
		return out, nil
	}
	out.Permanent, err = c.fileIn(ctx, r)
	return out, err
}

func (c *Calendar) fileIn(ctx context.Context, r domain.RotationPeriod) ([]domain.ReportOutcome, error) {
	parks, err := c.store.ParksWithPermanentSpecies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permanent nests: %w", err)
	}
	system, err := c.submitters.Lookup(ctx, c.systemID)
	if err != nil {
		return nil, fmt.Errorf("system submitter: %w", err)
	}

	outcomes := make([]domain.ReportOutcome, 0, len(parks))
	var errs []error
	for _, p := range parks {
		number := r.Number
		res, err := c.reporter.Submit(ctx, domain.Submission{
			Name:              system.Name,
			Place:             strconv.FormatUint(uint64(p.ID), 10),
			Timestamp:         r.Effective,
			Species:           p.PermanentSpeciesName(),
			SubmitterID:       system.ID,
			Server:            ServerPermanent,
			Rotation:          &number,
			ForceConfirmation: true,
			SearchAllSpecies:  true,
		})
		if err != nil {
			c.logger.Error("permanent nest report failed", "rotation", r.Number, "park_id", p.ID, "error", err)
			errs = append(errs, fmt.Errorf("park %d: %w", p.ID, err))
			continue
		}
		if res.Code == domain.OutcomeError {
			c.logger.Warn("permanent nest report rejected", "rotation", r.Number, "park_id", p.ID, "errors", res.Errors.Error())
		}
		outcomes = append(outcomes, res)
	}
	return outcomes, errors.Join(errs...)
}

// Undo deletes a rotation with its ledger rows and reports, then records the
// deletion as an audit report. Rows entered by hand are only destroyed when
// confirmed is set; otherwise an *domain.UndoConfirmationError reports how
// many would be lost. Rows that came from permanent-species synthesis are
// removed without confirmation.
func (c *Calendar) Undo(ctx context.Context, number, actingID uint, confirmed bool) (*domain.RawReport, error) {
	actor, err := c.authorize(ctx, actingID)
	if err != nil {
		return nil, err
	}

	release := c.gate.Exclusive()
	defer release()

	r, err := c.store.RotationByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	manual, err := c.store.CountManualEntries(ctx, number, c.systemID)
	if err != nil {
		return nil, fmt.Errorf("count manual entries: %w", err)
	}
	if manual > 0 && !confirmed {
		return nil, &domain.UndoConfirmationError{Rotation: number, ManualEntries: manual}
	}

	audit := &domain.RawReport{
		SubmitterID: &actor.ID,
		UserName:    actor.Name,
		ServerName:  ServerUndo,
		Timestamp:   domain.Now(),
		RawSpecies:  fmt.Sprintf("rotation %d", r.Number),
		RawPlace:    r.Effective.Format(time.RFC3339),
		Action:      domain.OutcomeDeletion,
	}
	err = c.store.Tx(ctx, func(tx *store.Store) error {
		if err := tx.DeleteRotation(ctx, number); err != nil {
			return err
		}
		return tx.AppendReport(ctx, audit)
	})
	if err != nil {
		return nil, err
	}
	c.metrics.RotationChanges.WithLabelValues("undo").Inc()
	c.logger.Info("rotation undone", "rotation", number, "manual_entries", manual, "submitter_id", actor.ID)
	return audit, nil
}

func (c *Calendar) authorize(ctx context.Context, actingID uint) (domain.Submitter, error) {
	actor, err := c.submitters.Lookup(ctx, actingID)
	if err != nil {
		return domain.Submitter{}, err
	}
	if actor.Restricted() {
		return domain.Submitter{}, fmt.Errorf("%s (%s): %w", actor.Name, actor.Tier, domain.ErrUnauthorized)
	}
	return actor, nil
}
