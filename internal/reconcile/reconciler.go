// Package reconcile classifies incoming nest reports against the residency
// ledger and records every classification in the raw report log.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/duck57/poke-db/internal/domain"
	"github.com/duck57/poke-db/internal/keylock"
	"github.com/duck57/poke-db/internal/observability"
	"github.com/duck57/poke-db/internal/store"
)

// maxTxAttempts bounds how often a transaction that lost a lock conflict to
// another process is run again.
const maxTxAttempts = 3

// RotationSource resolves the rotation a report belongs to.
type RotationSource interface {
	ForTime(ctx context.Context, t time.Time) (domain.RotationPeriod, error)
	Number(ctx context.Context, n uint) (domain.RotationPeriod, error)
}

// SubmitterLookup resolves submitter ids.
type SubmitterLookup interface {
	Lookup(ctx context.Context, id uint) (domain.Submitter, error)
}

// Deps are the collaborators a Reconciler needs.
type Deps struct {
	Store      *store.Store
	Rotations  RotationSource
	Submitters SubmitterLookup
	Species    domain.SpeciesResolver
	Places     domain.PlaceResolver
	Gate       *keylock.Gate
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// Reconciler is the report classification engine.
type Reconciler struct {
	store      *store.Store
	rotations  RotationSource
	submitters SubmitterLookup
	species    domain.SpeciesResolver
	places     domain.PlaceResolver
	locks      *keylock.Locker
	gate       *keylock.Gate
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// New creates a Reconciler. A nil Gate gets a private one.
func New(d Deps) *Reconciler {
	gate := d.Gate
	if gate == nil {
		gate = &keylock.Gate{}
	}
	return &Reconciler{
		store:      d.Store,
		rotations:  d.Rotations,
		submitters: d.Submitters,
		species:    d.Species,
		places:     d.Places,
		locks:      keylock.New(),
		gate:       gate,
		metrics:    d.Metrics,
		logger:     d.Logger,
	}
}

// Submit classifies one report. Problems with the submission are returned as
// an outcome-9 ReportOutcome; the error is reserved for storage failures.
func (r *Reconciler) Submit(ctx context.Context, sub domain.Submission) (domain.ReportOutcome, error) {
	start := time.Now()
	release := r.gate.Shared()
	defer release()

	out, err := r.submit(ctx, sub)
	r.metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.ProcessingErrors.Inc()
		return domain.ReportOutcome{}, err
	}
	if out.Replayed {
		r.metrics.ReplayedReports.Inc()
		return out, nil
	}
	r.metrics.Reports.WithLabelValues(out.Code.String()).Inc()
	return out, nil
}

func (r *Reconciler) submit(ctx context.Context, sub domain.Submission) (domain.ReportOutcome, error) {
	if sub.SourceRef != "" {
		out, found, err := r.replay(ctx, sub.SourceRef)
		if err != nil || found {
			return out, err
		}
	}

	res, errs, err := r.resolve(ctx, sub)
	if err != nil {
		return domain.ReportOutcome{}, err
	}
	if len(errs) > 0 {
		r.logger.Debug("report rejected",
			"submitter_id", sub.SubmitterID, "fields", strings.Join(errs.Fields(), ","))
		return domain.ReportOutcome{Code: domain.OutcomeError, Errors: errs}, nil
	}

	unlock := r.locks.Lock(keylock.Key{Rotation: res.rotation.Number, Park: res.park.ID})
	defer unlock()

	var out domain.ReportOutcome
	for attempt := 1; ; attempt++ {
		err = r.store.Tx(ctx, func(tx *store.Store) error {
			var txErr error
			out, txErr = r.apply(ctx, tx, sub, res)
			return txErr
		})
		if err == nil || attempt == maxTxAttempts || !store.IsRetryable(err) {
			break
		}
		r.logger.Warn("ledger transaction conflicted, retrying",
			"rotation", res.rotation.Number, "park_id", res.park.ID, "attempt", attempt, "error", err)
	}
	if errors.Is(err, store.ErrReplayedReport) {
		// A concurrent delivery of the same record committed first.
		replayed, found, lookupErr := r.replay(ctx, sub.SourceRef)
		if lookupErr == nil && !found {
			lookupErr = err
		}
		return replayed, lookupErr
	}
	if err != nil {
		return domain.ReportOutcome{}, fmt.Errorf("reconcile report for park %d rotation %d: %w",
			res.park.ID, res.rotation.Number, err)
	}

	r.logger.Debug("report reconciled",
		"rotation", res.rotation.Number,
		"park_id", res.park.ID,
		"submitter_id", res.submitter.ID,
		"outcome", out.Code.String(),
	)
	return out, nil
}

// replay returns the outcome recorded for a source reference, if any.
func (r *Reconciler) replay(ctx context.Context, ref string) (domain.ReportOutcome, bool, error) {
	rep, err := r.store.ReportBySourceRef(ctx, ref)
	if errors.Is(err, store.ErrReportNotFound) {
		return domain.ReportOutcome{}, false, nil
	}
	if err != nil {
		return domain.ReportOutcome{}, false, fmt.Errorf("look up %s: %w", ref, err)
	}

	out := domain.ReportOutcome{Code: rep.Action, Report: &rep, Replayed: true}
	if rep.RotationNumber != nil && rep.ParkID != nil {
		entry, err := r.store.LedgerEntry(ctx, *rep.RotationNumber, *rep.ParkID)
		switch {
		case err == nil:
			out.Entry = &entry
		case !errors.Is(err, store.ErrLedgerEntryNotFound):
			return domain.ReportOutcome{}, false, err
		}
	}
	r.logger.Debug("report already filed", "source_ref", ref, "outcome", rep.Action.String())
	return out, true, nil
}

// apply runs inside the transaction and must only touch tx.
func (r *Reconciler) apply(ctx context.Context, tx *store.Store, sub domain.Submission, res resolved) (domain.ReportOutcome, error) {
	submitterID := res.submitter.ID
	defaults := domain.LedgerEntry{Confirmed: res.force, LastModifiedByID: &submitterID}
	defaults.SetSpecies(res.species, res.label)

	entry, created, err := tx.GetOrCreateLedgerEntry(ctx, res.rotation.Number, res.park.ID, defaults)
	if err != nil {
		return domain.ReportOutcome{}, err
	}

	var d decision
	if created {
		d = decision{code: domain.OutcomeFirstReport}
		if res.force {
			d.code = domain.OutcomeConfirmation
		}
	} else {
		priors, err := tx.PriorReportsFor(ctx, entry.ID)
		if err != nil {
			return domain.ReportOutcome{}, err
		}
		st, err := r.ledgerState(ctx, tx, entry, priors)
		if err != nil {
			return domain.ReportOutcome{}, err
		}
		d = decide(strings.TrimSpace(sub.Name), res, st)
		if d.update {
			if err := tx.UpdateLedgerEntry(ctx, &d.entry); err != nil {
				return domain.ReportOutcome{}, err
			}
			entry = d.entry
		}
	}

	report := newReport(sub, res, entry.ID, d.code)
	if err := tx.AppendReport(ctx, report); err != nil {
		return domain.ReportOutcome{}, err
	}

	out := domain.ReportOutcome{Code: d.code, Entry: &entry, Report: report}
	if d.code == domain.OutcomeError {
		out.Errors = domain.FieldErrors{}
		out.Errors.Add(domain.FieldInternal, domain.CodeInternal,
			"report matched no reconciliation rule", res.label)
		r.logger.Error("report fell through every reconciliation rule",
			"rotation", res.rotation.Number,
			"park_id", res.park.ID,
			"submitter_id", res.submitter.ID,
			"species", res.label,
			"ledger_species", entry.Label(),
			"prior_reports", len(d.priors),
		)
	}
	return out, nil
}

// ledgerState loads what decide needs about the existing entry.
func (r *Reconciler) ledgerState(ctx context.Context, tx *store.Store, entry domain.LedgerEntry, priors []domain.RawReport) (ledgerState, error) {
	st := ledgerState{entry: entry, priors: priors}
	if entry.LastModifiedByID != nil {
		mod, err := tx.SubmitterByID(ctx, *entry.LastModifiedByID)
		switch {
		case err == nil:
			st.modifierRestricted = mod.Restricted()
		case !errors.Is(err, domain.ErrUnknownSubmitter):
			return st, err
		}
	}
	if entry.SpeciesName != nil {
		sp, err := tx.SpeciesByName(ctx, *entry.SpeciesName)
		switch {
		case err == nil:
			st.species = &sp
		case !errors.Is(err, domain.ErrSpeciesNotFound):
			return st, err
		}
	}
	return st, nil
}

func newReport(sub domain.Submission, res resolved, entryID uint, code domain.Outcome) *domain.RawReport {
	submitterID, parkID, rotation := res.submitter.ID, res.park.ID, res.rotation.Number
	rep := &domain.RawReport{
		LedgerEntryID:  &entryID,
		LedgerUnlinkID: entryID,
		SubmitterID:    &submitterID,
		UserName:       strings.TrimSpace(sub.Name),
		ServerName:     sub.Server,
		Timestamp:      sub.Timestamp,
		ForeignRowNum:  sub.ForeignRow,
		RawSpecies:     sub.Species,
		RawPlace:       sub.Place,
		ParkID:         &parkID,
		RotationNumber: &rotation,
		Action:         code,
	}
	if sub.SourceRef != "" {
		ref := sub.SourceRef
		rep.SourceRef = &ref
	}
	if res.species != nil {
		name := res.species.Name
		rep.SpeciesName = &name
	}
	return rep
}
