package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/duck57/poke-db/internal/domain"
)

// resolved is a submission with every identity looked up.
type resolved struct {
	submitter  domain.Submitter
	restricted bool
	species    *domain.Species // nil when an unrestricted submitter sent unmatched text
	label      string
	force      bool
	park       domain.Park
	rotation   domain.RotationPeriod
}

const maxListedCandidates = 5

// resolve validates sub and looks up its identities. Problems a submitter can
// fix are collected in errs; only infrastructure failures return an error.
func (r *Reconciler) resolve(ctx context.Context, sub domain.Submission) (resolved, domain.FieldErrors, error) {
	var out resolved
	errs := domain.FieldErrors{}

	if strings.TrimSpace(sub.Name) == "" {
		errs.Add(domain.FieldUserName, domain.CodeMissingName, "name is required", sub.Name)
	}
	if sub.Timestamp.IsZero() {
		errs.Add(domain.FieldTimestamp, domain.CodeMissingTimestamp, "timestamp is required", "")
	}

	// An unknown submitter is held to the restricted rules for the remaining
	// fields so every problem is reported at once.
	out.restricted = true
	submitter, err := r.submitters.Lookup(ctx, sub.SubmitterID)
	switch {
	case err == nil:
		out.submitter = submitter
		out.restricted = submitter.Restricted()
	case errors.Is(err, domain.ErrUnknownSubmitter):
		errs.Add(domain.FieldSubmitter, domain.CodeUnauthorized, "unknown submitter", strconv.FormatUint(uint64(sub.SubmitterID), 10))
	default:
		return out, nil, err
	}

	if err := r.resolveSpecies(ctx, sub, &out, errs); err != nil {
		return out, nil, err
	}
	if err := r.resolvePlace(ctx, sub, &out, errs); err != nil {
		return out, nil, err
	}
	if err := r.resolveRotation(ctx, sub, &out, errs); err != nil {
		return out, nil, err
	}
	return out, errs, nil
}

func (r *Reconciler) resolveSpecies(ctx context.Context, sub domain.Submission, out *resolved, errs domain.FieldErrors) error {
	in := domain.ParseSpeciesInput(sub.Species)
	out.force = !out.restricted && (sub.ForceConfirmation || in.Force)
	if in.Text == "" {
		errs.Add(domain.FieldSpecies, domain.CodeNotFound, "species is required", sub.Species)
		return nil
	}

	universe := domain.UniverseNestable
	if sub.SearchAllSpecies || in.SearchAll {
		universe = domain.UniverseAll
	}
	found, err := r.species.MatchSpecies(ctx, in.Text, universe)
	if err != nil {
		return fmt.Errorf("resolve species: %w", err)
	}
	switch {
	case len(found) == 1:
		out.species = &found[0]
		out.label = found[0].Name
	case !out.restricted:
		out.label = in.Text
	case len(found) == 0:
		errs.Add(domain.FieldSpecies, domain.CodeNotFound, "no nesting species matches", sub.Species)
	default:
		names := make([]string, 0, len(found))
		for _, s := range found {
			names = append(names, s.Name)
		}
		errs.Add(domain.FieldSpecies, domain.CodeAmbiguous,
			fmt.Sprintf("%d species match: %s", len(found), candidates(names)), sub.Species)
	}
	return nil
}

func (r *Reconciler) resolvePlace(ctx context.Context, sub domain.Submission, out *resolved, errs domain.FieldErrors) error {
	q := domain.PlaceQuery{Scope: sub.PlaceScope, ExcludePermanent: out.restricted}
	if q.Scope.Unscoped() && out.submitter.HomeCityID != nil {
		q.Scope = domain.PlaceScope{Kind: domain.ScopeCity, ID: *out.submitter.HomeCityID}
	}
	found, err := r.places.MatchParks(ctx, sub.Place, q)
	if err != nil {
		if errors.Is(err, domain.ErrParkCycle) {
			errs.Add(domain.FieldPlace, domain.CodeInternal, err.Error(), sub.Place)
			return nil
		}
		return fmt.Errorf("resolve place: %w", err)
	}
	switch len(found) {
	case 1:
		out.park = found[0]
	case 0:
		errs.Add(domain.FieldPlace, domain.CodeNotFound, "no park matches", sub.Place)
	default:
		names := make([]string, 0, len(found))
		for _, p := range found {
			names = append(names, p.String())
		}
		errs.Add(domain.FieldPlace, domain.CodeAmbiguous,
			fmt.Sprintf("%d parks match: %s", len(found), candidates(names)), sub.Place)
	}
	return nil
}

func (r *Reconciler) resolveRotation(ctx context.Context, sub domain.Submission, out *resolved, errs domain.FieldErrors) error {
	var (
		rot domain.RotationPeriod
		err error
	)
	switch {
	case sub.Rotation != nil:
		rot, err = r.rotations.Number(ctx, *sub.Rotation)
	case !sub.Timestamp.IsZero():
		rot, err = r.rotations.ForTime(ctx, sub.Timestamp)
	default:
		return nil
	}
	switch {
	case err == nil:
		out.rotation = rot
	case errors.Is(err, domain.ErrRotationNotFound), errors.Is(err, domain.ErrNoRotations):
		value := sub.Timestamp.UTC().Format("2006-01-02T15:04:05Z")
		if sub.Rotation != nil {
			value = strconv.FormatUint(uint64(*sub.Rotation), 10)
		}
		errs.Add(domain.FieldRotation, domain.CodeNotFound, err.Error(), value)
	default:
		return fmt.Errorf("resolve rotation: %w", err)
	}
	return nil
}

func candidates(names []string) string {
	if len(names) > maxListedCandidates {
		return strings.Join(names[:maxListedCandidates], ", ") + ", ..."
	}
	return strings.Join(names, ", ")
}
