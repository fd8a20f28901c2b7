package reconcile

import (
	"strings"

	"github.com/duck57/poke-db/internal/domain"
)

// ledgerState is an existing ledger entry as decide sees it.
type ledgerState struct {
	entry domain.LedgerEntry
	// species is the ledger's resolved species; nil for a free-text label.
	species            *domain.Species
	modifierRestricted bool
	// priors are reports filed against the entry, most recent first.
	priors []domain.RawReport
}

type decision struct {
	code   domain.Outcome
	update bool
	entry  domain.LedgerEntry
	priors []domain.RawReport
}

// decide classifies a report against an existing ledger entry. name is the
// trimmed submitter name from the report.
func decide(name string, res resolved, st ledgerState) decision {
	d := decision{entry: st.entry, priors: st.priors}
	set := func(confirmed bool) {
		d.update = true
		d.entry.SetSpecies(res.species, res.label)
		d.entry.Confirmed = confirmed
		id := res.submitter.ID
		d.entry.LastModifiedByID = &id
	}

	if !res.restricted {
		if st.entry.Matches(res.species, res.label, res.force) {
			d.code = domain.OutcomeDuplicate
			return d
		}
		set(res.force)
		d.code = domain.OutcomeOverride
		return d
	}

	// Restricted submitters always carry a resolved species.
	sp := res.species

	if st.entry.SpeciesName != nil && *st.entry.SpeciesName == sp.Name {
		switch {
		case hasIdentical(st.priors, name, sp.Name):
			d.code = domain.OutcomeDuplicate
		case st.entry.Confirmed:
			d.code = domain.OutcomeConfirmation
		default:
			d.update = true
			d.entry.Confirmed = true
			d.code = domain.OutcomeConfirmation
		}
		return d
	}

	if st.species != nil && sp.IsEvolutionNeighbor(*st.species) && (st.modifierRestricted || !st.entry.Confirmed) {
		set(false)
		d.code = domain.OutcomeFirstReport
		return d
	}

	if proposedBefore(st.priors, sp.Name) {
		set(st.modifierRestricted)
		d.code = domain.OutcomeConfirmation
		return d
	}

	if len(st.priors) > 0 && strings.EqualFold(st.priors[0].UserName, name) {
		set(false)
		d.code = domain.OutcomeFirstReport
		return d
	}

	if len(st.priors) > 0 {
		d.code = domain.OutcomeConflict
		return d
	}

	d.code = domain.OutcomeError
	return d
}

func hasIdentical(priors []domain.RawReport, name, species string) bool {
	for _, p := range priors {
		if strings.EqualFold(p.UserName, name) && p.ProposedSpecies(species) {
			return true
		}
	}
	return false
}

func proposedBefore(priors []domain.RawReport, species string) bool {
	for _, p := range priors {
		if p.Action != domain.OutcomeError && p.ProposedSpecies(species) {
			return true
		}
	}
	return false
}
