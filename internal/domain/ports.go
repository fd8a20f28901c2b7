package domain

import "context"

// SpeciesUniverse selects which species a resolver may return.
type SpeciesUniverse int

const (
	// UniverseNestable is species currently nestable and enabled.
	UniverseNestable SpeciesUniverse = iota
	// UniverseAll is every known species.
	UniverseAll
)

// Allows reports whether s is a candidate in this universe.
func (u SpeciesUniverse) Allows(s Species) bool {
	if u == UniverseAll {
		return true
	}
	return s.Nestable && s.Enabled
}

// SpeciesResolver resolves free text or a dex number to candidate species.
// Zero results means not found, more than one means ambiguous.
type SpeciesResolver interface {
	MatchSpecies(ctx context.Context, input string, universe SpeciesUniverse) ([]Species, error)
	SpeciesByName(ctx context.Context, name string) (Species, error)
}

// PlaceQuery narrows a park search.
type PlaceQuery struct {
	Scope            PlaceScope
	ExcludePermanent bool
}

// PlaceResolver resolves free text or a park id to candidate parks. Returned
// parks are already canonical: duplicate-merge pointers have been followed.
type PlaceResolver interface {
	MatchParks(ctx context.Context, input string, q PlaceQuery) ([]Park, error)
	ParkByID(ctx context.Context, id uint) (Park, error)
}
