package species

import (
	"context"
	"fmt"

	"github.com/duck57/poke-db/internal/domain"
)

// Source loads the species table.
type Source interface {
	AllSpecies(ctx context.Context) ([]domain.Species, error)
	SpeciesByName(ctx context.Context, name string) (domain.Species, error)
}

// Resolver implements domain.SpeciesResolver over a Source.
type Resolver struct {
	src Source
}

// NewResolver creates a Resolver reading from src.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// MatchSpecies returns every species input matches within universe.
func (r *Resolver) MatchSpecies(ctx context.Context, input string, universe domain.SpeciesUniverse) ([]domain.Species, error) {
	all, err := r.src.AllSpecies(ctx)
	if err != nil {
		return nil, fmt.Errorf("match species %q: %w", input, err)
	}
	return Match(all, input, universe), nil
}

// SpeciesByName fetches one species by exact name.
func (r *Resolver) SpeciesByName(ctx context.Context, name string) (domain.Species, error) {
	return r.src.SpeciesByName(ctx, name)
}

// MatchFamily matches input against every species and widens the result with
// evolutionary relatives.
func (r *Resolver) MatchFamily(ctx context.Context, input string, previous, next bool) ([]domain.Species, error) {
	all, err := r.src.AllSpecies(ctx)
	if err != nil {
		return nil, err
	}
	return Family(all, Match(all, input, domain.UniverseAll), previous, next), nil
}
