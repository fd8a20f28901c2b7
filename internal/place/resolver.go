// Package place resolves park input to canonical parks.
package place

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/duck57/poke-db/internal/domain"
)

// Source is the park storage the resolver reads.
type Source interface {
	ParkByID(ctx context.Context, id uint) (domain.Park, error)
	SearchParks(ctx context.Context, text string, q domain.PlaceQuery) ([]domain.Park, error)
}

// Resolver implements domain.PlaceResolver. Every park it returns is the
// terminal park of its duplicate-merge chain.
type Resolver struct {
	src Source
}

// NewResolver creates a Resolver over src.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// MatchParks resolves input to zero or more canonical parks. An all-digit
// input is taken as a park id and ignores the scope; anything else is a
// name search within q.Scope. Parks merged into the same canonical park
// collapse to one result.
func (r *Resolver) MatchParks(ctx context.Context, input string, q domain.PlaceQuery) ([]domain.Park, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return nil, nil
	}

	if id, err := strconv.ParseUint(text, 10, 0); err == nil {
		p, err := r.ParkByID(ctx, uint(id))
		if errors.Is(err, domain.ErrParkNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if q.ExcludePermanent && p.HasPermanentSpecies() {
			return nil, nil
		}
		return []domain.Park{p}, nil
	}

	found, err := r.src.SearchParks(ctx, text, q)
	if err != nil {
		return nil, err
	}
	seen := make(map[uint]struct{}, len(found))
	out := make([]domain.Park, 0, len(found))
	for _, p := range found {
		c, err := domain.CanonicalPark(ctx, r.src, p)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		if q.ExcludePermanent && c.HasPermanentSpecies() {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// ParkByID fetches a park and follows its duplicate-merge chain.
func (r *Resolver) ParkByID(ctx context.Context, id uint) (domain.Park, error) {
	p, err := r.src.ParkByID(ctx, id)
	if err != nil {
		return domain.Park{}, err
	}
	return domain.CanonicalPark(ctx, r.src, p)
}
