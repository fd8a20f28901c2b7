package domain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapParks map[uint]Park

func (m mapParks) ParkByID(_ context.Context, id uint) (Park, error) {
	p, ok := m[id]
	if !ok {
		return Park{}, ErrParkNotFound
	}
	return p, nil
}

func uintPtr(v uint) *uint { return &v }

func TestCanonicalPark(t *testing.T) {
	ctx := context.Background()

	t.Run("terminal park is returned as is", func(t *testing.T) {
		p := Park{ID: 1, OfficialName: "Washington Park"}
		got, err := CanonicalPark(ctx, mapParks{}, p)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})

	t.Run("chain is followed to the end", func(t *testing.T) {
		parks := mapParks{
			2: {ID: 2, DuplicateOfID: uintPtr(3)},
			3: {ID: 3, OfficialName: "City Park"},
		}
		got, err := CanonicalPark(ctx, parks, Park{ID: 1, DuplicateOfID: uintPtr(2)})
		require.NoError(t, err)
		assert.Equal(t, uint(3), got.ID)
	})

	t.Run("cycle is reported", func(t *testing.T) {
		parks := mapParks{
			2: {ID: 2, DuplicateOfID: uintPtr(1)},
		}
		_, err := CanonicalPark(ctx, parks, Park{ID: 1, DuplicateOfID: uintPtr(2)})
		assert.ErrorIs(t, err, ErrParkCycle)
	})

	t.Run("self reference is a cycle", func(t *testing.T) {
		_, err := CanonicalPark(ctx, mapParks{}, Park{ID: 5, DuplicateOfID: uintPtr(5)})
		assert.ErrorIs(t, err, ErrParkCycle)
	})

	t.Run("dangling pointer", func(t *testing.T) {
		_, err := CanonicalPark(ctx, mapParks{}, Park{ID: 1, DuplicateOfID: uintPtr(9)})
		assert.ErrorIs(t, err, ErrParkNotFound)
	})
}

func TestParkNames(t *testing.T) {
	p := Park{
		OfficialName:     "Cheesman Park",
		PermanentSpecies: "Pikachu|25",
		AltNames:         []AltName{{Name: "Cheese"}, {Name: "Old Cemetery", Hidden: true}},
	}
	assert.Equal(t, "Cheesman Park", p.DisplayName())
	p.ShortName = "Cheesman"
	assert.Equal(t, "Cheesman", p.DisplayName())
	assert.True(t, p.HasPermanentSpecies())
	assert.Equal(t, "Pikachu", p.PermanentSpeciesName())
	assert.Equal(t, []string{"Cheese"}, p.VisibleAltNames())

	containers := []GeoContainer{City{ID: 1}, Neighborhood{ID: 2}, Region{ID: 3}, p}
	kinds := make([]ScopeKind, 0, len(containers))
	for _, c := range containers {
		kinds = append(kinds, c.HistoryScope().Kind)
	}
	assert.Equal(t, []ScopeKind{ScopeCity, ScopeNeighborhood, ScopeRegion, ScopePark}, kinds)
}
