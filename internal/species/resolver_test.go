package species

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duck57/poke-db/internal/domain"
	"github.com/duck57/poke-db/internal/observability"
	"github.com/duck57/poke-db/internal/store/storetest"
)

func TestResolver_AgainstStore(t *testing.T) {
	s := storetest.New(t)
	storetest.Seed(t, s)
	r := NewResolver(s)
	ctx := context.Background()

	got, err := r.MatchSpecies(ctx, "johto", domain.UniverseNestable)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pichu", "Mareep"}, names(got))

	sp, err := r.SpeciesByName(ctx, "Abra")
	require.NoError(t, err)
	assert.Equal(t, 63, sp.DexNumber)

	_, err = r.SpeciesByName(ctx, "Missingno")
	assert.ErrorIs(t, err, domain.ErrSpeciesNotFound)

	fam, err := r.MatchFamily(ctx, "raichu", true, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Pikachu", "Raichu", "Pichu"}, names(fam))
}

type countingResolver struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (c *countingResolver) MatchSpecies(_ context.Context, input string, universe domain.SpeciesUniverse) ([]domain.Species, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	if c.err != nil {
		return nil, c.err
	}
	return Match(storetest.Species, input, universe), nil
}

func (c *countingResolver) SpeciesByName(_ context.Context, name string) (domain.Species, error) {
	c.calls.Add(1)
	if c.err != nil {
		return domain.Species{}, c.err
	}
	for _, s := range storetest.Species {
		if s.Name == name {
			return s, nil
		}
	}
	return domain.Species{}, domain.ErrSpeciesNotFound
}

func TestCachedResolver_HitsAndMisses(t *testing.T) {
	inner := &countingResolver{}
	m := observability.NewMetricsForTesting()
	c := NewCachedResolver(inner, time.Minute, m)
	ctx := context.Background()

	for range 3 {
		got, err := c.MatchSpecies(ctx, "Pikachu", domain.UniverseNestable)
		require.NoError(t, err)
		assert.Equal(t, []string{"Pikachu"}, names(got))
	}
	// Key is normalised.
	_, err := c.MatchSpecies(ctx, " pikachu ", domain.UniverseNestable)
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())

	// Different universe is a different key.
	_, err = c.MatchSpecies(ctx, "pikachu", domain.UniverseAll)
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())

	assert.InDelta(t, 3, testutil.ToFloat64(m.SpeciesCache.WithLabelValues("match", "hit")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.SpeciesCache.WithLabelValues("match", "miss")), 0)

	_, err = c.SpeciesByName(ctx, "Abra")
	require.NoError(t, err)
	_, err = c.SpeciesByName(ctx, "Abra")
	require.NoError(t, err)
	assert.Equal(t, int32(3), inner.calls.Load())

	c.Flush()
	_, err = c.SpeciesByName(ctx, "Abra")
	require.NoError(t, err)
	assert.Equal(t, int32(4), inner.calls.Load())
}

func TestCachedResolver_ErrorsAreNotCached(t *testing.T) {
	inner := &countingResolver{err: errors.New("db down")}
	c := NewCachedResolver(inner, time.Minute, nil)
	ctx := context.Background()

	_, err := c.MatchSpecies(ctx, "abra", domain.UniverseNestable)
	require.Error(t, err)
	_, err = c.MatchSpecies(ctx, "abra", domain.UniverseNestable)
	require.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())

	_, err = c.SpeciesByName(ctx, "Abra")
	require.Error(t, err)
}

func TestCachedResolver_CoalescesConcurrentMisses(t *testing.T) {
	inner := &countingResolver{delay: 50 * time.Millisecond}
	c := NewCachedResolver(inner, time.Minute, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.MatchSpecies(context.Background(), "mareep", domain.UniverseNestable)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, inner.calls.Load(), int32(2))
}
