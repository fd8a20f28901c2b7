// Package storetest opens throwaway stores for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duck57/poke-db/internal/domain"
	"github.com/duck57/poke-db/internal/store"
)

// New returns a migrated SQLite store in a temp directory, closed on cleanup.
func New(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(store.Options{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "nests.db"),
	})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Fixture is a small, fully linked data set: one city split into two
// neighborhoods, a handful of parks and a submitter of every tier.
type Fixture struct {
	City         domain.City
	Downtown     domain.Neighborhood
	Uptown       domain.Neighborhood
	Region       domain.Region
	Washington   domain.Park
	Cheesman     domain.Park
	CityPark     domain.Park
	CityParkDup  domain.Park
	Sloans       domain.Park
	System       domain.Submitter
	Human        domain.Submitter
	SurveyBot    domain.Submitter
	ScannerBot   domain.Submitter
	OtherSurvey  domain.Submitter
	SpeciesNames []string
}

// Submitter ids in the fixture.
const (
	SystemID      uint = 1
	HumanID       uint = 2
	SurveyBotID   uint = 3
	ScannerBotID  uint = 4
	OtherSurveyID uint = 5
)

func uintPtr(v uint) *uint { return &v }

// Species used by the fixture. Pichu, Pikachu and Raichu form one family.
var Species = []domain.Species{
	{Name: "Bulbasaur", DexNumber: 1, Type1: "Grass", Type2: "Poison", Region: "Kanto", Category: domain.CategoryStarter, Nestable: true, Enabled: true},
	{Name: "Ivysaur", DexNumber: 2, PreviousEvolution: "Bulbasaur", Type1: "Grass", Type2: "Poison", Region: "Kanto", Category: domain.CategoryStarter, Enabled: true},
	{Name: "Charmander", DexNumber: 4, Type1: "Fire", Region: "Kanto", Category: domain.CategoryStarter, Nestable: true, Enabled: true},
	{Name: "Squirtle", DexNumber: 7, Type1: "Water", Region: "Kanto", Category: domain.CategoryStarter, Nestable: true, Enabled: true},
	{Name: "Pikachu", DexNumber: 25, PreviousEvolution: "Pichu", Type1: "Electric", Region: "Kanto", Nestable: true, Enabled: true},
	{Name: "Raichu", DexNumber: 26, PreviousEvolution: "Pikachu", Type1: "Electric", Region: "Kanto", Nestable: true, Enabled: true},
	{Name: "Abra", DexNumber: 63, Type1: "Psychic", Region: "Kanto", Nestable: true, Enabled: true},
	{Name: "Magikarp", DexNumber: 129, Type1: "Water", Region: "Kanto", Nestable: true, Enabled: true},
	{Name: "Pichu", DexNumber: 172, Type1: "Electric", Region: "Johto", Nestable: true, Enabled: true},
	{Name: "Mareep", DexNumber: 179, Type1: "Electric", Region: "Johto", Nestable: true, Enabled: true},
	{Name: "Tyrogue", DexNumber: 236, Type1: "Fighting", Region: "Johto", Enabled: true},
	{Name: "Treecko", DexNumber: 252, Type1: "Grass", Region: "Hoenn", Category: domain.CategoryStarter, Nestable: true, Enabled: true},
	{Name: "Mr. Mime", DexNumber: 122, Type1: "Psychic", Type2: "Fairy", Region: "Kanto", Nestable: true, Enabled: false},
}

// Seed loads the fixture into s.
func Seed(t testing.TB, s *store.Store) Fixture {
	t.Helper()
	ctx := context.Background()

	f := Fixture{
		Region: domain.Region{ID: 1, Name: "Central"},
		City:   domain.City{ID: 1, Name: "Denver", ShortName: "DEN", AirtableBaseID: "appDEN", AirtableBotID: uintPtr(SurveyBotID)},
	}
	f.Downtown = domain.Neighborhood{ID: 1, Name: "Downtown", CityID: uintPtr(1), RegionID: uintPtr(1)}
	f.Uptown = domain.Neighborhood{ID: 2, Name: "Uptown", CityID: uintPtr(1)}
	f.Washington = domain.Park{ID: 1, OfficialName: "Washington Park", ShortName: "Wash Park", NeighborhoodID: uintPtr(1),
		AltNames: []domain.AltName{{Name: "WashPark"}}}
	f.Cheesman = domain.Park{ID: 2, OfficialName: "Cheesman Park", NeighborhoodID: uintPtr(2),
		AltNames: []domain.AltName{{Name: "Old Cemetery", Hidden: true}}}
	f.CityPark = domain.Park{ID: 3, OfficialName: "City Park", NeighborhoodID: uintPtr(2)}
	f.CityParkDup = domain.Park{ID: 4, OfficialName: "City Park Esplanade", NeighborhoodID: uintPtr(2), DuplicateOfID: uintPtr(3)}
	f.Sloans = domain.Park{ID: 5, OfficialName: "Sloan's Lake Park", NeighborhoodID: uintPtr(1), PermanentSpecies: "Magikarp|129"}

	f.System = domain.Submitter{ID: SystemID, Name: "System", Tier: domain.TierSystem}
	f.Human = domain.Submitter{ID: HumanID, Name: "Nest Admin", Tier: domain.TierHuman, HomeCityID: uintPtr(1)}
	f.SurveyBot = domain.Submitter{ID: SurveyBotID, Name: "Survey Bot", Tier: domain.TierSurveyBot, HomeCityID: uintPtr(1)}
	f.ScannerBot = domain.Submitter{ID: ScannerBotID, Name: "Scanner Bot", Tier: domain.TierScannerBot}
	f.OtherSurvey = domain.Submitter{ID: OtherSurveyID, Name: "Discord Bot", Tier: domain.TierSurveyBot, HomeCityID: uintPtr(1)}

	_, err := s.ApplySeed(ctx, store.Seed{
		Regions:       []domain.Region{f.Region},
		Cities:        []domain.City{f.City},
		Neighborhoods: []domain.Neighborhood{f.Downtown, f.Uptown},
		Parks:         []domain.Park{f.Washington, f.Cheesman, f.CityPark, f.CityParkDup, f.Sloans},
		Submitters:    []domain.Submitter{f.System, f.Human, f.SurveyBot, f.ScannerBot, f.OtherSurvey},
		Species:       append([]domain.Species(nil), Species...),
	})
	require.NoError(t, err)

	for _, sp := range Species {
		f.SpeciesNames = append(f.SpeciesNames, sp.Name)
	}
	return f
}
