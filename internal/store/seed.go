package store

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/duck57/poke-db/internal/domain"
)

// Seed is the reference data an operator loads before reports can flow:
// places, submitters and the species table.
type Seed struct {
	Regions       []domain.Region       `yaml:"regions"`
	Cities        []domain.City         `yaml:"cities"`
	Neighborhoods []domain.Neighborhood `yaml:"neighborhoods"`
	Parks         []domain.Park         `yaml:"parks"`
	Submitters    []domain.Submitter    `yaml:"submitters"`
	Species       []domain.Species      `yaml:"species"`
}

// SeedCounts reports how many rows of each kind a seed applied.
type SeedCounts struct {
	Regions, Cities, Neighborhoods, Parks, Submitters, Species int
}

// DecodeSeed reads a YAML seed document. Unknown keys are rejected.
func DecodeSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}

// ApplySeed upserts every row in one transaction, parents before children.
func (s *Store) ApplySeed(ctx context.Context, seed Seed) (SeedCounts, error) {
	var counts SeedCounts
	err := s.Tx(ctx, func(tx *Store) error {
		for i := range seed.Regions {
			if err := tx.SaveRegion(ctx, &seed.Regions[i]); err != nil {
				return fmt.Errorf("region %q: %w", seed.Regions[i].Name, err)
			}
			counts.Regions++
		}
		for i := range seed.Cities {
			if err := tx.SaveCity(ctx, &seed.Cities[i]); err != nil {
				return fmt.Errorf("city %q: %w", seed.Cities[i].Name, err)
			}
			counts.Cities++
		}
		for i := range seed.Neighborhoods {
			if err := tx.SaveNeighborhood(ctx, &seed.Neighborhoods[i]); err != nil {
				return fmt.Errorf("neighborhood %q: %w", seed.Neighborhoods[i].Name, err)
			}
			counts.Neighborhoods++
		}
		for i := range seed.Parks {
			if err := tx.SavePark(ctx, &seed.Parks[i]); err != nil {
				return err
			}
			counts.Parks++
		}
		for i := range seed.Submitters {
			if err := tx.SaveSubmitter(ctx, &seed.Submitters[i]); err != nil {
				return fmt.Errorf("submitter %q: %w", seed.Submitters[i].Name, err)
			}
			counts.Submitters++
		}
		if err := tx.SaveSpecies(ctx, seed.Species...); err != nil {
			return fmt.Errorf("species: %w", err)
		}
		counts.Species = len(seed.Species)
		return nil
	})
	if err != nil {
		return SeedCounts{}, err
	}
	return counts, nil
}
