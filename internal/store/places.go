package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/duck57/poke-db/internal/domain"
)

func withParkDetail(db *gorm.DB) *gorm.DB {
	return db.Preload("AltNames").Preload("Neighborhood").Preload("Neighborhood.Region")
}

// ParkByID fetches one park with its alternate names and neighborhood.
func (s *Store) ParkByID(ctx context.Context, id uint) (domain.Park, error) {
	var p domain.Park
	if err := s.db.WithContext(ctx).Scopes(withParkDetail).First(&p, id).Error; err != nil {
		return domain.Park{}, notFound(err, domain.ErrParkNotFound)
	}
	return p, nil
}

// SearchParks matches text case-insensitively against official, short and
// visible alternate names within scope. Blank text matches every park.
func (s *Store) SearchParks(ctx context.Context, text string, q domain.PlaceQuery) ([]domain.Park, error) {
	db := s.db.WithContext(ctx).Model(&domain.Park{}).Scopes(withParkDetail, parkScope(q.Scope))
	if q.ExcludePermanent {
		db = db.Where("COALESCE(parks.permanent_species, '') = ''")
	}
	if text = strings.TrimSpace(text); text != "" {
		like := "%" + strings.ToLower(text) + "%"
		alt := s.db.Session(&gorm.Session{NewDB: true}).WithContext(ctx).
			Model(&domain.AltName{}).Select("park_id").
			Where("hidden = ? AND LOWER(name) LIKE ?", false, like)
		db = db.Where("(LOWER(parks.official_name) LIKE ? OR LOWER(parks.short_name) LIKE ? OR parks.id IN (?))",
			like, like, alt)
	}
	var out []domain.Park
	if err := db.Order("parks.official_name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("search parks: %w", err)
	}
	return out, nil
}

// ParksWithPermanentSpecies lists every park that is auto-reported each
// rotation, skipping parks merged into another.
func (s *Store) ParksWithPermanentSpecies(ctx context.Context) ([]domain.Park, error) {
	var out []domain.Park
	err := s.db.WithContext(ctx).
		Where("COALESCE(permanent_species, '') <> '' AND duplicate_of_id IS NULL").
		Order("id").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ParksInScope lists canonical parks within scope ordered by name.
func (s *Store) ParksInScope(ctx context.Context, scope domain.PlaceScope) ([]domain.Park, error) {
	var out []domain.Park
	err := s.db.WithContext(ctx).Model(&domain.Park{}).
		Scopes(withParkDetail, parkScope(scope)).
		Where("parks.duplicate_of_id IS NULL").
		Order("parks.official_name").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveRegion upserts a region.
func (s *Store) SaveRegion(ctx context.Context, r *domain.Region) error {
	return s.db.WithContext(ctx).Save(r).Error
}

// SaveCity upserts a city.
func (s *Store) SaveCity(ctx context.Context, c *domain.City) error {
	return s.db.WithContext(ctx).Save(c).Error
}

// CityByID fetches one city.
func (s *Store) CityByID(ctx context.Context, id uint) (domain.City, error) {
	var c domain.City
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return domain.City{}, err
	}
	return c, nil
}

// CitiesWithAirtable lists cities that have an Airtable base and bot configured.
func (s *Store) CitiesWithAirtable(ctx context.Context) ([]domain.City, error) {
	var out []domain.City
	err := s.db.WithContext(ctx).
		Where("COALESCE(airtable_base_id, '') <> '' AND airtable_bot_id IS NOT NULL").
		Order("id").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveNeighborhood upserts a neighborhood.
func (s *Store) SaveNeighborhood(ctx context.Context, n *domain.Neighborhood) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(n).Error
}

// SavePark upserts a park and replaces its alternate names.
func (s *Store) SavePark(ctx context.Context, p *domain.Park) error {
	return s.Tx(ctx, func(tx *Store) error {
		db := tx.db.WithContext(ctx)
		if err := db.Omit(clause.Associations).Save(p).Error; err != nil {
			return fmt.Errorf("save park %d: %w", p.ID, err)
		}
		if err := db.Where("park_id = ?", p.ID).Delete(&domain.AltName{}).Error; err != nil {
			return fmt.Errorf("clear alt names for park %d: %w", p.ID, err)
		}
		for i := range p.AltNames {
			p.AltNames[i].ID = 0
			p.AltNames[i].ParkID = p.ID
		}
		if len(p.AltNames) > 0 {
			if err := db.Create(&p.AltNames).Error; err != nil {
				return fmt.Errorf("save alt names for park %d: %w", p.ID, err)
			}
		}
		return nil
	})
}
