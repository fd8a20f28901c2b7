package domain

import (
	"context"
	"fmt"
	"strings"
)

// ScopeKind names the kind of geographic container a query is limited to.
type ScopeKind int

const (
	ScopeNone ScopeKind = iota
	ScopeCity
	ScopeNeighborhood
	ScopeRegion
	ScopePark
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeCity:
		return "city"
	case ScopeNeighborhood:
		return "neighborhood"
	case ScopeRegion:
		return "region"
	case ScopePark:
		return "park"
	default:
		return "none"
	}
}

// ParseScopeKind accepts "city", "neighborhood" or "region"; anything else is ScopeNone.
func ParseScopeKind(s string) ScopeKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "city":
		return ScopeCity
	case "neighborhood":
		return ScopeNeighborhood
	case "region":
		return ScopeRegion
	case "park", "nest":
		return ScopePark
	}
	return ScopeNone
}

// PlaceScope limits a query to one container. The zero value means everywhere.
type PlaceScope struct {
	Kind ScopeKind
	ID   uint
}

// Unscoped reports whether the scope matches every park.
func (s PlaceScope) Unscoped() bool { return s.Kind == ScopeNone || s.ID == 0 }

// NamedPlace is anything with a human-facing name.
type NamedPlace interface {
	DisplayName() string
}

// HistoryHolder is anything whose nest history can be listed.
type HistoryHolder interface {
	HistoryScope() PlaceScope
}

// GeoContainer groups parks: a city, neighborhood or region.
type GeoContainer interface {
	NamedPlace
	HistoryHolder
}

// City is a metropolitan area. Submitters may call one home.
type City struct {
	ID             uint   `gorm:"primaryKey" yaml:"id"`
	Name           string `gorm:"size:123;not null" yaml:"name"`
	ShortName      string `gorm:"size:88" yaml:"short_name"`
	AirtableBaseID string `gorm:"size:30" yaml:"airtable_base"`
	AirtableBotID  *uint  `yaml:"airtable_bot"`
}

func (City) TableName() string { return "cities" }

func (c City) DisplayName() string      { return c.Name }
func (c City) HistoryScope() PlaceScope { return PlaceScope{Kind: ScopeCity, ID: c.ID} }

// Region combines several neighborhoods for list output.
type Region struct {
	ID   uint   `gorm:"primaryKey" yaml:"id"`
	Name string `gorm:"size:222;not null" yaml:"name"`
}

func (Region) TableName() string { return "regions" }

func (r Region) DisplayName() string      { return r.Name }
func (r Region) HistoryScope() PlaceScope { return PlaceScope{Kind: ScopeRegion, ID: r.ID} }

// Neighborhood is the immediate container of a park.
type Neighborhood struct {
	ID       uint    `gorm:"primaryKey" yaml:"id"`
	Name     string  `gorm:"size:222;not null" yaml:"name"`
	CityID   *uint   `gorm:"index" yaml:"city"`
	RegionID *uint   `gorm:"index" yaml:"region"`
	City     *City   `gorm:"foreignKey:CityID" yaml:"-"`
	Region   *Region `gorm:"foreignKey:RegionID" yaml:"-"`
}

func (Neighborhood) TableName() string { return "neighborhoods" }

func (n Neighborhood) DisplayName() string { return n.Name }
func (n Neighborhood) HistoryScope() PlaceScope {
	return PlaceScope{Kind: ScopeNeighborhood, ID: n.ID}
}

// ListHeading is the region name when the neighborhood belongs to one.
func (n Neighborhood) ListHeading() string {
	if n.Region != nil && n.Region.Name != "" {
		return n.Region.Name
	}
	return n.Name
}

// AltName is an alternate name a park is searchable by.
type AltName struct {
	ID     uint   `gorm:"primaryKey" yaml:"-"`
	ParkID uint   `gorm:"index;not null" yaml:"-"`
	Name   string `gorm:"size:222;not null" yaml:"name"`
	Hidden bool   `yaml:"hidden"`
}

func (AltName) TableName() string { return "park_alt_names" }

// Park is a physical nesting location.
type Park struct {
	ID               uint          `gorm:"primaryKey" json:"id" yaml:"id"`
	OfficialName     string        `gorm:"size:222;not null;index" json:"official_name" yaml:"name"`
	ShortName        string        `gorm:"size:222" json:"short_name,omitempty" yaml:"short_name"`
	NeighborhoodID   *uint         `gorm:"index" json:"neighborhood_id,omitempty" yaml:"neighborhood"`
	Private          bool          `json:"private" yaml:"private"`
	Notes            string        `gorm:"size:234" json:"notes,omitempty" yaml:"notes"`
	PermanentSpecies string        `gorm:"size:111" json:"permanent_species,omitempty" yaml:"permanent_species"`
	DuplicateOfID    *uint         `gorm:"index" json:"duplicate_of,omitempty" yaml:"duplicate_of"`
	Neighborhood     *Neighborhood `gorm:"foreignKey:NeighborhoodID" json:"-" yaml:"-"`
	AltNames         []AltName     `gorm:"foreignKey:ParkID" json:"-" yaml:"alt_names"`
}

func (Park) TableName() string { return "parks" }

// DisplayName prefers the short name.
func (p Park) DisplayName() string {
	if strings.TrimSpace(p.ShortName) != "" {
		return p.ShortName
	}
	return p.OfficialName
}

func (p Park) HistoryScope() PlaceScope { return PlaceScope{Kind: ScopePark, ID: p.ID} }

func (p Park) String() string {
	return fmt.Sprintf("%s [%d]", p.OfficialName, p.ID)
}

// HasPermanentSpecies reports whether the park is auto-reported every rotation.
func (p Park) HasPermanentSpecies() bool { return strings.TrimSpace(p.PermanentSpecies) != "" }

// PermanentSpeciesName strips the optional "|dex" suffix.
func (p Park) PermanentSpeciesName() string {
	name, _, _ := strings.Cut(p.PermanentSpecies, "|")
	return strings.TrimSpace(name)
}

// VisibleAltNames lists alternate names not marked hidden.
func (p Park) VisibleAltNames() []string {
	var out []string
	for _, a := range p.AltNames {
		if !a.Hidden {
			out = append(out, a.Name)
		}
	}
	return out
}

// ParkLookup fetches a park by id.
type ParkLookup interface {
	ParkByID(ctx context.Context, id uint) (Park, error)
}

// CanonicalPark follows the duplicate-merge chain from p to its terminal park.
// A chain that revisits a park fails with ErrParkCycle.
func CanonicalPark(ctx context.Context, lookup ParkLookup, p Park) (Park, error) {
	visited := map[uint]struct{}{p.ID: {}}
	for p.DuplicateOfID != nil {
		next := *p.DuplicateOfID
		if _, seen := visited[next]; seen {
			return Park{}, fmt.Errorf("park %d: %w", next, ErrParkCycle)
		}
		visited[next] = struct{}{}
		np, err := lookup.ParkByID(ctx, next)
		if err != nil {
			return Park{}, fmt.Errorf("follow duplicate of park %d: %w", p.ID, err)
		}
		p = np
	}
	return p, nil
}
