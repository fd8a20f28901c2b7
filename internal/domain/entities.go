package domain

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RotationPeriod is one nest-shift epoch. Immutable once created.
type RotationPeriod struct {
	Number    uint      `gorm:"primaryKey;autoIncrement:false" json:"number"`
	Effective time.Time `gorm:"not null;index" json:"effective"`
	// Day is the UTC calendar day of Effective; unique so two rotations never share a day.
	Day  string `gorm:"size:10;not null;uniqueIndex" json:"day"`
	Note string `gorm:"size:123" json:"note,omitempty"`
}

func (RotationPeriod) TableName() string { return "rotation_periods" }

// DayKey formats the UTC calendar day used for the one-rotation-per-day rule.
func DayKey(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// TrustTier determines a submitter's write authority.
type TrustTier int

const (
	TierHuman      TrustTier = 0
	TierSurveyBot  TrustTier = 1
	TierSystem     TrustTier = 2
	TierScannerBot TrustTier = 3
)

func (t TrustTier) String() string {
	switch t {
	case TierHuman:
		return "human"
	case TierSurveyBot:
		return "survey-bot"
	case TierSystem:
		return "system"
	case TierScannerBot:
		return "scanner-bot"
	default:
		return "unknown"
	}
}

// Restricted reports whether the tier goes through the conflict state machine.
func (t TrustTier) Restricted() bool {
	return t != TierHuman && t != TierSystem
}

// ParseTrustTier maps a tier name back to its value.
func ParseTrustTier(s string) (TrustTier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "human":
		return TierHuman, true
	case "survey-bot", "survey", "bot":
		return TierSurveyBot, true
	case "system":
		return TierSystem, true
	case "scanner-bot", "scanner":
		return TierScannerBot, true
	}
	return 0, false
}

// UnmarshalYAML accepts either the tier name or its number.
func (t *TrustTier) UnmarshalYAML(n *yaml.Node) error {
	var i int
	if err := n.Decode(&i); err == nil {
		*t = TrustTier(i)
		return nil
	}
	tier, ok := ParseTrustTier(n.Value)
	if !ok {
		return fmt.Errorf("unknown trust tier %q", n.Value)
	}
	*t = tier
	return nil
}

// Submitter is who or what is reporting.
type Submitter struct {
	ID         uint      `gorm:"primaryKey" json:"id" yaml:"id"`
	Name       string    `gorm:"size:90" json:"name" yaml:"name"`
	ShortName  string    `gorm:"size:20" json:"short_name,omitempty" yaml:"short_name"`
	Email      string    `gorm:"size:90" json:"-" yaml:"email"`
	Tier       TrustTier `gorm:"not null" json:"tier" yaml:"tier"`
	HomeCityID *uint     `json:"home_city_id,omitempty" yaml:"home_city_id"`
}

func (Submitter) TableName() string { return "submitters" }

// Restricted is shorthand for s.Tier.Restricted().
func (s Submitter) Restricted() bool { return s.Tier.Restricted() }

// Species is a canonical species identity. Name is the primary key.
type Species struct {
	Name              string `gorm:"primaryKey;size:255" json:"name" yaml:"name"`
	DexNumber         int    `gorm:"not null;index" json:"dex_number" yaml:"dex"`
	Form              string `gorm:"size:11;default:Normal" json:"form" yaml:"form"`
	PreviousEvolution string `gorm:"size:255;index" json:"previous_evolution,omitempty" yaml:"evolves_from"`
	Type1             string `gorm:"size:20" json:"type1" yaml:"type1"`
	Type2             string `gorm:"size:20" json:"type2,omitempty" yaml:"type2"`
	Region            string `gorm:"size:12" json:"region" yaml:"region"`
	Category          string `gorm:"size:22" json:"category,omitempty" yaml:"category"`
	Nestable          bool   `json:"nestable" yaml:"nestable"`
	Enabled           bool   `json:"enabled" yaml:"enabled"`
}

func (Species) TableName() string { return "species" }

// CategoryStarter marks starter species and their evolutions.
const CategoryStarter = "starter"

// IsEvolutionNeighbor reports whether o is exactly one evolution step
// before or after s.
func (s Species) IsEvolutionNeighbor(o Species) bool {
	if s.Name == "" || o.Name == "" || s.Name == o.Name {
		return false
	}
	return (s.PreviousEvolution != "" && strings.EqualFold(s.PreviousEvolution, o.Name)) ||
		(o.PreviousEvolution != "" && strings.EqualFold(o.PreviousEvolution, s.Name))
}

// HasType matches either type slot, case-insensitively.
func (s Species) HasType(t string) bool {
	return strings.EqualFold(s.Type1, t) || (s.Type2 != "" && strings.EqualFold(s.Type2, t))
}

// LedgerEntry is the canonical resident record for one (rotation, park).
type LedgerEntry struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	RotationNumber   uint      `gorm:"not null;uniqueIndex:idx_ledger_rotation_park" json:"rotation"`
	ParkID           uint      `gorm:"not null;uniqueIndex:idx_ledger_rotation_park" json:"park_id"`
	SpeciesName      *string   `gorm:"size:255;index" json:"species_name,omitempty"`
	SpeciesText      string    `gorm:"size:111" json:"species_text"`
	DexNumber        *int      `json:"dex_number,omitempty"`
	Confirmed        bool      `json:"confirmed"`
	LastModifiedByID *uint     `json:"last_modified_by,omitempty"`
	SpecialNotes     string    `gorm:"size:111" json:"special_notes,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`

	Park *Park `gorm:"foreignKey:ParkID" json:"park,omitempty"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// Label is the resolved species name, or the free-text label when unresolved.
func (e LedgerEntry) Label() string {
	if e.SpeciesName != nil {
		return *e.SpeciesName
	}
	return e.SpeciesText
}

// Resolved reports whether the entry points at a canonical species.
func (e LedgerEntry) Resolved() bool { return e.SpeciesName != nil }

// Matches reports whether the entry already holds the given species state.
// Unresolved labels compare case-insensitively.
func (e LedgerEntry) Matches(species *Species, text string, confirmed bool) bool {
	if e.Confirmed != confirmed {
		return false
	}
	if species == nil || e.SpeciesName == nil {
		return species == nil && e.SpeciesName == nil && strings.EqualFold(e.SpeciesText, text)
	}
	return *e.SpeciesName == species.Name
}

// SetSpecies overwrites the species fields from a resolved species or free text.
func (e *LedgerEntry) SetSpecies(species *Species, text string) {
	if species == nil {
		e.SpeciesName = nil
		e.DexNumber = nil
		e.SpeciesText = text
		return
	}
	name, dex := species.Name, species.DexNumber
	e.SpeciesName = &name
	e.DexNumber = &dex
	e.SpeciesText = species.Name
}

// RawReport is one append-only audit log row.
type RawReport struct {
	ID            uint  `gorm:"primaryKey" json:"id"`
	LedgerEntryID *uint `gorm:"index" json:"ledger_entry_id,omitempty"`
	// LedgerUnlinkID keeps the ledger id the report was filed against even
	// after LedgerEntryID is re-pointed or cleared.
	LedgerUnlinkID uint      `gorm:"index;not null;default:0" json:"ledger_unlink_id"`
	SubmitterID    *uint     `gorm:"index" json:"submitter_id,omitempty"`
	UserName       string    `gorm:"size:120" json:"user_name"`
	ServerName     string    `gorm:"size:120" json:"server_name,omitempty"`
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	ForeignRowNum  *int      `json:"foreign_row_num,omitempty"`
	RawSpecies     string    `gorm:"size:120" json:"raw_species"`
	SpeciesName    *string   `gorm:"size:255;index" json:"species_name,omitempty"`
	RawPlace       string    `gorm:"size:120" json:"raw_place"`
	ParkID         *uint     `gorm:"index" json:"park_id,omitempty"`
	RotationNumber *uint     `gorm:"index" json:"rotation,omitempty"`
	Action         Outcome   `gorm:"index" json:"action"`

	// SourceRef names the upstream record the report came from, when the
	// source can redeliver it. At most one report exists per reference.
	SourceRef *string `gorm:"size:191;uniqueIndex" json:"source_ref,omitempty"`
}

func (RawReport) TableName() string { return "raw_reports" }

// ProposedSpecies reports whether the report resolved to the named species.
func (r RawReport) ProposedSpecies(name string) bool {
	return r.SpeciesName != nil && *r.SpeciesName == name
}

// ImportCursor records how far a batch source has been imported.
type ImportCursor struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Source        string    `gorm:"size:64;not null;index" json:"source"`
	EndRow        int       `json:"end_row"`
	RunID         string    `gorm:"size:36" json:"run_id"`
	Time          time.Time `gorm:"index" json:"time"`
	FirstReports  int       `json:"first_reports"`
	Confirmations int       `json:"confirmations"`
	Conflicts     int       `json:"conflicts"`
	Errors        int       `json:"errors"`
	Duplicates    int       `json:"duplicates"`
	Overrides     int       `json:"overrides"`
	Total         int       `json:"total"`
}

func (ImportCursor) TableName() string { return "import_cursors" }

// Tally adds one outcome to the cursor's summary counts.
func (c *ImportCursor) Tally(o Outcome) {
	c.Total++
	switch o {
	case OutcomeDuplicate:
		c.Duplicates++
	case OutcomeFirstReport:
		c.FirstReports++
	case OutcomeConfirmation:
		c.Confirmations++
	case OutcomeConflict:
		c.Conflicts++
	case OutcomeOverride:
		c.Overrides++
	default:
		c.Errors++
	}
}

// Summary returns the per-outcome counts in the shape adapters report.
func (c ImportCursor) Summary() map[Outcome]int {
	return map[Outcome]int{
		OutcomeDuplicate:    c.Duplicates,
		OutcomeFirstReport:  c.FirstReports,
		OutcomeConfirmation: c.Confirmations,
		OutcomeConflict:     c.Conflicts,
		OutcomeError:        c.Errors,
	}
}

// RawImportRow is one line staged by a batch source before submission.
type RawImportRow struct {
	Serial    int
	Time      time.Time
	Species   string
	Submitter string
	Place     string
}
