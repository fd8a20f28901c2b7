package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Outcome is the classification assigned to one submitted report.
type Outcome int

const (
	OutcomeDuplicate    Outcome = 0
	OutcomeFirstReport  Outcome = 1
	OutcomeConfirmation Outcome = 2
	OutcomeConflict     Outcome = 4
	OutcomeDeletion     Outcome = 6
	OutcomeOverride     Outcome = 7
	OutcomeError        Outcome = 9
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeFirstReport:
		return "first_report"
	case OutcomeConfirmation:
		return "confirmation"
	case OutcomeConflict:
		return "conflict"
	case OutcomeDeletion:
		return "deletion"
	case OutcomeOverride:
		return "override"
	case OutcomeError:
		return "error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Success reports whether the outcome changed or confirmed the ledger.
func (o Outcome) Success() bool {
	return o == OutcomeFirstReport || o == OutcomeConfirmation || o == OutcomeOverride
}

// Field names used as keys in FieldErrors.
const (
	FieldUserName  = "user_name"
	FieldTimestamp = "timestamp"
	FieldSubmitter = "submitter_id"
	FieldSpecies   = "species"
	FieldPlace     = "place"
	FieldRotation  = "rotation"
	FieldInternal  = "internal"
)

// Field error sub-codes.
const (
	CodeUnauthorized     = 401
	CodeNotFound         = 404
	CodeAmbiguous        = 412
	CodeMissingTimestamp = 416
	CodeMissingName      = 417
	CodeInternal         = 500
)

// FieldError describes one problem with one submitted field.
type FieldError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%d %s (%q)", e.Code, e.Message, e.Value)
}

// FieldErrors accumulates per-field validation problems. One error per field;
// a later Add for the same field replaces the earlier one.
type FieldErrors map[string]FieldError

// Add records a problem for field.
func (fe FieldErrors) Add(field string, code int, message, value string) {
	fe[field] = FieldError{Code: code, Message: message, Value: value}
}

// Has reports whether field has a recorded problem.
func (fe FieldErrors) Has(field string) bool {
	_, ok := fe[field]
	return ok
}

// Fields lists the fields with problems in sorted order.
func (fe FieldErrors) Fields() []string {
	out := make([]string, 0, len(fe))
	for f := range fe {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, f := range fe.Fields() {
		parts = append(parts, f+": "+fe[f].Error())
	}
	return strings.Join(parts, "; ")
}

// Submission is one raw observation handed to the reconciler.
type Submission struct {
	Name        string    `json:"name"`
	Place       string    `json:"place"`
	Timestamp   time.Time `json:"timestamp"`
	Species     string    `json:"species"`
	SubmitterID uint      `json:"submitter_id"`
	Server      string    `json:"server,omitempty"`

	// Rotation pins the report to a rotation number instead of deriving it
	// from Timestamp.
	Rotation          *uint      `json:"rotation,omitempty"`
	ForceConfirmation bool       `json:"force_confirmation,omitempty"`
	SearchAllSpecies  bool       `json:"search_all_species,omitempty"`
	PlaceScope        PlaceScope `json:"-"`
	ForeignRow        *int       `json:"foreign_row,omitempty"`
	// SourceRef identifies the upstream record for redelivery detection. A
	// submission whose reference already has a report is not reconciled
	// again; the recorded outcome is returned instead.
	SourceRef string `json:"-"`
}

// ReportOutcome is what Submit tells the caller about one submission.
type ReportOutcome struct {
	Code   Outcome      `json:"code"`
	Entry  *LedgerEntry `json:"entry,omitempty"`
	Report *RawReport   `json:"report,omitempty"`
	Errors FieldErrors  `json:"errors,omitempty"`
	// Replayed is set when the outcome was recorded by an earlier delivery
	// of the same source reference.
	Replayed bool `json:"replayed,omitempty"`
}
