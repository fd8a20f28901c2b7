package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/duck57/poke-db/internal/domain"
)

// ErrMalformedReport marks a message that can never be reconciled.
var ErrMalformedReport = errors.New("malformed report")

// Submitter is the reconciler entry point.
type Submitter interface {
	Submit(ctx context.Context, sub domain.Submission) (domain.ReportOutcome, error)
}

// reportMessage is the JSON body of a streamed report.
type reportMessage struct {
	Name              string `json:"name"`
	Place             string `json:"place"`
	Timestamp         string `json:"timestamp"`
	Species           string `json:"species"`
	SubmitterID       uint   `json:"submitter_id"`
	Server            string `json:"server"`
	Rotation          *uint  `json:"rotation"`
	ForceConfirmation bool   `json:"force_confirmation"`
	SearchAllSpecies  bool   `json:"search_all_species"`
	Scope             string `json:"scope"`
	ScopeID           uint   `json:"scope_id"`
	ForeignRow        *int   `json:"foreign_row"`
	SourceRef         string `json:"source_ref"`
}

// ReportProcessor implements Processor by decoding the message and handing
// it to the reconciler.
type ReportProcessor struct {
	submitter Submitter
	logger    *slog.Logger
}

// NewProcessor creates a ReportProcessor.
func NewProcessor(s Submitter, logger *slog.Logger) *ReportProcessor {
	return &ReportProcessor{submitter: s, logger: logger}
}

func (p *ReportProcessor) Process(ctx context.Context, raw domain.RawMessage) (domain.OutcomeMessage, error) {
	sub, err := ParseReport(raw)
	if err != nil {
		return domain.OutcomeMessage{}, err
	}
	out, err := p.submitter.Submit(ctx, sub)
	if err != nil {
		return domain.OutcomeMessage{}, err
	}
	return domain.NewOutcomeMessage(raw.Key, out), nil
}

// ParseReport decodes a streamed report. A blank timestamp takes the
// broker's message time; an unparseable one is left zero so the reconciler
// rejects it as a field error. The server tag defaults to the "source"
// header, then the topic. The source reference defaults to the message's
// topic, partition and offset, so a redelivered message is recognised.
func ParseReport(raw domain.RawMessage) (domain.Submission, error) {
	var m reportMessage
	if err := json.Unmarshal(raw.Value, &m); err != nil {
		return domain.Submission{}, fmt.Errorf("%w: %w", ErrMalformedReport, err)
	}

	sub := domain.Submission{
		Name:              m.Name,
		Place:             m.Place,
		Species:           m.Species,
		SubmitterID:       m.SubmitterID,
		Server:            m.Server,
		Rotation:          m.Rotation,
		ForceConfirmation: m.ForceConfirmation,
		SearchAllSpecies:  m.SearchAllSpecies,
		ForeignRow:        m.ForeignRow,
		PlaceScope:        domain.PlaceScope{Kind: domain.ParseScopeKind(m.Scope), ID: m.ScopeID},
	}
	if m.Timestamp == "" {
		sub.Timestamp = raw.Timestamp.UTC()
	} else if t, _, err := domain.ParseDateExpr(m.Timestamp, domain.Now()); err == nil {
		sub.Timestamp = t
	}
	if sub.Server == "" {
		sub.Server = raw.Headers["source"]
	}
	if sub.Server == "" {
		sub.Server = raw.Topic
	}
	sub.SourceRef = m.SourceRef
	if sub.SourceRef == "" && raw.Topic != "" {
		sub.SourceRef = MessageRef(raw)
	}
	return sub, nil
}

// MessageRef names a message by its broker coordinates.
func MessageRef(raw domain.RawMessage) string {
	return fmt.Sprintf("kafka:%s/%d/%d", raw.Topic, raw.Partition, raw.Offset)
}
