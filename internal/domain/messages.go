package domain

import (
	"context"
	"time"
)

// RawMessage is one streamed report as read from the broker, before decoding.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Headers   map[string]string

	// Commit acknowledges the message to the broker. Nil when the source
	// has no acknowledgement.
	Commit func(ctx context.Context) error
}

// OutcomeMessage is the published result of reconciling one streamed report.
type OutcomeMessage struct {
	Key           []byte      `json:"-"`
	Code          Outcome     `json:"code"`
	Outcome       string      `json:"outcome"`
	LedgerEntryID *uint       `json:"ledger_entry_id,omitempty"`
	ReportID      *uint       `json:"report_id,omitempty"`
	Rotation      *uint       `json:"rotation,omitempty"`
	ParkID        *uint       `json:"park_id,omitempty"`
	Species       string      `json:"species,omitempty"`
	Confirmed     bool        `json:"confirmed"`
	Errors        FieldErrors `json:"errors,omitempty"`
	Replayed      bool        `json:"replayed,omitempty"`
	ProcessedAt   time.Time   `json:"processed_at"`
}

// NewOutcomeMessage flattens a ReportOutcome for publishing under key.
func NewOutcomeMessage(key []byte, out ReportOutcome) OutcomeMessage {
	msg := OutcomeMessage{
		Key:         key,
		Code:        out.Code,
		Outcome:     out.Code.String(),
		Errors:      out.Errors,
		Replayed:    out.Replayed,
		ProcessedAt: Now(),
	}
	if e := out.Entry; e != nil {
		id, rot, park := e.ID, e.RotationNumber, e.ParkID
		msg.LedgerEntryID, msg.Rotation, msg.ParkID = &id, &rot, &park
		msg.Species = e.Label()
		msg.Confirmed = e.Confirmed
	}
	if out.Report != nil {
		id := out.Report.ID
		msg.ReportID = &id
	}
	return msg
}
