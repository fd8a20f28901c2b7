package airtable

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/duck57/poke-db/internal/domain"
	"github.com/duck57/poke-db/internal/observability"
)

// metricsSource labels import metrics from this adapter.
const metricsSource = "airtable"

// RecordSource lists submission rows newer than a serial number.
type RecordSource interface {
	RecordsAfter(ctx context.Context, base string, serial int) ([]Record, error)
}

// CursorStore persists import progress and lists the cities to import.
type CursorStore interface {
	LatestCursor(ctx context.Context, source string) (domain.ImportCursor, bool, error)
	SaveCursor(ctx context.Context, c *domain.ImportCursor) error
	CitiesWithAirtable(ctx context.Context) ([]domain.City, error)
}

// Submitter reconciles one report.
type Submitter interface {
	Submit(ctx context.Context, sub domain.Submission) (domain.ReportOutcome, error)
}

// Importer pulls new Airtable rows for each configured city and files them
// as reports under the city's bot submitter. Progress is kept as an
// ImportCursor per base, written when a batch completes or stops part way.
// Every row carries a RowRef, so a row filed by a run whose cursor was lost
// is answered from the report log instead of being reconciled twice.
type Importer struct {
	records   RecordSource
	cursors   CursorStore
	submitter Submitter
	metrics   *observability.Metrics
	logger    *slog.Logger
}

func NewImporter(records RecordSource, cursors CursorStore, submitter Submitter, metrics *observability.Metrics, logger *slog.Logger) *Importer {
	return &Importer{records: records, cursors: cursors, submitter: submitter, metrics: metrics, logger: logger}
}

// CityResult is the outcome of importing one city.
type CityResult struct {
	City   domain.City
	Cursor domain.ImportCursor
	Err    error
}

// ImportAll imports every city with an Airtable base and bot. A failing city
// does not stop the others; its error is joined into the returned error.
func (im *Importer) ImportAll(ctx context.Context) ([]CityResult, error) {
	cities, err := im.cursors.CitiesWithAirtable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list airtable cities: %w", err)
	}
	results := make([]CityResult, 0, len(cities))
	var errs []error
	for _, city := range cities {
		cursor, err := im.ImportCity(ctx, city)
		if err != nil {
			errs = append(errs, fmt.Errorf("city %s: %w", city.Name, err))
		}
		results = append(results, CityResult{City: city, Cursor: cursor, Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return results, errors.Join(errs...)
}

// Poll runs ImportAll now and then every interval until ctx is cancelled.
// Failed runs are logged and retried on the next tick.
func (im *Importer) Poll(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if _, err := im.ImportAll(ctx); err != nil && ctx.Err() == nil {
			im.logger.Error("airtable import failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SourceKey names the cursor stream for an Airtable base.
func SourceKey(base string) string { return metricsSource + ":" + base }

// RowRef names one submission row of a base.
func RowRef(base string, serial int) string {
	return SourceKey(base) + "#" + strconv.Itoa(serial)
}

// ImportCity files every row after the city's last cursor. It returns the
// cursor it saved, or a zero-Total cursor when there was nothing new. When a
// row fails, the rows before it are saved as a partial cursor and returned
// with the error, so the next run resumes at the failed row.
func (im *Importer) ImportCity(ctx context.Context, city domain.City) (domain.ImportCursor, error) {
	if city.AirtableBaseID == "" || city.AirtableBotID == nil {
		return domain.ImportCursor{}, fmt.Errorf("city %d has no airtable base or bot", city.ID)
	}
	source := SourceKey(city.AirtableBaseID)
	bot := *city.AirtableBotID

	last, _, err := im.cursors.LatestCursor(ctx, source)
	if err != nil {
		return domain.ImportCursor{}, err
	}
	records, err := im.records.RecordsAfter(ctx, city.AirtableBaseID, last.EndRow)
	if err != nil {
		return domain.ImportCursor{}, err
	}

	cursor := domain.ImportCursor{Source: source, EndRow: last.EndRow, RunID: uuid.NewString()}
	if len(records) == 0 {
		im.logger.Info("airtable import: nothing new", "city", city.Name, "end_row", last.EndRow)
		return cursor, nil
	}
	slices.SortFunc(records, func(a, b Record) int { return cmp.Compare(a.Fields.Serial, b.Fields.Serial) })

	log := im.logger.With("city", city.Name, "run_id", cursor.RunID)
	for _, rec := range records {
		row := ParseRecord(rec)
		out, err := im.submitter.Submit(ctx, domain.Submission{
			Name:        row.Submitter,
			Place:       row.Place,
			Timestamp:   row.Time,
			Species:     row.Species,
			SubmitterID: bot,
			Server:      fmt.Sprintf("AirTable#%d", bot),
			ForeignRow:  &row.Serial,
			SourceRef:   RowRef(city.AirtableBaseID, row.Serial),
		})
		if err != nil {
			err = fmt.Errorf("row %d: %w", row.Serial, err)
			if cursor.Total == 0 {
				return domain.ImportCursor{}, err
			}
			return im.saveProgress(ctx, cursor, log, err)
		}
		if out.Replayed {
			log.Debug("airtable row already filed", "serial", row.Serial, "outcome", out.Code.String())
		}
		cursor.Tally(out.Code)
		cursor.EndRow = max(cursor.EndRow, row.Serial)
		im.metrics.ImportRows.WithLabelValues(metricsSource, out.Code.String()).Inc()
		if out.Code == domain.OutcomeError {
			log.Warn("airtable row rejected", "serial", row.Serial, "error", out.Errors)
		}
	}

	cursor.Time = domain.Now()
	if err := im.cursors.SaveCursor(ctx, &cursor); err != nil {
		return domain.ImportCursor{}, err
	}
	log.Info("airtable import complete", "rows", cursor.Total, "end_row", cursor.EndRow,
		"first_reports", cursor.FirstReports, "confirmations", cursor.Confirmations,
		"conflicts", cursor.Conflicts, "errors", cursor.Errors)
	return cursor, nil
}

// saveProgress records the rows filed before a failure. The save outlives a
// cancelled ctx so a shutdown mid-run still keeps its progress.
func (im *Importer) saveProgress(ctx context.Context, cursor domain.ImportCursor, log *slog.Logger, cause error) (domain.ImportCursor, error) {
	cursor.Time = domain.Now()
	if err := im.cursors.SaveCursor(context.WithoutCancel(ctx), &cursor); err != nil {
		return domain.ImportCursor{}, errors.Join(cause, fmt.Errorf("save partial cursor: %w", err))
	}
	log.Warn("airtable import stopped early", "rows", cursor.Total, "end_row", cursor.EndRow, "error", cause)
	return cursor, cause
}

// ParseRecord extracts the report fields from a submission row. The summary
// column reads `#<dex> <Name> at "<park>" <park id>.`; the park id may also
// sit inside the quotes. Unparseable parts are left blank so the reconciler
// reports them as field errors.
func ParseRecord(r Record) domain.RawImportRow {
	row := domain.RawImportRow{
		Serial:    r.Fields.Serial,
		Submitter: strings.ToLower(strings.TrimSpace(r.Fields.Name)),
	}
	if t, err := time.Parse(time.RFC3339, r.CreatedTime); err == nil {
		row.Time = t.UTC()
	}

	summary := strings.TrimSpace(r.Fields.Summary)
	first, _, _ := strings.Cut(summary, " ")
	row.Species = strings.TrimPrefix(first, "#")

	if _, after, ok := strings.Cut(summary, " at "); ok {
		place, _, _ := strings.Cut(after, ".")
		parts := strings.Split(place, `"`)
		row.Place = strings.TrimSpace(parts[len(parts)-1])
		if row.Place == "" && len(parts) > 1 {
			row.Place = strings.TrimSpace(parts[len(parts)-2])
		}
	}
	return row
}
