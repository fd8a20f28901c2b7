package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duck57/poke-db/internal/domain"
	"github.com/duck57/poke-db/internal/store/storetest"
)

const (
	cheesman = "Cheesman"
	survey   = storetest.SurveyBotID
	other    = storetest.OtherSurveyID
	scanner  = storetest.ScannerBotID
	human    = storetest.HumanID
)

func speciesOf(e domain.LedgerEntry) string { return e.Label() }

func TestSubmit_FirstReport(t *testing.T) {
	h := newHarness(t)

	out := h.report("Alice", survey, cheesman, "Pikachu")
	require.Equal(t, domain.OutcomeFirstReport, out.Code)
	require.NotNil(t, out.Entry)
	assert.Equal(t, "Pikachu", speciesOf(*out.Entry))
	assert.False(t, out.Entry.Confirmed)
	require.NotNil(t, out.Report)
	assert.Equal(t, domain.OutcomeFirstReport, out.Report.Action)
	assert.Equal(t, out.Entry.ID, *out.Report.LedgerEntryID)
	assert.Equal(t, out.Entry.ID, out.Report.LedgerUnlinkID)
	assert.Equal(t, h.fix.Cheesman.ID, *out.Report.ParkID)
	assert.Equal(t, h.rotation.Number, *out.Report.RotationNumber)
}

func TestSubmit_TwoWitnessConfirmation(t *testing.T) {
	h := newHarness(t)

	first := h.report("Alice", survey, cheesman, "Pikachu")
	assert.Equal(t, domain.OutcomeFirstReport, first.Code)
	assert.False(t, h.ledger(h.fix.Cheesman.ID).Confirmed)

	second := h.report("Bob", other, cheesman, "pikachu")
	assert.Equal(t, domain.OutcomeConfirmation, second.Code)
	e := h.ledger(h.fix.Cheesman.ID)
	assert.True(t, e.Confirmed)
	assert.Equal(t, "Pikachu", speciesOf(e))

	third := h.report("Carol", scanner, cheesman, "25")
	assert.Equal(t, domain.OutcomeConfirmation, third.Code, "already confirmed agreement")
}

func TestSubmit_ExactDuplicateIsIdempotent(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, domain.OutcomeFirstReport, h.report("Alice", survey, cheesman, "Pikachu").Code)
	before := h.ledger(h.fix.Cheesman.ID)

	assert.Equal(t, domain.OutcomeDuplicate, h.report("alice", survey, cheesman, "Pikachu").Code)
	assert.Equal(t, before, h.ledger(h.fix.Cheesman.ID))

	// A duplicate still lands in the log.
	reports, err := h.store.ReportsForRotation(context.Background(), h.rotation.Number)
	require.NoError(t, err)
	var forPark int
	for _, r := range reports {
		if r.ParkID != nil && *r.ParkID == h.fix.Cheesman.ID {
			forPark++
		}
	}
	assert.Equal(t, 2, forPark)
}

func TestSubmit_UnrestrictedOverrideAlwaysWins(t *testing.T) {
	h := newHarness(t)
	h.report("Alice", survey, cheesman, "Pikachu")
	h.report("Bob", other, cheesman, "Pikachu")

	out := h.report("Nest Admin", human, cheesman, "Mareep")
	assert.Equal(t, domain.OutcomeOverride, out.Code)
	e := h.ledger(h.fix.Cheesman.ID)
	assert.Equal(t, "Mareep", speciesOf(e))
	assert.False(t, e.Confirmed)
	assert.Equal(t, human, *e.LastModifiedByID)

	assert.Equal(t, domain.OutcomeDuplicate, h.report("Nest Admin", human, cheesman, "Mareep").Code)

	out = h.report("Nest Admin", human, cheesman, "Mareep|1")
	assert.Equal(t, domain.OutcomeOverride, out.Code)
	assert.True(t, h.ledger(h.fix.Cheesman.ID).Confirmed)
}

func TestSubmit_ConflictThenOverride(t *testing.T) {
	h := newHarness(t)
	h.report("Alice", survey, cheesman, "Pikachu")
	h.report("Bob", other, cheesman, "Pikachu")
	before := h.ledger(h.fix.Cheesman.ID)
	require.True(t, before.Confirmed)

	out := h.report("Carol", scanner, cheesman, "Mareep")
	assert.Equal(t, domain.OutcomeConflict, out.Code)
	assert.Equal(t, before, h.ledger(h.fix.Cheesman.ID))
	require.NotNil(t, out.Report)
	assert.Equal(t, before.ID, *out.Report.LedgerEntryID)

	out = h.report("Nest Admin", human, cheesman, "Mareep")
	assert.Equal(t, domain.OutcomeOverride, out.Code)
	assert.Equal(t, "Mareep", speciesOf(h.ledger(h.fix.Cheesman.ID)))
}

func TestSubmit_EvolutionNeighborFastPath(t *testing.T) {
	h := newHarness(t)
	h.report("Alice", survey, cheesman, "Pikachu")

	out := h.report("Bob", other, cheesman, "Raichu")
	assert.Equal(t, domain.OutcomeFirstReport, out.Code)
	e := h.ledger(h.fix.Cheesman.ID)
	assert.Equal(t, "Raichu", speciesOf(e))
	assert.False(t, e.Confirmed)
	assert.Equal(t, other, *e.LastModifiedByID)
}

func TestSubmit_NeighborDoesNotBeatHumanConfirmation(t *testing.T) {
	h := newHarness(t)
	h.report("Nest Admin", human, cheesman, "Pikachu|1")

	out := h.report("Bob", other, cheesman, "Raichu")
	assert.Equal(t, domain.OutcomeConflict, out.Code)
	assert.Equal(t, "Pikachu", speciesOf(h.ledger(h.fix.Cheesman.ID)))
}

func TestSubmit_EchoOfPriorDisagreement(t *testing.T) {
	h := newHarness(t)
	h.report("Alice", survey, cheesman, "Pikachu")
	h.report("Bob", other, cheesman, "Pikachu")
	assert.Equal(t, domain.OutcomeConflict, h.report("Carol", scanner, cheesman, "Mareep").Code)

	out := h.report("Dave", other, cheesman, "Mareep")
	assert.Equal(t, domain.OutcomeConfirmation, out.Code)
	e := h.ledger(h.fix.Cheesman.ID)
	assert.Equal(t, "Mareep", speciesOf(e))
	assert.True(t, e.Confirmed, "last modifier was a bot")
}

func TestSubmit_EchoAfterHumanEntryStaysUnconfirmed(t *testing.T) {
	h := newHarness(t)
	h.report("Nest Admin", human, cheesman, "Pikachu")
	assert.Equal(t, domain.OutcomeConflict, h.report("Carol", scanner, cheesman, "Mareep").Code)

	out := h.report("Dave", other, cheesman, "Mareep")
	assert.Equal(t, domain.OutcomeConfirmation, out.Code)
	e := h.ledger(h.fix.Cheesman.ID)
	assert.Equal(t, "Mareep", speciesOf(e))
	assert.False(t, e.Confirmed)
}

func TestSubmit_SameSubmitterCorrection(t *testing.T) {
	h := newHarness(t)
	h.report("Alice", survey, cheesman, "Pikachu")
	assert.Equal(t, domain.OutcomeConflict, h.report("Carol", scanner, cheesman, "Mareep").Code)

	out := h.report("carol", scanner, cheesman, "Abra")
	assert.Equal(t, domain.OutcomeFirstReport, out.Code)
	e := h.ledger(h.fix.Cheesman.ID)
	assert.Equal(t, "Abra", speciesOf(e))
	assert.False(t, e.Confirmed)
}

func TestSubmit_EchoTakesPrecedenceOverCorrection(t *testing.T) {
	h := newHarness(t)
	h.report("Alice", survey, cheesman, "Pikachu")
	assert.Equal(t, domain.OutcomeConflict, h.report("Carol", scanner, cheesman, "Mareep").Code)

	// Carol is also the most recent reporter, but the earlier Mareep report
	// counts as a second witness first.
	out := h.report("Carol", scanner, cheesman, "Mareep")
	assert.Equal(t, domain.OutcomeConfirmation, out.Code)
	assert.True(t, h.ledger(h.fix.Cheesman.ID).Confirmed)
}

func TestSubmit_ForceConfirmation(t *testing.T) {
	h := newHarness(t)

	out := h.report("Nest Admin", human, "Washington", "Abra|1")
	assert.Equal(t, domain.OutcomeConfirmation, out.Code)
	assert.True(t, out.Entry.Confirmed)

	out = h.report("Alice", survey, cheesman, "Abra|1")
	assert.Equal(t, domain.OutcomeFirstReport, out.Code, "bots cannot force confirmation")
	assert.False(t, out.Entry.Confirmed)
}

func TestSubmit_UnrestrictedFreeText(t *testing.T) {
	h := newHarness(t)

	out := h.report("Nest Admin", human, cheesman, "chu")
	require.Equal(t, domain.OutcomeFirstReport, out.Code)
	assert.Nil(t, out.Entry.SpeciesName)
	assert.Equal(t, "chu", out.Entry.SpeciesText)
	assert.Nil(t, out.Report.SpeciesName)

	assert.Equal(t, domain.OutcomeDuplicate, h.report("Nest Admin", human, cheesman, "CHU").Code)
}

func TestSubmit_SearchAllSpecies(t *testing.T) {
	h := newHarness(t)

	out := h.report("Alice", survey, cheesman, "Tyrogue")
	require.Equal(t, domain.OutcomeError, out.Code)
	assert.Equal(t, domain.CodeNotFound, out.Errors[domain.FieldSpecies].Code)

	out = h.report("Alice", survey, cheesman, "Tyrogue*")
	assert.Equal(t, domain.OutcomeFirstReport, out.Code)
	assert.Equal(t, "Tyrogue", speciesOf(*out.Entry))
}

func TestSubmit_ValidationAccumulates(t *testing.T) {
	h := newHarness(t)

	out := h.report("   ", survey, cheesman, "zzz")
	require.Equal(t, domain.OutcomeError, out.Code)
	assert.Nil(t, out.Entry)
	assert.Nil(t, out.Report)
	assert.Equal(t, []string{domain.FieldSpecies, domain.FieldUserName}, out.Errors.Fields())
	assert.Equal(t, domain.CodeMissingName, out.Errors[domain.FieldUserName].Code)
	assert.Equal(t, domain.CodeNotFound, out.Errors[domain.FieldSpecies].Code)
	assert.Equal(t, "zzz", out.Errors[domain.FieldSpecies].Value)

	out, err := h.rec.Submit(context.Background(), domain.Submission{
		Name: "Ghost", Place: "nowhere", Species: "chu", SubmitterID: 77,
	})
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeError, out.Code)
	assert.Equal(t, []string{domain.FieldPlace, domain.FieldSpecies, domain.FieldSubmitter, domain.FieldTimestamp}, out.Errors.Fields())
	assert.Equal(t, domain.CodeUnauthorized, out.Errors[domain.FieldSubmitter].Code)
	assert.Equal(t, domain.CodeMissingTimestamp, out.Errors[domain.FieldTimestamp].Code)
	assert.Equal(t, domain.CodeAmbiguous, out.Errors[domain.FieldSpecies].Code)

	n, err := h.store.CountLedgerEntries(context.Background(), h.rotation.Number, h.fix.Cheesman.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubmit_PlaceResolution(t *testing.T) {
	h := newHarness(t)

	out := h.report("Alice", survey, "park", "Pikachu")
	require.Equal(t, domain.OutcomeError, out.Code)
	assert.Equal(t, domain.CodeAmbiguous, out.Errors[domain.FieldPlace].Code)

	out = h.report("Alice", survey, "Sloan", "Pikachu")
	require.Equal(t, domain.OutcomeError, out.Code, "bots cannot report permanent nests")
	assert.Equal(t, domain.CodeNotFound, out.Errors[domain.FieldPlace].Code)

	out = h.report("Nest Admin", human, "Sloan", "Pikachu")
	assert.Equal(t, domain.OutcomeOverride, out.Code)

	out = h.report("Alice", survey, "Esplanade", "Pikachu")
	require.Equal(t, domain.OutcomeFirstReport, out.Code)
	assert.Equal(t, h.fix.CityPark.ID, out.Entry.ParkID, "duplicate park resolves to canonical")

	out = h.report("Alice", survey, "4", "Pikachu")
	assert.Equal(t, domain.OutcomeDuplicate, out.Code)

	out = h.submit(domain.Submission{
		Name: "Alice", Place: "park", Species: "Pikachu", SubmitterID: survey,
		PlaceScope: h.fix.Uptown.HistoryScope(),
	})
	assert.Equal(t, domain.OutcomeError, out.Code, "Uptown still holds two parks")

	out = h.submit(domain.Submission{
		Name: "Alice", Place: "Wash", Species: "Pikachu", SubmitterID: survey,
		PlaceScope: h.fix.Downtown.HistoryScope(),
	})
	assert.Equal(t, domain.OutcomeFirstReport, out.Code)
}

func TestSubmit_RotationResolution(t *testing.T) {
	h := newHarness(t)

	missing := uint(99)
	out := h.submit(domain.Submission{Name: "Alice", Place: cheesman, Species: "Pikachu", SubmitterID: survey, Rotation: &missing})
	require.Equal(t, domain.OutcomeError, out.Code)
	assert.Equal(t, domain.CodeNotFound, out.Errors[domain.FieldRotation].Code)
	assert.Equal(t, "99", out.Errors[domain.FieldRotation].Value)

	out = h.submit(domain.Submission{
		Name: "Alice", Place: cheesman, Species: "Pikachu", SubmitterID: survey,
		Timestamp: time.Date(2019, time.July, 4, 0, 0, 0, 0, time.UTC),
	})
	require.Equal(t, domain.OutcomeFirstReport, out.Code)
	assert.Equal(t, h.rotation.Number, out.Entry.RotationNumber, "pre-history falls back to the earliest rotation")
}

func TestSubmit_NoRotations(t *testing.T) {
	h := newEmptyHarness(t)

	out := h.report("Alice", survey, cheesman, "Pikachu")
	require.Equal(t, domain.OutcomeError, out.Code)
	assert.Equal(t, []string{domain.FieldRotation}, out.Errors.Fields())
}

func TestSubmit_ReportsLandInTheRightRotation(t *testing.T) {
	h := newHarness(t)
	h.report("Alice", survey, cheesman, "Pikachu")

	next, err := h.cal.Create(context.Background(), rotationAt(time.Date(2026, time.March, 19, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	h.clock.Advance(10 * 24 * time.Hour)

	out := h.report("Alice", survey, cheesman, "Mareep")
	require.Equal(t, domain.OutcomeFirstReport, out.Code, "new rotation starts a fresh ledger row")
	assert.Equal(t, next.Rotation.Number, out.Entry.RotationNumber)
	assert.Equal(t, "Pikachu", speciesOf(h.ledger(h.fix.Cheesman.ID)))
}

func TestSubmit_ConcurrentReportsKeepOneLedgerRow(t *testing.T) {
	h := newHarness(t)
	ts := h.clock.Now()

	const n = 12
	outcomes := make([]domain.Outcome, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.rec.Submit(context.Background(), domain.Submission{
				Name:        fmt.Sprintf("watcher-%d", i),
				Place:       cheesman,
				Timestamp:   ts.Add(time.Duration(i) * time.Second),
				Species:     "Pikachu",
				SubmitterID: survey,
			})
			assert.NoError(t, err)
			outcomes[i] = out.Code
		}()
	}
	wg.Wait()

	count, err := h.store.CountLedgerEntries(context.Background(), h.rotation.Number, h.fix.Cheesman.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	tally := map[domain.Outcome]int{}
	for _, o := range outcomes {
		tally[o]++
	}
	assert.Equal(t, map[domain.Outcome]int{domain.OutcomeFirstReport: 1, domain.OutcomeConfirmation: n - 1}, tally)
	assert.True(t, h.ledger(h.fix.Cheesman.ID).Confirmed)
}

func TestSubmit_FallthroughIsReportedAsInternalError(t *testing.T) {
	h := newHarness(t)

	// A ledger row with no reports behind it can only come from outside the
	// reconciler.
	name := "Pikachu"
	require.NoError(t, h.store.DB().Create(&domain.LedgerEntry{
		RotationNumber: h.rotation.Number,
		ParkID:         h.fix.Cheesman.ID,
		SpeciesName:    &name,
		SpeciesText:    name,
		Confirmed:      true,
	}).Error)

	out := h.report("Carol", scanner, cheesman, "Mareep")
	require.Equal(t, domain.OutcomeError, out.Code)
	assert.Equal(t, domain.CodeInternal, out.Errors[domain.FieldInternal].Code)
	require.NotNil(t, out.Report)
	assert.Equal(t, domain.OutcomeError, out.Report.Action)
	assert.Equal(t, "Pikachu", speciesOf(h.ledger(h.fix.Cheesman.ID)))
}

func TestSubmit_Metrics(t *testing.T) {
	h := newHarness(t)
	h.report("Alice", survey, cheesman, "Pikachu")
	h.report("Alice", survey, cheesman, "Pikachu")
	h.report("", survey, cheesman, "Pikachu")

	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Reports.WithLabelValues("first_report")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Reports.WithLabelValues("duplicate")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Reports.WithLabelValues("error")), 0)
}

func TestSubmit_SourceRefReplaysRecordedOutcome(t *testing.T) {
	h := newHarness(t)
	h.report("Alice", survey, cheesman, "Pikachu")
	sub := domain.Submission{Name: "Carol", Place: cheesman, Species: "Mareep", SubmitterID: scanner, SourceRef: "discord:42"}

	first := h.submit(sub)
	require.Equal(t, domain.OutcomeConflict, first.Code)
	assert.False(t, first.Replayed)

	// Filed again, the same report would confirm Mareep as its own echo.
	again := h.submit(sub)
	assert.True(t, again.Replayed)
	assert.Equal(t, domain.OutcomeConflict, again.Code)
	require.NotNil(t, again.Report)
	assert.Equal(t, first.Report.ID, again.Report.ID)
	require.NotNil(t, again.Entry)
	assert.Equal(t, "Pikachu", speciesOf(*again.Entry))

	e := h.ledger(h.fix.Cheesman.ID)
	assert.Equal(t, "Pikachu", speciesOf(e))
	assert.False(t, e.Confirmed)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.ReplayedReports), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.Reports.WithLabelValues("conflict")), 0)
}

func TestSubmit_RejectedSourceRefIsValidatedAgain(t *testing.T) {
	h := newHarness(t)
	sub := domain.Submission{Name: "Alice", Place: "nowhere at all", Species: "Pikachu", SubmitterID: survey, SourceRef: "discord:7"}

	assert.Equal(t, domain.OutcomeError, h.submit(sub).Code)
	out := h.submit(sub)
	assert.Equal(t, domain.OutcomeError, out.Code)
	assert.False(t, out.Replayed)
}

func TestSubmit_ConcurrentDeliveriesOfOneReport(t *testing.T) {
	h := newHarness(t)
	ts := h.clock.Now()

	const n = 8
	outcomes := make([]domain.ReportOutcome, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.rec.Submit(context.Background(), domain.Submission{
				Name:        "Alice",
				Place:       cheesman,
				Timestamp:   ts,
				Species:     "Pikachu",
				SubmitterID: survey,
				SourceRef:   "kafka:raw-nest-reports/0/17",
			})
			assert.NoError(t, err)
			outcomes[i] = out
		}()
	}
	wg.Wait()

	fresh := 0
	for _, out := range outcomes {
		assert.Equal(t, domain.OutcomeFirstReport, out.Code)
		if !out.Replayed {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)

	var reports int64
	require.NoError(t, h.store.DB().Model(&domain.RawReport{}).Count(&reports).Error)
	assert.Equal(t, int64(1), reports)
	assert.False(t, h.ledger(h.fix.Cheesman.ID).Confirmed, "a redelivery is not a second witness")
}
