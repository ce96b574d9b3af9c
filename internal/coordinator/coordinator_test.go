package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridetrace/itinerary-coordinator/internal/aiinvoker"
	"github.com/ridetrace/itinerary-coordinator/internal/gmlog"
	"github.com/ridetrace/itinerary-coordinator/internal/routedoc"
	"github.com/ridetrace/itinerary-coordinator/internal/store"
)

func sampleRoute() *routedoc.Document {
	return &routedoc.Document{
		Properties: routedoc.Properties{Title: "Mountain Loop", TotalDistanceKm: 42, TotalDurationH: 2, Days: 1},
		Features: []routedoc.Feature{
			{
				Kind: routedoc.KindLineString, Day: 1, Segment: 1,
				DistanceKm: 42, DurationH: 2,
				Coordinates: []routedoc.Coordinate{
					{Lon: 14.0, Lat: 50.0}, {Lon: 14.1, Lat: 50.1}, {Lon: 14.2, Lat: 50.2},
					{Lon: 14.3, Lat: 50.3}, {Lon: 14.4, Lat: 50.4},
				},
			},
		},
	}
}

func newTestCoordinator(t *testing.T, invoker aiinvoker.Invoker) (*Coordinator, *MemoryProfileProvider, *MemoryNoteProvider, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	profiles := NewMemoryProfileProvider()
	notes := NewMemoryNoteProvider()
	profiles.Set("owner1", "note1", NewPreferences("mountain", "twisty", 2, 40))
	notes.Set("owner1", "note1", NoteInfo{Body: "ride through the mountains"})

	cfg := DefaultConfig()
	cfg.CancelPollInterval = 10 * time.Millisecond
	cfg.RetryDelay = 5 * time.Millisecond
	cfg.JobDeadline = 2 * time.Second

	c := New(s, invoker, profiles, notes, gmlog.NewDefaultLogger(), cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c.Start(ctx)
	t.Cleanup(c.Stop)
	return c, profiles, notes, s
}

func waitForTerminal(t *testing.T, c *Coordinator, itineraryID, ownerID string) *store.GenerationRecord {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		record, err := c.PollStatus(context.Background(), itineraryID, ownerID)
		require.Nil(t, err)
		if record.Status.IsTerminal() {
			return record
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state in time")
	return nil
}

func TestGenerateHappyPathReachesCompleted(t *testing.T) {
	inv := aiinvoker.NewMockInvoker(sampleRoute())
	c, _, _, _ := newTestCoordinator(t, inv)

	record, cerr := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: uuid.NewString()})
	require.Nil(t, cerr)
	assert.Equal(t, store.StatusPending, record.Status)
	assert.Equal(t, 1, record.Version)

	final := waitForTerminal(t, c, record.ItineraryID, "owner1")
	assert.Equal(t, store.StatusCompleted, final.Status)
	require.NotNil(t, final.Route)
	assert.Equal(t, "Mountain Loop", final.Route.Properties.Title)
}

func TestGenerateIsIdempotentOnRepeatRequestID(t *testing.T) {
	inv := aiinvoker.NewMockInvoker(sampleRoute())
	c, _, _, _ := newTestCoordinator(t, inv)

	rid := uuid.NewString()
	first, err1 := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: rid})
	require.Nil(t, err1)

	second, err2 := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: rid})
	require.Nil(t, err2)
	assert.Equal(t, first.ItineraryID, second.ItineraryID)
}

func TestGenerateRejectsConcurrentActiveJob(t *testing.T) {
	inv := &aiinvoker.MockInvoker{Script: []aiinvoker.MockResult{{Document: sampleRoute()}}}
	// Block the worker from finishing so the first job stays active.
	block := make(chan struct{})
	inv.OnInvoke = func(ctx context.Context, prompt string) { <-block }
	t.Cleanup(func() { close(block) })

	c, _, _, _ := newTestCoordinator(t, inv)

	first, err1 := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: uuid.NewString()})
	require.Nil(t, err1)

	time.Sleep(50 * time.Millisecond) // let the worker pick it up

	_, err2 := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: uuid.NewString()})
	require.NotNil(t, err2)
	assert.Equal(t, KindGenerationInProgress, err2.Kind)
	assert.Equal(t, first.ItineraryID, err2.Details["itinerary_id"])
}

func TestGenerateRejectsIncompleteProfile(t *testing.T) {
	inv := aiinvoker.NewMockInvoker(sampleRoute())
	c, profiles, _, _ := newTestCoordinator(t, inv)
	profiles.Set("owner1", "note1", Preferences{})

	_, cerr := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: uuid.NewString()})
	require.NotNil(t, cerr)
	assert.Equal(t, KindProfileIncomplete, cerr.Kind)
}

func TestGenerateRejectsMissingNote(t *testing.T) {
	inv := aiinvoker.NewMockInvoker(sampleRoute())
	c, _, _, _ := newTestCoordinator(t, inv)

	_, cerr := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "unknown-note", RequestID: uuid.NewString()})
	require.NotNil(t, cerr)
	assert.Equal(t, KindNotFound, cerr.Kind)
}

func TestCancelTransitionsRunningJobToCancelled(t *testing.T) {
	inv := &aiinvoker.MockInvoker{}
	block := make(chan struct{})
	inv.Script = []aiinvoker.MockResult{{Document: sampleRoute()}}
	inv.OnInvoke = func(ctx context.Context, prompt string) {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	c, _, _, _ := newTestCoordinator(t, inv)

	record, cerr := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: uuid.NewString()})
	require.Nil(t, cerr)

	time.Sleep(50 * time.Millisecond)
	_, cancelErr := c.Cancel(context.Background(), record.ItineraryID, "owner1")
	require.Nil(t, cancelErr)

	final := waitForTerminal(t, c, record.ItineraryID, "owner1")
	assert.Equal(t, store.StatusCancelled, final.Status)
}

func TestCancelRejectsAlreadyTerminalJob(t *testing.T) {
	inv := aiinvoker.NewMockInvoker(sampleRoute())
	c, _, _, _ := newTestCoordinator(t, inv)

	record, cerr := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: uuid.NewString()})
	require.Nil(t, cerr)
	waitForTerminal(t, c, record.ItineraryID, "owner1")

	_, cancelErr := c.Cancel(context.Background(), record.ItineraryID, "owner1")
	require.NotNil(t, cancelErr)
	assert.Equal(t, KindCannotCancel, cancelErr.Kind)
}

func TestPollStatusRejectsNonOwnerViewer(t *testing.T) {
	inv := aiinvoker.NewMockInvoker(sampleRoute())
	c, _, _, _ := newTestCoordinator(t, inv)

	record, cerr := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: uuid.NewString()})
	require.Nil(t, cerr)

	_, pollErr := c.PollStatus(context.Background(), record.ItineraryID, "someone-else")
	require.NotNil(t, pollErr)
	assert.Equal(t, KindUnauthorized, pollErr.Kind)
}

func TestExportRejectsIncompleteRecord(t *testing.T) {
	inv := &aiinvoker.MockInvoker{}
	block := make(chan struct{})
	inv.Script = []aiinvoker.MockResult{{Document: sampleRoute()}}
	inv.OnInvoke = func(ctx context.Context, prompt string) { <-block }
	t.Cleanup(func() { close(block) })

	c, _, _, _ := newTestCoordinator(t, inv)
	record, cerr := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: uuid.NewString()})
	require.Nil(t, cerr)

	_, exportErr := c.Export(context.Background(), record.ItineraryID, "owner1", FormatGPX, true)
	require.NotNil(t, exportErr)
	assert.Equal(t, KindIncomplete, exportErr.Kind)
}

func TestExportRejectsMissingAcknowledgement(t *testing.T) {
	inv := aiinvoker.NewMockInvoker(sampleRoute())
	c, _, _, _ := newTestCoordinator(t, inv)
	record, cerr := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: uuid.NewString()})
	require.Nil(t, cerr)
	waitForTerminal(t, c, record.ItineraryID, "owner1")

	_, exportErr := c.Export(context.Background(), record.ItineraryID, "owner1", FormatGPX, false)
	require.NotNil(t, exportErr)
	assert.Equal(t, KindValidationFailed, exportErr.Kind)
}

func TestExportGPXOnCompletedRecord(t *testing.T) {
	inv := aiinvoker.NewMockInvoker(sampleRoute())
	c, _, _, _ := newTestCoordinator(t, inv)
	record, cerr := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: uuid.NewString()})
	require.Nil(t, cerr)
	waitForTerminal(t, c, record.ItineraryID, "owner1")

	result, exportErr := c.Export(context.Background(), record.ItineraryID, "owner1", FormatGPX, true)
	require.Nil(t, exportErr)
	assert.Equal(t, "application/gpx+xml; charset=utf-8", result.ContentType)
	assert.Contains(t, string(result.Body), "<trk>")
}

func TestGenerateFailsWithInvalidRouteOnBadModelOutput(t *testing.T) {
	badDoc := sampleRoute()
	badDoc.Features[0].Coordinates = badDoc.Features[0].Coordinates[:1] // too few points
	inv := aiinvoker.NewMockInvoker(badDoc)
	c, _, _, _ := newTestCoordinator(t, inv)

	record, cerr := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: uuid.NewString()})
	require.Nil(t, cerr)

	final := waitForTerminal(t, c, record.ItineraryID, "owner1")
	assert.Equal(t, store.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
}

func TestGenerateRejectsWhenSpendCapReached(t *testing.T) {
	inv := aiinvoker.NewMockInvoker(sampleRoute())
	s := store.NewMemoryStore()
	profiles := NewMemoryProfileProvider()
	notes := NewMemoryNoteProvider()
	profiles.Set("owner1", "note1", NewPreferences("mountain", "twisty", 2, 40))
	notes.Set("owner1", "note1", NoteInfo{Body: "ride through the mountains"})

	cfg := DefaultConfig()
	cfg.SpendWindow = time.Hour
	cfg.SpendCap = 1.0
	cfg.PerCallEstimate = 0.5

	c := New(s, inv, profiles, notes, gmlog.NewDefaultLogger(), cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c.Start(ctx)
	t.Cleanup(c.Stop)

	// Pre-populate the ledger so the window sum plus one more call exceeds
	// the cap (spec.md §8 end-to-end scenario 5).
	require.NoError(t, s.RecordCost(context.Background(), store.CostLedgerEntry{
		OwnerID:     "owner1",
		ItineraryID: uuid.NewString(),
		Amount:      0.6,
		RecordedAt:  time.Now(),
	}))

	_, cerr := c.Generate(context.Background(), GenerateRequest{OwnerID: "owner1", NoteID: "note1", RequestID: uuid.NewString()})
	require.NotNil(t, cerr)
	assert.Equal(t, KindServiceLimitReached, cerr.Kind)
	assert.Greater(t, cerr.RetryAfter, 0)
}
