package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridetrace/itinerary-coordinator/internal/aiinvoker"
	"github.com/ridetrace/itinerary-coordinator/internal/coordinator"
	"github.com/ridetrace/itinerary-coordinator/internal/gmlog"
	"github.com/ridetrace/itinerary-coordinator/internal/routedoc"
	"github.com/ridetrace/itinerary-coordinator/internal/store"
)

func sampleRoute() *routedoc.Document {
	return &routedoc.Document{
		Properties: routedoc.Properties{Title: "Hill Loop", TotalDistanceKm: 30, TotalDurationH: 1.5, Days: 1},
		Features: []routedoc.Feature{
			{
				Kind: routedoc.KindLineString, Day: 1, Segment: 1,
				DistanceKm: 30, DurationH: 1.5,
				Coordinates: []routedoc.Coordinate{
					{Lon: 14.0, Lat: 50.0}, {Lon: 14.1, Lat: 50.1}, {Lon: 14.2, Lat: 50.2},
				},
			},
		},
	}
}

func newTestServer(t *testing.T) (*Server, *coordinator.MemoryProfileProvider, *coordinator.MemoryNoteProvider) {
	t.Helper()
	s := store.NewMemoryStore()
	profiles := coordinator.NewMemoryProfileProvider()
	notes := coordinator.NewMemoryNoteProvider()
	profiles.Set("owner1", "note1", coordinator.NewPreferences("mountain", "twisty", 2, 40))
	notes.Set("owner1", "note1", coordinator.NoteInfo{Body: "ride through the hills"})

	cfg := coordinator.DefaultConfig()
	cfg.CancelPollInterval = 10 * time.Millisecond
	cfg.JobDeadline = 2 * time.Second

	c := coordinator.New(s, aiinvoker.NewMockInvoker(sampleRoute()), profiles, notes, gmlog.NewDefaultLogger(), cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c.Start(ctx)
	t.Cleanup(c.Stop)

	return NewServer(c, gmlog.NewDefaultLogger(), DefaultCORSConfig()), profiles, notes
}

func TestHandleGenerateReturns202ForValidRequest(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	body := strings.NewReader(`{"request_id":"11111111-1111-1111-1111-111111111111"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/notes/note1/itineraries", body)
	req.Header.Set(ViewerHeader, "owner1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "note1", resp.NoteID)
	assert.Equal(t, "pending", resp.Status)
}

func TestHandleGenerateRejectsMissingViewer(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/notes/note1/itineraries", strings.NewReader(`{"request_id":"11111111-1111-1111-1111-111111111111"}`))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleGenerateRejectsIncompleteProfile(t *testing.T) {
	srv, profiles, _ := newTestServer(t)
	profiles.Set("owner1", "note1", coordinator.Preferences{})
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/notes/note1/itineraries", strings.NewReader(`{"request_id":"22222222-2222-2222-2222-222222222222"}`))
	req.Header.Set(ViewerHeader, "owner1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleGenerateReturns429WhenSpendCapReached(t *testing.T) {
	s := store.NewMemoryStore()
	profiles := coordinator.NewMemoryProfileProvider()
	notes := coordinator.NewMemoryNoteProvider()
	profiles.Set("owner1", "note1", coordinator.NewPreferences("mountain", "twisty", 2, 40))
	notes.Set("owner1", "note1", coordinator.NoteInfo{Body: "ride through the hills"})

	cfg := coordinator.DefaultConfig()
	cfg.SpendWindow = time.Hour
	cfg.SpendCap = 1.0
	cfg.PerCallEstimate = 0.5

	c := coordinator.New(s, aiinvoker.NewMockInvoker(sampleRoute()), profiles, notes, gmlog.NewDefaultLogger(), cfg)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c.Start(ctx)
	t.Cleanup(c.Stop)

	// Pre-populate the ledger so the window sum plus one more call exceeds
	// the cap (spec.md §8 end-to-end scenario 5).
	require.NoError(t, s.RecordCost(context.Background(), store.CostLedgerEntry{
		OwnerID:     "owner1",
		ItineraryID: "11111111-1111-1111-1111-111111111111",
		Amount:      0.6,
		RecordedAt:  time.Now(),
	}))

	srv := NewServer(c, gmlog.NewDefaultLogger(), DefaultCORSConfig())
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/notes/note1/itineraries", strings.NewReader(`{"request_id":"33333333-3333-3333-3333-333333333333"}`))
	req.Header.Set(ViewerHeader, "owner1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "service_limit_reached", resp.Error)
	assert.Greater(t, resp.RetryAfter, 0)
}

func TestHandleStatusAndDownloadEndToEnd(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	genReq := httptest.NewRequest(http.MethodPost, "/api/notes/note1/itineraries", strings.NewReader(`{"request_id":"33333333-3333-3333-3333-333333333333"}`))
	genReq.Header.Set(ViewerHeader, "owner1")
	genRec := httptest.NewRecorder()
	handler.ServeHTTP(genRec, genReq)
	require.Equal(t, http.StatusAccepted, genRec.Code)

	var genResp generateResponse
	require.NoError(t, json.Unmarshal(genRec.Body.Bytes(), &genResp))

	deadline := time.Now().Add(2 * time.Second)
	var statusResp statusResponse
	for time.Now().Before(deadline) {
		statusReq := httptest.NewRequest(http.MethodGet, "/api/itineraries/"+genResp.ItineraryID+"/status", nil)
		statusReq.Header.Set(ViewerHeader, "owner1")
		statusRec := httptest.NewRecorder()
		handler.ServeHTTP(statusRec, statusReq)
		require.Equal(t, http.StatusOK, statusRec.Code)
		require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &statusResp))
		if statusResp.Status == "completed" || statusResp.Status == "failed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, "completed", statusResp.Status)
	assert.NotEmpty(t, statusResp.RouteGeoJSON)

	dlReq := httptest.NewRequest(http.MethodGet, "/api/itineraries/"+genResp.ItineraryID+"/download?format=gpx&acknowledged=true", nil)
	dlReq.Header.Set(ViewerHeader, "owner1")
	dlRec := httptest.NewRecorder()
	handler.ServeHTTP(dlRec, dlReq)

	require.Equal(t, http.StatusOK, dlRec.Code)
	assert.Equal(t, "application/gpx+xml; charset=utf-8", dlRec.Header().Get("Content-Type"))
	assert.Contains(t, dlRec.Header().Get("Content-Disposition"), "attachment; filename=")
	assert.Contains(t, dlRec.Body.String(), "<trk>")
}

func TestHandleDownloadRejectsMissingAcknowledgement(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	genReq := httptest.NewRequest(http.MethodPost, "/api/notes/note1/itineraries", strings.NewReader(`{"request_id":"44444444-4444-4444-4444-444444444444"}`))
	genReq.Header.Set(ViewerHeader, "owner1")
	genRec := httptest.NewRecorder()
	handler.ServeHTTP(genRec, genReq)
	var genResp generateResponse
	require.NoError(t, json.Unmarshal(genRec.Body.Bytes(), &genResp))

	dlReq := httptest.NewRequest(http.MethodGet, "/api/itineraries/"+genResp.ItineraryID+"/download?format=gpx", nil)
	dlReq.Header.Set(ViewerHeader, "owner1")
	dlRec := httptest.NewRecorder()
	handler.ServeHTTP(dlRec, dlReq)

	assert.Equal(t, http.StatusBadRequest, dlRec.Code)
	var errResp errorResponse
	require.NoError(t, json.Unmarshal(dlRec.Body.Bytes(), &errResp))
	assert.Equal(t, "validation_failed", errResp.Error)
}

func TestHandleCancelRejectsAlreadyTerminal(t *testing.T) {
	srv, _, _ := newTestServer(t)
	handler := srv.Handler()

	genReq := httptest.NewRequest(http.MethodPost, "/api/notes/note1/itineraries", strings.NewReader(`{"request_id":"55555555-5555-5555-5555-555555555555"}`))
	genReq.Header.Set(ViewerHeader, "owner1")
	genRec := httptest.NewRecorder()
	handler.ServeHTTP(genRec, genReq)
	var genResp generateResponse
	require.NoError(t, json.Unmarshal(genRec.Body.Bytes(), &genResp))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		statusReq := httptest.NewRequest(http.MethodGet, "/api/itineraries/"+genResp.ItineraryID+"/status", nil)
		statusReq.Header.Set(ViewerHeader, "owner1")
		statusRec := httptest.NewRecorder()
		handler.ServeHTTP(statusRec, statusReq)
		var statusResp statusResponse
		require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &statusResp))
		if statusResp.Status == "completed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancelReq := httptest.NewRequest(http.MethodPost, "/api/itineraries/"+genResp.ItineraryID+"/cancel", nil)
	cancelReq.Header.Set(ViewerHeader, "owner1")
	cancelRec := httptest.NewRecorder()
	handler.ServeHTTP(cancelRec, cancelReq)

	assert.Equal(t, http.StatusBadRequest, cancelRec.Code)
}
