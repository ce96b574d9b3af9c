package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ridetrace/itinerary-coordinator/internal/coordinator"
	"github.com/ridetrace/itinerary-coordinator/internal/exporter"
	"github.com/ridetrace/itinerary-coordinator/internal/store"
)

// ═══════════════════════════════════════════════════════════════════════
// Request/response types (spec.md §6)
// ═══════════════════════════════════════════════════════════════════════

type generateRequest struct {
	RequestID string `json:"request_id"`
}

type generateResponse struct {
	ItineraryID string    `json:"itinerary_id"`
	NoteID      string    `json:"note_id"`
	Version     int       `json:"version"`
	Status      string    `json:"status"`
	RequestID   string    `json:"request_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type statusResponse struct {
	ItineraryID  string                 `json:"itinerary_id"`
	Status       string                 `json:"status"`
	Progress     *int                   `json:"progress,omitempty"`
	RouteGeoJSON json.RawMessage        `json:"route_geojson,omitempty"`
	Error        *store.GenerationError `json:"error,omitempty"`
	CancelledAt  *time.Time             `json:"cancelled_at,omitempty"`
}

type cancelResponse struct {
	ItineraryID string     `json:"itinerary_id"`
	Status      string     `json:"status"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

type urlResponse struct {
	URL string `json:"url"`
}

type listItem struct {
	ItineraryID string    `json:"itinerary_id"`
	NoteID      string    `json:"note_id"`
	Version     int       `json:"version"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type listResponse struct {
	Data []listItem `json:"data"`
}

// errorResponse is the common error envelope (spec.md §6).
type errorResponse struct {
	Error      string                 `json:"error"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	RetryAfter int                    `json:"retry_after,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// ═══════════════════════════════════════════════════════════════════════
// Handlers
// ═══════════════════════════════════════════════════════════════════════

// handleGenerate implements POST /api/notes/:noteId/itineraries.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	noteID := r.PathValue("noteId")
	viewer := viewerOf(r)
	if viewer == "" {
		s.writeCoordinatorError(w, &coordinator.Error{Kind: coordinator.KindUnauthorized, Message: "viewer identity required"})
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeCoordinatorError(w, &coordinator.Error{Kind: coordinator.KindValidationFailed, Message: "request body must be valid JSON"})
		return
	}

	record, cerr := s.coordinator.Generate(r.Context(), coordinator.GenerateRequest{
		OwnerID: viewer, NoteID: noteID, RequestID: req.RequestID,
	})
	if cerr != nil {
		s.writeCoordinatorError(w, cerr)
		return
	}

	writeJSON(w, http.StatusAccepted, generateResponse{
		ItineraryID: record.ItineraryID,
		NoteID:      record.NoteID,
		Version:     record.Version,
		Status:      string(record.Status),
		RequestID:   record.RequestID,
		CreatedAt:   record.CreatedAt,
	})
}

// handleStatus implements GET /api/itineraries/:itineraryId/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	itineraryID := r.PathValue("itineraryId")
	viewer := viewerOf(r)

	record, cerr := s.coordinator.PollStatus(r.Context(), itineraryID, viewer)
	if cerr != nil {
		s.writeCoordinatorError(w, cerr)
		return
	}

	resp := statusResponse{ItineraryID: record.ItineraryID, Status: string(record.Status)}
	switch record.Status {
	case store.StatusPending, store.StatusRunning:
		resp.Progress = record.Progress
	case store.StatusCompleted:
		if geo, err := exporter.GeoJSON(record.Route); err == nil {
			resp.RouteGeoJSON = geo
		}
	case store.StatusFailed:
		resp.Error = record.Error
	case store.StatusCancelled:
		resp.CancelledAt = record.TerminatedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCancel implements POST /api/itineraries/:itineraryId/cancel.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	itineraryID := r.PathValue("itineraryId")
	viewer := viewerOf(r)

	record, cerr := s.coordinator.Cancel(r.Context(), itineraryID, viewer)
	if cerr != nil {
		s.writeCoordinatorError(w, cerr)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{
		ItineraryID: record.ItineraryID,
		Status:      string(record.Status),
		CancelledAt: record.TerminatedAt,
	})
}

// handleDownload implements GET /api/itineraries/:itineraryId/download.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	itineraryID := r.PathValue("itineraryId")
	viewer := viewerOf(r)

	format, ok := parseDownloadFormat(r.URL.Query().Get("format"))
	if !ok {
		s.writeCoordinatorError(w, &coordinator.Error{Kind: coordinator.KindValidationFailed, Message: "format must be gpx or geojson"})
		return
	}
	if !acknowledged(r) {
		s.writeCoordinatorError(w, acknowledgementRequiredError())
		return
	}

	result, cerr := s.coordinator.Export(r.Context(), itineraryID, viewer, format, true)
	if cerr != nil {
		s.writeCoordinatorError(w, cerr)
		return
	}

	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Body)
}

// handleMapy implements GET /api/itineraries/:itineraryId/mapy.
func (s *Server) handleMapy(w http.ResponseWriter, r *http.Request) {
	s.handleURLExport(w, r, coordinator.FormatMapy)
}

// handleGoogle implements GET /api/itineraries/:itineraryId/google.
func (s *Server) handleGoogle(w http.ResponseWriter, r *http.Request) {
	s.handleURLExport(w, r, coordinator.FormatGoogle)
}

func (s *Server) handleURLExport(w http.ResponseWriter, r *http.Request, format coordinator.ExportFormat) {
	itineraryID := r.PathValue("itineraryId")
	viewer := viewerOf(r)

	if !acknowledged(r) {
		s.writeCoordinatorError(w, acknowledgementRequiredError())
		return
	}

	result, cerr := s.coordinator.Export(r.Context(), itineraryID, viewer, format, true)
	if cerr != nil {
		s.writeCoordinatorError(w, cerr)
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: result.URL})
}

// handleListCompleted implements GET /api/notes/:noteId/itineraries.
func (s *Server) handleListCompleted(w http.ResponseWriter, r *http.Request) {
	noteID := r.PathValue("noteId")
	viewer := viewerOf(r)

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			s.writeCoordinatorError(w, &coordinator.Error{Kind: coordinator.KindValidationFailed, Message: "limit must be an integer between 1 and 100"})
			return
		}
		limit = n
	}

	records, cerr := s.coordinator.ListCompleted(r.Context(), viewer, noteID, limit)
	if cerr != nil {
		s.writeCoordinatorError(w, cerr)
		return
	}

	data := make([]listItem, 0, len(records))
	for _, rec := range records {
		data = append(data, listItem{
			ItineraryID: rec.ItineraryID, NoteID: rec.NoteID, Version: rec.Version,
			Status: string(rec.Status), CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, listResponse{Data: data})
}

// ═══════════════════════════════════════════════════════════════════════
// Helpers
// ═══════════════════════════════════════════════════════════════════════

// acknowledgementRequiredError is the validation_failed error for a missing
// or non-"true" acknowledged query parameter (spec.md §6).
func acknowledgementRequiredError() *coordinator.Error {
	return &coordinator.Error{
		Kind:    coordinator.KindValidationFailed,
		Message: "acknowledged must be true",
		Details: map[string]interface{}{"field": "acknowledged"},
	}
}

func parseDownloadFormat(raw string) (coordinator.ExportFormat, bool) {
	switch raw {
	case "gpx":
		return coordinator.FormatGPX, true
	case "geojson":
		return coordinator.FormatGeoJSON, true
	default:
		return "", false
	}
}

// acknowledged implements spec.md §6's input constraint: the literal string
// "true", nothing else.
func acknowledged(r *http.Request) bool {
	return r.URL.Query().Get("acknowledged") == "true"
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeCoordinatorError(w http.ResponseWriter, cerr *coordinator.Error) {
	writeJSON(w, statusForKind(cerr.Kind), errorResponse{
		Error:      string(cerr.Kind),
		Message:    cerr.Message,
		Details:    cerr.Details,
		RetryAfter: cerr.RetryAfter,
		Timestamp:  time.Now(),
	})
}

// statusForKind maps a coordinator.Kind to an HTTP status code per the
// table in spec.md §6. Kinds that only ever appear inside a terminal
// record's `error` field (model_error, network, rate_limited, invalid_route,
// timeout) are mapped defensively in case a future caller surfaces them
// synchronously, but no current endpoint returns them directly.
func statusForKind(kind coordinator.Kind) int {
	switch kind {
	case coordinator.KindValidationFailed:
		return http.StatusBadRequest
	case coordinator.KindUnauthorized:
		return http.StatusUnauthorized
	case coordinator.KindNotFound:
		return http.StatusNotFound
	case coordinator.KindConflict:
		return http.StatusConflict
	case coordinator.KindProfileIncomplete:
		return http.StatusForbidden
	case coordinator.KindGenerationInProgress:
		return http.StatusConflict
	case coordinator.KindCannotCancel:
		return http.StatusBadRequest
	case coordinator.KindServiceLimitReached:
		return http.StatusTooManyRequests
	case coordinator.KindIncomplete:
		return http.StatusUnprocessableEntity
	case coordinator.KindTooManyPoints:
		return http.StatusUnprocessableEntity
	case coordinator.KindRateLimited:
		return http.StatusTooManyRequests
	case coordinator.KindTimeout:
		return http.StatusGatewayTimeout
	case coordinator.KindModelError, coordinator.KindNetwork:
		return http.StatusBadGateway
	case coordinator.KindInvalidRoute:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
