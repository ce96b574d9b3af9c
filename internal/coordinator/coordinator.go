// Package coordinator implements the itinerary generation state machine
// (spec.md §4.1): Generate, PollStatus, Cancel, and Export, backed by a
// Generation Store and an AI Invoker, with a bounded worker pool modeled
// on orchestration/task_worker.go's dequeue-process loop.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ridetrace/itinerary-coordinator/core"
	"github.com/ridetrace/itinerary-coordinator/internal/aiinvoker"
	"github.com/ridetrace/itinerary-coordinator/internal/exporter"
	"github.com/ridetrace/itinerary-coordinator/internal/gmlog"
	"github.com/ridetrace/itinerary-coordinator/internal/store"
	"github.com/ridetrace/itinerary-coordinator/resilience"
)

// Coordinator is the only component allowed to write GenerationRecord.status
// (spec.md §4.1).
type Coordinator struct {
	store    store.Store
	invoker  aiinvoker.Invoker
	profiles ProfileProvider
	notes    NoteProvider
	logger   core.Logger
	config   Config
	telem    core.Telemetry
	breaker  *resilience.CircuitBreaker

	jobs      chan string
	promptFor *promptCache
	stop      context.CancelFunc
	done      chan struct{}
}

// New builds a Coordinator. Call Start to begin processing accepted jobs.
func New(s store.Store, invoker aiinvoker.Invoker, profiles ProfileProvider, notes NoteProvider, logger core.Logger, config Config) *Coordinator {
	if logger == nil {
		logger = gmlog.NewDefaultLogger()
	}
	cfg := config.withDefaults()

	breakerCfg := resilience.DefaultConfig()
	breakerCfg.Name = "ai_invoker"
	breakerCfg.ErrorThreshold = cfg.CircuitBreakerErrorThreshold
	breakerCfg.VolumeThreshold = cfg.CircuitBreakerVolumeThreshold
	breakerCfg.SleepWindow = cfg.CircuitBreakerSleepWindow
	breakerCfg.Logger = logger
	breaker, err := resilience.NewCircuitBreaker(breakerCfg)
	if err != nil {
		// cfg's breaker fields are Coordinator-validated defaults or
		// operator overrides already sanity-checked by withDefaults; this
		// only fires on a genuinely invalid override, so fall back to the
		// breaker's own defaults rather than failing construction.
		breaker, _ = resilience.NewCircuitBreaker(resilience.DefaultConfig())
	}

	return &Coordinator{
		store:     s,
		invoker:   invoker,
		profiles:  profiles,
		notes:     notes,
		logger:    logger,
		config:    cfg,
		telem:     &core.NoOpTelemetry{},
		breaker:   breaker,
		jobs:      make(chan string, cfg.JobQueueSize),
		promptFor: newPromptCache(),
	}
}

// SetTelemetry wires a tracing/metrics backend, in the teacher's
// SetLogger-style post-construction setter pattern. Defaults to
// core.NoOpTelemetry so a Coordinator is usable without one.
func (c *Coordinator) SetTelemetry(t core.Telemetry) {
	if t != nil {
		c.telem = t
	}
}

// Start launches the worker pool. It returns immediately; workers run
// until ctx is cancelled or Stop is called.
func (c *Coordinator) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	c.stop = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		done := make(chan struct{})
		for i := 0; i < c.config.WorkerConcurrency; i++ {
			go c.runWorker(workerCtx, fmt.Sprintf("worker-%d", i+1), done)
		}
		for i := 0; i < c.config.WorkerConcurrency; i++ {
			<-done
		}
	}()
}

// Stop signals all workers to exit and waits for them to drain.
func (c *Coordinator) Stop() {
	if c.stop != nil {
		c.stop()
	}
	if c.done != nil {
		<-c.done
	}
}

func (c *Coordinator) runWorker(ctx context.Context, workerID string, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		select {
		case <-ctx.Done():
			return
		case itineraryID := <-c.jobs:
			c.processJob(ctx, itineraryID)
		}
	}
}

// GenerateRequest is the input to Generate.
type GenerateRequest struct {
	OwnerID   string
	NoteID    string
	RequestID string
}

// Generate accepts a new generation request, enforcing the preconditions
// in spec.md §4.1 in order; the first failure wins.
func (c *Coordinator) Generate(ctx context.Context, req GenerateRequest) (*store.GenerationRecord, *Error) {
	if req.RequestID == "" {
		return nil, newError("Coordinator.Generate", KindValidationFailed, "request_id is required")
	}
	if _, err := uuid.Parse(req.RequestID); err != nil {
		return nil, newError("Coordinator.Generate", KindValidationFailed, "request_id must be a UUID")
	}

	// 1. Idempotency.
	if existing, err := c.store.FindByRequestID(ctx, req.OwnerID, req.RequestID); err == nil {
		return existing, nil
	} else if err != store.ErrNotFound {
		return nil, newError("Coordinator.Generate", KindServerError, "failed to check idempotency key")
	}

	// 2. Profile completeness.
	prefs, err := c.profiles.ResolvePreferences(ctx, req.OwnerID, req.NoteID)
	if err != nil {
		return nil, newError("Coordinator.Generate", KindServerError, "failed to resolve preferences")
	}
	if !prefs.Complete() {
		return nil, newError("Coordinator.Generate", KindProfileIncomplete, "rider preferences are incomplete")
	}

	// 3. Note ownership & existence.
	note, err := c.notes.GetNote(ctx, req.OwnerID, req.NoteID)
	if err == ErrNoteNotFound {
		return nil, newError("Coordinator.Generate", KindNotFound, "note not found")
	}
	if err != nil {
		return nil, newError("Coordinator.Generate", KindServerError, "failed to load note")
	}
	if note.Archived {
		return nil, newConflict("Coordinator.Generate", "note_archived", "note is archived")
	}

	// 4. Concurrency.
	if active, err := c.store.FindActive(ctx, req.OwnerID, req.NoteID); err == nil {
		return nil, &Error{
			Op:      "Coordinator.Generate",
			Kind:    KindGenerationInProgress,
			Message: "a generation is already in progress for this note",
			Details: map[string]interface{}{"itinerary_id": active.ItineraryID},
		}
	} else if err != store.ErrNotFound {
		return nil, newError("Coordinator.Generate", KindServerError, "failed to check active job")
	}

	// 5. Spend cap.
	if c.config.SpendCap > 0 {
		spent, err := c.store.SpendSince(ctx, req.OwnerID, time.Now().Add(-c.config.SpendWindow))
		if err != nil {
			return nil, newError("Coordinator.Generate", KindServerError, "failed to check spend cap")
		}
		if spent+c.config.PerCallEstimate > c.config.SpendCap {
			return nil, &Error{
				Op:         "Coordinator.Generate",
				Kind:       KindServiceLimitReached,
				Message:    "monthly spend cap reached",
				RetryAfter: secondsUntilWindowAdvances(c.config.SpendWindow),
			}
		}
	}

	now := time.Now()
	record := &store.GenerationRecord{
		ItineraryID: uuid.NewString(),
		NoteID:      req.NoteID,
		OwnerID:     req.OwnerID,
		Status:      store.StatusPending,
		RequestID:   req.RequestID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.store.Create(ctx, record); err != nil {
		if err == store.ErrActiveExists {
			active, findErr := c.store.FindActive(ctx, req.OwnerID, req.NoteID)
			if findErr == nil {
				return nil, &Error{
					Op:      "Coordinator.Generate",
					Kind:    KindGenerationInProgress,
					Message: "a generation is already in progress for this note",
					Details: map[string]interface{}{"itinerary_id": active.ItineraryID},
				}
			}
		}
		return nil, newError("Coordinator.Generate", KindServerError, "failed to create generation record")
	}

	// Build the prompt up front so note/preference data doesn't need to be
	// re-fetched from the worker goroutine.
	c.enqueue(record.ItineraryID, note.Body, prefs)

	return record, nil
}

// enqueue builds the prompt at accept time (note/preferences are already
// in hand) and hands the job to a worker, so the worker never needs to
// re-resolve the note/profile collaborators.
func (c *Coordinator) enqueue(itineraryID, noteBody string, prefs Preferences) {
	c.promptFor.set(itineraryID, buildPrompt(noteBody, prefs))
	select {
	case c.jobs <- itineraryID:
	default:
		// Queue full: hand the send to a goroutine rather than drop the
		// accepted job or block Generate. The record is already persisted
		// as pending; a worker picks it up once the queue has space, in no
		// guaranteed order relative to other jobs handed off this way.
		go func() { c.jobs <- itineraryID }()
	}
}

// PollStatus returns a snapshot of the record, enforcing viewer authorization.
func (c *Coordinator) PollStatus(ctx context.Context, itineraryID, viewerID string) (*store.GenerationRecord, *Error) {
	record, err := c.store.Get(ctx, itineraryID)
	if err == store.ErrNotFound {
		return nil, newError("Coordinator.PollStatus", KindNotFound, "itinerary not found")
	}
	if err != nil {
		return nil, newError("Coordinator.PollStatus", KindServerError, "failed to load itinerary")
	}
	if record.OwnerID != viewerID {
		return nil, newError("Coordinator.PollStatus", KindUnauthorized, "itinerary does not belong to viewer")
	}
	return record, nil
}

// Cancel requests cancellation of an in-flight job. It never blocks on the
// worker observing the request (spec.md §4.1).
func (c *Coordinator) Cancel(ctx context.Context, itineraryID, viewerID string) (*store.GenerationRecord, *Error) {
	record, err := c.store.Get(ctx, itineraryID)
	if err == store.ErrNotFound {
		return nil, newError("Coordinator.Cancel", KindNotFound, "itinerary not found")
	}
	if err != nil {
		return nil, newError("Coordinator.Cancel", KindServerError, "failed to load itinerary")
	}
	if record.OwnerID != viewerID {
		return nil, newError("Coordinator.Cancel", KindUnauthorized, "itinerary does not belong to viewer")
	}
	if record.Status.IsTerminal() {
		return nil, newError("Coordinator.Cancel", KindCannotCancel, "itinerary has already reached a terminal state")
	}
	if err := c.store.SetCancelRequested(ctx, itineraryID); err != nil {
		return nil, newError("Coordinator.Cancel", KindServerError, "failed to record cancellation request")
	}
	return c.store.Get(ctx, itineraryID)
}

// ExportFormat enumerates the four Export targets (spec.md §4.1).
type ExportFormat string

const (
	FormatGPX     ExportFormat = "gpx"
	FormatGeoJSON ExportFormat = "geojson"
	FormatMapy    ExportFormat = "mapy"
	FormatGoogle  ExportFormat = "google"
)

// ExportResult is what Export hands back to the HTTP Surface to stream or
// return as JSON.
type ExportResult struct {
	ContentType string
	Filename    string
	Body        []byte
	URL         string
}

// Export validates preconditions then delegates rendering to the Exporter
// (spec.md §4.1 "Operation: Export").
func (c *Coordinator) Export(ctx context.Context, itineraryID, viewerID string, format ExportFormat, acknowledged bool) (*ExportResult, *Error) {
	record, err := c.store.Get(ctx, itineraryID)
	if err == store.ErrNotFound {
		return nil, newError("Coordinator.Export", KindNotFound, "itinerary not found")
	}
	if err != nil {
		return nil, newError("Coordinator.Export", KindServerError, "failed to load itinerary")
	}
	if record.OwnerID != viewerID {
		return nil, newError("Coordinator.Export", KindUnauthorized, "itinerary does not belong to viewer")
	}
	if record.Status != store.StatusCompleted {
		return nil, newError("Coordinator.Export", KindIncomplete, "itinerary generation has not completed")
	}
	if !acknowledged {
		return nil, &Error{Op: "Coordinator.Export", Kind: KindValidationFailed, Message: "acknowledged must be true", Details: map[string]interface{}{"field": "acknowledged"}}
	}

	switch format {
	case FormatGPX:
		body, err := exporter.GPX(record.Route)
		if err != nil {
			return nil, newError("Coordinator.Export", KindServerError, "failed to render gpx")
		}
		return &ExportResult{ContentType: "application/gpx+xml; charset=utf-8", Filename: filename(record, "gpx"), Body: []byte(body)}, nil
	case FormatGeoJSON:
		body, err := exporter.GeoJSON(record.Route)
		if err != nil {
			return nil, newError("Coordinator.Export", KindServerError, "failed to render geojson")
		}
		return &ExportResult{ContentType: "application/geo+json; charset=utf-8", Filename: filename(record, "geojson"), Body: body}, nil
	case FormatMapy:
		url, err := exporter.MapyURL(record.Route)
		if err != nil {
			return nil, newError("Coordinator.Export", KindTooManyPoints, "route exceeds the mapy provider's point limit")
		}
		return &ExportResult{URL: url}, nil
	case FormatGoogle:
		url, err := exporter.GoogleURL(record.Route)
		if err != nil {
			return nil, newError("Coordinator.Export", KindTooManyPoints, "route exceeds the google maps provider's point limit")
		}
		return &ExportResult{URL: url}, nil
	default:
		return nil, newError("Coordinator.Export", KindValidationFailed, "unsupported export format")
	}
}

// ListCompleted returns past completed itineraries for a note (spec.md §6
// "past itineraries" read surface).
func (c *Coordinator) ListCompleted(ctx context.Context, ownerID, noteID string, limit int) ([]*store.GenerationRecord, *Error) {
	if limit <= 0 || limit > 100 {
		return nil, newError("Coordinator.ListCompleted", KindValidationFailed, "limit must be between 1 and 100")
	}
	records, err := c.store.ListCompleted(ctx, ownerID, noteID, limit)
	if err != nil {
		return nil, newError("Coordinator.ListCompleted", KindServerError, "failed to list itineraries")
	}
	return records, nil
}

func secondsUntilWindowAdvances(window time.Duration) int {
	if window <= 0 {
		return 0
	}
	now := time.Now()
	elapsed := now.UnixNano() % window.Nanoseconds()
	remaining := window.Nanoseconds() - elapsed
	return int(time.Duration(remaining).Seconds())
}

func filename(record *store.GenerationRecord, ext string) string {
	title := "itinerary"
	if record.Route != nil && record.Route.Properties.Title != "" {
		title = record.Route.Properties.Title
	}
	return sanitizeFilename(title, record.ItineraryID) + "." + ext
}
