// Package store persists GenerationRecord, the active-job index, and the
// append-only cost ledger, behind a single Store interface implemented by
// both an in-process MemoryStore and a Redis-backed RedisStore.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ridetrace/itinerary-coordinator/internal/routedoc"
)

// Status is the GenerationRecord lifecycle state (spec.md §3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether s is one of the three terminal states.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// GenerationError is the {kind, message} pair recorded on a failed
// GenerationRecord (spec.md §3).
type GenerationError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// GenerationRecord is the canonical persisted state of one itinerary
// generation (spec.md §3). The Coordinator is the only writer of Status;
// every other field it sets goes through the same compare-and-swap call.
type GenerationRecord struct {
	ItineraryID string `json:"itinerary_id"`
	NoteID      string `json:"note_id"`
	OwnerID     string `json:"owner_id"`
	Version     int    `json:"version"`

	Status   Status `json:"status"`
	Progress *int   `json:"progress,omitempty"`

	RequestID string `json:"request_id"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`

	Route *routedoc.Document `json:"route,omitempty"`
	Error *GenerationError   `json:"error,omitempty"`

	CancelRequested bool `json:"cancel_requested"`

	CostEstimate float64 `json:"cost_estimate"`
}

// Clone returns a deep-enough copy for safe handoff across goroutines: the
// record itself and its optional sub-structs are copied: the Route document
// is shared read-only (exporters never mutate it).
func (r *GenerationRecord) Clone() *GenerationRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Progress != nil {
		p := *r.Progress
		clone.Progress = &p
	}
	if r.TerminatedAt != nil {
		t := *r.TerminatedAt
		clone.TerminatedAt = &t
	}
	if r.Error != nil {
		e := *r.Error
		clone.Error = &e
	}
	return &clone
}

// CostLedgerEntry is one append-only cost ledger row (spec.md §3).
type CostLedgerEntry struct {
	OwnerID     string    `json:"owner_id"`
	ItineraryID string    `json:"itinerary_id"`
	Amount      float64   `json:"amount"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Sentinel errors returned by Store implementations.
var (
	ErrNotFound      = errors.New("store: record not found")
	ErrActiveExists  = errors.New("store: an active job already exists for this note")
	ErrStaleStatus   = errors.New("store: current status does not match expected status")
	ErrAlreadyExists = errors.New("store: record already exists")
)

// Store is the Generation Store's interface to the Coordinator (spec.md §4.3).
type Store interface {
	// FindByRequestID is the idempotency lookup.
	FindByRequestID(ctx context.Context, ownerID, requestID string) (*GenerationRecord, error)

	// FindActive returns the single pending/running record for (owner, note),
	// or ErrNotFound if none exists.
	FindActive(ctx context.Context, ownerID, noteID string) (*GenerationRecord, error)

	// Create atomically: asserts no active record exists for
	// (record.OwnerID, record.NoteID), assigns the next dense version, and
	// persists record. Returns ErrActiveExists if the assertion fails.
	Create(ctx context.Context, record *GenerationRecord) error

	// UpdateStatus is the sole transition primitive: compare-and-swap on
	// Status. Returns ErrStaleStatus if the current status isn't `from`.
	// mutate is applied to the record (under the same atomic step) before
	// persisting, so callers can set Progress/Route/Error/CostEstimate in
	// the same call that performs the transition.
	UpdateStatus(ctx context.Context, itineraryID string, from, to Status, mutate func(*GenerationRecord)) (*GenerationRecord, error)

	// SetCancelRequested is idempotent and never regresses.
	SetCancelRequested(ctx context.Context, itineraryID string) error

	// Get is a snapshot read.
	Get(ctx context.Context, itineraryID string) (*GenerationRecord, error)

	// ListCompleted lists the most recent completed records for a note.
	ListCompleted(ctx context.Context, ownerID, noteID string, limit int) ([]*GenerationRecord, error)

	// RecordCost appends a cost ledger entry.
	RecordCost(ctx context.Context, entry CostLedgerEntry) error

	// SpendSince sums cost ledger entries for owner recorded at or after
	// windowStart.
	SpendSince(ctx context.Context, ownerID string, windowStart time.Time) (float64, error)
}
