package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecord(owner, note, reqID string) *GenerationRecord {
	return &GenerationRecord{
		ItineraryID: owner + "-" + note + "-" + reqID,
		NoteID:      note,
		OwnerID:     owner,
		Status:      StatusPending,
		RequestID:   reqID,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestMemoryStoreCreateRejectsSecondActiveJob(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, newTestRecord("owner1", "note1", "req1")))
	err := s.Create(ctx, newTestRecord("owner1", "note1", "req2"))
	assert.ErrorIs(t, err, ErrActiveExists)
}

func TestMemoryStoreCreateAssignsIncreasingVersions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first := newTestRecord("owner1", "note1", "req1")
	require.NoError(t, s.Create(ctx, first))
	assert.Equal(t, 1, first.Version)

	_, err := s.UpdateStatus(ctx, first.ItineraryID, StatusPending, StatusCompleted, nil)
	require.NoError(t, err)

	second := newTestRecord("owner1", "note1", "req2")
	require.NoError(t, s.Create(ctx, second))
	assert.Equal(t, 2, second.Version)
}

func TestMemoryStoreFindByRequestIDIsIdempotencyLookup(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	record := newTestRecord("owner1", "note1", "req1")
	require.NoError(t, s.Create(ctx, record))

	found, err := s.FindByRequestID(ctx, "owner1", "req1")
	require.NoError(t, err)
	assert.Equal(t, record.ItineraryID, found.ItineraryID)

	_, err = s.FindByRequestID(ctx, "owner1", "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreUpdateStatusEnforcesCompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	record := newTestRecord("owner1", "note1", "req1")
	require.NoError(t, s.Create(ctx, record))

	_, err := s.UpdateStatus(ctx, record.ItineraryID, StatusRunning, StatusCompleted, nil)
	assert.ErrorIs(t, err, ErrStaleStatus)

	updated, err := s.UpdateStatus(ctx, record.ItineraryID, StatusPending, StatusRunning, func(r *GenerationRecord) {
		progress := 50
		r.Progress = &progress
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, updated.Status)
	require.NotNil(t, updated.Progress)
	assert.Equal(t, 50, *updated.Progress)
}

func TestMemoryStoreUpdateStatusToTerminalFreesActiveSlot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	record := newTestRecord("owner1", "note1", "req1")
	require.NoError(t, s.Create(ctx, record))

	_, err := s.UpdateStatus(ctx, record.ItineraryID, StatusPending, StatusFailed, nil)
	require.NoError(t, err)

	_, err = s.FindActive(ctx, "owner1", "note1")
	assert.ErrorIs(t, err, ErrNotFound)

	second := newTestRecord("owner1", "note1", "req2")
	assert.NoError(t, s.Create(ctx, second))
}

func TestMemoryStoreSetCancelRequested(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	record := newTestRecord("owner1", "note1", "req1")
	require.NoError(t, s.Create(ctx, record))

	require.NoError(t, s.SetCancelRequested(ctx, record.ItineraryID))

	got, err := s.Get(ctx, record.ItineraryID)
	require.NoError(t, err)
	assert.True(t, got.CancelRequested)
}

func TestMemoryStoreListCompletedOrdersByVersionDescending(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := newTestRecord("owner1", "note1", string(rune('a'+i)))
		require.NoError(t, s.Create(ctx, r))
		_, err := s.UpdateStatus(ctx, r.ItineraryID, StatusPending, StatusCompleted, nil)
		require.NoError(t, err)
	}

	list, err := s.ListCompleted(ctx, "owner1", "note1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Greater(t, list[0].Version, list[1].Version)
}

func TestMemoryStoreSpendSinceSumsOnlyWithinWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.RecordCost(ctx, CostLedgerEntry{OwnerID: "owner1", Amount: 1.5, RecordedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.RecordCost(ctx, CostLedgerEntry{OwnerID: "owner1", Amount: 2.5, RecordedAt: now.Add(-10 * time.Minute)}))
	require.NoError(t, s.RecordCost(ctx, CostLedgerEntry{OwnerID: "owner2", Amount: 99, RecordedAt: now}))

	total, err := s.SpendSince(ctx, "owner1", now.Add(-1*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2.5, total)
}
