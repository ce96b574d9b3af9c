package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store, guarded by a single mutex. It is the
// default store for local development and unit tests; RedisStore is the
// production-grade implementation for a multi-replica Coordinator.
type MemoryStore struct {
	mu sync.Mutex

	records    map[string]*GenerationRecord // itineraryID -> record
	activeKey  map[string]string            // "owner/note" -> itineraryID
	reqIDKey   map[string]string            // "owner/requestID" -> itineraryID
	versionCtr map[string]int               // "owner/note" -> last assigned version
	ledger     []CostLedgerEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]*GenerationRecord),
		activeKey:  make(map[string]string),
		reqIDKey:   make(map[string]string),
		versionCtr: make(map[string]int),
	}
}

func activeIndexKey(ownerID, noteID string) string {
	return ownerID + "/" + noteID
}

func reqIDIndexKey(ownerID, requestID string) string {
	return ownerID + "/" + requestID
}

func (s *MemoryStore) FindByRequestID(ctx context.Context, ownerID, requestID string) (*GenerationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.reqIDKey[reqIDIndexKey(ownerID, requestID)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.records[id].Clone(), nil
}

func (s *MemoryStore) FindActive(ctx context.Context, ownerID, noteID string) (*GenerationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.activeKey[activeIndexKey(ownerID, noteID)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.records[id].Clone(), nil
}

func (s *MemoryStore) Create(ctx context.Context, record *GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	akey := activeIndexKey(record.OwnerID, record.NoteID)
	if _, exists := s.activeKey[akey]; exists {
		return ErrActiveExists
	}
	if _, exists := s.records[record.ItineraryID]; exists {
		return ErrAlreadyExists
	}

	s.versionCtr[akey]++
	record.Version = s.versionCtr[akey]

	stored := record.Clone()
	s.records[record.ItineraryID] = stored
	s.activeKey[akey] = record.ItineraryID
	if record.RequestID != "" {
		s.reqIDKey[reqIDIndexKey(record.OwnerID, record.RequestID)] = record.ItineraryID
	}
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, itineraryID string, from, to Status, mutate func(*GenerationRecord)) (*GenerationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[itineraryID]
	if !ok {
		return nil, ErrNotFound
	}
	if record.Status != from {
		return nil, ErrStaleStatus
	}

	record.Status = to
	record.UpdatedAt = time.Now()
	if to.IsTerminal() {
		now := record.UpdatedAt
		record.TerminatedAt = &now
		delete(s.activeKey, activeIndexKey(record.OwnerID, record.NoteID))
	}
	if mutate != nil {
		mutate(record)
	}
	return record.Clone(), nil
}

func (s *MemoryStore) SetCancelRequested(ctx context.Context, itineraryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[itineraryID]
	if !ok {
		return ErrNotFound
	}
	record.CancelRequested = true
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, itineraryID string) (*GenerationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[itineraryID]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

func (s *MemoryStore) ListCompleted(ctx context.Context, ownerID, noteID string, limit int) ([]*GenerationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matches []*GenerationRecord
	for _, r := range s.records {
		if r.OwnerID == ownerID && r.NoteID == noteID && r.Status == StatusCompleted {
			matches = append(matches, r.Clone())
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Version > matches[j].Version
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *MemoryStore) RecordCost(ctx context.Context, entry CostLedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = append(s.ledger, entry)
	return nil
}

func (s *MemoryStore) SpendSince(ctx context.Context, ownerID string, windowStart time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total float64
	for _, e := range s.ledger {
		if e.OwnerID == ownerID && !e.RecordedAt.Before(windowStart) {
			total += e.Amount
		}
	}
	return total, nil
}
