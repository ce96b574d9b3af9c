// This file implements the Store interface on Redis, grounded on
// orchestration/redis_task_store.go's key-pattern and TTL conventions:
// each record is a JSON blob at {prefix}:record:{itinerary_id}, with
// secondary indexes (active job, idempotency, version counter) and an
// append-only cost ledger kept as separate keys.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ridetrace/itinerary-coordinator/core"
)

// RedisStoreConfig configures the Redis-backed Store.
type RedisStoreConfig struct {
	// KeyPrefix namespaces every key this store touches.
	// Default: "itinerary"
	KeyPrefix string `json:"key_prefix"`

	// RecordTTL is how long a terminal record (and its indexes) survive
	// after completion. Default: 72 hours.
	RecordTTL time.Duration `json:"record_ttl"`

	// LedgerTTL is how long cost ledger entries are retained.
	// Default: 30 days, the same length as the Coordinator's default
	// spend window.
	LedgerTTL time.Duration `json:"ledger_ttl"`

	Logger core.Logger `json:"-"`
}

// DefaultRedisStoreConfig returns the default configuration.
func DefaultRedisStoreConfig() RedisStoreConfig {
	return RedisStoreConfig{
		KeyPrefix: "itinerary",
		RecordTTL: 72 * time.Hour,
		LedgerTTL: 30 * 24 * time.Hour,
	}
}

// RedisStore implements Store on a *redis.Client.
type RedisStore struct {
	client *redis.Client
	config RedisStoreConfig
	logger core.Logger
}

// NewRedisStore builds a RedisStore. The client should already be connected.
func NewRedisStore(client *redis.Client, config *RedisStoreConfig) *RedisStore {
	cfg := DefaultRedisStoreConfig()
	if config != nil {
		cfg = *config
		if cfg.KeyPrefix == "" {
			cfg.KeyPrefix = "itinerary"
		}
		if cfg.RecordTTL <= 0 {
			cfg.RecordTTL = 72 * time.Hour
		}
		if cfg.LedgerTTL <= 0 {
			cfg.LedgerTTL = 30 * 24 * time.Hour
		}
	}
	return &RedisStore{client: client, config: cfg, logger: cfg.Logger}
}

// SetLogger replaces the store's logger.
func (s *RedisStore) SetLogger(logger core.Logger) {
	s.logger = logger
}

func (s *RedisStore) recordKey(itineraryID string) string {
	return fmt.Sprintf("%s:record:%s", s.config.KeyPrefix, itineraryID)
}

func (s *RedisStore) activeKey(ownerID, noteID string) string {
	return fmt.Sprintf("%s:active:%s:%s", s.config.KeyPrefix, ownerID, noteID)
}

func (s *RedisStore) reqIDKey(ownerID, requestID string) string {
	return fmt.Sprintf("%s:reqid:%s:%s", s.config.KeyPrefix, ownerID, requestID)
}

func (s *RedisStore) versionKey(ownerID, noteID string) string {
	return fmt.Sprintf("%s:version:%s:%s", s.config.KeyPrefix, ownerID, noteID)
}

func (s *RedisStore) ledgerKey(ownerID string) string {
	return fmt.Sprintf("%s:ledger:%s", s.config.KeyPrefix, ownerID)
}

func (s *RedisStore) getRecordByID(ctx context.Context, itineraryID string) (*GenerationRecord, error) {
	data, err := s.client.Get(ctx, s.recordKey(itineraryID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get record: %w", err)
	}
	var record GenerationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("store: unmarshal record: %w", err)
	}
	return &record, nil
}

func (s *RedisStore) resolveIndex(ctx context.Context, key string) (*GenerationRecord, error) {
	id, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: resolve index: %w", err)
	}
	return s.getRecordByID(ctx, id)
}

func (s *RedisStore) FindByRequestID(ctx context.Context, ownerID, requestID string) (*GenerationRecord, error) {
	return s.resolveIndex(ctx, s.reqIDKey(ownerID, requestID))
}

func (s *RedisStore) FindActive(ctx context.Context, ownerID, noteID string) (*GenerationRecord, error) {
	return s.resolveIndex(ctx, s.activeKey(ownerID, noteID))
}

func (s *RedisStore) Create(ctx context.Context, record *GenerationRecord) error {
	akey := s.activeKey(record.OwnerID, record.NoteID)

	// Claim the active-job slot before assigning a version, mirroring
	// MemoryStore.Create: a losing Create under the FindActive/Create race
	// must not burn a version number it never uses (invariant 6, "version
	// is dense").
	ok, err := s.client.SetNX(ctx, akey, record.ItineraryID, s.config.RecordTTL).Result()
	if err != nil {
		return fmt.Errorf("store: claim active slot: %w", err)
	}
	if !ok {
		return ErrActiveExists
	}

	version, err := s.client.Incr(ctx, s.versionKey(record.OwnerID, record.NoteID)).Result()
	if err != nil {
		s.client.Del(ctx, akey)
		return fmt.Errorf("store: assign version: %w", err)
	}
	record.Version = int(version)

	data, err := json.Marshal(record)
	if err != nil {
		s.client.Del(ctx, akey)
		return fmt.Errorf("store: marshal record: %w", err)
	}

	if err := s.client.Set(ctx, s.recordKey(record.ItineraryID), data, s.config.RecordTTL).Err(); err != nil {
		s.client.Del(ctx, akey)
		return fmt.Errorf("store: persist record: %w", err)
	}

	if record.RequestID != "" {
		if err := s.client.Set(ctx, s.reqIDKey(record.OwnerID, record.RequestID), record.ItineraryID, s.config.RecordTTL).Err(); err != nil {
			if s.logger != nil {
				s.logger.Warn("failed to persist idempotency index", map[string]interface{}{
					"itinerary_id": record.ItineraryID,
					"error":        err.Error(),
				})
			}
		}
	}
	return nil
}

// UpdateStatus performs an optimistic-locking compare-and-swap using
// WATCH/MULTI on the record key, mirroring redis_task_store.go's
// exists-then-set pattern but adding the CAS guard the in-memory status
// machine needs.
func (s *RedisStore) UpdateStatus(ctx context.Context, itineraryID string, from, to Status, mutate func(*GenerationRecord)) (*GenerationRecord, error) {
	key := s.recordKey(itineraryID)
	var updated *GenerationRecord

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("store: get record: %w", err)
		}
		var record GenerationRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("store: unmarshal record: %w", err)
		}
		if record.Status != from {
			return ErrStaleStatus
		}

		record.Status = to
		record.UpdatedAt = time.Now()
		if to.IsTerminal() {
			now := record.UpdatedAt
			record.TerminatedAt = &now
		}
		if mutate != nil {
			mutate(&record)
		}

		newData, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("store: marshal record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, s.config.RecordTTL)
			if to.IsTerminal() {
				pipe.Del(ctx, s.activeKey(record.OwnerID, record.NoteID))
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("store: commit transition: %w", err)
		}
		updated = &record
		return nil
	}

	if err := s.client.Watch(ctx, txf, key); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *RedisStore) SetCancelRequested(ctx context.Context, itineraryID string) error {
	key := s.recordKey(itineraryID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("store: get record: %w", err)
		}
		var record GenerationRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("store: unmarshal record: %w", err)
		}
		if record.CancelRequested {
			return nil
		}
		record.CancelRequested = true
		newData, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("store: marshal record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newData, s.config.RecordTTL)
			return nil
		})
		return err
	}
	return s.client.Watch(ctx, txf, key)
}

func (s *RedisStore) Get(ctx context.Context, itineraryID string) (*GenerationRecord, error) {
	return s.getRecordByID(ctx, itineraryID)
}

// ListCompleted scans {prefix}:record:* and filters in process. A production
// deployment with high cardinality per note would replace this with a
// secondary sorted-set index; the spec's note-scoped history view doesn't
// warrant that here.
func (s *RedisStore) ListCompleted(ctx context.Context, ownerID, noteID string, limit int) ([]*GenerationRecord, error) {
	var matches []*GenerationRecord
	pattern := fmt.Sprintf("%s:record:*", s.config.KeyPrefix)
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var record GenerationRecord
		if err := json.Unmarshal(data, &record); err != nil {
			continue
		}
		if record.OwnerID == ownerID && record.NoteID == noteID && record.Status == StatusCompleted {
			matches = append(matches, &record)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("store: scan records: %w", err)
	}

	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j].Version > matches[i].Version {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *RedisStore) RecordCost(ctx context.Context, entry CostLedgerEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("store: marshal ledger entry: %w", err)
	}
	key := s.ledgerKey(entry.OwnerID)
	score := float64(entry.RecordedAt.UnixNano())
	if err := s.client.ZAdd(ctx, key, &redis.Z{Score: score, Member: data}).Err(); err != nil {
		return fmt.Errorf("store: append ledger entry: %w", err)
	}
	return s.client.Expire(ctx, key, s.config.LedgerTTL).Err()
}

func (s *RedisStore) SpendSince(ctx context.Context, ownerID string, windowStart time.Time) (float64, error) {
	key := s.ledgerKey(ownerID)
	members, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", windowStart.UnixNano()),
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("store: range ledger: %w", err)
	}

	var total float64
	for _, m := range members {
		var entry CostLedgerEntry
		if err := json.Unmarshal([]byte(m), &entry); err != nil {
			continue
		}
		total += entry.Amount
	}
	return total, nil
}

// Close is a no-op: the *redis.Client is externally managed, matching
// orchestration/redis_task_store.go's lifecycle contract.
func (s *RedisStore) Close() error {
	return nil
}
