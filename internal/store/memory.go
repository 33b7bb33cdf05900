package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Dompi123/FOMO2025PART4/internal/models"
)

type memoryOp struct {
	seq int64
	raw []byte
}

type memoryQueued struct {
	id  string
	raw []byte
}

// MemoryStore is a Store kept entirely in memory. It backs degraded mode when
// the database cannot be opened, and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	seq       int64
	pending   map[string]memoryOp
	queue     []memoryQueued
	entities  map[string]map[string]Record
	conflicts []models.ConflictLog
}

// NewMemoryStore returns an empty, ready to use MemoryStore.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.reset()
	return s
}

func (s *MemoryStore) reset() {
	s.pending = make(map[string]memoryOp)
	s.queue = nil
	s.entities = make(map[string]map[string]Record, len(Collections))
	for _, c := range Collections {
		s.entities[c] = make(map[string]Record)
	}
	s.conflicts = nil
}

// Init implements Store. A MemoryStore cannot fail to open.
func (s *MemoryStore) Init(ctx context.Context) error {
	return nil
}

// SaveOperation implements Store.
func (s *MemoryStore) SaveOperation(ctx context.Context, op *models.SyncOperation) error {
	raw, err := encodeOperation(op)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.pending[op.ID]
	if !ok {
		s.seq++
		existing.seq = s.seq
	}
	existing.raw = raw
	s.pending[op.ID] = existing
	return nil
}

// RemoveOperation implements Store.
func (s *MemoryStore) RemoveOperation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	for i, q := range s.queue {
		if q.id == id {
			s.queue = append(s.queue[:i:i], s.queue[i+1:]...)
			break
		}
	}
	return nil
}

// GetPendingOperations implements Store.
func (s *MemoryStore) GetPendingOperations(ctx context.Context) ([]*models.SyncOperation, error) {
	s.mu.RLock()
	type entry struct {
		id string
		memoryOp
	}
	entries := make([]entry, 0, len(s.pending))
	for id, op := range s.pending {
		entries = append(entries, entry{id: id, memoryOp: op})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	ops := make([]*models.SyncOperation, 0, len(entries))
	for _, e := range entries {
		ops = append(ops, decodeOperation(e.id, e.raw))
	}
	return ops, nil
}

// SaveSyncQueue implements Store.
func (s *MemoryStore) SaveSyncQueue(ctx context.Context, ops []*models.SyncOperation) error {
	queue := make([]memoryQueued, 0, len(ops))
	for _, op := range ops {
		raw, err := encodeOperation(op)
		if err != nil {
			return err
		}
		queue = append(queue, memoryQueued{id: op.ID, raw: raw})
	}

	s.mu.Lock()
	s.queue = queue
	s.mu.Unlock()
	return nil
}

// GetSyncQueue implements Store.
func (s *MemoryStore) GetSyncQueue(ctx context.Context) ([]*models.SyncOperation, error) {
	s.mu.RLock()
	queue := append([]memoryQueued(nil), s.queue...)
	s.mu.RUnlock()

	ops := make([]*models.SyncOperation, 0, len(queue))
	for _, q := range queue {
		ops = append(ops, decodeOperation(q.id, q.raw))
	}
	return ops, nil
}

func cloneRecord(r Record) Record {
	r.Data = append([]byte(nil), r.Data...)
	return r
}

// SaveEntities implements Store.
func (s *MemoryStore) SaveEntities(ctx context.Context, collection string, records []Record) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if err := checkRecords(records); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.entities[collection][r.ID] = cloneRecord(r)
	}
	return nil
}

// ReplaceEntities implements Store.
func (s *MemoryStore) ReplaceEntities(ctx context.Context, collection string, records []Record) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if err := checkRecords(records); err != nil {
		return err
	}

	next := make(map[string]Record, len(records))
	for _, r := range records {
		next[r.ID] = cloneRecord(r)
	}

	s.mu.Lock()
	s.entities[collection] = next
	s.mu.Unlock()
	return nil
}

// GetEntities implements Store.
func (s *MemoryStore) GetEntities(ctx context.Context, collection string) ([]Record, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}

	s.mu.RLock()
	records := make([]Record, 0, len(s.entities[collection]))
	for _, r := range s.entities[collection] {
		records = append(records, cloneRecord(r))
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// GetEntity implements Store.
func (s *MemoryStore) GetEntity(ctx context.Context, collection, id string) (Record, error) {
	if err := checkCollection(collection); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.entities[collection][id]
	if !ok {
		return Record{}, notFound(collection, id)
	}
	return cloneRecord(r), nil
}

// RecordConflict implements Store.
func (s *MemoryStore) RecordConflict(ctx context.Context, c models.ConflictLog) error {
	s.mu.Lock()
	s.conflicts = append(s.conflicts, c)
	s.mu.Unlock()
	return nil
}

// ListConflicts implements Store.
func (s *MemoryStore) ListConflicts(ctx context.Context) ([]models.ConflictLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.ConflictLog(nil), s.conflicts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DetectedAt < out[j].DetectedAt })
	return out, nil
}

// ClearAll implements Store.
func (s *MemoryStore) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
