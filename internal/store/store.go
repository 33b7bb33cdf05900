// Package store provides the persistent store contract for entities, the
// pending-operations record and the sync queue, with SQLite and in-memory
// implementations.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
	"github.com/Dompi123/FOMO2025PART4/internal/logging"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
)

// Record is one stored entity document with its concurrency token.
type Record struct {
	ID        string
	Version   int64
	UpdatedAt int64 // epoch millis
	Data      json.RawMessage
}

// Store is durable storage for the sync core. Every method that writes more
// than one row is atomic.
type Store interface {
	// Init opens the store and applies schema migrations. It retries once
	// and then fails with STORAGE_UNAVAILABLE.
	Init(ctx context.Context) error

	// SaveOperation inserts or replaces a pending operation. An existing
	// operation keeps its original enqueue position.
	SaveOperation(ctx context.Context, op *models.SyncOperation) error
	// RemoveOperation deletes the operation from the pending record and the
	// sync queue. Removing an unknown id is a no-op.
	RemoveOperation(ctx context.Context, id string) error
	// GetPendingOperations returns pending operations in enqueue order.
	// Rows that cannot be decoded come back with only their ID set.
	GetPendingOperations(ctx context.Context) ([]*models.SyncOperation, error)

	// SaveSyncQueue atomically replaces the sync queue.
	SaveSyncQueue(ctx context.Context, ops []*models.SyncOperation) error
	GetSyncQueue(ctx context.Context) ([]*models.SyncOperation, error)

	// SaveEntities upserts records into collection.
	SaveEntities(ctx context.Context, collection string, records []Record) error
	// ReplaceEntities makes records the entire content of collection.
	ReplaceEntities(ctx context.Context, collection string, records []Record) error
	GetEntities(ctx context.Context, collection string) ([]Record, error)
	// GetEntity fails with NOT_FOUND when the record is absent.
	GetEntity(ctx context.Context, collection, id string) (Record, error)

	RecordConflict(ctx context.Context, c models.ConflictLog) error
	ListConflicts(ctx context.Context) ([]models.ConflictLog, error)

	// ClearAll wipes every collection, queue and log.
	ClearAll(ctx context.Context) error
	Close() error
}

// Collections lists the entity collections a Store holds.
var Collections = []string{
	models.CollectionVenues,
	models.CollectionOrders,
	models.CollectionProfile,
}

func checkCollection(collection string) error {
	for _, c := range Collections {
		if c == collection {
			return nil
		}
	}
	return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown collection %q", collection))
}

func checkRecords(records []Record) error {
	for i, r := range records {
		if r.ID == "" {
			return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("record %d has empty id", i))
		}
		if !json.Valid(r.Data) {
			return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("record %q has invalid JSON", r.ID))
		}
	}
	return nil
}

func notFound(collection, id string) error {
	return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("%s/%s not found", collection, id))
}

func encodeOperation(op *models.SyncOperation) ([]byte, error) {
	if op == nil || op.ID == "" {
		return nil, apperrors.New(apperrors.ErrInvalid, "operation without id")
	}
	b, err := json.Marshal(op)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "encode operation", err)
	}
	return b, nil
}

// decodeOperation never fails: a row that does not decode is returned as a
// bare operation carrying only its id, which fails validation upstream.
func decodeOperation(id string, raw []byte) *models.SyncOperation {
	var op models.SyncOperation
	if err := json.Unmarshal(raw, &op); err != nil {
		logging.Warn("Undecodable operation in store", map[string]interface{}{
			"operation_id": id,
			"error":        err.Error(),
		})
		return &models.SyncOperation{ID: id}
	}
	if op.ID == "" {
		op.ID = id
	}
	return &op
}
