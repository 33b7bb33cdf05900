// Package queue provides the in-memory FIFO of pending sync operations and
// the retry backoff schedule.
//
// The persisted pending-operations record is authoritative. SyncQueue is the
// in-memory view rebuilt from it on start and drained at the start of every
// sweep.
package queue

import (
	"fmt"
	"sync"
	"time"

	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
	"github.com/Dompi123/FOMO2025PART4/internal/logging"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
)

// SyncQueue holds pending operations in enqueue order.
type SyncQueue struct {
	mu      sync.RWMutex
	items   []*models.SyncOperation
	maxSize int
}

// NewSyncQueue creates a SyncQueue. A maxSize of zero or less means unbounded.
func NewSyncQueue(maxSize int) *SyncQueue {
	return &SyncQueue{maxSize: maxSize}
}

// Enqueue appends op. It fails when the queue is full or op.ID is already queued.
func (q *SyncQueue) Enqueue(op *models.SyncOperation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("queue is full (max size: %d)", q.maxSize))
	}
	if q.indexOf(op.ID) >= 0 {
		return apperrors.New(apperrors.ErrDuplicate, fmt.Sprintf("operation %s already queued", op.ID))
	}

	q.items = append(q.items, op)

	logging.Debug("Operation enqueued", map[string]interface{}{
		"operation_id": op.ID,
		"type":         op.Type,
		"entity":       op.Entity,
		"size":         len(q.items),
	})
	return nil
}

// Requeue appends ops that are not already present, ignoring the size limit.
// It is used to put back operations taken out by Drain.
func (q *SyncQueue) Requeue(ops ...*models.SyncOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, op := range ops {
		if q.indexOf(op.ID) >= 0 {
			continue
		}
		q.items = append(q.items, op)
	}
}

// Replace makes ops the whole content of the queue.
func (q *SyncQueue) Replace(ops []*models.SyncOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]*models.SyncOperation(nil), ops...)
}

// Drain returns every queued operation in order and empties the queue.
func (q *SyncQueue) Drain() []*models.SyncOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

// List returns a snapshot of the queue in order.
func (q *SyncQueue) List() []*models.SyncOperation {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]*models.SyncOperation(nil), q.items...)
}

// Size returns the number of queued operations.
func (q *SyncQueue) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Clear removes all operations.
func (q *SyncQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

func (q *SyncQueue) indexOf(id string) int {
	for i, op := range q.items {
		if op.ID == id {
			return i
		}
	}
	return -1
}

// Backoff returns the delay before retry number retryCount:
// base * 2^retryCount, capped at max.
func Backoff(base, max time.Duration, retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
