package sync

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
	"github.com/Dompi123/FOMO2025PART4/internal/logging"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
	"github.com/Dompi123/FOMO2025PART4/internal/store"
	"github.com/Dompi123/FOMO2025PART4/internal/sync/conflict"
	"github.com/Dompi123/FOMO2025PART4/internal/sync/queue"
)

// Reasons a sweep did not run.
const (
	ReasonInProgress     = "sync already in progress"
	ReasonOffline        = "offline"
	ReasonEmpty          = "queue empty"
	ReasonNotInitialized = "not initialized"
)

// SyncStatus represents the current sync status.
type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
)

// SyncResult represents the result of one sweep.
type SyncResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Skipped bool
	Reason  string

	Processed int // operations attempted
	Succeeded int
	Retried   int // requeued after a transient failure or a rebased conflict
	Deferred  int // left untouched because the device went offline
	Dropped   int // terminal failures
	Conflicts int
}

// Status returns idle or syncing.
func (m *Manager) Status() SyncStatus {
	if m.State().IsSyncing {
		return SyncStatusSyncing
	}
	return SyncStatusIdle
}

// outcome of processing one operation
type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeRetried
	outcomeDropped
)

// Sync runs one sweep over the queue. Only one sweep runs at a time; a
// concurrent call returns immediately with Skipped set.
func (m *Manager) Sync(ctx context.Context) (*SyncResult, error) {
	if !m.sweepSem.TryAcquire(1) {
		return &SyncResult{Skipped: true, Reason: ReasonInProgress}, nil
	}
	defer m.sweepSem.Release(1)

	switch {
	case !m.isInitialized():
		return &SyncResult{Skipped: true, Reason: ReasonNotInitialized}, nil
	case !m.monitor.IsOnline():
		return &SyncResult{Skipped: true, Reason: ReasonOffline}, nil
	case m.queue.Size() == 0:
		return &SyncResult{Skipped: true, Reason: ReasonEmpty}, nil
	}

	result := &SyncResult{StartTime: time.Now()}
	m.update(func(s *models.SyncState) { s.IsSyncing = true })

	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		m.update(func(s *models.SyncState) {
			s.IsSyncing = false
			s.LastSyncTime = result.EndTime.UnixMilli()
		})
	}()

	ops, err := m.takeQueue(ctx)
	if err != nil {
		m.recordError(apperrors.Wrap(apperrors.ErrSyncFailed, "Sync sweep failed", err), "")
		return result, err
	}

	logging.Info("Starting sync sweep", map[string]interface{}{
		"operations": len(ops),
	})

	var nextDelay time.Duration
	for _, op := range ops {
		if !m.monitor.IsOnline() {
			result.Deferred++
			continue
		}

		result.Processed++
		out, delay := m.process(ctx, op, result)
		switch out {
		case outcomeSucceeded:
			result.Succeeded++
		case outcomeRetried:
			result.Retried++
			if nextDelay == 0 || delay < nextDelay {
				nextDelay = delay
			}
		case outcomeDropped:
			result.Dropped++
		}
	}

	if err := m.rebuildQueue(context.WithoutCancel(ctx)); err != nil {
		m.recordError(apperrors.Wrap(apperrors.ErrSyncFailed, "Failed to restore sync queue", err), "")
	}
	if result.Retried > 0 {
		m.scheduler.After(nextDelay)
	}

	if m.monitor.IsOnline() {
		if err := m.reconcile(ctx); err != nil {
			logging.Warn("Read-path reconciliation incomplete", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	logging.Info("Sync sweep completed", map[string]interface{}{
		"processed": result.Processed,
		"succeeded": result.Succeeded,
		"retried":   result.Retried,
		"deferred":  result.Deferred,
		"dropped":   result.Dropped,
		"conflicts": result.Conflicts,
	})
	return result, nil
}

// takeQueue snapshots the queue and speculatively clears its persisted
// mirror. The pending record keeps every operation until it completes.
func (m *Manager) takeQueue(ctx context.Context) ([]*models.SyncOperation, error) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	ops := m.queue.Drain()
	if err := m.storage().SaveSyncQueue(ctx, m.queue.List()); err != nil {
		m.queue.Requeue(ops...)
		return nil, err
	}
	return ops, nil
}

// rebuildQueue reloads the queue from the authoritative pending record so
// that retried, deferred and newly queued operations keep enqueue order.
func (m *Manager) rebuildQueue(ctx context.Context) error {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	ops, err := m.storage().GetPendingOperations(ctx)
	if err != nil {
		return err
	}
	valid := ops[:0]
	for _, op := range ops {
		if op.Validate() == nil {
			valid = append(valid, op)
		}
	}
	m.queue.Replace(valid)
	return m.storage().SaveSyncQueue(ctx, valid)
}

func (m *Manager) process(ctx context.Context, op *models.SyncOperation, result *SyncResult) (outcome, time.Duration) {
	err := m.dispatch(ctx, op)
	switch {
	case err == nil:
		return m.complete(ctx, op), 0

	case apperrors.Is(err, apperrors.ErrSyncConflict):
		result.Conflicts++
		return m.handleConflict(ctx, op, err)

	case apperrors.Is(err, apperrors.ErrSyncAuthFailed),
		apperrors.Is(err, apperrors.ErrValidation),
		apperrors.Is(err, apperrors.ErrInvalid),
		apperrors.Is(err, apperrors.ErrInvalidOperationType):
		return m.drop(ctx, op, err), 0

	default:
		return m.retry(ctx, op, err)
	}
}

// dispatch sends op to the gateway and stores the canonical record returned.
func (m *Manager) dispatch(ctx context.Context, op *models.SyncOperation) error {
	switch op.Entity {
	case models.EntityOrder:
		data, ok := op.OrderData()
		if !ok {
			return apperrors.New(apperrors.ErrInvalid, "order operation has no payload")
		}
		var (
			order *models.Order
			err   error
		)
		switch op.Type {
		case models.OpCreate:
			order, err = m.gateway.CreateOrder(ctx, data, op.Version)
		case models.OpUpdate:
			order, err = m.gateway.UpdateOrder(ctx, data, op.Version)
		case models.OpDelete:
			order, err = m.gateway.CancelOrder(ctx, data.OrderID, op.Version)
		default:
			return apperrors.NewInvalidOperationType(string(op.Type))
		}
		if err != nil {
			return err
		}
		if order != nil {
			m.saveLocal("order", func() error { return store.SaveOrder(ctx, m.storage(), *order) })
		}
		return nil

	case models.EntityProfile:
		patch, ok := op.ProfilePatch()
		switch op.Type {
		case models.OpCreate, models.OpUpdate:
			if !ok {
				return apperrors.New(apperrors.ErrInvalid, "profile operation has no payload")
			}
			profile, err := m.gateway.UpdateProfile(ctx, patch, op.Version)
			if err != nil {
				return err
			}
			if profile != nil {
				m.saveProfile(ctx, *profile)
			}
			return nil
		case models.OpDelete:
			if err := m.gateway.DeleteProfile(ctx, op.Version); err != nil {
				return err
			}
			m.saveLocal("profile", func() error {
				return m.storage().ReplaceEntities(ctx, models.CollectionProfile, nil)
			})
			return nil
		default:
			return apperrors.NewInvalidOperationType(string(op.Type))
		}
	}
	return apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown entity %q", op.Entity))
}

// saveLocal writes a server record into the cache. A cache failure does not
// undo a mutation the server already accepted, so it is only logged.
func (m *Manager) saveLocal(what string, fn func() error) {
	if err := fn(); err != nil {
		logging.Error("Failed to cache server record", err, map[string]interface{}{
			"entity": what,
		})
	}
}

func (m *Manager) saveProfile(ctx context.Context, p models.Profile) {
	p.LastSyncedAt = time.Now().UTC()
	m.saveLocal("profile", func() error { return store.SaveProfile(ctx, m.storage(), p) })
}

func (m *Manager) complete(ctx context.Context, op *models.SyncOperation) outcome {
	if err := m.storage().RemoveOperation(context.WithoutCancel(ctx), op.ID); err != nil {
		logging.Error("Failed to remove completed operation", err, map[string]interface{}{
			"operation_id": op.ID,
		})
	}
	logging.Debug("Operation synced", map[string]interface{}{
		"operation_id": op.ID,
		"type":         op.Type,
		"entity":       op.Entity,
	})
	m.broadcastPending()
	return outcomeSucceeded
}

func (m *Manager) drop(ctx context.Context, op *models.SyncOperation, err error) outcome {
	if rerr := m.storage().RemoveOperation(context.WithoutCancel(ctx), op.ID); rerr != nil {
		logging.Error("Failed to remove dropped operation", rerr, map[string]interface{}{
			"operation_id": op.ID,
		})
	}
	m.recordError(err, op.ID)
	return outcomeDropped
}

// retry increments the retry count and requeues op, or drops it once the
// maximum is exceeded.
func (m *Manager) retry(ctx context.Context, op *models.SyncOperation, cause error) (outcome, time.Duration) {
	next := op.Clone()
	next.RetryCount++
	return m.requeue(ctx, next, cause)
}

func (m *Manager) requeue(ctx context.Context, next *models.SyncOperation, cause error) (outcome, time.Duration) {
	if next.RetryCount > m.opts.MaxRetries {
		err := apperrors.Wrap(apperrors.ErrRetriesExhausted,
			fmt.Sprintf("Operation failed after %d retries", m.opts.MaxRetries), cause)
		return m.drop(ctx, next, err), 0
	}

	if err := m.storage().SaveOperation(context.WithoutCancel(ctx), next); err != nil {
		logging.Error("Failed to persist retried operation", err, map[string]interface{}{
			"operation_id": next.ID,
		})
	}

	delay := queue.Backoff(m.opts.BaseRetryDelay, m.opts.MaxRetryDelay, next.RetryCount)
	logging.Debug("Operation requeued", map[string]interface{}{
		"operation_id": next.ID,
		"retry_count":  next.RetryCount,
		"delay_ms":     delay.Milliseconds(),
		"error":        cause.Error(),
	})
	return outcomeRetried, delay
}

func (m *Manager) handleConflict(ctx context.Context, op *models.SyncOperation, err error) (outcome, time.Duration) {
	c, _ := conflict.FromError(op, err)

	var local *models.Profile
	if op.Entity == models.EntityProfile {
		p, perr := store.Profile(ctx, m.storage())
		if perr != nil {
			logging.Warn("Could not read local profile for merge", map[string]interface{}{
				"error": perr.Error(),
			})
		}
		local = p
	}

	res, rerr := m.resolver.Resolve(c, local)
	if rerr != nil {
		return m.drop(ctx, op, apperrors.Wrap(apperrors.ErrSyncConflict, "Conflict could not be resolved", rerr)), 0
	}

	if lerr := m.storage().RecordConflict(ctx, res.ConflictLog); lerr != nil {
		logging.Error("Failed to record conflict", lerr, map[string]interface{}{
			"operation_id": op.ID,
		})
	}

	switch res.Action {
	case conflict.ActionAcceptServer:
		if res.Profile != nil {
			m.saveProfile(ctx, *res.Profile)
		}
		return m.complete(ctx, op), 0

	case conflict.ActionRequeue:
		if res.Profile != nil {
			m.saveProfile(ctx, *res.Profile)
		}
		return m.requeue(ctx, res.Requeue, err)

	case conflict.ActionForce:
		profile, ferr := m.gateway.ForceSyncOperation(ctx, op)
		switch {
		case ferr == nil:
			if profile != nil {
				m.saveProfile(ctx, *profile)
			}
			return m.complete(ctx, op), 0
		case apperrors.IsRetryable(ferr):
			return m.retry(ctx, op, ferr)
		default:
			return m.drop(ctx, op, ferr), 0
		}

	default:
		if res.Order != nil {
			m.saveLocal("order", func() error { return store.SaveOrder(ctx, m.storage(), *res.Order) })
		}
		return m.drop(ctx, op, res.Err), 0
	}
}
