package sync

import (
	"context"
	"fmt"
	"sort"
	gosync "sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Dompi123/FOMO2025PART4/internal/connectivity"
	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
	"github.com/Dompi123/FOMO2025PART4/internal/gateway"
	"github.com/Dompi123/FOMO2025PART4/internal/logging"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
	"github.com/Dompi123/FOMO2025PART4/internal/sanitize"
	"github.com/Dompi123/FOMO2025PART4/internal/store"
	"github.com/Dompi123/FOMO2025PART4/internal/sync/conflict"
	"github.com/Dompi123/FOMO2025PART4/internal/sync/queue"
	"github.com/Dompi123/FOMO2025PART4/internal/sync/scheduler"
	"github.com/Dompi123/FOMO2025PART4/internal/uuid"
)

// Options configures a Manager.
type Options struct {
	MaxRetries     int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	Interval       time.Duration // periodic sweep interval
	MaxErrors      int           // size of SyncState.Errors
	SweepTimeout   time.Duration
	ReconcileRetry gateway.RetryPolicy
}

// DefaultOptions returns the default manager options.
func DefaultOptions() Options {
	return Options{
		MaxRetries:     5,
		BaseRetryDelay: time.Second,
		MaxRetryDelay:  60 * time.Second,
		Interval:       60 * time.Second,
		MaxErrors:      50,
		SweepTimeout:   5 * time.Minute,
		ReconcileRetry: gateway.DefaultRetryPolicy,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.BaseRetryDelay <= 0 {
		o.BaseRetryDelay = d.BaseRetryDelay
	}
	if o.MaxRetryDelay <= 0 {
		o.MaxRetryDelay = d.MaxRetryDelay
	}
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.MaxErrors <= 0 {
		o.MaxErrors = d.MaxErrors
	}
	if o.SweepTimeout <= 0 {
		o.SweepTimeout = d.SweepTimeout
	}
	if o.ReconcileRetry.MaxAttempts <= 0 {
		o.ReconcileRetry = d.ReconcileRetry
	}
	return o
}

// OperationRequest is what a caller supplies to QueueOperation. The manager
// fills in timestamp, retry count and version.
type OperationRequest struct {
	ID                 string // generated when empty
	Type               models.OperationType
	Entity             models.EntityType
	Data               models.Payload
	ConflictResolution models.ConflictResolution
}

// Manager is the offline-first sync manager.
type Manager struct {
	// store is replaced by a MemoryStore when Init falls back to degraded mode
	storeMu gosync.RWMutex
	store   store.Store

	gateway   Gateway
	monitor   Connectivity
	opts      Options
	queue     *queue.SyncQueue
	resolver  *conflict.Resolver
	scheduler *scheduler.Scheduler
	sweepSem  *semaphore.Weighted

	// queueMu orders writes of the pending record and queue mirror
	queueMu gosync.Mutex

	mu          gosync.Mutex
	state       models.SyncState
	listeners   map[int]StateListener
	nextID      int
	initialized bool
	closed      bool
	degraded    bool
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc

	// deliverMu serializes state mutations with their delivery
	deliverMu gosync.Mutex

	wg gosync.WaitGroup
}

// NewManager creates a Manager. Call Init before use.
func NewManager(st store.Store, gw Gateway, monitor Connectivity, opts Options) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		store:     st,
		gateway:   gw,
		monitor:   monitor,
		opts:      opts,
		queue:     queue.NewSyncQueue(0),
		resolver:  conflict.NewResolver(),
		sweepSem:  semaphore.NewWeighted(1),
		listeners: make(map[int]StateListener),
		state:     models.SyncState{Errors: []models.SyncError{}},
	}
	m.scheduler = scheduler.NewScheduler(m.scheduledSweep, &scheduler.SchedulerConfig{
		Interval:   opts.Interval,
		JobTimeout: opts.SweepTimeout,
	})
	return m
}

// Init opens the store, loads the persisted pending operations, starts the
// periodic sweep and subscribes to connectivity changes. It is a no-op when
// already initialized.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	if err := m.storage().Init(ctx); err != nil {
		if !apperrors.Is(err, apperrors.ErrStorageUnavailable) {
			return err
		}
		logging.Warn("Persistent store unavailable, running memory-only", map[string]interface{}{
			"error": err.Error(),
		})
		mem := store.NewMemoryStore()
		if merr := mem.Init(ctx); merr != nil {
			return merr
		}
		m.storeMu.Lock()
		m.store = mem
		m.storeMu.Unlock()
		m.mu.Lock()
		m.degraded = true
		m.mu.Unlock()
		m.recordError(err, "")
	}

	loaded, err := m.loadQueue(ctx)
	if err != nil {
		return err
	}

	online := m.monitor.IsOnline()
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	m.initialized = true
	m.closed = false
	bg := m.ctx
	m.mu.Unlock()

	if online {
		m.scheduler.Resume()
	} else {
		m.scheduler.Pause()
	}
	m.scheduler.Start(bg)
	unsubscribe := m.monitor.Subscribe(m.onConnectivity)

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	m.update(func(s *models.SyncState) {
		s.IsOnline = online
	})

	logging.Info("Sync manager initialized", map[string]interface{}{
		"pending":  loaded,
		"online":   online,
		"degraded": m.Degraded(),
	})

	if online && loaded > 0 {
		m.goSweep()
	}
	return nil
}

// loadQueue rebuilds the in-memory queue from the persisted pending record,
// dropping operations that fail validation.
func (m *Manager) loadQueue(ctx context.Context) (int, error) {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	ops, err := m.storage().GetPendingOperations(ctx)
	if err != nil {
		return 0, err
	}

	valid := make([]*models.SyncOperation, 0, len(ops))
	for _, op := range ops {
		if verr := op.Validate(); verr != nil {
			logging.Warn("Dropping malformed pending operation", map[string]interface{}{
				"operation_id": op.ID,
				"error":        verr.Error(),
			})
			if rerr := m.storage().RemoveOperation(ctx, op.ID); rerr != nil {
				return 0, rerr
			}
			m.recordError(apperrors.Wrap(apperrors.ErrInvalid, "Dropped malformed operation", verr), op.ID)
			continue
		}
		valid = append(valid, op)
	}

	m.queue.Replace(valid)
	if err := m.storage().SaveSyncQueue(ctx, valid); err != nil {
		return 0, err
	}
	return len(valid), nil
}

// QueueOperation validates and persists a mutation for later transmission.
// An invalid type is recorded in the state errors and never queued.
func (m *Manager) QueueOperation(ctx context.Context, req OperationRequest) (*models.SyncOperation, error) {
	if !m.isInitialized() {
		return nil, apperrors.New(apperrors.ErrInternal, "sync manager not initialized")
	}

	if !req.Type.Valid() {
		err := apperrors.NewInvalidOperationType(string(req.Type))
		m.recordError(err, req.ID)
		return nil, err
	}

	op := &models.SyncOperation{
		ID:                 req.ID,
		Type:               req.Type,
		Entity:             req.Entity,
		Data:               sanitize.Payload(req.Data),
		Timestamp:          models.NowMillis(),
		RetryCount:         0,
		ConflictResolution: req.ConflictResolution,
	}
	if op.ID == "" {
		op.ID = uuid.New()
	}
	if err := op.Validate(); err != nil {
		m.recordError(err, op.ID)
		return nil, err
	}

	version, err := m.localVersion(ctx, op)
	if err != nil {
		return nil, err
	}
	op.Version = version

	if err := m.persistNew(ctx, op); err != nil {
		return nil, err
	}

	logging.Info("Operation queued", map[string]interface{}{
		"operation_id": op.ID,
		"type":         op.Type,
		"entity":       op.Entity,
		"version":      op.Version,
	})

	m.broadcastPending()
	if m.monitor.IsOnline() {
		m.goSweep()
	}
	return op.Clone(), nil
}

func (m *Manager) persistNew(ctx context.Context, op *models.SyncOperation) error {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()

	pending, err := m.storage().GetPendingOperations(ctx)
	if err != nil {
		return err
	}
	for _, p := range pending {
		if p.ID == op.ID {
			return apperrors.New(apperrors.ErrDuplicate, fmt.Sprintf("operation %s already queued", op.ID))
		}
	}

	if err := m.storage().SaveOperation(ctx, op); err != nil {
		return err
	}
	if err := m.queue.Enqueue(op); err != nil && !apperrors.Is(err, apperrors.ErrDuplicate) {
		return err
	}
	return m.storage().SaveSyncQueue(ctx, m.queue.List())
}

// localVersion returns the last known version of the entity op references,
// or 0 when it is not cached.
func (m *Manager) localVersion(ctx context.Context, op *models.SyncOperation) (int64, error) {
	switch op.Entity {
	case models.EntityOrder:
		id := op.EntityID()
		if id == "" {
			return 0, nil
		}
		o, err := store.Order(ctx, m.storage(), id)
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return o.Version, nil
	case models.EntityProfile:
		p, err := store.Profile(ctx, m.storage())
		if err != nil || p == nil {
			return 0, err
		}
		return p.Version, nil
	}
	return 0, nil
}

// Subscribe delivers the current state to listener immediately and then
// every state change, in order.
func (m *Manager) Subscribe(listener StateListener) func() {
	m.deliverMu.Lock()
	initialized := m.isInitialized()
	n := 0
	if initialized {
		n = m.pendingCount(context.Background())
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = listener
	if initialized {
		m.state.PendingOperations = n
	}
	snapshot := m.state.Clone()
	m.mu.Unlock()
	listener(snapshot)
	m.deliverMu.Unlock()

	var once gosync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// State returns a snapshot of the current state.
func (m *Manager) State() models.SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Store returns the store in use, which is a MemoryStore in degraded mode.
func (m *Manager) Store() store.Store {
	return m.storage()
}

func (m *Manager) storage() store.Store {
	m.storeMu.RLock()
	defer m.storeMu.RUnlock()
	return m.store
}

// Degraded reports whether the manager fell back to memory-only storage.
func (m *Manager) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// PendingOperations returns the persisted pending operations in order.
func (m *Manager) PendingOperations(ctx context.Context) ([]*models.SyncOperation, error) {
	return m.storage().GetPendingOperations(ctx)
}

// Conflicts returns the conflict log, newest last.
func (m *Manager) Conflicts(ctx context.Context) ([]models.ConflictLog, error) {
	return m.storage().ListConflicts(ctx)
}

// ClearAll wipes every local collection, the queue and the error log.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.queueMu.Lock()
	err := m.storage().ClearAll(ctx)
	if err == nil {
		m.queue.Clear()
	}
	m.queueMu.Unlock()
	if err != nil {
		return err
	}

	m.update(func(s *models.SyncState) {
		s.Errors = []models.SyncError{}
		s.LastSyncTime = 0
	})
	logging.Info("Local sync data cleared", nil)
	return nil
}

// Cleanup stops the periodic sweep, cancels pending follow-ups and
// unsubscribes from connectivity. A sweep already in flight runs to
// completion. The persisted queue is kept.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	if !m.initialized || m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	cancel := m.cancel
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.scheduler.Stop()
	m.wg.Wait()
	cancel()

	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()

	logging.Info("Sync manager stopped", nil)
}

// Wait blocks until background sweeps started so far have returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) isInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized && !m.closed
}

func (m *Manager) onConnectivity(status connectivity.Status) {
	m.update(func(s *models.SyncState) {
		s.IsOnline = status.IsOnline
	})

	if status.IsOnline {
		m.scheduler.Resume()
		m.goSweep()
		return
	}
	m.scheduler.Pause()
}

// goSweep starts a background sweep unless the manager is shut down.
func (m *Manager) goSweep() {
	m.mu.Lock()
	if !m.initialized || m.closed {
		m.mu.Unlock()
		return
	}
	bg := m.ctx
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(bg, m.opts.SweepTimeout)
		defer cancel()
		m.runSweep(ctx, "triggered")
	}()
}

func (m *Manager) scheduledSweep(ctx context.Context) {
	m.runSweep(ctx, "scheduled")
}

func (m *Manager) runSweep(ctx context.Context, trigger string) {
	result, err := m.Sync(ctx)
	if err != nil {
		logging.ErrorWithCode("Sync sweep failed", string(apperrors.CodeOf(err)), err,
			map[string]interface{}{"trigger": trigger})
		return
	}
	if result.Skipped {
		logging.Debug("Sync sweep skipped", map[string]interface{}{
			"trigger": trigger,
			"reason":  result.Reason,
		})
	}
}

// update applies fn to the state and delivers the new snapshot to every
// listener before the next mutation can happen. PendingOperations is always
// recounted from the persisted pending record.
func (m *Manager) update(fn func(s *models.SyncState)) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	n := m.pendingCount(context.Background())
	m.mu.Lock()
	fn(&m.state)
	m.state.PendingOperations = n
	if over := len(m.state.Errors) - m.opts.MaxErrors; over > 0 {
		m.state.Errors = append([]models.SyncError(nil), m.state.Errors[over:]...)
	}
	snapshot := m.state.Clone()
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]StateListener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, m.listeners[id])
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func (m *Manager) recordError(err error, operationID string) {
	entry := models.SyncError{
		Message:     apperrors.UserMessage(err),
		Code:        string(apperrors.CodeOf(err)),
		Timestamp:   models.NowMillis(),
		OperationID: operationID,
	}
	logging.ErrorWithCode("Sync error recorded", entry.Code, err, map[string]interface{}{
		"operation_id": operationID,
	})
	m.update(func(s *models.SyncState) {
		s.Errors = append(s.Errors, entry)
	})
}

// pendingCount reads the persisted pending record, falling back to the
// in-memory queue when the store cannot be read.
func (m *Manager) pendingCount(ctx context.Context) int {
	ops, err := m.storage().GetPendingOperations(ctx)
	if err != nil {
		logging.Warn("Could not count pending operations", map[string]interface{}{
			"error": err.Error(),
		})
		return m.queue.Size()
	}
	return len(ops)
}

func (m *Manager) broadcastPending() {
	m.update(func(*models.SyncState) {})
}
