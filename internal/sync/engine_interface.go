// Package sync provides the offline-first sync manager: the durable queue of
// pending mutations, single-flight sweeps against the REST service, conflict
// resolution and state broadcasting.
package sync

import (
	"context"

	"github.com/Dompi123/FOMO2025PART4/internal/connectivity"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
)

// SyncEngineInterface defines the surface the UI layer drives.
// This interface allows for mocking in tests and alternative implementations.
type SyncEngineInterface interface {
	// Init loads the persisted queue and starts background scheduling.
	Init(ctx context.Context) error

	// QueueOperation validates, sanitizes and persists a mutation. When
	// online it also starts a background sweep.
	QueueOperation(ctx context.Context, req OperationRequest) (*models.SyncOperation, error)

	// Sync runs one sweep. A sweep requested while another is running
	// returns a skipped result.
	Sync(ctx context.Context) (*SyncResult, error)

	// Refresh reconciles venues and the profile with the server.
	Refresh(ctx context.Context) error

	// Subscribe delivers the current state immediately and then every change.
	Subscribe(listener StateListener) func()

	// State returns a snapshot of the current state.
	State() models.SyncState

	// Cleanup stops background work. The persisted queue is kept.
	Cleanup()
}

// Gateway is the network surface the manager needs. *gateway.Client
// implements it.
type Gateway interface {
	CreateOrder(ctx context.Context, data *models.OrderData, version int64) (*models.Order, error)
	UpdateOrder(ctx context.Context, data *models.OrderData, version int64) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID string, version int64) (*models.Order, error)
	UpdateProfile(ctx context.Context, patch *models.ProfilePatch, version int64) (*models.Profile, error)
	DeleteProfile(ctx context.Context, version int64) error
	GetVenues(ctx context.Context) ([]models.Venue, error)
	GetProfile(ctx context.Context) (*models.Profile, error)
	ForceSyncOperation(ctx context.Context, op *models.SyncOperation) (*models.Profile, error)
}

// Connectivity is the online/offline source. *connectivity.Monitor
// implements it.
type Connectivity interface {
	IsOnline() bool
	Subscribe(l connectivity.Listener) func()
}

// StateListener receives SyncState snapshots. It runs synchronously and must
// not call back into the Manager's mutating methods.
type StateListener func(models.SyncState)

var _ SyncEngineInterface = (*Manager)(nil)
