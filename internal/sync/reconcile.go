package sync

import (
	"context"
	stderrors "errors"
	"time"

	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
	"github.com/Dompi123/FOMO2025PART4/internal/gateway"
	"github.com/Dompi123/FOMO2025PART4/internal/logging"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
	"github.com/Dompi123/FOMO2025PART4/internal/store"
	"github.com/Dompi123/FOMO2025PART4/internal/sync/conflict"
	"github.com/Dompi123/FOMO2025PART4/internal/uuid"
)

// Refresh reconciles the cached venues and profile with the server.
func (m *Manager) Refresh(ctx context.Context) error {
	if !m.isInitialized() {
		return apperrors.New(apperrors.ErrInternal, "sync manager not initialized")
	}
	if !m.monitor.IsOnline() {
		return apperrors.NewNetwork("offline", 0, nil)
	}
	return m.reconcile(ctx)
}

// reconcile is the read path run after every sweep. Failures are returned
// for logging only; nothing is requeued.
func (m *Manager) reconcile(ctx context.Context) error {
	venuesErr := gateway.Retry(ctx, m.opts.ReconcileRetry, m.reconcileVenues)
	if venuesErr != nil {
		logging.Warn("Venue refresh failed", map[string]interface{}{"error": venuesErr.Error()})
	}
	profileErr := gateway.Retry(ctx, m.opts.ReconcileRetry, m.reconcileProfile)
	if profileErr != nil {
		logging.Warn("Profile refresh failed", map[string]interface{}{"error": profileErr.Error()})
	}
	return stderrors.Join(venuesErr, profileErr)
}

// reconcileVenues replaces the cached venues with the server list. A cached
// venue newer than the server's copy is logged as a server-wins conflict.
func (m *Manager) reconcileVenues(ctx context.Context) error {
	server, err := m.gateway.GetVenues(ctx)
	if err != nil {
		return err
	}

	local, err := store.Venues(ctx, m.storage())
	if err != nil {
		return err
	}
	cached := make(map[string]int64, len(local))
	for _, v := range local {
		cached[v.ID] = v.Version
	}

	for _, v := range server {
		if localVersion, ok := cached[v.ID]; ok && localVersion > v.Version {
			entry := models.ConflictLog{
				ID:            uuid.New(),
				Entity:        models.CollectionVenues,
				EntityID:      v.ID,
				LocalVersion:  localVersion,
				ServerVersion: v.Version,
				Resolution:    models.ResolutionServerWins,
				DetectedAt:    models.NowMillis(),
			}
			if err := m.storage().RecordConflict(ctx, entry); err != nil {
				logging.Error("Failed to record venue conflict", err, map[string]interface{}{
					"venue_id": v.ID,
				})
			}
		}
	}

	if err := store.ReplaceVenues(ctx, m.storage(), server); err != nil {
		return err
	}
	logging.Debug("Venues refreshed", map[string]interface{}{"count": len(server)})
	return nil
}

// reconcileProfile merges the server profile with the cached one: server
// fields win, cached preference keys survive.
func (m *Manager) reconcileProfile(ctx context.Context) error {
	server, err := m.gateway.GetProfile(ctx)
	if err != nil {
		return err
	}
	if server == nil {
		return nil
	}

	local, err := store.Profile(ctx, m.storage())
	if err != nil {
		return err
	}

	merged := conflict.MergeProfile(*server, local)
	merged.LastSyncedAt = time.Now().UTC()
	if err := store.SaveProfile(ctx, m.storage(), merged); err != nil {
		return err
	}

	logging.Debug("Profile refreshed", map[string]interface{}{
		"server_version": server.Version,
		"merged":         local != nil && len(local.Preferences) > 0,
	})
	return nil
}
