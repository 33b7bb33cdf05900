// Package conflict provides version conflict resolution for queued operations.
//
// Venues are server-wins. The profile uses a field-level merge in which
// locally set preferences survive and every other field takes the server
// value. Order conflicts are terminal. Client-wins is reachable only through
// an explicit force request on a profile operation.
package conflict

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
	"github.com/Dompi123/FOMO2025PART4/internal/logging"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
	"github.com/Dompi123/FOMO2025PART4/internal/uuid"
)

// Policy is the default handling of a conflict for one entity type.
type Policy string

const (
	PolicyServerWins Policy = "server_wins"
	PolicyFieldMerge Policy = "field_merge"
	PolicyTerminal   Policy = "terminal"
)

// Action tells the caller what to do with the conflicting operation.
type Action int

const (
	// ActionAcceptServer drops the operation and keeps the server state.
	ActionAcceptServer Action = iota
	// ActionRequeue puts Result.Requeue back on the queue.
	ActionRequeue
	// ActionForce re-submits the operation with the force flag.
	ActionForce
	// ActionReject drops the operation and records a terminal error.
	ActionReject
)

func (a Action) String() string {
	switch a {
	case ActionAcceptServer:
		return "accept_server"
	case ActionRequeue:
		return "requeue"
	case ActionForce:
		return "force"
	case ActionReject:
		return "reject"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Conflict is a version mismatch reported by the server for one operation.
type Conflict struct {
	Operation     *models.SyncOperation
	LocalVersion  int64
	ServerVersion int64
	ServerState   json.RawMessage
	DetectedAt    int64 // epoch millis
}

// FromError extracts a Conflict from a SYNC_CONFLICT error.
func FromError(op *models.SyncOperation, err error) (*Conflict, bool) {
	appErr, ok := apperrors.As(err)
	if !ok || appErr.Code != apperrors.ErrSyncConflict {
		return nil, false
	}
	return &Conflict{
		Operation:     op,
		LocalVersion:  op.Version,
		ServerVersion: appErr.ServerVersion,
		ServerState:   appErr.ServerState,
		DetectedAt:    models.NowMillis(),
	}, true
}

// Result is the outcome of resolving one Conflict.
type Result struct {
	Action Action
	// Profile is the profile to store locally, when the operation was a
	// profile operation and the server state could be decoded.
	Profile *models.Profile
	// Order is the server's order, when it could be decoded.
	Order *models.Order
	// Requeue is the rebased operation for ActionRequeue.
	Requeue *models.SyncOperation
	// Err is the terminal error for ActionReject.
	Err         error
	ConflictLog models.ConflictLog
}

// Resolver applies per-entity conflict policies.
type Resolver struct {
	policies map[models.EntityType]Policy
}

// NewResolver creates a Resolver with the default policies.
func NewResolver() *Resolver {
	return &Resolver{
		policies: map[models.EntityType]Policy{
			models.EntityOrder:   PolicyTerminal,
			models.EntityProfile: PolicyFieldMerge,
		},
	}
}

// Policy returns the default policy for entity. Entities without a policy,
// such as venues, are server-wins.
func (r *Resolver) Policy(entity models.EntityType) Policy {
	if p, ok := r.policies[entity]; ok {
		return p
	}
	return PolicyServerWins
}

// Resolve decides how to settle c. local is the locally stored profile and
// may be nil; it is only consulted for profile conflicts.
func (r *Resolver) Resolve(c *Conflict, local *models.Profile) (*Result, error) {
	if c == nil || c.Operation == nil {
		return nil, ErrInvalidConflict
	}
	op := c.Operation

	logging.Warn("Version conflict detected", map[string]interface{}{
		"operation_id":   op.ID,
		"entity":         op.Entity,
		"type":           op.Type,
		"local_version":  c.LocalVersion,
		"server_version": c.ServerVersion,
		"resolution":     op.ConflictResolution,
	})

	var (
		res *Result
		err error
	)
	switch r.Policy(op.Entity) {
	case PolicyTerminal:
		res, err = r.resolveTerminal(c)
	case PolicyFieldMerge:
		res, err = r.resolveMerge(c, local)
	default:
		res = &Result{Action: ActionAcceptServer, ConflictLog: r.log(c, models.ResolutionServerWins)}
	}
	if err != nil {
		return nil, err
	}

	logging.Info("Conflict resolved", map[string]interface{}{
		"operation_id": op.ID,
		"entity":       op.Entity,
		"action":       res.Action.String(),
		"resolution":   res.ConflictLog.Resolution,
	})
	return res, nil
}

func (r *Resolver) resolveTerminal(c *Conflict) (*Result, error) {
	op := c.Operation
	res := &Result{
		Action: ActionReject,
		Err: apperrors.NewConflict(
			fmt.Sprintf("Order %s changed on the server; re-create it from current venue state", orderRef(op)),
			c.ServerVersion, c.ServerState),
		ConflictLog: r.log(c, models.ResolutionRejected),
	}

	if len(c.ServerState) > 0 {
		var o models.Order
		if err := json.Unmarshal(c.ServerState, &o); err == nil && o.ID != "" {
			if o.Version == 0 {
				o.Version = c.ServerVersion
			}
			res.Order = &o
		}
	}
	return res, nil
}

func (r *Resolver) resolveMerge(c *Conflict, local *models.Profile) (*Result, error) {
	op := c.Operation
	server, err := decodeProfile(c)
	if err != nil {
		return nil, err
	}

	if op.ConflictResolution == models.ResolutionClient {
		return &Result{
			Action:      ActionForce,
			Profile:     server,
			ConflictLog: r.log(c, models.ResolutionClientWins),
		}, nil
	}

	if op.ConflictResolution == models.ResolutionServer || op.Type == models.OpDelete || server == nil {
		return &Result{
			Action:      ActionAcceptServer,
			Profile:     server,
			ConflictLog: r.log(c, models.ResolutionServerWins),
		}, nil
	}

	merged := MergeProfile(*server, local)
	res := &Result{
		Action:      ActionAcceptServer,
		Profile:     &merged,
		ConflictLog: r.log(c, models.ResolutionMerged),
	}

	patch, _ := op.ProfilePatch()
	if patch != nil && len(patch.Preferences) > 0 {
		rebased := op.Clone()
		rebased.Data = &models.ProfilePatch{Preferences: patch.Preferences}
		rebased.Version = server.Version
		rebased.RetryCount++
		res.Action = ActionRequeue
		res.Requeue = rebased

		// Show the pending preferences until the rebased patch lands.
		withPending := merged.Apply(&models.ProfilePatch{Preferences: patch.Preferences})
		res.Profile = &withPending
	}
	return res, nil
}

// MergeProfile takes every field from server and overlays the preference
// keys of local on top of the server's preferences.
func MergeProfile(server models.Profile, local *models.Profile) models.Profile {
	if local == nil || len(local.Preferences) == 0 {
		return server.Apply(nil)
	}
	return server.Apply(&models.ProfilePatch{Preferences: local.Preferences})
}

func decodeProfile(c *Conflict) (*models.Profile, error) {
	if len(c.ServerState) == 0 || string(c.ServerState) == "null" {
		return nil, nil
	}
	var p models.Profile
	if err := json.Unmarshal(c.ServerState, &p); err != nil {
		return nil, fmt.Errorf("decode server profile: %w", err)
	}
	if p.Version == 0 {
		p.Version = c.ServerVersion
	}
	return &p, nil
}

func (r *Resolver) log(c *Conflict, resolution string) models.ConflictLog {
	return models.ConflictLog{
		ID:            uuid.New(),
		Entity:        string(c.Operation.Entity),
		EntityID:      c.Operation.EntityID(),
		OperationID:   c.Operation.ID,
		LocalVersion:  c.LocalVersion,
		ServerVersion: c.ServerVersion,
		Resolution:    resolution,
		DetectedAt:    c.DetectedAt,
	}
}

func orderRef(op *models.SyncOperation) string {
	if id := op.EntityID(); id != "" {
		return id
	}
	return "for operation " + op.ID
}

// Errors
var (
	ErrInvalidConflict = &ConflictError{Message: "invalid conflict: operation must be non-nil"}
)

// ConflictError represents a conflict resolution error.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}
