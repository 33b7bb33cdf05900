// Package models provides data model definitions for the sync core.
package models

import (
	"encoding/json"
	"fmt"
)

// OperationType is the kind of mutation a SyncOperation performs.
type OperationType string

const (
	OpCreate OperationType = "create"
	OpUpdate OperationType = "update"
	OpDelete OperationType = "delete"
)

// Valid reports whether t is one of create, update or delete.
func (t OperationType) Valid() bool {
	switch t {
	case OpCreate, OpUpdate, OpDelete:
		return true
	}
	return false
}

// EntityType names the entity a SyncOperation mutates.
type EntityType string

const (
	EntityOrder   EntityType = "order"
	EntityProfile EntityType = "profile"
)

// Valid reports whether e is a mutable entity.
func (e EntityType) Valid() bool {
	return e == EntityOrder || e == EntityProfile
}

// ConflictResolution selects how a version conflict on this operation is settled.
type ConflictResolution string

const (
	// ResolutionDefault applies the per-entity policy.
	ResolutionDefault ConflictResolution = ""
	ResolutionServer  ConflictResolution = "server"
	// ResolutionClient forces the local version through. Honoured for profile only.
	ResolutionClient ConflictResolution = "client"
)

// Payload is the entity-specific body of a SyncOperation.
// It is implemented by *OrderData and *ProfilePatch only.
type Payload interface {
	PayloadEntity() EntityType
}

// OrderItemData is a single line of an order mutation.
type OrderItemData struct {
	ID       string `json:"id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=1"`
	Notes    string `json:"notes,omitempty"`
}

// OrderData is the payload of an order operation.
type OrderData struct {
	OrderID string          `json:"orderId,omitempty"`
	VenueID string          `json:"venueId" validate:"required"`
	Items   []OrderItemData `json:"items" validate:"required,min=1,dive"`
}

// PayloadEntity implements Payload.
func (*OrderData) PayloadEntity() EntityType { return EntityOrder }

// ProfilePatch is a partial profile update. Nil fields are left untouched.
type ProfilePatch struct {
	Name        *string                `json:"name,omitempty"`
	Email       *string                `json:"email,omitempty"`
	Phone       *string                `json:"phone,omitempty"`
	Preferences map[string]interface{} `json:"preferences,omitempty"`
}

// PayloadEntity implements Payload.
func (*ProfilePatch) PayloadEntity() EntityType { return EntityProfile }

// IsEmpty reports whether the patch sets nothing.
func (p *ProfilePatch) IsEmpty() bool {
	return p == nil || (p.Name == nil && p.Email == nil && p.Phone == nil && len(p.Preferences) == 0)
}

// SyncOperation is a single pending mutation awaiting transmission.
type SyncOperation struct {
	ID                 string             `json:"id"`
	Type               OperationType      `json:"type"`
	Entity             EntityType         `json:"entity"`
	Data               Payload            `json:"data"`
	Timestamp          int64              `json:"timestamp"` // epoch millis
	RetryCount         int                `json:"retryCount"`
	Version            int64              `json:"version"`
	ConflictResolution ConflictResolution `json:"conflictResolution,omitempty"`
}

// OrderData returns the order payload, if this is an order operation.
func (op *SyncOperation) OrderData() (*OrderData, bool) {
	d, ok := op.Data.(*OrderData)
	return d, ok && d != nil
}

// ProfilePatch returns the profile payload, if this is a profile operation.
func (op *SyncOperation) ProfilePatch() (*ProfilePatch, bool) {
	p, ok := op.Data.(*ProfilePatch)
	return p, ok && p != nil
}

// EntityID returns the id of the entity instance the operation references.
func (op *SyncOperation) EntityID() string {
	switch d := op.Data.(type) {
	case *OrderData:
		if d != nil {
			return d.OrderID
		}
	case *ProfilePatch:
		return ProfileID
	}
	return ""
}

// Clone returns a deep enough copy for independent retry bookkeeping.
func (op *SyncOperation) Clone() *SyncOperation {
	cp := *op
	switch d := op.Data.(type) {
	case *OrderData:
		if d != nil {
			od := *d
			od.Items = append([]OrderItemData(nil), d.Items...)
			cp.Data = &od
		}
	case *ProfilePatch:
		if d != nil {
			pp := *d
			if d.Preferences != nil {
				pp.Preferences = make(map[string]interface{}, len(d.Preferences))
				for k, v := range d.Preferences {
					pp.Preferences[k] = v
				}
			}
			cp.Data = &pp
		}
	}
	return &cp
}

type syncOperationJSON struct {
	ID                 string             `json:"id"`
	Type               OperationType      `json:"type"`
	Entity             EntityType         `json:"entity"`
	Data               json.RawMessage    `json:"data"`
	Timestamp          int64              `json:"timestamp"`
	RetryCount         int                `json:"retryCount"`
	Version            int64              `json:"version"`
	ConflictResolution ConflictResolution `json:"conflictResolution,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (op SyncOperation) MarshalJSON() ([]byte, error) {
	data := json.RawMessage("null")
	if op.Data != nil {
		b, err := json.Marshal(op.Data)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", op.Entity, err)
		}
		data = b
	}
	return json.Marshal(syncOperationJSON{
		ID:                 op.ID,
		Type:               op.Type,
		Entity:             op.Entity,
		Data:               data,
		Timestamp:          op.Timestamp,
		RetryCount:         op.RetryCount,
		Version:            op.Version,
		ConflictResolution: op.ConflictResolution,
	})
}

// UnmarshalJSON implements json.Unmarshaler. The payload type is chosen by entity.
func (op *SyncOperation) UnmarshalJSON(b []byte) error {
	var raw syncOperationJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	payload, err := DecodePayload(raw.Entity, raw.Data)
	if err != nil {
		return err
	}

	*op = SyncOperation{
		ID:                 raw.ID,
		Type:               raw.Type,
		Entity:             raw.Entity,
		Data:               payload,
		Timestamp:          raw.Timestamp,
		RetryCount:         raw.RetryCount,
		Version:            raw.Version,
		ConflictResolution: raw.ConflictResolution,
	}
	return nil
}

// DecodePayload decodes raw into the payload variant for entity.
func DecodePayload(entity EntityType, raw json.RawMessage) (Payload, error) {
	switch entity {
	case EntityOrder:
		var d OrderData
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &d); err != nil {
				return nil, fmt.Errorf("decode order payload: %w", err)
			}
		}
		return &d, nil
	case EntityProfile:
		var p ProfilePatch
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, fmt.Errorf("decode profile payload: %w", err)
			}
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
}
