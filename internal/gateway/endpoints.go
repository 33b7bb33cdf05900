package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
)

// Endpoint paths.
const (
	PathOrders    = "/orders"
	PathProfile   = "/profile"
	PathVenues    = "/venues"
	PathForceSync = "/sync/force"
)

// ForceRequest is the body of a force-sync call. The server skips its
// version check when Force is set.
type ForceRequest struct {
	Type    models.OperationType `json:"type"`
	Entity  models.EntityType    `json:"entity"`
	Data    models.Payload       `json:"data"`
	Version int64                `json:"version"`
	Force   bool                 `json:"force"`
}

func decodeInto(resp *Response, v interface{}, what string) error {
	if len(resp.Data) == 0 {
		return apperrors.New(apperrors.ErrSyncFailed, "empty "+what+" response")
	}
	if err := json.Unmarshal(resp.Data, v); err != nil {
		return apperrors.Wrap(apperrors.ErrSyncFailed, "failed to decode "+what, err)
	}
	return nil
}

func decodeOrder(resp *Response) (*models.Order, error) {
	var o models.Order
	if err := decodeInto(resp, &o, "order"); err != nil {
		return nil, err
	}
	if resp.Version > 0 {
		o.Version = resp.Version
	}
	return &o, nil
}

func decodeProfile(resp *Response) (*models.Profile, error) {
	var p models.Profile
	if err := decodeInto(resp, &p, "profile"); err != nil {
		return nil, err
	}
	if resp.Version > 0 {
		p.Version = resp.Version
	}
	return &p, nil
}

func orderPath(id string) string {
	return PathOrders + "/" + url.PathEscape(id)
}

// CreateOrder submits a new order and returns the canonical record.
func (c *Client) CreateOrder(ctx context.Context, data *models.OrderData, version int64) (*models.Order, error) {
	resp, err := c.Request(ctx, http.MethodPost, PathOrders, data, version)
	if err != nil {
		return nil, err
	}
	return decodeOrder(resp)
}

// UpdateOrder changes an existing order.
func (c *Client) UpdateOrder(ctx context.Context, data *models.OrderData, version int64) (*models.Order, error) {
	resp, err := c.Request(ctx, http.MethodPatch, orderPath(data.OrderID), data, version)
	if err != nil {
		return nil, err
	}
	return decodeOrder(resp)
}

// CancelOrder cancels an order and returns its final state.
func (c *Client) CancelOrder(ctx context.Context, orderID string, version int64) (*models.Order, error) {
	resp, err := c.Request(ctx, http.MethodDelete, orderPath(orderID), nil, version)
	if err != nil {
		return nil, err
	}
	return decodeOrder(resp)
}

// UpdateProfile applies a partial profile update.
func (c *Client) UpdateProfile(ctx context.Context, patch *models.ProfilePatch, version int64) (*models.Profile, error) {
	resp, err := c.Request(ctx, http.MethodPatch, PathProfile, patch, version)
	if err != nil {
		return nil, err
	}
	return decodeProfile(resp)
}

// DeleteProfile deletes the account profile.
func (c *Client) DeleteProfile(ctx context.Context, version int64) error {
	_, err := c.Request(ctx, http.MethodDelete, PathProfile, nil, version)
	return err
}

// GetVenues fetches the current venue list.
func (c *Client) GetVenues(ctx context.Context) ([]models.Venue, error) {
	resp, err := c.Request(ctx, http.MethodGet, PathVenues, nil, 0)
	if err != nil {
		return nil, err
	}
	var venues []models.Venue
	if err := decodeInto(resp, &venues, "venues"); err != nil {
		return nil, err
	}
	return venues, nil
}

// GetProfile fetches the server profile.
func (c *Client) GetProfile(ctx context.Context) (*models.Profile, error) {
	resp, err := c.Request(ctx, http.MethodGet, PathProfile, nil, 0)
	if err != nil {
		return nil, err
	}
	return decodeProfile(resp)
}

// ForceSyncOperation re-submits op bypassing the server's version check.
// Only profile operations may be forced.
func (c *Client) ForceSyncOperation(ctx context.Context, op *models.SyncOperation) (*models.Profile, error) {
	if op.Entity != models.EntityProfile {
		return nil, apperrors.New(apperrors.ErrInvalid,
			fmt.Sprintf("force sync is not allowed for %s operations", op.Entity))
	}

	body := ForceRequest{
		Type:    op.Type,
		Entity:  op.Entity,
		Data:    op.Data,
		Version: op.Version,
		Force:   true,
	}
	resp, err := c.Request(ctx, http.MethodPost, PathForceSync, body, 0)
	if err != nil {
		return nil, err
	}
	if op.Type == models.OpDelete {
		return nil, nil
	}
	return decodeProfile(resp)
}

// Health probes the reachability endpoint with a HEAD request.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Request(ctx, http.MethodHead, c.config.HealthPath, nil, 0)
	return err
}
