package store

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
)

// Typed helpers over the generic entity API.

func toRecord(id string, version int64, updatedAt int64, v interface{}) (Record, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Record{}, apperrors.Wrap(apperrors.ErrInvalid, "encode entity", err)
	}
	return Record{ID: id, Version: version, UpdatedAt: updatedAt, Data: b}, nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func venueRecords(venues []models.Venue) ([]Record, error) {
	records := make([]Record, 0, len(venues))
	for _, v := range venues {
		r, err := toRecord(v.ID, v.Version, millis(v.UpdatedAt), v)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// SaveVenues upserts venues.
func SaveVenues(ctx context.Context, s Store, venues []models.Venue) error {
	records, err := venueRecords(venues)
	if err != nil {
		return err
	}
	return s.SaveEntities(ctx, models.CollectionVenues, records)
}

// ReplaceVenues makes venues the whole venue collection.
func ReplaceVenues(ctx context.Context, s Store, venues []models.Venue) error {
	records, err := venueRecords(venues)
	if err != nil {
		return err
	}
	return s.ReplaceEntities(ctx, models.CollectionVenues, records)
}

// Venues returns all cached venues sorted by id.
func Venues(ctx context.Context, s Store) ([]models.Venue, error) {
	records, err := s.GetEntities(ctx, models.CollectionVenues)
	if err != nil {
		return nil, err
	}
	out := make([]models.Venue, 0, len(records))
	for _, r := range records {
		var v models.Venue
		if err := json.Unmarshal(r.Data, &v); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "decode venue "+r.ID, err)
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveOrder upserts one order.
func SaveOrder(ctx context.Context, s Store, o models.Order) error {
	r, err := toRecord(o.ID, o.Version, millis(o.UpdatedAt), o)
	if err != nil {
		return err
	}
	return s.SaveEntities(ctx, models.CollectionOrders, []Record{r})
}

// Order returns the order with id, or NOT_FOUND.
func Order(ctx context.Context, s Store, id string) (*models.Order, error) {
	r, err := s.GetEntity(ctx, models.CollectionOrders, id)
	if err != nil {
		return nil, err
	}
	var o models.Order
	if err := json.Unmarshal(r.Data, &o); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "decode order "+id, err)
	}
	return &o, nil
}

// Orders returns all cached orders sorted by id.
func Orders(ctx context.Context, s Store) ([]models.Order, error) {
	records, err := s.GetEntities(ctx, models.CollectionOrders)
	if err != nil {
		return nil, err
	}
	out := make([]models.Order, 0, len(records))
	for _, r := range records {
		var o models.Order
		if err := json.Unmarshal(r.Data, &o); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "decode order "+r.ID, err)
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveProfile stores the singleton profile.
func SaveProfile(ctx context.Context, s Store, p models.Profile) error {
	r, err := toRecord(models.ProfileID, p.Version, millis(p.UpdatedAt), p)
	if err != nil {
		return err
	}
	return s.SaveEntities(ctx, models.CollectionProfile, []Record{r})
}

// Profile returns the stored profile, or nil when none has been saved.
func Profile(ctx context.Context, s Store) (*models.Profile, error) {
	r, err := s.GetEntity(ctx, models.CollectionProfile, models.ProfileID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p models.Profile
	if err := json.Unmarshal(r.Data, &p); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "decode profile", err)
	}
	return &p, nil
}
