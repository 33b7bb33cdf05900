package mockapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dompi123/FOMO2025PART4/internal/models"
	"github.com/Dompi123/FOMO2025PART4/internal/uuid"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetVenues(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	venues := make([]models.Venue, 0, len(s.venues))
	for _, v := range s.venues {
		venues = append(venues, v)
	}
	s.mu.Unlock()

	sort.Slice(venues, func(i, j int) bool { return venues[i].ID < venues[j].ID })
	writeJSON(w, http.StatusOK, venues, 0)
}

// validateOrder mirrors the service's 422 rules.
func (s *Server) validateOrder(d models.OrderData) map[string][]string {
	fields := make(map[string][]string)
	if d.VenueID == "" {
		fields["venueId"] = []string{"is required"}
	} else if _, ok := s.venues[d.VenueID]; !ok && len(s.venues) > 0 {
		fields["venueId"] = []string{"unknown venue"}
	}
	if len(d.Items) == 0 {
		fields["items"] = []string{"must contain at least 1 entry"}
	}
	for _, it := range d.Items {
		if it.Quantity < 1 {
			fields["items"] = append(fields["items"], "quantity must be at least 1")
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func toItems(in []models.OrderItemData) []models.OrderItem {
	out := make([]models.OrderItem, len(in))
	for i, it := range in {
		out[i] = models.OrderItem{ID: it.ID, Quantity: it.Quantity, Notes: it.Notes}
	}
	return out
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var d models.OrderData
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if fields := s.validateOrder(d); fields != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation failed", fields)
		return
	}

	now := time.Now().UTC()
	order := models.Order{
		ID:        uuid.New(),
		VenueID:   d.VenueID,
		Items:     toItems(d.Items),
		Status:    models.OrderPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.orders[order.ID] = order
	writeJSON(w, http.StatusCreated, order, order.Version)
}

func (s *Server) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var d models.OrderData
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		writeError(w, http.StatusNotFound, "order not found", nil)
		return
	}
	if v := ifMatch(r); v != 0 && v != order.Version {
		writeConflict(w, order, order.Version)
		return
	}
	if order.Status != models.OrderPending {
		writeError(w, http.StatusUnprocessableEntity, "order can no longer be changed",
			map[string][]string{"status": {order.Status}})
		return
	}
	if d.VenueID == "" {
		d.VenueID = order.VenueID
	}
	if fields := s.validateOrder(d); fields != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation failed", fields)
		return
	}

	order.VenueID = d.VenueID
	order.Items = toItems(d.Items)
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	s.orders[id] = order
	writeJSON(w, http.StatusOK, order, order.Version)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		writeError(w, http.StatusNotFound, "order not found", nil)
		return
	}
	if v := ifMatch(r); v != 0 && v != order.Version {
		writeConflict(w, order, order.Version)
		return
	}

	order.Status = models.OrderCancelled
	order.Version++
	order.UpdatedAt = time.Now().UTC()
	s.orders[id] = order
	writeJSON(w, http.StatusOK, order, order.Version)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p := s.profile.Apply(nil)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, p, p.Version)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch models.ProfilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v := ifMatch(r); v != 0 && v != s.profile.Version {
		writeConflict(w, s.profile, s.profile.Version)
		return
	}
	if patch.Email != nil && *patch.Email == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation failed",
			map[string][]string{"email": {"must not be empty"}})
		return
	}
	s.applyProfile(&patch)
	writeJSON(w, http.StatusOK, s.profile, s.profile.Version)
}

func (s *Server) applyProfile(patch *models.ProfilePatch) {
	version := s.profile.Version
	s.profile = s.profile.Apply(patch)
	s.profile.Version = version + 1
	s.profile.UpdatedAt = time.Now().UTC()
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v := ifMatch(r); v != 0 && v != s.profile.Version {
		writeConflict(w, s.profile, s.profile.Version)
		return
	}
	s.profile = models.Profile{ID: s.profile.ID, Version: s.profile.Version + 1}
	w.WriteHeader(http.StatusNoContent)
}

type forceRequest struct {
	Type    models.OperationType `json:"type"`
	Entity  models.EntityType    `json:"entity"`
	Data    json.RawMessage      `json:"data"`
	Version int64                `json:"version"`
	Force   bool                 `json:"force"`
}

func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	var req forceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if req.Entity != models.EntityProfile {
		writeError(w, http.StatusUnprocessableEntity, "only profile operations can be forced",
			map[string][]string{"entity": {string(req.Entity)}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.Type == models.OpDelete {
		s.profile = models.Profile{ID: s.profile.ID, Version: s.profile.Version + 1}
		writeJSON(w, http.StatusOK, s.profile, s.profile.Version)
		return
	}

	var patch models.ProfilePatch
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid profile data", nil)
			return
		}
	}
	s.applyProfile(&patch)
	writeJSON(w, http.StatusOK, s.profile, s.profile.Version)
}
