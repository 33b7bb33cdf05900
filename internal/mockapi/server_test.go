package mockapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dompi123/FOMO2025PART4/internal/models"
)

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// TestServer_auth verifies token enforcement outside the health route.
func TestServer_auth(t *testing.T) {
	s := New(WithToken("t"))

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/health", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/venues", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/venues", "",
		map[string]string{"Authorization": "Bearer t"}).Code)
}

// TestServer_profileIfMatch verifies version enforcement and ETag output.
func TestServer_profileIfMatch(t *testing.T) {
	s := New(WithProfile(models.Profile{ID: "u1", Name: "Ana", Version: 2}))

	rec := do(t, s, http.MethodPatch, "/profile", `{"name":"Bea"}`, map[string]string{"If-Match": `"2"`})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"3"`, rec.Header().Get("ETag"))

	rec = do(t, s, http.MethodPatch, "/profile", `{"name":"Cy"}`, map[string]string{"If-Match": `"2"`})
	require.Equal(t, http.StatusConflict, rec.Code)

	var body struct {
		Version int64          `json:"version"`
		Data    models.Profile `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Version)
	assert.Equal(t, "Bea", body.Data.Name)
}

// TestServer_failNext verifies injected failures are consumed in order.
func TestServer_failNext(t *testing.T) {
	s := New()
	s.FailNext(http.StatusServiceUnavailable, 2)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/venues", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/health", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/profile", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/profile", "", nil).Code)
	assert.Len(t, s.Calls(), 4)
}

// TestServer_orders verifies create, validation and cancel.
func TestServer_orders(t *testing.T) {
	s := New(WithVenues(models.Venue{ID: "v1"}))

	rec := do(t, s, http.MethodPost, "/orders", `{"venueId":"v1","items":[]}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, s, http.MethodPost, "/orders", `{"venueId":"v1","items":[{"id":"d","quantity":1}]}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	orders := s.Orders()
	require.Len(t, orders, 1)

	rec = do(t, s, http.MethodDelete, "/orders/"+orders[0].ID, "", map[string]string{"If-Match": `"1"`})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.OrderCancelled, s.Orders()[0].Status)

	rec = do(t, s, http.MethodPatch, "/orders/"+orders[0].ID, `{"items":[{"id":"d","quantity":2}]}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "cancelled orders cannot change")

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodDelete, "/orders/missing", "", nil).Code)
}

// TestServer_forceSync verifies only profile operations are accepted.
func TestServer_forceSync(t *testing.T) {
	s := New()

	rec := do(t, s, http.MethodPost, "/sync/force", `{"type":"create","entity":"order","data":{},"force":true}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, s, http.MethodPost, "/sync/force", `{"type":"update","entity":"profile","data":{"name":"X"},"version":0,"force":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "X", s.Profile().Name)
}
