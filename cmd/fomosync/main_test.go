package main

import (
	"bytes"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dompi123/FOMO2025PART4/internal/mockapi"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// setupEnv points the CLI at a fresh database and the given service.
func setupEnv(t *testing.T, baseURL string) {
	t.Helper()
	t.Setenv("FOMO_STORE_PATH", filepath.Join(t.TempDir(), "sync.db"))
	t.Setenv("FOMO_API_BASE_URL", baseURL)
	t.Setenv("FOMO_API_TOKEN", "secret")
	t.Setenv("FOMO_LOGGING_LEVEL", "error")
}

// TestCLI_queueSyncStatus verifies the queue, sync and status round trip
// against the mock service.
func TestCLI_queueSyncStatus(t *testing.T) {
	api := mockapi.New(
		mockapi.WithToken("secret"),
		mockapi.WithVenues(models.Venue{ID: "v1", Name: "Rooftop"}),
	)
	srv := httptest.NewServer(api)
	defer srv.Close()
	setupEnv(t, srv.URL)

	out, err := execute(t, "queue", "order", "--venue", "v1", "--item", "mojito:2", "--item", "nachos")
	require.NoError(t, err)
	assert.Contains(t, out, "Queued create order operation")
	assert.Contains(t, out, "(pending: 1)")

	out, err = execute(t, "queue", "profile", "--name", "<b>Ana</b>", "--pref", "theme=dark")
	require.NoError(t, err)
	assert.Contains(t, out, "(pending: 2)")

	out, err = execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending: 2")
	assert.Contains(t, out, "create order")
	assert.Contains(t, out, "update profile")

	out, err = execute(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "0 operation(s) pending")

	orders := api.Orders()
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Items, 2)
	assert.Equal(t, 2, orders[0].Items[0].Quantity)
	assert.Equal(t, "Ana", api.Profile().Name)
	assert.Equal(t, "dark", api.Profile().Preferences["theme"])

	out, err = execute(t, "status", "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "(online)")
	assert.Contains(t, out, "Pending: 0")
	assert.Contains(t, out, "Cached: 1 venue(s), 1 order(s)")
	assert.Contains(t, out, "Profile: Ana")
}

// TestCLI_syncUnreachable verifies queued work is kept when the service
// cannot be reached.
func TestCLI_syncUnreachable(t *testing.T) {
	srv := httptest.NewServer(mockapi.New())
	url := srv.URL
	srv.Close()
	setupEnv(t, url)

	_, err := execute(t, "queue", "order", "--venue", "v1", "--item", "mojito")
	require.NoError(t, err)

	out, err := execute(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Service unreachable")
	assert.Contains(t, out, "1 operation(s) remain queued")
}

// TestCLI_queueRejects verifies invalid input is reported and not queued.
func TestCLI_queueRejects(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	_, err := execute(t, "queue", "order", "--type", "bogus", "--venue", "v1", "--item", "mojito")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid operation type")

	_, err = execute(t, "queue", "order", "--venue", "v1")
	require.Error(t, err)

	_, err = execute(t, "queue", "order", "--venue", "v1", "--item", "mojito:lots")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid quantity")

	_, err = execute(t, "queue", "profile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to update")

	_, err = execute(t, "queue", "profile", "--id", "op-1", "--name", "Ana")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--id must be a UUID")

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Pending: 0")
}

// TestCLI_badConfig verifies configuration errors stop the command.
func TestCLI_badConfig(t *testing.T) {
	setupEnv(t, "not a url")

	_, err := execute(t, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url")
}

// TestParseItems verifies item flag parsing.
func TestParseItems(t *testing.T) {
	items, err := parseItems([]string{"mojito:3", "nachos"}, "no ice")
	require.NoError(t, err)
	assert.Equal(t, []models.OrderItemData{
		{ID: "mojito", Quantity: 3, Notes: "no ice"},
		{ID: "nachos", Quantity: 1, Notes: "no ice"},
	}, items)

	_, err = parseItems([]string{"x:"}, "")
	assert.Error(t, err)
}
