package sanitize

import (
	"html"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dompi123/FOMO2025PART4/internal/models"
)

func strPtr(s string) *string { return &s }

// TestText verifies markup and script content are removed.
func TestText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`<script>alert("xss")</script>John`, "John"},
		{"<b>Ana</b> Lee", "Ana Lee"},
		{"  plain  ", "plain"},
		{"&lt;script&gt;alert(1)&lt;/script&gt;Bo", "Bo"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Text(tt.in), "input %q", tt.in)
	}
}

// TestText_deeplyEscaped verifies that markup escaped more times than the
// pass limit never comes back as a live tag.
func TestText_deeplyEscaped(t *testing.T) {
	in := `<script>alert(1)</script>John`
	for levels := 1; levels <= maxPasses+2; levels++ {
		in = html.EscapeString(in)
		got := Text(in)
		assert.NotContains(t, got, "<", "escaped %d times", levels)
		assert.NotContains(t, got, ">", "escaped %d times", levels)
		assert.Contains(t, got, "John", "escaped %d times", levels)
	}
}

// TestEmail verifies trimming and lower-casing.
func TestEmail(t *testing.T) {
	assert.Equal(t, "test@example.com", Email(" Test@Example.com "))
}

// TestProfilePatch verifies the documented profile cleaning.
func TestProfilePatch(t *testing.T) {
	in := &models.ProfilePatch{
		Email:       strPtr(" Test@Example.com "),
		Name:        strPtr(`<script>alert("xss")</script>John`),
		Preferences: map[string]interface{}{"theme": "dark"},
	}

	out := ProfilePatch(in)
	require.NotNil(t, out.Email)
	require.NotNil(t, out.Name)
	assert.Equal(t, "test@example.com", *out.Email)
	assert.Equal(t, "John", *out.Name)
	assert.Nil(t, out.Phone)
	assert.Equal(t, map[string]interface{}{"theme": "dark"}, out.Preferences)

	assert.Equal(t, " Test@Example.com ", *in.Email, "input must not change")
}

// TestProfilePatch_nestedPreferences verifies key-based rules apply inside preferences.
func TestProfilePatch_nestedPreferences(t *testing.T) {
	out := ProfilePatch(&models.ProfilePatch{
		Preferences: map[string]interface{}{
			"contactEmail": " A@B.io",
			"displayName":  "<i>Zed</i>",
			"bio":          "<i>kept</i>",
			"friends": []interface{}{
				map[string]interface{}{"nickname": "<b>Al</b>"},
			},
			"notifications": true,
		},
	})

	prefs := out.Preferences
	assert.Equal(t, "a@b.io", prefs["contactEmail"])
	assert.Equal(t, "Zed", prefs["displayName"])
	assert.Equal(t, "<i>kept</i>", prefs["bio"])
	assert.Equal(t, true, prefs["notifications"])

	friends := prefs["friends"].([]interface{})
	assert.Equal(t, "Al", friends[0].(map[string]interface{})["nickname"])
}

// TestPayload_order verifies order notes are stripped and ids trimmed.
func TestPayload_order(t *testing.T) {
	in := &models.OrderData{
		VenueID: " v1 ",
		Items:   []models.OrderItemData{{ID: "mojito", Quantity: 2, Notes: "<b>no ice</b>"}},
	}

	out, ok := Payload(in).(*models.OrderData)
	require.True(t, ok)
	assert.Equal(t, "v1", out.VenueID)
	assert.Equal(t, "no ice", out.Items[0].Notes)
	assert.Equal(t, "<b>no ice</b>", in.Items[0].Notes)
}

// TestPayload_nil verifies nil payloads pass through.
func TestPayload_nil(t *testing.T) {
	assert.Nil(t, Payload(nil))
	var d *models.OrderData
	assert.Equal(t, d, Payload(d))
}
