// Package sanitize cleans operation payloads before they are persisted.
//
// Emails are trimmed and lower-cased. Name-like fields have every HTML tag
// removed, including the content of script and style elements, and entities
// decoded. The same rules apply to preference keys containing "email" or
// "name".
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/Dompi123/FOMO2025PART4/internal/models"
)

// maxPasses bounds the strip/unescape loop for input like "&lt;b&gt;".
const maxPasses = 4

var strict = bluemonday.StrictPolicy()

// Email normalizes an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var angleBrackets = strings.NewReplacer("<", "", ">", "")

// Text strips markup from s and returns plain text.
func Text(s string) string {
	out := s
	for i := 0; i < maxPasses; i++ {
		next := stripPass(out)
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	// Input still decoding into markup after maxPasses is kept only with
	// its angle brackets removed.
	if stripPass(out) != out {
		out = angleBrackets.Replace(out)
	}
	return strings.TrimSpace(out)
}

func stripPass(s string) string {
	return html.UnescapeString(strict.Sanitize(s))
}

// Payload returns a sanitized copy of p. The input is not modified.
func Payload(p models.Payload) models.Payload {
	switch d := p.(type) {
	case *models.OrderData:
		if d == nil {
			return d
		}
		return OrderData(d)
	case *models.ProfilePatch:
		if d == nil {
			return d
		}
		return ProfilePatch(d)
	}
	return p
}

// OrderData returns a sanitized copy of d. Only free-text notes change.
func OrderData(d *models.OrderData) *models.OrderData {
	out := *d
	out.Items = make([]models.OrderItemData, len(d.Items))
	for i, item := range d.Items {
		item.ID = strings.TrimSpace(item.ID)
		item.Notes = Text(item.Notes)
		out.Items[i] = item
	}
	out.OrderID = strings.TrimSpace(d.OrderID)
	out.VenueID = strings.TrimSpace(d.VenueID)
	return &out
}

// ProfilePatch returns a sanitized copy of p.
func ProfilePatch(p *models.ProfilePatch) *models.ProfilePatch {
	out := &models.ProfilePatch{}
	if p.Name != nil {
		v := Text(*p.Name)
		out.Name = &v
	}
	if p.Email != nil {
		v := Email(*p.Email)
		out.Email = &v
	}
	if p.Phone != nil {
		v := strings.TrimSpace(*p.Phone)
		out.Phone = &v
	}
	if p.Preferences != nil {
		out.Preferences = preferences(p.Preferences)
	}
	return out
}

func preferences(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = value(k, v)
	}
	return out
}

func value(key string, v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return field(key, t)
	case map[string]interface{}:
		return preferences(t)
	case []interface{}:
		list := make([]interface{}, len(t))
		for i, e := range t {
			list[i] = value(key, e)
		}
		return list
	}
	return v
}

func field(key, s string) string {
	k := strings.ToLower(key)
	switch {
	case strings.Contains(k, "email"):
		return Email(s)
	case strings.Contains(k, "name"):
		return Text(s)
	}
	return s
}
