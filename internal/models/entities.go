package models

import "time"

// Collection names of the persisted entity stores.
const (
	CollectionVenues  = "venues"
	CollectionOrders  = "orders"
	CollectionProfile = "profile"
)

// ProfileID is the key of the singleton profile record.
const ProfileID = "profile"

// Order statuses.
const (
	OrderPending   = "pending"
	OrderConfirmed = "confirmed"
	OrderCompleted = "completed"
	OrderCancelled = "cancelled"
)

// Venue is a read-mostly venue record. The server always wins for venues.
type Venue struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Address     string    `json:"address,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Rating      float64   `json:"rating,omitempty"`
	Status      string    `json:"status,omitempty"`
	WaitTime    int       `json:"waitTime,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Version     int64     `json:"version"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// OrderItem is a line of a confirmed order.
type OrderItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name,omitempty"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

// Order is a drink order as known to the server.
type Order struct {
	ID        string      `json:"id"`
	VenueID   string      `json:"venueId"`
	Items     []OrderItem `json:"items"`
	Status    string      `json:"status"`
	Total     float64     `json:"total,omitempty"`
	Version   int64       `json:"version"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Profile is the singleton user profile.
type Profile struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Email        string                 `json:"email"`
	Phone        string                 `json:"phone,omitempty"`
	Preferences  map[string]interface{} `json:"preferences,omitempty"`
	Version      int64                  `json:"version"`
	UpdatedAt    time.Time              `json:"updatedAt"`
	LastSyncedAt time.Time              `json:"lastSyncedAt"`
}

// Apply returns a copy of p with the patch applied. Preference keys are
// overlaid one by one rather than replacing the whole map.
func (p Profile) Apply(patch *ProfilePatch) Profile {
	out := p
	out.Preferences = copyPrefs(p.Preferences)
	if patch == nil {
		return out
	}
	if patch.Name != nil {
		out.Name = *patch.Name
	}
	if patch.Email != nil {
		out.Email = *patch.Email
	}
	if patch.Phone != nil {
		out.Phone = *patch.Phone
	}
	if len(patch.Preferences) > 0 {
		if out.Preferences == nil {
			out.Preferences = make(map[string]interface{}, len(patch.Preferences))
		}
		for k, v := range patch.Preferences {
			out.Preferences[k] = v
		}
	}
	return out
}

func copyPrefs(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
