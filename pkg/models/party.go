package models

import "time"

type Role string

const (
	RoleRequester Role = "requester"
	RoleCompanion Role = "companion"
)

// Party is either a requester or a companion. Reputation is not stored on the
// row; it is derived from the party's review set.
type Party struct {
	ID                string    `json:"id"`
	Role              Role      `json:"role"`
	Name              string    `json:"name"`
	ChatID            int64     `json:"chat_id"` // telegram chat for notifications, 0 when unlinked
	Home              LatLng    `json:"home"`
	LocationText      string    `json:"location_text"`
	CompletedServices int       `json:"completed_services"`
	Verified          bool      `json:"verified"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
