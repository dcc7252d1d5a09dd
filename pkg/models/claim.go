package models

import "time"

type ClaimStatus string

const (
	ClaimOpen     ClaimStatus = "open"
	ClaimResolved ClaimStatus = "resolved"
	ClaimRejected ClaimStatus = "rejected"
	ClaimDeleted  ClaimStatus = "deleted"
)

// Claim is a dispute raised by a requester against a completed service.
// Deletion is soft: the row stays, DeletedDate marks it.
type Claim struct {
	ID          string      `json:"id"`
	ServiceID   string      `json:"service_id"`
	RequesterID string      `json:"requester_id"`
	CompanionID string      `json:"companion_id"`
	Reason      string      `json:"reason"`
	Description string      `json:"description"`
	Status      ClaimStatus `json:"status"`
	Response    *string     `json:"response"`
	CreatedAt   time.Time   `json:"created_at"`
	DeletedDate *time.Time  `json:"deleted_date"`
}
