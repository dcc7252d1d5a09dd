package models

import "time"

// Status is the lifecycle state of a service request. Confirmation is a
// separate flag on the request, not a status of its own.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusConflicts  Status = "conflicts"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled, StatusConflicts:
		return true
	}
	return false
}

type Category string

const (
	CategoryCompany  Category = "company"
	CategoryTramit   Category = "tramit"
	CategoryMedicApp Category = "medic_app"
	CategoryOther    Category = "other"
)

type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// LiveLocation is the most recent position reported by one of the parties.
type LiveLocation struct {
	LatLng
	UpdatedAt time.Time `json:"updated_at"`
}

type ServiceRequest struct {
	ID                 string        `json:"id"`
	RequesterID        string        `json:"requester_id"`
	CompanionID        string        `json:"companion_id"` // empty until accepted
	Status             Status        `json:"status"`
	Category           Category      `json:"category"`
	AdditionalInfo     string        `json:"additional_info"`
	ScheduledStart     time.Time     `json:"scheduled_start"`
	Duration           int           `json:"duration"` // hours
	Origin             LatLng        `json:"origin"`
	OriginText         string        `json:"origin_text"`
	Price              int           `json:"price"`
	CompanionPayout    int           `json:"companion_payout"`
	PlatformCommission int           `json:"platform_commission"`
	CheckInTime        *time.Time    `json:"check_in_time"`
	CheckOutTime       *time.Time    `json:"check_out_time"`
	Confirmed          bool          `json:"confirmed"`
	Reviewed           bool          `json:"reviewed"`
	RequesterLive      *LiveLocation `json:"requester_live"`
	CompanionLive      *LiveLocation `json:"companion_live"`
	CreatedAt          time.Time     `json:"created_at"`
}

// SortKey orders requests by scheduled start, most recent first.
func (s *ServiceRequest) SortKey() int64 {
	return s.ScheduledStart.UnixMilli()
}
