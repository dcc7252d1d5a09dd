package models

import "time"

type Review struct {
	ID         string    `json:"id"`
	ServiceID  string    `json:"service_id"`
	ReviewerID string    `json:"reviewer_id"`
	ReviewedID string    `json:"reviewed_id"`
	Rating     int       `json:"rating"` // 1..5
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}
