package models

import "time"

// Offer is a craftsman's bid against a service request.
type Offer struct {
	ID                int64      `json:"id"`
	ServiceRequestID  int64      `json:"service_request_id"`
	CraftsmanID       int64      `json:"craftsman_id"`
	Price             int64      `json:"price"`              // minor units
	EstimatedDuration int        `json:"estimated_duration"` // minutes
	Notes             string     `json:"notes,omitempty"`
	Status            string     `json:"status"`
	RejectionReason   string     `json:"rejection_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	AcceptedAt        *time.Time `json:"accepted_at,omitempty"`
	RejectedAt        *time.Time `json:"rejected_at,omitempty"`
	WithdrawnAt       *time.Time `json:"withdrawn_at,omitempty"`
}
