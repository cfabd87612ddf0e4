package models

import "time"

type Booking struct {
	ID                 int64      `json:"id"`
	CustomerID         int64      `json:"customer_id"`
	CraftsmanID        int64      `json:"craftsman_id"`
	CraftID            int64      `json:"craft_id"`
	ServiceRequestID   *int64     `json:"service_request_id,omitempty"`
	OfferID            int64      `json:"offer_id"`
	BookingDate        time.Time  `json:"booking_date"`
	TotalAmount        int64      `json:"total_amount"`
	RefundableAmount   int64      `json:"refundable_amount"`
	PaymentDeadline    time.Time  `json:"payment_deadline"`
	Status             string     `json:"status"` // InProgress, Confirmed, Completed, Cancelled
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Version            int64      `json:"version"`
}
