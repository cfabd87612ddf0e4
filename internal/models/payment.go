package models

import "time"

type Payment struct {
	ID            int64  `json:"id"`
	BookingID     int64  `json:"booking_id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	Provider      string `json:"provider"`
	TransactionID string `json:"transaction_id,omitempty"` // gateway order id, the webhook lookup key
	// GatewayTransactionID is the processor's id for the captured transaction, stamped on completion.
	GatewayTransactionID string     `json:"gateway_transaction_id,omitempty"`
	RefundTransactionID  string     `json:"refund_transaction_id,omitempty"`
	FailureReason        string     `json:"failure_reason,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	RefundedAt           *time.Time `json:"refunded_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}
