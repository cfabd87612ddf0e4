package payment

import (
	"context"
	"errors"
	"time"
)

// ErrProvider marks any failure talking to an external payment provider:
// transport errors, non-2xx responses, missing tokens, malformed bodies.
var ErrProvider = errors.New("payment provider failure")

// InitRequest carries what a provider needs to start collecting money for a booking.
type InitRequest struct {
	BookingID     int64
	PaymentID     int64
	CustomerID    int64
	Amount        int64 // minor units
	FirstName     string
	LastName      string
	Email         string
	Phone         string
	Address       string
	City          string
	CraftName     string
	CraftsmanName string
	BookingDate   time.Time
}

type InitResult struct {
	TransactionID string
	PaymentLink   string
	Token         string
}

type VerifyResult struct {
	Confirmed  bool
	PaidAmount int64
}

type RefundRequest struct {
	TransactionID string
	// GatewayTransactionID is the captured transaction when the callback reported it.
	GatewayTransactionID string
	Amount               int64
	Reason               string
}

type RefundResult struct {
	RefundTransactionID string
	RefundAmount        int64
	RefundDate          time.Time
}

// Strategy is a payment provider behind a uniform initialize/verify/refund contract.
// Implementations never retry; the caller decides on retry or compensation.
type Strategy interface {
	Initialize(ctx context.Context, req InitRequest) (*InitResult, error)
	Verify(ctx context.Context, transactionID string) (*VerifyResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	ProviderName() string
}
