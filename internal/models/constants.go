package models

import "time"

const (
	RequestOpen          = "Open"
	RequestHasOffers     = "HasOffers"
	RequestOfferAccepted = "OfferAccepted"
	RequestInProgress    = "InProgress"
	RequestCompleted     = "Completed"
	RequestCancelled     = "Cancelled"
	RequestExpired       = "Expired"
)

const (
	OfferPending   = "Pending"
	OfferAccepted  = "Accepted"
	OfferRejected  = "Rejected"
	OfferWithdrawn = "Withdrawn"
	OfferExpired   = "Expired"
)

const (
	// BookingInProgress means the booking exists but is still awaiting payment.
	BookingInProgress = "InProgress"
	BookingConfirmed  = "Confirmed"
	BookingCompleted  = "Completed"
	BookingCancelled  = "Cancelled"
)

const (
	PaymentPending   = "Pending"
	PaymentCompleted = "Completed"
	PaymentFailed    = "Failed"
	PaymentRefunded  = "Refunded"
)

const (
	MethodCard   = "Card"
	MethodWallet = "Wallet"
	MethodCash   = "Cash"

	// DefaultPaymentMethod is used when the caller does not name a method.
	DefaultPaymentMethod = MethodCard
)

const (
	// AutoRejectReason is stored on competing offers when one offer is accepted.
	AutoRejectReason = "Another offer was accepted by the customer"

	// DefaultPaymentWindow is how long a customer has to pay for a new booking.
	DefaultPaymentWindow = 24 * time.Hour

	// DefaultLeadTime is used as the booking date when the request has no preferred date.
	DefaultLeadTime = 24 * time.Hour

	// DefaultMaxOffers caps the number of offers a request accepts.
	DefaultMaxOffers = 10
)

// IsTerminalRequestStatus reports whether a service request can no longer change.
func IsTerminalRequestStatus(status string) bool {
	switch status {
	case RequestCompleted, RequestCancelled, RequestExpired:
		return true
	default:
		return false
	}
}
