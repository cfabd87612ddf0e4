package domain

import (
	"context"
	"time"

	"masterhand/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Repository is the data-access port used by the booking flow. Implementations
// return database.ErrNotFound for missing rows and database.ErrConcurrentModification
// when a conditional status transition finds the row in an unexpected state.
type Repository interface {
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	GetCraftsman(ctx context.Context, id int64) (*models.Craftsman, error)
	GetCraft(ctx context.Context, id int64) (*models.Craft, error)

	GetServiceRequest(ctx context.Context, id int64) (*models.ServiceRequest, error)
	UpdateServiceRequestStatus(ctx context.Context, id int64, status string) error
	IncrementOfferCount(ctx context.Context, id int64, status string) error

	CreateOffer(ctx context.Context, offer *models.Offer) error
	GetOffer(ctx context.Context, id int64) (*models.Offer, error)
	GetOfferForCustomer(ctx context.Context, customerID, offerID int64) (*models.Offer, error)
	GetOfferForCraftsman(ctx context.Context, craftsmanID, offerID int64) (*models.Offer, error)
	ListOffersByRequest(ctx context.Context, requestID int64) ([]*models.Offer, error)
	TransitionOfferStatus(ctx context.Context, id int64, from, to, reason string, at time.Time) error

	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingForCustomer(ctx context.Context, customerID, bookingID int64) (*models.Booking, error)
	GetBookingForCraftsman(ctx context.Context, craftsmanID, bookingID int64) (*models.Booking, error)
	GetBookingByOffer(ctx context.Context, offerID int64) (*models.Booking, error)
	TransitionBookingStatus(ctx context.Context, id int64, from, to string, at time.Time) error
	CancelBooking(ctx context.Context, id int64, from, reason string, refundable int64, at time.Time) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	GetActivePaymentForBooking(ctx context.Context, bookingID int64) (*models.Payment, error)
	SetPaymentTransactionID(ctx context.Context, id int64, transactionID string) error
	CompletePayment(ctx context.Context, id int64, gatewayTransactionID string, paidAt time.Time) error
	FailPayment(ctx context.Context, id int64, reason string) error
	RefundPayment(ctx context.Context, id int64, refundTransactionID string, refundedAt time.Time) error
	DeletePendingPayment(ctx context.Context, id int64) error
}

// Store is a Repository with an explicit transactional boundary. The function
// passed to InTx sees a Repository bound to one transaction; returning an error
// rolls every write back.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(repo Repository) error) error
}

// KeyStore holds short-lived keys used as in-flight guards and rate-limit counters.
type KeyStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers a message to a user without blocking the caller.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
