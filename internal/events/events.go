package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCompleted = "booking.completed"
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
	EventOfferSubmitted   = "offer.submitted"
	EventOfferAccepted    = "offer.accepted"
	EventOfferRejected    = "offer.rejected"
	EventOfferWithdrawn   = "offer.withdrawn"
)

// AllEventTypes lists every event the booking flow publishes.
var AllEventTypes = []string{
	EventBookingCreated, EventBookingConfirmed, EventBookingCancelled, EventBookingCompleted,
	EventPaymentCompleted, EventPaymentFailed, EventPaymentRefunded,
	EventOfferSubmitted, EventOfferAccepted, EventOfferRejected, EventOfferWithdrawn,
}

// BookingEventPayload describes the minimal booking snapshot for event consumers.
type BookingEventPayload struct {
	BookingID        int64     `json:"booking_id"`
	CustomerID       int64     `json:"customer_id"`
	CraftsmanID      int64     `json:"craftsman_id"`
	OfferID          int64     `json:"offer_id"`
	Status           string    `json:"status"`
	BookingDate      time.Time `json:"booking_date"`
	TotalAmount      int64     `json:"total_amount"`
	RefundableAmount int64     `json:"refundable_amount"`
	Reason           string    `json:"reason,omitempty"`
}

type PaymentEventPayload struct {
	PaymentID     int64  `json:"payment_id"`
	BookingID     int64  `json:"booking_id"`
	Provider      string `json:"provider"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

type OfferEventPayload struct {
	OfferID          int64  `json:"offer_id"`
	ServiceRequestID int64  `json:"service_request_id"`
	CraftsmanID      int64  `json:"craftsman_id"`
	Status           string `json:"status"`
	Price            int64  `json:"price"`
	Reason           string `json:"reason,omitempty"`
	RejectedCount    int    `json:"rejected_count,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus fans events out to in-process handlers. Handlers run synchronously
// in subscription order and their errors do not stop delivery.
type EventBus struct {
	mu       sync.RWMutex
	byType   map[string][]EventHandler
	wildcard []EventHandler
	now      func() time.Time
}

func NewEventBus() *EventBus {
	return &EventBus{byType: make(map[string][]EventHandler), now: time.Now}
}

// Subscribe registers a handler for one event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	b.byType[eventType] = append(b.byType[eventType], handler)
	b.mu.Unlock()
}

// SubscribeAll registers a handler that sees every published event.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	b.wildcard = append(b.wildcard, handler)
	b.mu.Unlock()
}

func (b *EventBus) Publish(event *Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = b.now()
	}

	b.mu.RLock()
	targets := make([]EventHandler, 0, len(b.byType[event.Type])+len(b.wildcard))
	targets = append(targets, b.byType[event.Type]...)
	targets = append(targets, b.wildcard...)
	b.mu.RUnlock()

	for _, h := range targets {
		_ = h(event)
	}
}

// PublishJSON marshals the payload and publishes it. A nil bus discards the event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	b.Publish(&Event{Type: eventType, Payload: raw})
	return nil
}
