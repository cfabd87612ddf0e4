package service

import (
	"context"
	"fmt"
	"time"

	"masterhand/internal/domain"
	"masterhand/internal/events"
	"masterhand/internal/logging"
	"masterhand/internal/models"
	"masterhand/internal/payment"

	"github.com/rs/zerolog"
)

// Deps are the collaborators shared by the booking flow services.
type Deps struct {
	Store    domain.Store
	Payments *payment.Registry
	Keys     domain.KeyStore
	Events   domain.EventPublisher
	Notifier domain.Notifier
	Clock    func() time.Time
	Logger   *zerolog.Logger
}

func (d Deps) withDefaults(component string) Deps {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Events == nil {
		d.Events = nopPublisher{}
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	d.Logger = logging.Component(d.Logger, component)
	return d
}

type nopPublisher struct{}

func (nopPublisher) PublishJSON(string, interface{}) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, models.Notification) {}

func (d Deps) publish(eventType string, payload interface{}) {
	if err := d.Events.PublishJSON(eventType, payload); err != nil {
		d.Logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish event")
	}
}

// notifyCustomer and notifyCraftsman resolve the recipient's chat and enqueue
// the message. Lookup failures are logged and swallowed.
func (d Deps) notifyCustomer(ctx context.Context, customerID int64, title, body string) {
	c, err := d.Store.GetCustomer(ctx, customerID)
	if err != nil {
		d.Logger.Warn().Err(err).Int64("customer_id", customerID).Msg("notification skipped")
		return
	}
	d.Notifier.Notify(ctx, models.Notification{UserID: c.ID, ChatID: c.TelegramID, Title: title, Body: body})
}

func (d Deps) notifyCraftsman(ctx context.Context, craftsmanID int64, title, body string) {
	c, err := d.Store.GetCraftsman(ctx, craftsmanID)
	if err != nil {
		d.Logger.Warn().Err(err).Int64("craftsman_id", craftsmanID).Msg("notification skipped")
		return
	}
	d.Notifier.Notify(ctx, models.Notification{UserID: c.ID, ChatID: c.TelegramID, Title: title, Body: body})
}

// advanceRequest moves a service request forward. Moves that are not forward are skipped.
func advanceRequest(ctx context.Context, repo domain.Repository, requestID *int64, to string) error {
	if requestID == nil {
		return nil
	}
	req, err := repo.GetServiceRequest(ctx, *requestID)
	if err != nil {
		return fmt.Errorf("failed to load service request %d: %w", *requestID, err)
	}
	if !models.CanAdvanceRequest(req.Status, to) {
		return nil
	}
	return repo.UpdateServiceRequestStatus(ctx, req.ID, to)
}

func bookingEvent(b *models.Booking) events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:        b.ID,
		CustomerID:       b.CustomerID,
		CraftsmanID:      b.CraftsmanID,
		OfferID:          b.OfferID,
		Status:           b.Status,
		BookingDate:      b.BookingDate,
		TotalAmount:      b.TotalAmount,
		RefundableAmount: b.RefundableAmount,
		Reason:           b.CancellationReason,
	}
}

func paymentEvent(p *models.Payment) events.PaymentEventPayload {
	return events.PaymentEventPayload{
		PaymentID:     p.ID,
		BookingID:     p.BookingID,
		Provider:      p.Provider,
		Status:        p.Status,
		Amount:        p.Amount,
		TransactionID: p.TransactionID,
		Reason:        p.FailureReason,
	}
}

func offerEvent(o *models.Offer) events.OfferEventPayload {
	return events.OfferEventPayload{
		OfferID:          o.ID,
		ServiceRequestID: o.ServiceRequestID,
		CraftsmanID:      o.CraftsmanID,
		Status:           o.Status,
		Price:            o.Price,
		Reason:           o.RejectionReason,
	}
}

func formatMoney(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}
