package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"masterhand/internal/database"
	"masterhand/internal/domain"
	"masterhand/internal/events"
	"masterhand/internal/metrics"
	"masterhand/internal/models"
	"masterhand/internal/payment"
)

// BookingService turns an accepted offer into a booking with a pending payment
// and drives the booking through confirmation and completion.
type BookingService struct {
	Deps
	paymentWindow time.Duration
	leadTime      time.Duration
}

func NewBookingService(deps Deps, paymentWindow, leadTime time.Duration) *BookingService {
	if paymentWindow <= 0 {
		paymentWindow = models.DefaultPaymentWindow
	}
	if leadTime <= 0 {
		leadTime = models.DefaultLeadTime
	}
	return &BookingService{
		Deps:          deps.withDefaults("booking_service"),
		paymentWindow: paymentWindow,
		leadTime:      leadTime,
	}
}

// BookingPayment is what the customer needs to pay for a new booking.
type BookingPayment struct {
	BookingID       int64     `json:"booking_id"`
	PaymentID       int64     `json:"payment_id"`
	Provider        string    `json:"provider"`
	Amount          int64     `json:"amount"`
	TransactionID   string    `json:"transaction_id,omitempty"`
	PaymentLink     string    `json:"payment_link,omitempty"`
	Token           string    `json:"token,omitempty"`
	PaymentDeadline time.Time `json:"payment_deadline"`
}

type PaymentVerification struct {
	PaymentID  int64  `json:"payment_id"`
	Status     string `json:"status"`
	Confirmed  bool   `json:"confirmed"`
	PaidAmount int64  `json:"paid_amount"`
}

type bookingParties struct {
	request   *models.ServiceRequest
	customer  *models.Customer
	craftsman *models.Craftsman
	craft     *models.Craft
}

// CreateAndInitiatePayment creates a booking from an accepted offer, records a
// pending payment and starts collection with the chosen provider.
//
// A provider failure is returned together with a non-nil result that names the
// booking and the still pending payment. Nothing is rolled back; calling again
// for the same offer retries initialization, and DeletePayment abandons the attempt.
// A payment whose order was already created is never initialized twice: a new
// call opens a fresh payment and the earlier order stays payable.
func (s *BookingService) CreateAndInitiatePayment(ctx context.Context, customerID, offerID int64, method string) (*BookingPayment, error) {
	strategy, err := s.Payments.Resolve(method)
	if err != nil {
		return nil, validation("unsupported payment method %q", method)
	}

	offer, err := s.Store.GetOfferForCustomer(ctx, customerID, offerID)
	if err != nil {
		return nil, lookup(err, "offer %d not found", offerID)
	}
	if offer.Status != models.OfferAccepted {
		return nil, invalidState("offer is %s; only accepted offers can be booked", offer.Status)
	}

	parties, err := s.loadParties(ctx, offer)
	if err != nil {
		return nil, err
	}

	now := s.Clock().UTC()
	booking, pay, created, err := s.createOrResume(ctx, offer, parties, strategy.ProviderName(), now)
	if err != nil {
		return nil, err
	}
	if created {
		s.Logger.Info().
			Int64("booking_id", booking.ID).
			Int64("payment_id", pay.ID).
			Int64("offer_id", offer.ID).
			Str("provider", pay.Provider).
			Msg("booking created")
		s.publish(events.EventBookingCreated, bookingEvent(booking))
	}

	out := &BookingPayment{
		BookingID:       booking.ID,
		PaymentID:       pay.ID,
		Provider:        pay.Provider,
		Amount:          pay.Amount,
		PaymentDeadline: booking.PaymentDeadline,
	}

	started, err := strategy.Initialize(ctx, payment.InitRequest{
		BookingID:     booking.ID,
		PaymentID:     pay.ID,
		CustomerID:    parties.customer.ID,
		Amount:        pay.Amount,
		FirstName:     parties.customer.FirstName,
		LastName:      parties.customer.LastName,
		Email:         parties.customer.Email,
		Phone:         parties.customer.Phone,
		Address:       firstNonEmpty(parties.request.Address, parties.customer.Address),
		City:          parties.customer.City,
		CraftName:     parties.craft.Name,
		CraftsmanName: parties.craftsman.FullName(),
		BookingDate:   booking.BookingDate,
	})
	metrics.IncPaymentInit(pay.Provider, err == nil)
	if err != nil {
		s.Logger.Error().Err(err).
			Int64("booking_id", booking.ID).
			Int64("payment_id", pay.ID).
			Str("provider", pay.Provider).
			Msg("payment initialization failed")
		return out, providerFailure("payment provider could not initialize the payment", err)
	}

	if err := s.Store.SetPaymentTransactionID(ctx, pay.ID, started.TransactionID); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			s.Logger.Warn().Int64("payment_id", pay.ID).Str("order_id", started.TransactionID).
				Msg("discarding order from a concurrent initialization")
			return out, invalidState("payment was initialized concurrently or is no longer pending; retry to get a payment link")
		}
		return out, fmt.Errorf("failed to store transaction id: %w", err)
	}

	out.TransactionID = started.TransactionID
	out.PaymentLink = started.PaymentLink
	out.Token = started.Token

	if created {
		s.notifyCraftsman(ctx, booking.CraftsmanID, "New booking",
			fmt.Sprintf("A booking for %s was created and awaits payment.", booking.BookingDate.Format("2006-01-02 15:04")))
	}
	return out, nil
}

func (s *BookingService) loadParties(ctx context.Context, offer *models.Offer) (*bookingParties, error) {
	var p bookingParties
	var err error
	if p.request, err = s.Store.GetServiceRequest(ctx, offer.ServiceRequestID); err != nil {
		return nil, lookup(err, "service request %d not found", offer.ServiceRequestID)
	}
	if p.craftsman, err = s.Store.GetCraftsman(ctx, offer.CraftsmanID); err != nil {
		return nil, lookup(err, "craftsman %d not found", offer.CraftsmanID)
	}
	if p.customer, err = s.Store.GetCustomer(ctx, p.request.CustomerID); err != nil {
		return nil, lookup(err, "customer %d not found", p.request.CustomerID)
	}
	if p.craft, err = s.Store.GetCraft(ctx, p.request.CraftID); err != nil {
		return nil, lookup(err, "craft %d not found", p.request.CraftID)
	}
	return &p, nil
}

// createOrResume persists a new booking and its pending payment in one
// transaction. If the offer was already booked and is still awaiting payment,
// it returns the existing booking with its pending payment, or a fresh payment
// when the previous attempt failed or was deleted.
func (s *BookingService) createOrResume(
	ctx context.Context,
	offer *models.Offer,
	parties *bookingParties,
	provider string,
	now time.Time,
) (*models.Booking, *models.Payment, bool, error) {
	var booking *models.Booking
	var pay *models.Payment
	created := false

	err := s.Store.InTx(ctx, func(repo domain.Repository) error {
		existing, err := repo.GetBookingByOffer(ctx, offer.ID)
		switch {
		case err == nil:
			if existing.Status != models.BookingInProgress {
				return invalidState("offer is already booked (booking %s)", existing.Status)
			}
			booking = existing
			return s.resumePayment(ctx, repo, booking, provider, &pay)
		case !errors.Is(err, database.ErrNotFound):
			return err
		}

		bookingDate := now.Add(s.leadTime)
		if parties.request.PreferredDate != nil {
			bookingDate = parties.request.PreferredDate.UTC()
		}
		requestID := parties.request.ID
		booking = &models.Booking{
			CustomerID:       parties.customer.ID,
			CraftsmanID:      parties.craftsman.ID,
			CraftID:          parties.craft.ID,
			ServiceRequestID: &requestID,
			OfferID:          offer.ID,
			BookingDate:      bookingDate,
			TotalAmount:      offer.Price,
			RefundableAmount: offer.Price,
			PaymentDeadline:  now.Add(s.paymentWindow),
			Status:           models.BookingInProgress,
		}
		if err := repo.CreateBooking(ctx, booking); err != nil {
			if errors.Is(err, database.ErrDuplicateBooking) {
				return invalidState("service request is already booked")
			}
			return err
		}

		pay = &models.Payment{
			BookingID: booking.ID,
			Amount:    booking.TotalAmount,
			Status:    models.PaymentPending,
			Provider:  provider,
		}
		if err := repo.CreatePayment(ctx, pay); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return booking, pay, created, nil
}

func (s *BookingService) resumePayment(ctx context.Context, repo domain.Repository, booking *models.Booking, provider string, out **models.Payment) error {
	current, err := repo.GetActivePaymentForBooking(ctx, booking.ID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}
	if err == nil {
		switch current.Status {
		case models.PaymentCompleted, models.PaymentRefunded:
			return invalidState("booking is already paid")
		case models.PaymentPending:
			// An attempt whose order exists stays behind the new one so its
			// callback still resolves. Only an uninitialized attempt is reused
			// or dropped.
			if current.TransactionID == "" {
				if current.Provider == provider {
					*out = current
					return nil
				}
				if err := repo.DeletePendingPayment(ctx, current.ID); err != nil {
					return err
				}
			}
		}
	}

	pay := &models.Payment{
		BookingID: booking.ID,
		Amount:    booking.TotalAmount,
		Status:    models.PaymentPending,
		Provider:  provider,
	}
	if err := repo.CreatePayment(ctx, pay); err != nil {
		return err
	}
	*out = pay
	return nil
}

// ConfirmBooking moves a booking from awaiting payment to Confirmed. The
// booking's payment must already be Completed.
func (s *BookingService) ConfirmBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	var booking *models.Booking
	err := s.Store.InTx(ctx, func(repo domain.Repository) error {
		pay, err := repo.GetActivePaymentForBooking(ctx, bookingID)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return err
		}
		if pay == nil || pay.Status != models.PaymentCompleted {
			return invalidState("booking %d has no completed payment", bookingID)
		}
		booking, err = confirmBooking(ctx, repo, bookingID, s.Clock().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.afterConfirm(ctx, booking)
	return booking, nil
}

// confirmBooking performs InProgress -> Confirmed and advances the originating
// request. It must run inside a transaction.
func confirmBooking(ctx context.Context, repo domain.Repository, bookingID int64, now time.Time) (*models.Booking, error) {
	booking, err := repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, lookup(err, "booking %d not found", bookingID)
	}
	if booking.Status != models.BookingInProgress {
		return nil, invalidState("booking is %s; only bookings awaiting payment can be confirmed", booking.Status)
	}
	if err := repo.TransitionBookingStatus(ctx, booking.ID, models.BookingInProgress, models.BookingConfirmed, now); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return nil, invalidState("booking was changed by another request")
		}
		return nil, err
	}
	booking.Status = models.BookingConfirmed
	booking.ConfirmedAt = &now
	booking.Version++

	if err := advanceRequest(ctx, repo, booking.ServiceRequestID, models.RequestOfferAccepted); err != nil {
		return nil, err
	}
	return booking, nil
}

func (s *BookingService) afterConfirm(ctx context.Context, booking *models.Booking) {
	s.Logger.Info().Int64("booking_id", booking.ID).Msg("booking confirmed")
	s.publish(events.EventBookingConfirmed, bookingEvent(booking))
	when := booking.BookingDate.Format("2006-01-02 15:04")
	s.notifyCustomer(ctx, booking.CustomerID, "Booking confirmed", "Your booking on "+when+" is confirmed.")
	s.notifyCraftsman(ctx, booking.CraftsmanID, "Booking confirmed", "The customer paid. Booking on "+when+" is confirmed.")
}

// VerifyPayment asks the provider for the current state of a payment. It never changes local state.
func (s *BookingService) VerifyPayment(ctx context.Context, customerID, paymentID int64) (*PaymentVerification, error) {
	pay, err := s.customerPayment(ctx, customerID, paymentID)
	if err != nil {
		return nil, err
	}
	if pay.TransactionID == "" {
		return nil, invalidState("payment %d was never initialized", paymentID)
	}
	strategy, err := s.Payments.Resolve(pay.Provider)
	if err != nil {
		return nil, fmt.Errorf("payment %d has unknown provider: %w", paymentID, err)
	}
	res, err := strategy.Verify(ctx, pay.TransactionID)
	if err != nil {
		return nil, providerFailure("payment provider could not verify the payment", err)
	}
	return &PaymentVerification{
		PaymentID:  pay.ID,
		Status:     pay.Status,
		Confirmed:  res.Confirmed,
		PaidAmount: res.PaidAmount,
	}, nil
}

// DeletePayment removes a pending payment record. It compensates a failed
// initialization; other payment states are immutable.
func (s *BookingService) DeletePayment(ctx context.Context, customerID, paymentID int64) error {
	pay, err := s.customerPayment(ctx, customerID, paymentID)
	if err != nil {
		return err
	}
	if pay.Status != models.PaymentPending {
		return invalidState("payment is %s; only pending payments can be deleted", pay.Status)
	}
	if err := s.Store.DeletePendingPayment(ctx, pay.ID); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return invalidState("payment is no longer pending")
		}
		return err
	}
	s.Logger.Info().Int64("payment_id", pay.ID).Int64("booking_id", pay.BookingID).Msg("pending payment deleted")
	return nil
}

// CompleteBooking marks a confirmed booking done and closes its service request.
func (s *BookingService) CompleteBooking(ctx context.Context, craftsmanID, bookingID int64) (*models.Booking, error) {
	now := s.Clock().UTC()
	var booking *models.Booking

	err := s.Store.InTx(ctx, func(repo domain.Repository) error {
		var err error
		booking, err = repo.GetBookingForCraftsman(ctx, craftsmanID, bookingID)
		if err != nil {
			return lookup(err, "booking %d not found", bookingID)
		}
		if booking.Status != models.BookingConfirmed {
			return invalidState("booking is %s; only confirmed bookings can be completed", booking.Status)
		}
		if err := repo.TransitionBookingStatus(ctx, booking.ID, models.BookingConfirmed, models.BookingCompleted, now); err != nil {
			if errors.Is(err, database.ErrConcurrentModification) {
				return invalidState("booking was changed by another request")
			}
			return err
		}
		booking.Status = models.BookingCompleted
		booking.CompletedAt = &now
		return advanceRequest(ctx, repo, booking.ServiceRequestID, models.RequestCompleted)
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info().Int64("booking_id", booking.ID).Msg("booking completed")
	s.publish(events.EventBookingCompleted, bookingEvent(booking))
	s.notifyCustomer(ctx, booking.CustomerID, "Job completed", "Your booking was marked as completed.")
	return booking, nil
}

func (s *BookingService) customerPayment(ctx context.Context, customerID, paymentID int64) (*models.Payment, error) {
	pay, err := s.Store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, lookup(err, "payment %d not found", paymentID)
	}
	if _, err := s.Store.GetBookingForCustomer(ctx, customerID, pay.BookingID); err != nil {
		return nil, lookup(err, "payment %d not found", paymentID)
	}
	return pay, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
