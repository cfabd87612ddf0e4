package service

import (
	"context"
	"errors"
	"strings"

	"masterhand/internal/database"
	"masterhand/internal/domain"
	"masterhand/internal/events"
	"masterhand/internal/metrics"
	"masterhand/internal/models"
	"masterhand/internal/payment"
)

// Webhook outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
	OutcomePending   = "pending"
)

type WebhookResult struct {
	Outcome   string `json:"outcome"`
	PaymentID int64  `json:"payment_id"`
	BookingID int64  `json:"booking_id"`
}

// WebhookService applies gateway callbacks to payments and bookings. Repeated
// delivery of the same callback converges to the same state.
type WebhookService struct {
	Deps
	bookings      *BookingService
	signer        *payment.Signer
	allowUnsigned bool
}

// NewWebhookService builds the processor. allowUnsigned only takes effect when
// the signer has no secret.
func NewWebhookService(deps Deps, bookings *BookingService, signer *payment.Signer, allowUnsigned bool) *WebhookService {
	if signer == nil {
		signer = payment.NewSigner("")
	}
	return &WebhookService{
		Deps:          deps.withDefaults("webhook_service"),
		bookings:      bookings,
		signer:        signer,
		allowUnsigned: allowUnsigned,
	}
}

func (s *WebhookService) Process(ctx context.Context, cb *payment.Callback) (*WebhookResult, error) {
	if err := s.verify(cb); err != nil {
		metrics.IncWebhook("invalid_signature")
		return nil, err
	}

	orderID := strings.TrimSpace(cb.OrderID)
	pay, err := s.Store.GetPaymentByTransactionID(ctx, orderID)
	if err != nil {
		metrics.IncWebhook("unknown_payment")
		return nil, lookup(err, "payment not found")
	}
	log := s.Logger.With().Int64("payment_id", pay.ID).Int64("booking_id", pay.BookingID).Str("order_id", orderID).Logger()
	result := &WebhookResult{PaymentID: pay.ID, BookingID: pay.BookingID}

	if pay.Status == models.PaymentCompleted || pay.Status == models.PaymentRefunded {
		log.Info().Bool("success", cb.Success).Msg("duplicate callback ignored")
		metrics.IncWebhook(OutcomeDuplicate)
		result.Outcome = OutcomeDuplicate
		if pay.Status == models.PaymentCompleted {
			if err := s.repairConfirmation(ctx, pay.BookingID); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	if !cb.Success {
		return s.fail(ctx, pay, cb, result)
	}

	// The payment commits on its own before the booking is touched, so a crash
	// in between leaves a completed payment that the next delivery repairs.
	// A Failed payment still completes: the customer may retry on the same order.
	now := s.Clock().UTC()
	gatewayTxn := strings.TrimSpace(cb.TransactionID)
	if err := s.Store.CompletePayment(ctx, pay.ID, gatewayTxn, now); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return s.raced(ctx, pay.ID, result)
		}
		return nil, err
	}
	log.Info().
		Int64("amount", pay.Amount).
		Str("previous_status", pay.Status).
		Str("gateway_transaction_id", gatewayTxn).
		Msg("payment completed")
	pay.Status = models.PaymentCompleted
	pay.GatewayTransactionID = gatewayTxn
	pay.FailureReason = ""
	pay.PaidAt = &now
	s.publish(events.EventPaymentCompleted, paymentEvent(pay))

	booking, err := s.confirm(ctx, pay.BookingID)
	if err != nil {
		return nil, err
	}
	if booking != nil {
		s.bookings.afterConfirm(ctx, booking)
	} else {
		log.Error().Msg("payment completed for a booking that no longer awaits payment; manual refund required")
	}

	metrics.IncWebhook(OutcomeCompleted)
	result.Outcome = OutcomeCompleted
	return result, nil
}

func (s *WebhookService) verify(cb *payment.Callback) error {
	if s.signer.Enabled() {
		if !s.signer.Valid(cb) {
			s.Logger.Warn().Str("order_id", cb.OrderID).Msg("callback rejected: invalid signature")
			return &Error{Kind: KindSignatureInvalid, Message: "invalid signature"}
		}
		return nil
	}
	if !s.allowUnsigned {
		return &Error{Kind: KindSignatureInvalid, Message: "callback signing secret is not configured"}
	}
	s.Logger.Warn().Str("order_id", cb.OrderID).Msg("callback signature NOT verified: unsigned webhooks are allowed")
	return nil
}

func (s *WebhookService) fail(ctx context.Context, pay *models.Payment, cb *payment.Callback, result *WebhookResult) (*WebhookResult, error) {
	if pay.Status == models.PaymentFailed {
		metrics.IncWebhook(OutcomeDuplicate)
		result.Outcome = OutcomeDuplicate
		return result, nil
	}
	if cb.Pending && !cb.ErrorOccurred {
		metrics.IncWebhook(OutcomePending)
		result.Outcome = OutcomePending
		return result, nil
	}

	reason := failureReason(cb)
	if err := s.Store.FailPayment(ctx, pay.ID, reason); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return s.raced(ctx, pay.ID, result)
		}
		return nil, err
	}
	pay.Status = models.PaymentFailed
	pay.FailureReason = reason

	s.Logger.Warn().Int64("payment_id", pay.ID).Int64("booking_id", pay.BookingID).Str("reason", reason).Msg("payment failed")
	s.publish(events.EventPaymentFailed, paymentEvent(pay))
	if booking, err := s.Store.GetBooking(ctx, pay.BookingID); err == nil {
		s.notifyCustomer(ctx, booking.CustomerID, "Payment failed", "Your payment did not go through. You can try again before "+
			booking.PaymentDeadline.Format("2006-01-02 15:04")+".")
	}

	metrics.IncWebhook(OutcomeFailed)
	result.Outcome = OutcomeFailed
	return result, nil
}

// raced handles a lost compare-and-set on the payment: another delivery got there first.
func (s *WebhookService) raced(ctx context.Context, paymentID int64, result *WebhookResult) (*WebhookResult, error) {
	current, err := s.Store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	metrics.IncWebhook(OutcomeDuplicate)
	result.Outcome = OutcomeDuplicate
	if current.Status == models.PaymentCompleted {
		if err := s.repairConfirmation(ctx, current.BookingID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// repairConfirmation confirms a booking whose payment completed but whose
// confirmation never committed.
func (s *WebhookService) repairConfirmation(ctx context.Context, bookingID int64) error {
	booking, err := s.confirm(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking != nil {
		s.Logger.Warn().Int64("booking_id", bookingID).Msg("repaired booking confirmation after completed payment")
		s.bookings.afterConfirm(ctx, booking)
	}
	return nil
}

// confirm returns the confirmed booking, or nil when the booking no longer
// awaits payment and there is nothing to do.
func (s *WebhookService) confirm(ctx context.Context, bookingID int64) (*models.Booking, error) {
	var booking *models.Booking
	err := s.Store.InTx(ctx, func(repo domain.Repository) error {
		current, err := repo.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if current.Status != models.BookingInProgress {
			return nil
		}
		booking, err = confirmBooking(ctx, repo, bookingID, s.Clock().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func failureReason(cb *payment.Callback) string {
	switch {
	case cb.ErrorOccurred:
		return "gateway reported an error processing the transaction"
	case cb.IsVoided:
		return "transaction was voided"
	default:
		return "transaction was declined"
	}
}
