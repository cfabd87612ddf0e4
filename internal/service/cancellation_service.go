package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"masterhand/internal/database"
	"masterhand/internal/events"
	"masterhand/internal/metrics"
	"masterhand/internal/models"
	"masterhand/internal/payment"
)

const (
	fullRefundHours    = 24
	partialRefundHours = 2

	cancelGuardTTL  = 2 * time.Minute
	maxCancelRounds = 3
)

// RefundPercent returns the share of the total refunded when a booking is
// cancelled the given number of hours before it starts. Each tier includes its
// lower bound; overdue bookings fall in the last tier.
func RefundPercent(hoursUntilBooking float64) int {
	switch {
	case hoursUntilBooking >= fullRefundHours:
		return 100
	case hoursUntilBooking >= partialRefundHours:
		return 75
	default:
		return 50
	}
}

// RefundAmount applies a percentage to an amount in minor units, rounding down.
func RefundAmount(total int64, percent int) int64 {
	return total * int64(percent) / 100
}

type CancelResult struct {
	Booking             *models.Booking `json:"booking"`
	RefundPercent       int             `json:"refund_percent"`
	RefundAmount        int64           `json:"refund_amount"`
	Refunded            bool            `json:"refunded"`
	RefundTransactionID string          `json:"refund_transaction_id,omitempty"`
}

// CancellationService cancels bookings and refunds completed payments by tier.
type CancellationService struct {
	Deps
}

func NewCancellationService(deps Deps) *CancellationService {
	return &CancellationService{Deps: deps.withDefaults("cancellation_service")}
}

// CancelForCustomer cancels a booking owned by the customer.
func (s *CancellationService) CancelForCustomer(ctx context.Context, customerID, bookingID int64, reason string) (*CancelResult, error) {
	if _, err := s.Store.GetBookingForCustomer(ctx, customerID, bookingID); err != nil {
		return nil, lookup(err, "booking %d not found", bookingID)
	}
	return s.Cancel(ctx, bookingID, reason)
}

// Cancel refunds the booking's completed payment by tier and marks the booking
// Cancelled. A provider refund failure leaves the booking unchanged.
func (s *CancellationService) Cancel(ctx context.Context, bookingID int64, reason string) (*CancelResult, error) {
	guard := fmt.Sprintf("cancel:%d", bookingID)
	if s.Keys != nil {
		acquired, err := s.Keys.Acquire(ctx, guard, cancelGuardTTL)
		switch {
		case err != nil:
			s.Logger.Warn().Err(err).Int64("booking_id", bookingID).Msg("cancellation guard unavailable")
		case !acquired:
			return nil, invalidState("cancellation is already in progress")
		default:
			defer func() {
				if err := s.Keys.Release(context.WithoutCancel(ctx), guard); err != nil {
					s.Logger.Warn().Err(err).Int64("booking_id", bookingID).Msg("failed to release cancellation guard")
				}
			}()
		}
	}

	reason = strings.TrimSpace(reason)
	result := &CancelResult{}

	// A lost compare-and-set means a callback changed the booking or payment
	// underneath us; re-read and decide again.
	for round := 1; ; round++ {
		err := s.cancelOnce(ctx, bookingID, reason, result)
		if err == nil {
			break
		}
		if !errors.Is(err, database.ErrConcurrentModification) || round == maxCancelRounds {
			return nil, err
		}
	}

	b := result.Booking
	s.Logger.Info().
		Int64("booking_id", b.ID).
		Int("refund_percent", result.RefundPercent).
		Int64("refund_amount", result.RefundAmount).
		Bool("refunded", result.Refunded).
		Msg("booking cancelled")
	metrics.ObserveRefund(result.RefundPercent, refundedAmount(result))
	s.publish(events.EventBookingCancelled, bookingEvent(b))

	body := "The booking on " + b.BookingDate.Format("2006-01-02 15:04") + " was cancelled."
	customerBody := body
	if result.Refunded {
		customerBody += " Refund: " + formatMoney(result.RefundAmount) + "."
	}
	s.notifyCustomer(ctx, b.CustomerID, "Booking cancelled", customerBody)
	s.notifyCraftsman(ctx, b.CraftsmanID, "Booking cancelled", body)
	return result, nil
}

func refundedAmount(r *CancelResult) int64 {
	if r.Refunded {
		return r.RefundAmount
	}
	return 0
}

func (s *CancellationService) cancelOnce(ctx context.Context, bookingID int64, reason string, result *CancelResult) error {
	booking, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return lookup(err, "booking %d not found", bookingID)
	}
	if booking.Status == models.BookingCompleted || booking.Status == models.BookingCancelled {
		return invalidState("booking is %s and cannot be cancelled", booking.Status)
	}

	now := s.Clock().UTC()
	hours := booking.BookingDate.Sub(now).Hours()
	percent := RefundPercent(hours)
	amount := RefundAmount(booking.TotalAmount, percent)
	result.RefundPercent = percent
	result.RefundAmount = amount

	pay, err := s.Store.GetActivePaymentForBooking(ctx, booking.ID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}
	if pay != nil && pay.Status == models.PaymentCompleted && amount > 0 {
		if err := s.refund(ctx, pay, amount, reason, now, result); err != nil {
			return err
		}
	}

	if err := s.Store.CancelBooking(ctx, booking.ID, booking.Status, reason, amount, now); err != nil {
		return err
	}
	booking.Status = models.BookingCancelled
	booking.CancellationReason = reason
	booking.RefundableAmount = amount
	booking.CancelledAt = &now
	result.Booking = booking
	return nil
}

func (s *CancellationService) refund(ctx context.Context, pay *models.Payment, amount int64, reason string, now time.Time, result *CancelResult) error {
	strategy, err := s.Payments.Resolve(pay.Provider)
	if err != nil {
		return fmt.Errorf("payment %d has unknown provider: %w", pay.ID, err)
	}
	res, err := strategy.Refund(ctx, payment.RefundRequest{
		TransactionID:        pay.TransactionID,
		GatewayTransactionID: pay.GatewayTransactionID,
		Amount:               amount,
		Reason:               reason,
	})
	if err != nil {
		s.Logger.Error().Err(err).Int64("payment_id", pay.ID).Str("provider", pay.Provider).Msg("refund failed")
		return providerFailure("payment provider could not refund the payment", err)
	}

	refundedAt := res.RefundDate
	if refundedAt.IsZero() {
		refundedAt = now
	}
	if err := s.Store.RefundPayment(ctx, pay.ID, res.RefundTransactionID, refundedAt); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			s.Logger.Error().
				Int64("payment_id", pay.ID).
				Str("refund_transaction_id", res.RefundTransactionID).
				Msg("provider refunded a payment that is no longer completed")
			return invalidState("payment was refunded by another request")
		}
		return err
	}

	pay.Status = models.PaymentRefunded
	pay.RefundTransactionID = res.RefundTransactionID
	pay.RefundedAt = &refundedAt
	result.Refunded = true
	result.RefundTransactionID = res.RefundTransactionID
	result.RefundAmount = res.RefundAmount
	s.publish(events.EventPaymentRefunded, paymentEvent(pay))
	return nil
}
