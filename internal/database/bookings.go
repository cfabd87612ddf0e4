package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"masterhand/internal/models"
)

const bookingColumns = `id, customer_id, craftsman_id, craft_id, service_request_id, offer_id, booking_date,
	total_amount, refundable_amount, payment_deadline, status, cancellation_reason, cancelled_at,
	confirmed_at, completed_at, created_at, updated_at, version`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                                     models.Booking
		requestID                             sql.NullInt64
		cancelledAt, confirmedAt, completedAt sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.CustomerID, &b.CraftsmanID, &b.CraftID, &requestID, &b.OfferID, &b.BookingDate,
		&b.TotalAmount, &b.RefundableAmount, &b.PaymentDeadline, &b.Status, &b.CancellationReason, &cancelledAt,
		&confirmedAt, &completedAt, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	if requestID.Valid {
		id := requestID.Int64
		b.ServiceRequestID = &id
	}
	b.CancelledAt = timePtr(cancelledAt)
	b.ConfirmedAt = timePtr(confirmedAt)
	b.CompletedAt = timePtr(completedAt)
	return &b, nil
}

func (r *repo) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (
				customer_id, craftsman_id, craft_id, service_request_id, offer_id, booking_date,
				total_amount, refundable_amount, payment_deadline, status, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	var requestID any
	if booking.ServiceRequestID != nil {
		requestID = *booking.ServiceRequestID
	}
	result, err := r.q.ExecContext(ctx, query,
		booking.CustomerID,
		booking.CraftsmanID,
		booking.CraftID,
		requestID,
		booking.OfferID,
		booking.BookingDate.UTC(),
		booking.TotalAmount,
		booking.RefundableAmount,
		booking.PaymentDeadline.UTC(),
		booking.Status,
		now,
		now,
		1,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateBooking
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (r *repo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get booking %d: %w", id, notFound(err))
	}
	return booking, nil
}

func (r *repo) GetBookingForCustomer(ctx context.Context, customerID, bookingID int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? AND customer_id = ?`
	booking, err := scanBooking(r.q.QueryRowContext(ctx, query, bookingID, customerID))
	if err != nil {
		return nil, fmt.Errorf("failed to get booking %d: %w", bookingID, notFound(err))
	}
	return booking, nil
}

func (r *repo) GetBookingForCraftsman(ctx context.Context, craftsmanID, bookingID int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? AND craftsman_id = ?`
	booking, err := scanBooking(r.q.QueryRowContext(ctx, query, bookingID, craftsmanID))
	if err != nil {
		return nil, fmt.Errorf("failed to get booking %d: %w", bookingID, notFound(err))
	}
	return booking, nil
}

func (r *repo) GetBookingByOffer(ctx context.Context, offerID int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE offer_id = ?`
	booking, err := scanBooking(r.q.QueryRowContext(ctx, query, offerID))
	if err != nil {
		return nil, fmt.Errorf("failed to get booking for offer %d: %w", offerID, notFound(err))
	}
	return booking, nil
}

// TransitionBookingStatus is a compare-and-set on the status column. The
// version bump lets readers detect that the row changed under them.
func (r *repo) TransitionBookingStatus(ctx context.Context, id int64, from, to string, at time.Time) error {
	var stamp string
	switch to {
	case models.BookingConfirmed:
		stamp = ", confirmed_at = ?"
	case models.BookingCompleted:
		stamp = ", completed_at = ?"
	}

	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?` + stamp + `
              WHERE id = ? AND status = ?`
	args := []any{to, at.UTC()}
	if stamp != "" {
		args = append(args, at.UTC())
	}
	args = append(args, id, from)

	result, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	return expectOneRow(result)
}

func (r *repo) CancelBooking(ctx context.Context, id int64, from, reason string, refundable int64, at time.Time) error {
	query := `UPDATE bookings
              SET status = ?, cancellation_reason = ?, refundable_amount = ?, cancelled_at = ?,
                  version = version + 1, updated_at = ?
              WHERE id = ? AND status = ?`
	result, err := r.q.ExecContext(ctx, query,
		models.BookingCancelled, reason, refundable, at.UTC(), at.UTC(), id, from,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	return expectOneRow(result)
}
