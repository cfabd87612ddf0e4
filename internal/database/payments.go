package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"masterhand/internal/models"
)

const paymentColumns = `id, booking_id, amount, status, provider, transaction_id, gateway_transaction_id,
	refund_transaction_id, failure_reason, paid_at, refunded_at, created_at, updated_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p                  models.Payment
		paidAt, refundedAt sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.BookingID, &p.Amount, &p.Status, &p.Provider, &p.TransactionID, &p.GatewayTransactionID, &p.RefundTransactionID,
		&p.FailureReason, &paidAt, &refundedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.PaidAt = timePtr(paidAt)
	p.RefundedAt = timePtr(refundedAt)
	return &p, nil
}

func (r *repo) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `INSERT INTO payments (
				booking_id, amount, status, provider, transaction_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	if payment.Status == "" {
		payment.Status = models.PaymentPending
	}
	result, err := r.q.ExecContext(ctx, query,
		payment.BookingID,
		payment.Amount,
		payment.Status,
		payment.Provider,
		payment.TransactionID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	payment.ID = id
	payment.CreatedAt = now
	payment.UpdatedAt = now
	return nil
}

func (r *repo) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	payment, err := scanPayment(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %d: %w", id, notFound(err))
	}
	return payment, nil
}

func (r *repo) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	if transactionID == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = ? ORDER BY id DESC LIMIT 1`
	payment, err := scanPayment(r.q.QueryRowContext(ctx, query, transactionID))
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by transaction %s: %w", transactionID, notFound(err))
	}
	return payment, nil
}

// GetActivePaymentForBooking returns the payment that settled the booking if
// there is one, otherwise the newest attempt. Superseded attempts stay pending
// behind it until their order is paid or abandoned.
func (r *repo) GetActivePaymentForBooking(ctx context.Context, bookingID int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = ?
              ORDER BY CASE WHEN status IN (?, ?) THEN 0 ELSE 1 END, id DESC LIMIT 1`
	payment, err := scanPayment(r.q.QueryRowContext(ctx, query, bookingID, models.PaymentCompleted, models.PaymentRefunded))
	if err != nil {
		return nil, fmt.Errorf("failed to get payment for booking %d: %w", bookingID, notFound(err))
	}
	return payment, nil
}

// SetPaymentTransactionID records the gateway order id of a pending payment.
// An order id is written once; a second initialization of the same payment
// fails with ErrConcurrentModification so the first order stays findable.
func (r *repo) SetPaymentTransactionID(ctx context.Context, id int64, transactionID string) error {
	query := `UPDATE payments SET transaction_id = ?, updated_at = ? WHERE id = ? AND status = ? AND transaction_id = ''`
	result, err := r.q.ExecContext(ctx, query, transactionID, time.Now().UTC(), id, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("failed to set payment transaction id: %w", err)
	}
	return expectOneRow(result)
}

// CompletePayment moves Pending or Failed -> Completed and stamps the gateway's
// transaction id. A declined attempt can still be paid on the same order. Only
// one concurrent caller can win; the others get ErrConcurrentModification.
func (r *repo) CompletePayment(ctx context.Context, id int64, gatewayTransactionID string, paidAt time.Time) error {
	query := `UPDATE payments SET status = ?, gateway_transaction_id = ?, paid_at = ?, failure_reason = '', updated_at = ?
              WHERE id = ? AND status IN (?, ?)`
	result, err := r.q.ExecContext(ctx, query,
		models.PaymentCompleted, gatewayTransactionID, paidAt.UTC(), time.Now().UTC(), id,
		models.PaymentPending, models.PaymentFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to complete payment: %w", err)
	}
	return expectOneRow(result)
}

func (r *repo) FailPayment(ctx context.Context, id int64, reason string) error {
	query := `UPDATE payments SET status = ?, failure_reason = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := r.q.ExecContext(ctx, query,
		models.PaymentFailed, reason, time.Now().UTC(), id, models.PaymentPending,
	)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	return expectOneRow(result)
}

// RefundPayment moves Completed -> Refunded. A second refund of the same
// payment finds no Completed row and fails with ErrConcurrentModification.
func (r *repo) RefundPayment(ctx context.Context, id int64, refundTransactionID string, refundedAt time.Time) error {
	query := `UPDATE payments SET status = ?, refund_transaction_id = ?, refunded_at = ?, updated_at = ?
              WHERE id = ? AND status = ?`
	result, err := r.q.ExecContext(ctx, query,
		models.PaymentRefunded, refundTransactionID, refundedAt.UTC(), time.Now().UTC(), id, models.PaymentCompleted,
	)
	if err != nil {
		return fmt.Errorf("failed to refund payment: %w", err)
	}
	return expectOneRow(result)
}

func (r *repo) DeletePendingPayment(ctx context.Context, id int64) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM payments WHERE id = ? AND status = ?`, id, models.PaymentPending)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	return expectOneRow(result)
}
