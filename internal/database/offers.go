package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"masterhand/internal/models"
)

const offerColumns = `o.id, o.service_request_id, o.craftsman_id, o.price, o.estimated_duration, o.notes,
	o.status, o.rejection_reason, o.created_at, o.updated_at, o.accepted_at, o.rejected_at, o.withdrawn_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (*models.Offer, error) {
	var (
		o                                   models.Offer
		acceptedAt, rejectedAt, withdrawnAt sql.NullTime
	)
	err := row.Scan(
		&o.ID, &o.ServiceRequestID, &o.CraftsmanID, &o.Price, &o.EstimatedDuration, &o.Notes,
		&o.Status, &o.RejectionReason, &o.CreatedAt, &o.UpdatedAt, &acceptedAt, &rejectedAt, &withdrawnAt,
	)
	if err != nil {
		return nil, err
	}
	o.AcceptedAt = timePtr(acceptedAt)
	o.RejectedAt = timePtr(rejectedAt)
	o.WithdrawnAt = timePtr(withdrawnAt)
	return &o, nil
}

func (r *repo) CreateOffer(ctx context.Context, offer *models.Offer) error {
	query := `INSERT INTO offers (
				service_request_id, craftsman_id, price, estimated_duration, notes,
				status, rejection_reason, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	if offer.Status == "" {
		offer.Status = models.OfferPending
	}
	result, err := r.q.ExecContext(ctx, query,
		offer.ServiceRequestID,
		offer.CraftsmanID,
		offer.Price,
		offer.EstimatedDuration,
		offer.Notes,
		offer.Status,
		offer.RejectionReason,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOffer
		}
		return fmt.Errorf("failed to create offer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	offer.ID = id
	offer.CreatedAt = now
	offer.UpdatedAt = now
	return nil
}

func (r *repo) GetOffer(ctx context.Context, id int64) (*models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers o WHERE o.id = ?`
	offer, err := scanOffer(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get offer %d: %w", id, notFound(err))
	}
	return offer, nil
}

// GetOfferForCustomer only finds offers on requests owned by the customer, so
// a foreign offer looks exactly like a missing one.
func (r *repo) GetOfferForCustomer(ctx context.Context, customerID, offerID int64) (*models.Offer, error) {
	query := `SELECT ` + offerColumns + `
              FROM offers o
              JOIN service_requests sr ON sr.id = o.service_request_id
              WHERE o.id = ? AND sr.customer_id = ?`
	offer, err := scanOffer(r.q.QueryRowContext(ctx, query, offerID, customerID))
	if err != nil {
		return nil, fmt.Errorf("failed to get offer %d: %w", offerID, notFound(err))
	}
	return offer, nil
}

func (r *repo) GetOfferForCraftsman(ctx context.Context, craftsmanID, offerID int64) (*models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers o WHERE o.id = ? AND o.craftsman_id = ?`
	offer, err := scanOffer(r.q.QueryRowContext(ctx, query, offerID, craftsmanID))
	if err != nil {
		return nil, fmt.Errorf("failed to get offer %d: %w", offerID, notFound(err))
	}
	return offer, nil
}

func (r *repo) ListOffersByRequest(ctx context.Context, requestID int64) ([]*models.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers o WHERE o.service_request_id = ? ORDER BY o.id ASC`
	rows, err := r.q.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer rows.Close()

	var offers []*models.Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, offer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate offers: %w", err)
	}
	return offers, nil
}

// TransitionOfferStatus moves an offer from one status to another and stamps
// the timestamp column matching the target status.
func (r *repo) TransitionOfferStatus(ctx context.Context, id int64, from, to, reason string, at time.Time) error {
	var stampColumn string
	switch to {
	case models.OfferAccepted:
		stampColumn = "accepted_at"
	case models.OfferRejected:
		stampColumn = "rejected_at"
	case models.OfferWithdrawn:
		stampColumn = "withdrawn_at"
	default:
		stampColumn = "updated_at"
	}

	query := `UPDATE offers SET status = ?, rejection_reason = ?, ` + stampColumn + ` = ?, updated_at = ?
              WHERE id = ? AND status = ?`
	result, err := r.q.ExecContext(ctx, query, to, reason, at.UTC(), at.UTC(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update offer status: %w", err)
	}
	return expectOneRow(result)
}
