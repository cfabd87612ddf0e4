package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"masterhand/internal/models"
)

func (r *repo) CreateServiceRequest(ctx context.Context, req *models.ServiceRequest) error {
	query := `INSERT INTO service_requests (
				customer_id, craft_id, title, description, address, preferred_date,
				status, offer_count, max_offers, created_at, updated_at, expires_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	if req.Status == "" {
		req.Status = models.RequestOpen
	}
	if req.MaxOffers == 0 {
		req.MaxOffers = models.DefaultMaxOffers
	}
	result, err := r.q.ExecContext(ctx, query,
		req.CustomerID,
		req.CraftID,
		req.Title,
		req.Description,
		req.Address,
		nullableTime(req.PreferredDate),
		req.Status,
		req.OfferCount,
		req.MaxOffers,
		now,
		now,
		nullableTime(req.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create service request: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	req.ID = id
	req.CreatedAt = now
	req.UpdatedAt = now
	return nil
}

func (r *repo) GetServiceRequest(ctx context.Context, id int64) (*models.ServiceRequest, error) {
	query := `SELECT id, customer_id, craft_id, title, description, address, preferred_date,
	                 status, offer_count, max_offers, created_at, updated_at, expires_at
              FROM service_requests WHERE id = ?`
	var (
		req       models.ServiceRequest
		preferred sql.NullTime
		expires   sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&req.ID, &req.CustomerID, &req.CraftID, &req.Title, &req.Description, &req.Address, &preferred,
		&req.Status, &req.OfferCount, &req.MaxOffers, &req.CreatedAt, &req.UpdatedAt, &expires,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get service request %d: %w", id, notFound(err))
	}
	req.PreferredDate = timePtr(preferred)
	req.ExpiresAt = timePtr(expires)
	return &req, nil
}

func (r *repo) UpdateServiceRequestStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE service_requests SET status = ?, updated_at = ? WHERE id = ?`
	result, err := r.q.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update service request status: %w", err)
	}
	if err := expectOneRow(result); err != nil {
		return ErrNotFound
	}
	return nil
}

// IncrementOfferCount bumps the offer counter and sets the status, refusing
// once the request has reached its offer cap.
func (r *repo) IncrementOfferCount(ctx context.Context, id int64, status string) error {
	query := `UPDATE service_requests
              SET offer_count = offer_count + 1, status = ?, updated_at = ?
              WHERE id = ? AND (max_offers <= 0 OR offer_count < max_offers)`
	result, err := r.q.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to increment offer count: %w", err)
	}
	return expectOneRow(result)
}
