package database

import (
	"context"
	"fmt"
	"time"

	"masterhand/internal/models"
)

func (r *repo) CreateCraft(ctx context.Context, craft *models.Craft) error {
	result, err := r.q.ExecContext(ctx, `INSERT INTO crafts (name) VALUES (?)`, craft.Name)
	if err != nil {
		return fmt.Errorf("failed to create craft: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	craft.ID = id
	return nil
}

func (r *repo) GetCraft(ctx context.Context, id int64) (*models.Craft, error) {
	var craft models.Craft
	err := r.q.QueryRowContext(ctx, `SELECT id, name FROM crafts WHERE id = ?`, id).Scan(&craft.ID, &craft.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get craft %d: %w", id, notFound(err))
	}
	return &craft, nil
}

func (r *repo) CreateCustomer(ctx context.Context, c *models.Customer) error {
	query := `INSERT INTO customers (
				first_name, last_name, email, phone, address, city, telegram_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query,
		c.FirstName, c.LastName, c.Email, c.Phone, c.Address, c.City, c.TelegramID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	return nil
}

func (r *repo) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	query := `SELECT id, first_name, last_name, email, phone, address, city, telegram_id, created_at
              FROM customers WHERE id = ?`
	var c models.Customer
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Address, &c.City, &c.TelegramID, &c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer %d: %w", id, notFound(err))
	}
	return &c, nil
}

func (r *repo) CreateCraftsman(ctx context.Context, c *models.Craftsman) error {
	query := `INSERT INTO craftsmen (
				first_name, last_name, phone, craft_id, telegram_id, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := r.q.ExecContext(ctx, query, c.FirstName, c.LastName, c.Phone, c.CraftID, c.TelegramID, now)
	if err != nil {
		return fmt.Errorf("failed to create craftsman: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	c.ID = id
	c.CreatedAt = now
	return nil
}

func (r *repo) GetCraftsman(ctx context.Context, id int64) (*models.Craftsman, error) {
	query := `SELECT id, first_name, last_name, phone, craft_id, telegram_id, created_at
              FROM craftsmen WHERE id = ?`
	var c models.Craftsman
	err := r.q.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Phone, &c.CraftID, &c.TelegramID, &c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get craftsman %d: %w", id, notFound(err))
	}
	return &c, nil
}
