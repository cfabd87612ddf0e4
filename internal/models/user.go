package models

import "time"

// Customer is the requesting side of a booking. Profiles are owned by the
// account service; this is the read model the booking flow needs.
type Customer struct {
	ID         int64     `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address"`
	City       string    `json:"city"`
	TelegramID int64     `json:"telegram_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (c *Customer) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type Craftsman struct {
	ID         int64     `json:"id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Phone      string    `json:"phone"`
	CraftID    int64     `json:"craft_id"`
	TelegramID int64     `json:"telegram_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (c *Craftsman) FullName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type Craft struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Notification is a fire-and-forget message addressed to a user.
type Notification struct {
	UserID int64  `json:"user_id"`
	ChatID int64  `json:"chat_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}
