package models

import "time"

// ServiceRequest is a customer's posted job for a craft.
type ServiceRequest struct {
	ID            int64      `json:"id"`
	CustomerID    int64      `json:"customer_id"`
	CraftID       int64      `json:"craft_id"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Address       string     `json:"address"`
	PreferredDate *time.Time `json:"preferred_date,omitempty"`
	Status        string     `json:"status"`
	OfferCount    int        `json:"offer_count"`
	MaxOffers     int        `json:"max_offers"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// AcceptsOffers reports whether a new offer may be submitted at the given time.
func (r *ServiceRequest) AcceptsOffers(now time.Time) bool {
	if r.Status != RequestOpen && r.Status != RequestHasOffers {
		return false
	}
	if r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
		return false
	}
	return r.MaxOffers <= 0 || r.OfferCount < r.MaxOffers
}

var requestStatusRank = map[string]int{
	RequestOpen:          0,
	RequestHasOffers:     1,
	RequestOfferAccepted: 2,
	RequestInProgress:    3,
	RequestCompleted:     4,
}

// CanAdvanceRequest reports whether a request may move from one status to another.
// Statuses only move forward; terminal statuses never change.
func CanAdvanceRequest(from, to string) bool {
	if IsTerminalRequestStatus(from) {
		return false
	}
	if to == RequestCancelled || to == RequestExpired {
		return true
	}
	fromRank, ok1 := requestStatusRank[from]
	toRank, ok2 := requestStatusRank[to]
	return ok1 && ok2 && toRank > fromRank
}
