package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"masterhand/internal/database"
	"masterhand/internal/domain"
	"masterhand/internal/events"
	"masterhand/internal/models"
)

// OfferService governs craftsman offers against service requests.
type OfferService struct {
	Deps
}

func NewOfferService(deps Deps) *OfferService {
	return &OfferService{Deps: deps.withDefaults("offer_service")}
}

type OfferInput struct {
	Price             int64
	EstimatedDuration int
	Notes             string
}

type AcceptResult struct {
	Offer    *models.Offer
	Rejected []*models.Offer
}

// SubmitOffer records a craftsman's bid and moves the request to HasOffers.
func (s *OfferService) SubmitOffer(ctx context.Context, craftsmanID, requestID int64, in OfferInput) (*models.Offer, error) {
	if in.Price <= 0 {
		return nil, validation("price must be positive")
	}
	if in.EstimatedDuration < 0 {
		return nil, validation("estimated duration must not be negative")
	}

	now := s.Clock().UTC()
	var offer *models.Offer
	var customerID int64

	err := s.Store.InTx(ctx, func(repo domain.Repository) error {
		craftsman, err := repo.GetCraftsman(ctx, craftsmanID)
		if err != nil {
			return lookup(err, "craftsman %d not found", craftsmanID)
		}
		req, err := repo.GetServiceRequest(ctx, requestID)
		if err != nil {
			return lookup(err, "service request %d not found", requestID)
		}
		if craftsman.CraftID != req.CraftID {
			return validation("craftsman does not offer this craft")
		}
		if !req.AcceptsOffers(now) {
			return invalidState("service request is not accepting offers")
		}

		offer = &models.Offer{
			ServiceRequestID:  req.ID,
			CraftsmanID:       craftsman.ID,
			Price:             in.Price,
			EstimatedDuration: in.EstimatedDuration,
			Notes:             strings.TrimSpace(in.Notes),
			Status:            models.OfferPending,
		}
		if err := repo.CreateOffer(ctx, offer); err != nil {
			if errors.Is(err, database.ErrDuplicateOffer) {
				return validation("an offer for this request already exists")
			}
			return err
		}
		if err := repo.IncrementOfferCount(ctx, req.ID, models.RequestHasOffers); err != nil {
			if errors.Is(err, database.ErrConcurrentModification) {
				return invalidState("service request is not accepting offers")
			}
			return err
		}
		customerID = req.CustomerID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info().Int64("offer_id", offer.ID).Int64("request_id", requestID).Int64("craftsman_id", craftsmanID).Msg("offer submitted")
	s.publish(events.EventOfferSubmitted, offerEvent(offer))
	s.notifyCustomer(ctx, customerID, "New offer", fmt.Sprintf("You received an offer of %s for your request.", formatMoney(offer.Price)))
	return offer, nil
}

// Accept accepts a pending offer and rejects every other pending offer on the
// same request in one transaction.
func (s *OfferService) Accept(ctx context.Context, customerID, offerID int64) (*AcceptResult, error) {
	now := s.Clock().UTC()
	result := &AcceptResult{}

	err := s.Store.InTx(ctx, func(repo domain.Repository) error {
		offer, err := repo.GetOfferForCustomer(ctx, customerID, offerID)
		if err != nil {
			return lookup(err, "offer %d not found", offerID)
		}
		if offer.Status != models.OfferPending {
			return invalidState("offer is %s; only pending offers can be accepted", offer.Status)
		}
		req, err := repo.GetServiceRequest(ctx, offer.ServiceRequestID)
		if err != nil {
			return lookup(err, "service request %d not found", offer.ServiceRequestID)
		}
		if models.IsTerminalRequestStatus(req.Status) {
			return invalidState("service request is %s", req.Status)
		}

		others, err := repo.ListOffersByRequest(ctx, req.ID)
		if err != nil {
			return err
		}
		for _, o := range others {
			if o.ID != offer.ID && o.Status == models.OfferAccepted {
				return invalidState("another offer was already accepted for this request")
			}
		}

		if err := repo.TransitionOfferStatus(ctx, offer.ID, models.OfferPending, models.OfferAccepted, "", now); err != nil {
			return offerTransitionError(err)
		}
		offer.Status = models.OfferAccepted
		offer.AcceptedAt = &now
		result.Offer = offer

		for _, o := range others {
			if o.ID == offer.ID || o.Status != models.OfferPending {
				continue
			}
			if err := repo.TransitionOfferStatus(ctx, o.ID, models.OfferPending, models.OfferRejected, models.AutoRejectReason, now); err != nil {
				return fmt.Errorf("failed to reject competing offer %d: %w", o.ID, offerTransitionError(err))
			}
			o.Status = models.OfferRejected
			o.RejectionReason = models.AutoRejectReason
			o.RejectedAt = &now
			result.Rejected = append(result.Rejected, o)
		}

		if models.CanAdvanceRequest(req.Status, models.RequestOfferAccepted) {
			return repo.UpdateServiceRequestStatus(ctx, req.ID, models.RequestOfferAccepted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info().
		Int64("offer_id", offerID).
		Int64("customer_id", customerID).
		Int("rejected", len(result.Rejected)).
		Msg("offer accepted")

	accepted := offerEvent(result.Offer)
	accepted.RejectedCount = len(result.Rejected)
	s.publish(events.EventOfferAccepted, accepted)
	s.notifyCraftsman(ctx, result.Offer.CraftsmanID, "Offer accepted", "Your offer was accepted. The customer will pay to confirm the booking.")
	for _, o := range result.Rejected {
		s.publish(events.EventOfferRejected, offerEvent(o))
		s.notifyCraftsman(ctx, o.CraftsmanID, "Offer rejected", models.AutoRejectReason+".")
	}
	return result, nil
}

// Reject declines a single offer. Accepted offers and offers on closed requests cannot be rejected.
func (s *OfferService) Reject(ctx context.Context, customerID, offerID int64, reason string) (*models.Offer, error) {
	now := s.Clock().UTC()
	reason = strings.TrimSpace(reason)
	var offer *models.Offer

	err := s.Store.InTx(ctx, func(repo domain.Repository) error {
		var err error
		offer, err = repo.GetOfferForCustomer(ctx, customerID, offerID)
		if err != nil {
			return lookup(err, "offer %d not found", offerID)
		}
		req, err := repo.GetServiceRequest(ctx, offer.ServiceRequestID)
		if err != nil {
			return lookup(err, "service request %d not found", offer.ServiceRequestID)
		}
		if models.IsTerminalRequestStatus(req.Status) {
			return invalidState("service request is %s", req.Status)
		}
		if offer.Status == models.OfferAccepted {
			return invalidState("an accepted offer cannot be rejected")
		}
		if offer.Status != models.OfferPending {
			return invalidState("offer is already %s", offer.Status)
		}
		if err := repo.TransitionOfferStatus(ctx, offer.ID, models.OfferPending, models.OfferRejected, reason, now); err != nil {
			return offerTransitionError(err)
		}
		offer.Status = models.OfferRejected
		offer.RejectionReason = reason
		offer.RejectedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info().Int64("offer_id", offerID).Msg("offer rejected")
	s.publish(events.EventOfferRejected, offerEvent(offer))
	body := "Your offer was declined."
	if reason != "" {
		body = "Your offer was declined: " + reason
	}
	s.notifyCraftsman(ctx, offer.CraftsmanID, "Offer rejected", body)
	return offer, nil
}

// Withdraw lets a craftsman take back a pending offer.
func (s *OfferService) Withdraw(ctx context.Context, craftsmanID, offerID int64) (*models.Offer, error) {
	now := s.Clock().UTC()
	var offer *models.Offer

	err := s.Store.InTx(ctx, func(repo domain.Repository) error {
		var err error
		offer, err = repo.GetOfferForCraftsman(ctx, craftsmanID, offerID)
		if err != nil {
			return lookup(err, "offer %d not found", offerID)
		}
		if offer.Status != models.OfferPending {
			return invalidState("offer is %s; only pending offers can be withdrawn", offer.Status)
		}
		if err := repo.TransitionOfferStatus(ctx, offer.ID, models.OfferPending, models.OfferWithdrawn, "", now); err != nil {
			return offerTransitionError(err)
		}
		offer.Status = models.OfferWithdrawn
		offer.WithdrawnAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info().Int64("offer_id", offerID).Int64("craftsman_id", craftsmanID).Msg("offer withdrawn")
	s.publish(events.EventOfferWithdrawn, offerEvent(offer))
	return offer, nil
}

func offerTransitionError(err error) error {
	if errors.Is(err, database.ErrConcurrentModification) {
		return &Error{Kind: KindInvalidState, Message: "offer was changed by another request", Err: err}
	}
	return err
}
