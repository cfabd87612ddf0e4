package service

import (
	"sync"
	"testing"
	"time"

	"masterhand/internal/events"
	"masterhand/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitOffer(t *testing.T) {
	e := newEnv(t, 2)
	req := e.newRequest(48)

	offer, err := e.offers().SubmitOffer(e.ctx, e.craftsmen[0].ID, req.ID, OfferInput{Price: 100000, EstimatedDuration: 90, Notes: "  bring parts  "})
	require.NoError(t, err)
	assert.Equal(t, models.OfferPending, offer.Status)
	assert.Equal(t, "bring parts", offer.Notes)

	got := e.request(req.ID)
	assert.Equal(t, models.RequestHasOffers, got.Status)
	assert.Equal(t, 1, got.OfferCount)
	assert.Equal(t, 1, e.events.count(events.EventOfferSubmitted))
	assert.Equal(t, []string{"New offer"}, e.notifier.titlesFor(e.customer.ID))

	t.Run("DuplicateIsValidationFailure", func(t *testing.T) {
		_, err := e.offers().SubmitOffer(e.ctx, e.craftsmen[0].ID, req.ID, OfferInput{Price: 1})
		assert.Equal(t, KindValidationFailure, KindOf(err))
		assert.Equal(t, 1, e.request(req.ID).OfferCount)
	})

	t.Run("NonPositivePrice", func(t *testing.T) {
		_, err := e.offers().SubmitOffer(e.ctx, e.craftsmen[1].ID, req.ID, OfferInput{Price: 0})
		assert.ErrorIs(t, err, ErrValidationFailure)
	})

	t.Run("WrongCraft", func(t *testing.T) {
		other := &models.Craft{Name: "Carpentry"}
		require.NoError(t, e.db.CreateCraft(e.ctx, other))
		carpenter := &models.Craftsman{FirstName: "Omar", CraftID: other.ID}
		require.NoError(t, e.db.CreateCraftsman(e.ctx, carpenter))

		_, err := e.offers().SubmitOffer(e.ctx, carpenter.ID, req.ID, OfferInput{Price: 10})
		assert.ErrorIs(t, err, ErrValidationFailure)
	})

	t.Run("UnknownRequest", func(t *testing.T) {
		_, err := e.offers().SubmitOffer(e.ctx, e.craftsmen[1].ID, 9999, OfferInput{Price: 10})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("RequestFull", func(t *testing.T) {
		full := &models.ServiceRequest{CustomerID: e.customer.ID, CraftID: e.craft.ID, MaxOffers: 1, OfferCount: 1, Status: models.RequestHasOffers}
		require.NoError(t, e.db.CreateServiceRequest(e.ctx, full))

		_, err := e.offers().SubmitOffer(e.ctx, e.craftsmen[1].ID, full.ID, OfferInput{Price: 10})
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("ExpiredRequest", func(t *testing.T) {
		past := e.now.Add(-time.Hour)
		expired := &models.ServiceRequest{CustomerID: e.customer.ID, CraftID: e.craft.ID, ExpiresAt: &past}
		require.NoError(t, e.db.CreateServiceRequest(e.ctx, expired))

		_, err := e.offers().SubmitOffer(e.ctx, e.craftsmen[1].ID, expired.ID, OfferInput{Price: 10})
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestAcceptRejectsCompetingOffers(t *testing.T) {
	e := newEnv(t, 4)
	req := e.newRequest(48)
	offers := e.submit(req, 100000, 90000, 95000, 120000)

	// one competitor already withdrew; it must stay withdrawn
	_, err := e.offers().Withdraw(e.ctx, e.craftsmen[3].ID, offers[3].ID)
	require.NoError(t, err)

	res, err := e.offers().Accept(e.ctx, e.customer.ID, offers[1].ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferAccepted, res.Offer.Status)
	assert.Len(t, res.Rejected, 2)

	all, err := e.db.ListOffersByRequest(e.ctx, req.ID)
	require.NoError(t, err)

	statuses := map[string]int{}
	for _, o := range all {
		statuses[o.Status]++
		if o.Status == models.OfferRejected {
			assert.Equal(t, models.AutoRejectReason, o.RejectionReason)
			assert.NotNil(t, o.RejectedAt)
		}
	}
	assert.Equal(t, map[string]int{models.OfferAccepted: 1, models.OfferRejected: 2, models.OfferWithdrawn: 1}, statuses)
	assert.Equal(t, models.RequestOfferAccepted, e.request(req.ID).Status)

	assert.Equal(t, 1, e.events.count(events.EventOfferAccepted))
	assert.Equal(t, 2, e.events.count(events.EventOfferRejected))
	assert.Contains(t, e.notifier.titlesFor(e.craftsmen[1].ID), "Offer accepted")
	assert.Contains(t, e.notifier.titlesFor(e.craftsmen[0].ID), "Offer rejected")
}

func TestAcceptIsAtomic(t *testing.T) {
	e := newEnv(t, 3)
	req := e.newRequest(48)
	offers := e.submit(req, 100, 200, 300)

	e.deps.Store = &failingStore{DB: e.db, failOffer: offers[2].ID}
	_, err := e.offers().Accept(e.ctx, e.customer.ID, offers[0].ID)
	require.Error(t, err)

	all, err := e.db.ListOffersByRequest(e.ctx, req.ID)
	require.NoError(t, err)
	for _, o := range all {
		assert.Equal(t, models.OfferPending, o.Status, "offer %d", o.ID)
	}
	assert.Equal(t, models.RequestHasOffers, e.request(req.ID).Status)
	assert.Zero(t, e.events.count(events.EventOfferAccepted))
}

func TestAcceptFailures(t *testing.T) {
	e := newEnv(t, 2)
	req := e.newRequest(48)
	offers := e.submit(req, 100, 200)

	t.Run("OtherCustomerSeesNotFound", func(t *testing.T) {
		_, err := e.offers().Accept(e.ctx, e.stranger.ID, offers[0].ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, models.OfferPending, mustOffer(t, e, offers[0].ID).Status)
	})

	t.Run("UnknownOffer", func(t *testing.T) {
		_, err := e.offers().Accept(e.ctx, e.customer.ID, 4242)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	_, err := e.offers().Accept(e.ctx, e.customer.ID, offers[0].ID)
	require.NoError(t, err)

	t.Run("NotPending", func(t *testing.T) {
		_, err := e.offers().Accept(e.ctx, e.customer.ID, offers[1].ID)
		assert.ErrorIs(t, err, ErrInvalidState)

		_, err = e.offers().Accept(e.ctx, e.customer.ID, offers[0].ID)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestConcurrentAcceptsHaveOneWinner(t *testing.T) {
	e := newEnv(t, 5)
	req := e.newRequest(48)
	offers := e.submit(req, 1, 2, 3, 4, 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, o := range offers {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := e.offers().Accept(e.ctx, e.customer.ID, id); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(o.ID)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	all, err := e.db.ListOffersByRequest(e.ctx, req.ID)
	require.NoError(t, err)
	accepted := 0
	for _, o := range all {
		if o.Status == models.OfferAccepted {
			accepted++
		} else {
			assert.Equal(t, models.OfferRejected, o.Status)
		}
	}
	assert.Equal(t, 1, accepted)
}

func TestReject(t *testing.T) {
	e := newEnv(t, 3)
	req := e.newRequest(48)
	offers := e.submit(req, 100, 200, 300)

	got, err := e.offers().Reject(e.ctx, e.customer.ID, offers[0].ID, " too expensive ")
	require.NoError(t, err)
	assert.Equal(t, models.OfferRejected, got.Status)
	assert.Equal(t, "too expensive", mustOffer(t, e, offers[0].ID).RejectionReason)

	t.Run("AlreadyRejected", func(t *testing.T) {
		_, err := e.offers().Reject(e.ctx, e.customer.ID, offers[0].ID, "again")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("OtherCustomer", func(t *testing.T) {
		_, err := e.offers().Reject(e.ctx, e.stranger.ID, offers[1].ID, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Accepted", func(t *testing.T) {
		_, err := e.offers().Accept(e.ctx, e.customer.ID, offers[1].ID)
		require.NoError(t, err)
		_, err = e.offers().Reject(e.ctx, e.customer.ID, offers[1].ID, "changed my mind")
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.Equal(t, models.OfferAccepted, mustOffer(t, e, offers[1].ID).Status)
	})

	t.Run("ClosedRequest", func(t *testing.T) {
		closed := e.newRequest(48)
		o := e.submit(closed, 50)[0]
		require.NoError(t, e.db.UpdateServiceRequestStatus(e.ctx, closed.ID, models.RequestCancelled))

		_, err := e.offers().Reject(e.ctx, e.customer.ID, o.ID, "")
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestWithdraw(t *testing.T) {
	e := newEnv(t, 2)
	req := e.newRequest(48)
	offers := e.submit(req, 100, 200)

	_, err := e.offers().Withdraw(e.ctx, e.craftsmen[1].ID, offers[0].ID)
	assert.ErrorIs(t, err, ErrNotFound, "craftsmen only see their own offers")

	got, err := e.offers().Withdraw(e.ctx, e.craftsmen[0].ID, offers[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.OfferWithdrawn, got.Status)
	assert.NotNil(t, mustOffer(t, e, offers[0].ID).WithdrawnAt)

	_, err = e.offers().Withdraw(e.ctx, e.craftsmen[0].ID, offers[0].ID)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, e.events.count(events.EventOfferWithdrawn))
}

func mustOffer(t *testing.T, e *env, id int64) *models.Offer {
	t.Helper()
	o, err := e.db.GetOffer(e.ctx, id)
	require.NoError(t, err)
	return o
}
