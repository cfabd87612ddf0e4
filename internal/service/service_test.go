package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"masterhand/internal/database"
	"masterhand/internal/domain"
	"masterhand/internal/events"
	"masterhand/internal/models"
	"masterhand/internal/payment"
	"masterhand/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type mockStrategy struct {
	mock.Mock
	name string
}

func (m *mockStrategy) ProviderName() string { return m.name }

func (m *mockStrategy) Initialize(ctx context.Context, req payment.InitRequest) (*payment.InitResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.InitResult), args.Error(1)
}

func (m *mockStrategy) Verify(ctx context.Context, transactionID string) (*payment.VerifyResult, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.VerifyResult), args.Error(1)
}

func (m *mockStrategy) Refund(ctx context.Context, req payment.RefundRequest) (*payment.RefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.RefundResult), args.Error(1)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recordingNotifier) titlesFor(userID int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		if n.UserID == userID {
			out = append(out, n.Title)
		}
	}
	return out
}

type recordedEvents struct {
	mu    sync.Mutex
	types []string
}

func (r *recordedEvents) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.types {
		if t == eventType {
			n++
		}
	}
	return n
}

type env struct {
	t         *testing.T
	ctx       context.Context
	db        *database.DB
	deps      Deps
	card      *mockStrategy
	notifier  *recordingNotifier
	events    *recordedEvents
	keys      *repository.MemoryKeyStore
	now       time.Time
	craft     *models.Craft
	customer  *models.Customer
	stranger  *models.Customer
	craftsmen []*models.Craftsman
}

func newEnv(t *testing.T, craftsmen int) *env {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	e := &env{
		t:        t,
		ctx:      context.Background(),
		db:       db,
		card:     &mockStrategy{name: models.MethodCard},
		notifier: &recordingNotifier{},
		events:   &recordedEvents{},
		keys:     repository.NewMemoryKeyStore(),
		now:      testNow,
	}

	bus := events.NewEventBus()
	bus.SubscribeAll(func(ev *events.Event) error {
		e.events.mu.Lock()
		defer e.events.mu.Unlock()
		e.events.types = append(e.events.types, ev.Type)
		return nil
	})

	e.deps = Deps{
		Store:    db,
		Payments: payment.NewRegistry(e.card, payment.NewCashStrategy()),
		Keys:     e.keys,
		Events:   bus,
		Notifier: e.notifier,
		Clock:    func() time.Time { return e.now },
		Logger:   &logger,
	}

	e.craft = &models.Craft{Name: "Plumbing"}
	require.NoError(t, db.CreateCraft(e.ctx, e.craft))
	e.customer = &models.Customer{FirstName: "Mona", LastName: "Adel", Email: "mona@example.com", Phone: "+201000000001", City: "Cairo", TelegramID: 501}
	require.NoError(t, db.CreateCustomer(e.ctx, e.customer))
	e.stranger = &models.Customer{FirstName: "Other"}
	require.NoError(t, db.CreateCustomer(e.ctx, e.stranger))
	for i := 0; i < craftsmen; i++ {
		c := &models.Craftsman{FirstName: "Hassan", LastName: "Ali", CraftID: e.craft.ID, TelegramID: int64(900 + i)}
		require.NoError(t, db.CreateCraftsman(e.ctx, c))
		e.craftsmen = append(e.craftsmen, c)
	}
	return e
}

// newRequest posts a service request whose preferred date is hoursAhead from the test clock.
func (e *env) newRequest(hoursAhead float64) *models.ServiceRequest {
	e.t.Helper()
	req := &models.ServiceRequest{CustomerID: e.customer.ID, CraftID: e.craft.ID, Title: "Leaking sink", Address: "12 Nile St"}
	if hoursAhead != 0 {
		d := e.now.Add(time.Duration(hoursAhead * float64(time.Hour)))
		req.PreferredDate = &d
	}
	require.NoError(e.t, e.db.CreateServiceRequest(e.ctx, req))
	return req
}

func (e *env) offers() *OfferService { return NewOfferService(e.deps) }

func (e *env) bookings() *BookingService {
	return NewBookingService(e.deps, 24*time.Hour, 24*time.Hour)
}

func (e *env) webhooks(signer *payment.Signer, allowUnsigned bool) *WebhookService {
	return NewWebhookService(e.deps, e.bookings(), signer, allowUnsigned)
}

func (e *env) cancellations() *CancellationService { return NewCancellationService(e.deps) }

// submit creates one pending offer per craftsman with the given prices.
func (e *env) submit(req *models.ServiceRequest, prices ...int64) []*models.Offer {
	e.t.Helper()
	var out []*models.Offer
	for i, price := range prices {
		o, err := e.offers().SubmitOffer(e.ctx, e.craftsmen[i].ID, req.ID, OfferInput{Price: price, EstimatedDuration: 60})
		require.NoError(e.t, err)
		out = append(out, o)
	}
	return out
}

// acceptedOffer returns an accepted offer for a request hoursAhead in the future.
func (e *env) acceptedOffer(hoursAhead float64, price int64) *models.Offer {
	e.t.Helper()
	req := e.newRequest(hoursAhead)
	offer := e.submit(req, price)[0]
	_, err := e.offers().Accept(e.ctx, e.customer.ID, offer.ID)
	require.NoError(e.t, err)
	return offer
}

// cardBooking books an accepted offer with the card mock, returning gateway order id "order-<offer>".
func (e *env) cardBooking(hoursAhead float64, price int64) *BookingPayment {
	e.t.Helper()
	offer := e.acceptedOffer(hoursAhead, price)
	e.card.On("Initialize", mock.Anything, mock.MatchedBy(func(r payment.InitRequest) bool {
		return r.Amount == price
	})).Return(&payment.InitResult{TransactionID: orderID(offer.ID), PaymentLink: "https://pay.example/iframe"}, nil).Once()

	res, err := e.bookings().CreateAndInitiatePayment(e.ctx, e.customer.ID, offer.ID, models.MethodCard)
	require.NoError(e.t, err)
	return res
}

func orderID(offerID int64) string {
	return fmt.Sprintf("order-%d", offerID)
}

func (e *env) booking(id int64) *models.Booking {
	e.t.Helper()
	b, err := e.db.GetBooking(e.ctx, id)
	require.NoError(e.t, err)
	return b
}

func (e *env) paymentRow(id int64) *models.Payment {
	e.t.Helper()
	p, err := e.db.GetPayment(e.ctx, id)
	require.NoError(e.t, err)
	return p
}

func (e *env) request(id int64) *models.ServiceRequest {
	e.t.Helper()
	r, err := e.db.GetServiceRequest(e.ctx, id)
	require.NoError(e.t, err)
	return r
}

// failingStore wraps a store so that the transactional repository fails selected offer transitions.
type failingStore struct {
	*database.DB
	failOffer int64
}

type failingRepo struct {
	domain.Repository
	failOffer int64
}

func (f *failingStore) InTx(ctx context.Context, fn func(repo domain.Repository) error) error {
	return f.DB.InTx(ctx, func(repo domain.Repository) error {
		return fn(&failingRepo{Repository: repo, failOffer: f.failOffer})
	})
}

func (f *failingRepo) TransitionOfferStatus(ctx context.Context, id int64, from, to, reason string, at time.Time) error {
	if id == f.failOffer {
		return context.DeadlineExceeded
	}
	return f.Repository.TransitionOfferStatus(ctx, id, from, to, reason, at)
}
