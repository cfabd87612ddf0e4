package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu       sync.Mutex
	calls    []string
	bodies   map[string]map[string]any
	failPath string
	noToken  bool
	txn      transaction
}

func newFakeGateway(t *testing.T) (*fakeGateway, *httptest.Server) {
	t.Helper()
	f := &fakeGateway{
		bodies: make(map[string]map[string]any),
		txn:    transaction{ID: 555, Success: true, AmountCents: 100000},
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, r.URL.Path)
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.bodies[r.URL.Path] = body

	if r.URL.Path == f.failPath {
		http.Error(w, "boom", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/auth/tokens":
		if f.noToken {
			_ = json.NewEncoder(w).Encode(map[string]string{})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "auth-token"})
	case "/ecommerce/orders":
		_ = json.NewEncoder(w).Encode(map[string]int64{"id": 9001})
	case "/acceptance/payment_keys":
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "pay-key"})
	case "/ecommerce/orders/transaction_inquiry":
		_ = json.NewEncoder(w).Encode(f.txn)
	case "/acceptance/void_refund/refund":
		_ = json.NewEncoder(w).Encode(transaction{ID: 777, Success: true, AmountCents: int64(body["amount_cents"].(float64))})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestGateway(url string) *Gateway {
	logger := zerolog.Nop()
	return NewGateway(GatewayOptions{BaseURL: url, APIKey: "key", Currency: "EGP", IframeID: "42", Timeout: 2 * time.Second}, &logger)
}

func testInitRequest() InitRequest {
	return InitRequest{
		BookingID:     7,
		PaymentID:     9,
		CustomerID:    3,
		Amount:        100000,
		FirstName:     "Mona",
		LastName:      "Adel",
		Email:         "mona@example.com",
		Phone:         "+201000000000",
		CraftName:     "Plumbing",
		CraftsmanName: "Hassan Ali",
		BookingDate:   time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestCardInitialize(t *testing.T) {
	fake, srv := newFakeGateway(t)
	card := NewCardStrategy(newTestGateway(srv.URL), 111)

	res, err := card.Initialize(context.Background(), testInitRequest())
	require.NoError(t, err)

	assert.Equal(t, "9001", res.TransactionID)
	assert.Equal(t, "pay-key", res.Token)
	assert.Equal(t, srv.URL+"/acceptance/iframes/42?payment_token=pay-key", res.PaymentLink)
	assert.Equal(t, []string{"/auth/tokens", "/ecommerce/orders", "/acceptance/payment_keys"}, fake.calls)

	order := fake.bodies["/ecommerce/orders"]
	assert.Equal(t, "7-9", order["merchant_order_id"])
	assert.EqualValues(t, 100000, order["amount_cents"])

	key := fake.bodies["/acceptance/payment_keys"]
	assert.EqualValues(t, 111, key["integration_id"])
	assert.EqualValues(t, 9001, key["order_id"])
	billing := key["billing_data"].(map[string]any)
	assert.Equal(t, "Mona", billing["first_name"])
	assert.Equal(t, "NA", billing["street"])
}

func TestWalletInitializeUsesWalletIntegration(t *testing.T) {
	fake, srv := newFakeGateway(t)
	wallet := NewWalletStrategy(newTestGateway(srv.URL), 222)

	res, err := wallet.Initialize(context.Background(), testInitRequest())
	require.NoError(t, err)

	assert.Equal(t, "Wallet", wallet.ProviderName())
	assert.EqualValues(t, 222, fake.bodies["/acceptance/payment_keys"]["integration_id"])
	assert.True(t, strings.HasSuffix(res.PaymentLink, "/acceptance/payments/pay?payment_token=pay-key"))
}

func TestInitializeHardFailures(t *testing.T) {
	t.Run("NonSuccessStatus", func(t *testing.T) {
		fake, srv := newFakeGateway(t)
		fake.failPath = "/acceptance/payment_keys"

		_, err := NewCardStrategy(newTestGateway(srv.URL), 1).Initialize(context.Background(), testInitRequest())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProvider)
		assert.Equal(t, 3, fake.callCount(), "no retry inside the strategy")
	})

	t.Run("MissingAuthToken", func(t *testing.T) {
		fake, srv := newFakeGateway(t)
		fake.noToken = true

		_, err := NewCardStrategy(newTestGateway(srv.URL), 1).Initialize(context.Background(), testInitRequest())
		assert.ErrorIs(t, err, ErrProvider)
		assert.Equal(t, 1, fake.callCount())
	})

	t.Run("CancelledContext", func(t *testing.T) {
		_, srv := newFakeGateway(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewCardStrategy(newTestGateway(srv.URL), 1).Initialize(ctx, testInitRequest())
		assert.ErrorIs(t, err, ErrProvider)
	})
}

func TestGatewayVerify(t *testing.T) {
	fake, srv := newFakeGateway(t)
	card := NewCardStrategy(newTestGateway(srv.URL), 1)

	res, err := card.Verify(context.Background(), "9001")
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.Equal(t, int64(100000), res.PaidAmount)
	assert.Equal(t, "9001", fake.bodies["/ecommerce/orders/transaction_inquiry"]["order_id"])

	fake.txn.Pending = true
	res, err = card.Verify(context.Background(), "9001")
	require.NoError(t, err)
	assert.False(t, res.Confirmed)
	assert.Zero(t, res.PaidAmount)
}

func TestGatewayRefund(t *testing.T) {
	fake, srv := newFakeGateway(t)
	card := NewCardStrategy(newTestGateway(srv.URL), 1)

	res, err := card.Refund(context.Background(), RefundRequest{TransactionID: "9001", Amount: 75000})
	require.NoError(t, err)

	assert.Equal(t, "777", res.RefundTransactionID)
	assert.Equal(t, int64(75000), res.RefundAmount)
	assert.False(t, res.RefundDate.IsZero())

	refund := fake.bodies["/acceptance/void_refund/refund"]
	assert.EqualValues(t, 555, refund["transaction_id"])
	assert.EqualValues(t, 75000, refund["amount_cents"])

	_, err = card.Refund(context.Background(), RefundRequest{TransactionID: "9001", Amount: 0})
	assert.Error(t, err)
}

func TestGatewayRefundUsesCapturedTransaction(t *testing.T) {
	fake, srv := newFakeGateway(t)
	card := NewCardStrategy(newTestGateway(srv.URL), 1)

	_, err := card.Refund(context.Background(), RefundRequest{TransactionID: "9001", GatewayTransactionID: "901", Amount: 500})
	require.NoError(t, err)

	assert.NotContains(t, fake.calls, "/ecommerce/orders/transaction_inquiry")
	assert.EqualValues(t, 901, fake.bodies["/acceptance/void_refund/refund"]["transaction_id"])

	t.Run("NonNumericFallsBackToInquiry", func(t *testing.T) {
		fake.calls = nil
		_, err := card.Refund(context.Background(), RefundRequest{TransactionID: "9001", GatewayTransactionID: "tx-9001", Amount: 500})
		require.NoError(t, err)
		assert.Contains(t, fake.calls, "/ecommerce/orders/transaction_inquiry")
		assert.EqualValues(t, 555, fake.bodies["/acceptance/void_refund/refund"]["transaction_id"])
	})
}

func TestGatewayRefundFailure(t *testing.T) {
	fake, srv := newFakeGateway(t)
	fake.failPath = "/acceptance/void_refund/refund"

	_, err := NewWalletStrategy(newTestGateway(srv.URL), 1).Refund(context.Background(), RefundRequest{TransactionID: "9001", Amount: 10})
	assert.ErrorIs(t, err, ErrProvider)
}
