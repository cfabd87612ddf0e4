package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"masterhand/internal/models"

	"github.com/rs/zerolog"
)

const paymentKeyExpiration = 3600

// GatewayOptions configures the hosted card/wallet payment processor.
type GatewayOptions struct {
	BaseURL  string
	APIKey   string
	Currency string
	IframeID string
	Timeout  time.Duration
}

// Gateway is a REST client for the hosted payment processor shared by the card and
// wallet strategies. Every call authenticates first; tokens are short-lived and never cached.
type Gateway struct {
	baseURL    string
	apiKey     string
	currency   string
	iframeID   string
	httpClient *http.Client
	logger     *zerolog.Logger
}

func NewGateway(opts GatewayOptions, logger *zerolog.Logger) *Gateway {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	currency := opts.Currency
	if currency == "" {
		currency = "EGP"
	}
	l := logger.With().Str("component", "payment_gateway").Logger()
	return &Gateway{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		currency:   currency,
		iframeID:   opts.IframeID,
		httpClient: &http.Client{Timeout: timeout},
		logger:     &l,
	}
}

type authResponse struct {
	Token string `json:"token"`
}

type orderItem struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type orderRequest struct {
	AuthToken       string      `json:"auth_token"`
	DeliveryNeeded  bool        `json:"delivery_needed"`
	AmountCents     int64       `json:"amount_cents"`
	Currency        string      `json:"currency"`
	MerchantOrderID string      `json:"merchant_order_id"`
	Items           []orderItem `json:"items"`
}

type orderResponse struct {
	ID int64 `json:"id"`
}

type billingData struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Apartment   string `json:"apartment"`
	Floor       string `json:"floor"`
	Street      string `json:"street"`
	Building    string `json:"building"`
	City        string `json:"city"`
	Country     string `json:"country"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
}

type paymentKeyRequest struct {
	AuthToken     string      `json:"auth_token"`
	AmountCents   int64       `json:"amount_cents"`
	Expiration    int         `json:"expiration"`
	OrderID       int64       `json:"order_id"`
	BillingData   billingData `json:"billing_data"`
	Currency      string      `json:"currency"`
	IntegrationID int64       `json:"integration_id"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type inquiryRequest struct {
	AuthToken string `json:"auth_token"`
	OrderID   string `json:"order_id"`
}

type refundRequest struct {
	AuthToken     string `json:"auth_token"`
	TransactionID int64  `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
}

// transaction is the subset of the processor's transaction object we rely on.
type transaction struct {
	ID          int64  `json:"id"`
	Success     bool   `json:"success"`
	Pending     bool   `json:"pending"`
	AmountCents int64  `json:"amount_cents"`
	CreatedAt   string `json:"created_at"`
}

func (g *Gateway) authenticate(ctx context.Context) (string, error) {
	var resp authResponse
	if err := g.post(ctx, "/auth/tokens", map[string]string{"api_key": g.apiKey}, "", &resp); err != nil {
		return "", fmt.Errorf("failed to authenticate: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: auth token missing", ErrProvider)
	}
	return resp.Token, nil
}

func (g *Gateway) createOrder(ctx context.Context, token string, req InitRequest) (int64, error) {
	body := orderRequest{
		AuthToken:       token,
		AmountCents:     req.Amount,
		Currency:        g.currency,
		MerchantOrderID: fmt.Sprintf("%d-%d", req.BookingID, req.PaymentID),
		Items: []orderItem{{
			Name:        orDefault(req.CraftName, "Service"),
			AmountCents: req.Amount,
			Description: fmt.Sprintf("Service by %s on %s", orDefault(req.CraftsmanName, "craftsman"), req.BookingDate.Format("2006-01-02")),
			Quantity:    1,
		}},
	}
	var resp orderResponse
	if err := g.post(ctx, "/ecommerce/orders", body, "", &resp); err != nil {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}
	if resp.ID == 0 {
		return 0, fmt.Errorf("%w: order id missing", ErrProvider)
	}
	return resp.ID, nil
}

func (g *Gateway) paymentKey(ctx context.Context, token string, orderID, integrationID int64, req InitRequest) (string, error) {
	body := paymentKeyRequest{
		AuthToken:   token,
		AmountCents: req.Amount,
		Expiration:  paymentKeyExpiration,
		OrderID:     orderID,
		BillingData: billingData{
			FirstName:   orDefault(req.FirstName, "NA"),
			LastName:    orDefault(req.LastName, "NA"),
			Email:       orDefault(req.Email, "NA"),
			PhoneNumber: orDefault(req.Phone, "NA"),
			Apartment:   "NA",
			Floor:       "NA",
			Street:      orDefault(req.Address, "NA"),
			Building:    "NA",
			City:        orDefault(req.City, "NA"),
			Country:     "EG",
			State:       "NA",
			PostalCode:  "NA",
		},
		Currency:      g.currency,
		IntegrationID: integrationID,
	}
	var resp tokenResponse
	if err := g.post(ctx, "/acceptance/payment_keys", body, "", &resp); err != nil {
		return "", fmt.Errorf("failed to create payment key: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("%w: payment key missing", ErrProvider)
	}
	return resp.Token, nil
}

// inquire looks up the latest transaction of an order.
func (g *Gateway) inquire(ctx context.Context, token, orderID string) (*transaction, error) {
	var resp transaction
	body := inquiryRequest{AuthToken: token, OrderID: orderID}
	if err := g.post(ctx, "/ecommerce/orders/transaction_inquiry", body, token, &resp); err != nil {
		return nil, fmt.Errorf("failed to inquire order %s: %w", orderID, err)
	}
	if resp.ID == 0 {
		return nil, fmt.Errorf("%w: no transaction for order %s", ErrProvider, orderID)
	}
	return &resp, nil
}

func (g *Gateway) refund(ctx context.Context, token string, transactionID, amount int64) (*transaction, error) {
	var resp transaction
	body := refundRequest{AuthToken: token, TransactionID: transactionID, AmountCents: amount}
	if err := g.post(ctx, "/acceptance/void_refund/refund", body, token, &resp); err != nil {
		return nil, fmt.Errorf("failed to refund transaction %d: %w", transactionID, err)
	}
	if !resp.Success || resp.ID == 0 {
		return nil, fmt.Errorf("%w: refund of transaction %d declined", ErrProvider, transactionID)
	}
	return &resp, nil
}

func (g *Gateway) iframeURL(paymentToken string) string {
	return fmt.Sprintf("%s/acceptance/iframes/%s?payment_token=%s", g.baseURL, g.iframeID, paymentToken)
}

func (g *Gateway) walletURL(paymentToken string) string {
	return fmt.Sprintf("%s/acceptance/payments/pay?payment_token=%s", g.baseURL, paymentToken)
}

func (g *Gateway) post(ctx context.Context, path string, body any, bearer string, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return g.do(req, out)
}

func (g *Gateway) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	g.logger.Debug().
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("gateway call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: http %d: %s", ErrProvider, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrProvider, err)
	}
	return nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// GatewayStrategy implements Strategy on top of the hosted processor. Card and
// wallet differ only in integration id and in how the customer is sent to pay.
type GatewayStrategy struct {
	name          string
	integrationID int64
	gateway       *Gateway
	link          func(token string) string
	now           func() time.Time
}

func NewCardStrategy(g *Gateway, integrationID int64) *GatewayStrategy {
	return &GatewayStrategy{name: models.MethodCard, integrationID: integrationID, gateway: g, link: g.iframeURL, now: time.Now}
}

func NewWalletStrategy(g *Gateway, integrationID int64) *GatewayStrategy {
	return &GatewayStrategy{name: models.MethodWallet, integrationID: integrationID, gateway: g, link: g.walletURL, now: time.Now}
}

func (s *GatewayStrategy) ProviderName() string { return s.name }

// Initialize runs auth, order creation and payment key generation. The returned
// transaction id is the processor's order id, which later identifies the callback.
func (s *GatewayStrategy) Initialize(ctx context.Context, req InitRequest) (*InitResult, error) {
	log := s.gateway.logger.With().Str("provider", s.name).Int64("booking_id", req.BookingID).Int64("payment_id", req.PaymentID).Logger()

	token, err := s.gateway.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	orderID, err := s.gateway.createOrder(ctx, token, req)
	if err != nil {
		return nil, err
	}
	log.Debug().Int64("order_id", orderID).Msg("gateway order created")

	paymentToken, err := s.gateway.paymentKey(ctx, token, orderID, s.integrationID, req)
	if err != nil {
		return nil, err
	}

	return &InitResult{
		TransactionID: strconv.FormatInt(orderID, 10),
		PaymentLink:   s.link(paymentToken),
		Token:         paymentToken,
	}, nil
}

func (s *GatewayStrategy) Verify(ctx context.Context, transactionID string) (*VerifyResult, error) {
	token, err := s.gateway.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	txn, err := s.gateway.inquire(ctx, token, transactionID)
	if err != nil {
		return nil, err
	}
	res := &VerifyResult{Confirmed: txn.Success && !txn.Pending}
	if res.Confirmed {
		res.PaidAmount = txn.AmountCents
	}
	return res, nil
}

// capturedTransaction prefers the id stamped by the callback and falls back to
// an order inquiry.
func (s *GatewayStrategy) capturedTransaction(ctx context.Context, token string, req RefundRequest) (int64, error) {
	if id, err := strconv.ParseInt(strings.TrimSpace(req.GatewayTransactionID), 10, 64); err == nil && id > 0 {
		return id, nil
	}
	paid, err := s.gateway.inquire(ctx, token, req.TransactionID)
	if err != nil {
		return 0, err
	}
	return paid.ID, nil
}

func (s *GatewayStrategy) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("refund amount must be positive, got %d", req.Amount)
	}
	token, err := s.gateway.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	captured, err := s.capturedTransaction(ctx, token, req)
	if err != nil {
		return nil, err
	}
	refunded, err := s.gateway.refund(ctx, token, captured, req.Amount)
	if err != nil {
		return nil, err
	}
	s.gateway.logger.Info().
		Str("provider", s.name).
		Str("transaction_id", req.TransactionID).
		Int64("amount", req.Amount).
		Msg("refund issued")

	return &RefundResult{
		RefundTransactionID: strconv.FormatInt(refunded.ID, 10),
		RefundAmount:        req.Amount,
		RefundDate:          s.now().UTC(),
	}, nil
}
