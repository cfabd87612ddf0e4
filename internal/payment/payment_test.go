package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCashStrategy(t *testing.T) {
	cash := NewCashStrategy()
	assert.Equal(t, "Cash", cash.ProviderName())

	first, err := cash.Initialize(context.Background(), InitRequest{BookingID: 1, Amount: 100})
	require.NoError(t, err)
	second, err := cash.Initialize(context.Background(), InitRequest{BookingID: 1, Amount: 100})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first.TransactionID, CashPrefix))
	assert.NotEqual(t, first.TransactionID, second.TransactionID)
	assert.Empty(t, first.PaymentLink)
	assert.Empty(t, first.Token)

	refund, err := cash.Refund(context.Background(), RefundRequest{TransactionID: first.TransactionID, Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(50), refund.RefundAmount)
	assert.True(t, strings.HasPrefix(refund.RefundTransactionID, CashPrefix))

	verify, err := cash.Verify(context.Background(), first.TransactionID)
	require.NoError(t, err)
	assert.False(t, verify.Confirmed)
}

func TestRegistry(t *testing.T) {
	gw := NewGateway(GatewayOptions{BaseURL: "http://gateway.invalid"}, nil)
	card := NewCardStrategy(gw, 1)
	wallet := NewWalletStrategy(gw, 2)
	cash := NewCashStrategy()
	reg := NewRegistry(card, wallet, cash)

	tests := []struct {
		method string
		want   Strategy
	}{
		{"Card", card},
		{"Wallet", wallet},
		{"Cash", cash},
		{"", card},
	}
	for _, tt := range tests {
		got, err := reg.Resolve(tt.method)
		require.NoError(t, err, tt.method)
		assert.Same(t, tt.want, got, tt.method)
	}

	_, err := reg.Resolve("cash")
	assert.Error(t, err, "lookup is case-sensitive")

	_, err = reg.Resolve("Paypal")
	assert.Error(t, err, "only the empty method falls back to card")
	_, err = reg.Resolve("Bitcoin")
	assert.Error(t, err)

	assert.ElementsMatch(t, []string{"Card", "Wallet", "Cash"}, reg.Methods())
}

func sampleCallback() *Callback {
	return &Callback{
		TransactionID:       "555",
		OrderID:             "9001",
		AmountCents:         100000,
		Currency:            "EGP",
		Success:             true,
		IsCapture:           false,
		IsStandalonePayment: true,
		IntegrationID:       "111",
		Owner:               "302",
		SourceDataPan:       "2346",
		SourceDataSubType:   "MasterCard",
		SourceDataType:      "card",
		CreatedAt:           "2026-05-01T10:00:00.000000",
	}
}

func TestSignerFieldOrder(t *testing.T) {
	cb := sampleCallback()
	concat := "100000" + "2026-05-01T10:00:00.000000" + "EGP" + "false" + "false" + "555" + "111" +
		"false" + "false" + "false" + "true" + "false" + "9001" + "302" + "false" +
		"2346" + "MasterCard" + "card" + "true"

	mac := hmac.New(sha512.New, []byte("secret"))
	mac.Write([]byte(concat))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, NewSigner("secret").Sign(cb))
}

func TestSignerValid(t *testing.T) {
	signer := NewSigner("secret")
	assert.True(t, signer.Enabled())
	assert.False(t, NewSigner("").Enabled())

	cb := sampleCallback()
	cb.HMAC = signer.Sign(cb)
	assert.True(t, signer.Valid(cb))

	cb.HMAC = strings.ToUpper(cb.HMAC)
	assert.True(t, signer.Valid(cb), "hex comparison ignores case")

	tampered := *cb
	tampered.AmountCents = 1
	assert.False(t, signer.Valid(&tampered))

	wrongKey := *cb
	wrongKey.HMAC = NewSigner("other").Sign(cb)
	assert.False(t, signer.Valid(&wrongKey))

	garbage := *cb
	garbage.HMAC = "not-hex"
	assert.False(t, signer.Valid(&garbage))

	empty := *cb
	empty.HMAC = ""
	assert.False(t, signer.Valid(&empty))
}
