package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strconv"
	"strings"
)

// Callback is the asynchronous transaction notification posted by the processor.
type Callback struct {
	TransactionID        string `json:"transactionId"`
	OrderID              string `json:"orderId"`
	AmountCents          int64  `json:"amountCents"`
	Currency             string `json:"currency"`
	Success              bool   `json:"success"`
	ErrorOccurred        bool   `json:"errorOccurred"`
	Pending              bool   `json:"pending"`
	IsRefunded           bool   `json:"isRefunded"`
	IsVoided             bool   `json:"isVoided"`
	IsCapture            bool   `json:"isCapture"`
	IsAuth               bool   `json:"isAuth"`
	IsStandalonePayment  bool   `json:"isStandalonePayment"`
	HasParentTransaction bool   `json:"hasParentTransaction"`
	IntegrationID        string `json:"integrationId"`
	Owner                string `json:"owner"`
	SourceDataPan        string `json:"sourceDataPan"`
	SourceDataSubType    string `json:"sourceDataSubType"`
	SourceDataType       string `json:"sourceDataType"`
	CreatedAt            string `json:"createdAt"`
	HMAC                 string `json:"hmac"`
}

// signedFields returns the callback values in the processor's documented
// concatenation order.
func (c *Callback) signedFields() []string {
	return []string{
		strconv.FormatInt(c.AmountCents, 10),
		c.CreatedAt,
		c.Currency,
		strconv.FormatBool(c.ErrorOccurred),
		strconv.FormatBool(c.HasParentTransaction),
		c.TransactionID,
		c.IntegrationID,
		strconv.FormatBool(c.IsAuth),
		strconv.FormatBool(c.IsCapture),
		strconv.FormatBool(c.IsRefunded),
		strconv.FormatBool(c.IsStandalonePayment),
		strconv.FormatBool(c.IsVoided),
		c.OrderID,
		c.Owner,
		strconv.FormatBool(c.Pending),
		c.SourceDataPan,
		c.SourceDataSubType,
		c.SourceDataType,
		strconv.FormatBool(c.Success),
	}
}

// Signer computes and checks HMAC-SHA512 callback signatures.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Enabled reports whether a shared secret is configured.
func (s *Signer) Enabled() bool {
	return len(s.secret) > 0
}

// Sign returns the lowercase hex signature of the callback.
func (s *Signer) Sign(c *Callback) string {
	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(strings.Join(c.signedFields(), "")))
	return hex.EncodeToString(mac.Sum(nil))
}

// Valid compares the callback's signature with the expected one. Hex case is ignored.
func (s *Signer) Valid(c *Callback) bool {
	got, err := hex.DecodeString(strings.TrimSpace(c.HMAC))
	if err != nil || len(got) == 0 {
		return false
	}
	want, _ := hex.DecodeString(s.Sign(c))
	return hmac.Equal(got, want)
}
