package payment

import (
	"context"
	"time"

	"masterhand/internal/models"

	"github.com/google/uuid"
)

// CashPrefix distinguishes locally generated transaction ids from gateway ids.
const CashPrefix = "CASH-"

// CashStrategy settles in person. Nothing leaves the process.
type CashStrategy struct {
	now func() time.Time
}

func NewCashStrategy() *CashStrategy {
	return &CashStrategy{now: time.Now}
}

func (c *CashStrategy) ProviderName() string { return models.MethodCash }

func (c *CashStrategy) Initialize(_ context.Context, _ InitRequest) (*InitResult, error) {
	return &InitResult{TransactionID: CashPrefix + uuid.NewString()}, nil
}

// Verify reports cash payments as unconfirmed; the craftsman confirms receipt by hand.
func (c *CashStrategy) Verify(_ context.Context, _ string) (*VerifyResult, error) {
	return &VerifyResult{Confirmed: false}, nil
}

func (c *CashStrategy) Refund(_ context.Context, req RefundRequest) (*RefundResult, error) {
	return &RefundResult{
		RefundTransactionID: CashPrefix + "REFUND-" + uuid.NewString(),
		RefundAmount:        req.Amount,
		RefundDate:          c.now().UTC(),
	}, nil
}
