package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	"github.com/angelmondragon/caisseflow/pkg/types"
)

const (
	defaultTransactionLimit = 100
	maxTransactionLimit     = 500
)

// AdjustInput describes one signed balance movement.
type AdjustInput struct {
	RegisterID    uuid.UUID
	Currency      enums.Currency
	Amount        decimal.Decimal
	Type          enums.TransactionType
	RequestID     string
	Reason        string
	Actor         string
	MethodDetails types.MethodDetails
}

// RefundInput reverses a cash payment. Amount is the original, positive, payment amount.
type RefundInput struct {
	RegisterID    uuid.UUID
	Currency      enums.Currency
	Amount        decimal.Decimal
	PaymentNumber string
	Reason        string
	Actor         string
	MethodDetails types.MethodDetails
}

// AdjustResult is the balance after the movement and the appended log entry.
type AdjustResult struct {
	Balance     decimal.Decimal
	Transaction models.RegisterTransaction
}

// InsufficientFundsDetails is attached to INSUFFICIENT_FUNDS errors.
type InsufficientFundsDetails struct {
	RegisterID uuid.UUID       `json:"register_id"`
	Currency   enums.Currency  `json:"currency"`
	Balance    decimal.Decimal `json:"balance"`
	Requested  decimal.Decimal `json:"requested"`
	Shortfall  decimal.Decimal `json:"shortfall"`
}

// TransactionFilter narrows Transactions. Zero values are ignored.
type TransactionFilter struct {
	Currency  enums.Currency
	Type      enums.TransactionType
	RequestID string
	Since     *time.Time
	Until     *time.Time
	Limit     int
}

func (f TransactionFilter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultTransactionLimit
	case f.Limit > maxTransactionLimit:
		return maxTransactionLimit
	default:
		return f.Limit
	}
}

// CurrencyCheck compares the stored balance against the transaction log.
type CurrencyCheck struct {
	Currency         enums.Currency  `json:"currency"`
	Balance          decimal.Decimal `json:"balance"`
	TransactionTotal decimal.Decimal `json:"transaction_total"`
	Drift            decimal.Decimal `json:"drift"`
}

// VerifyReport is the conservation audit of one register.
type VerifyReport struct {
	RegisterID uuid.UUID       `json:"register_id"`
	Balanced   bool            `json:"balanced"`
	Currencies []CurrencyCheck `json:"currencies"`
}
