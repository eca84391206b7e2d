package payments

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/internal/entities"
	"github.com/angelmondragon/caisseflow/internal/notify"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	"github.com/angelmondragon/caisseflow/pkg/types"
)

// RecordInput appends a payment to an order (CMD/…) or payment request (PAY/…).
type RecordInput struct {
	EntityID           string
	Amount             decimal.Decimal
	Currency           enums.Currency
	Fee                decimal.Decimal
	Details            types.MethodDetails
	AccountingRequired bool
	Actor              string
}

// ModifyInput replaces the mode, amount, fee and accounting flag of a payment.
type ModifyInput struct {
	PaymentNumber      string
	Amount             decimal.Decimal
	Fee                decimal.Decimal
	Details            types.MethodDetails
	AccountingRequired bool
	Actor              string
}

// Result is the state after a payment operation.
type Result struct {
	Payment       *models.Payment  `json:"payment"`
	Entity        *entities.Entity `json:"entity"`
	Notifications []notify.Intent  `json:"notifications,omitempty"`
}

// Summary is the settlement view of a payable entity.
type Summary struct {
	EntityID    string              `json:"entity_id"`
	Kind        entities.Kind       `json:"kind"`
	Currency    enums.Currency      `json:"currency"`
	Due         decimal.Decimal     `json:"due"`
	Paid        decimal.Decimal     `json:"paid"`
	Remaining   decimal.Decimal     `json:"remaining"`
	Status      enums.PaymentStatus `json:"status"`
	PaymentDone bool                `json:"payment_done"`
	Payments    []models.Payment    `json:"payments"`
}
