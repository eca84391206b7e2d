package entities

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/internal/sequence"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
)

// Kind is the type of business object a reference number designates.
type Kind string

const (
	KindOrder          Kind = "order"
	KindPaymentRequest Kind = "payment_request"
	KindFundingRequest Kind = "funding_request"
	KindPayment        Kind = "payment"
)

// KindOf routes a typed reference (CMD/…, PAY/…, FUND/…, T/…) to its kind.
func KindOf(id string) (Kind, error) {
	ref, err := sequence.Parse(id)
	if err != nil {
		return "", err
	}
	switch ref.Family {
	case enums.SequenceOrder:
		return KindOrder, nil
	case enums.SequencePaymentRequest:
		return KindPaymentRequest, nil
	case enums.SequenceFunding:
		return KindFundingRequest, nil
	case enums.SequencePayment:
		return KindPayment, nil
	default:
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s references do not identify an entity", ref.Family)
	}
}

// Entity is the uniform view of anything a reference resolves to.
type Entity struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Currency    enums.Currency  `json:"currency"`
	RegisterID  uuid.UUID       `json:"register_id"`
	Due         decimal.Decimal `json:"due"`
	HasDue      bool            `json:"has_due"`
	Paid        decimal.Decimal `json:"paid"`
	Remaining   decimal.Decimal `json:"remaining"`
	PaymentDone bool            `json:"payment_done"`
	State       string          `json:"state"`
}

// Payable reports whether payments can be recorded against the entity.
func (e Entity) Payable() bool {
	return e.Kind == KindOrder || e.Kind == KindPaymentRequest
}

// SettlementStatus derives the payment status of an entity.
func SettlementStatus(due, paid decimal.Decimal, hasPayments bool) enums.PaymentStatus {
	switch {
	case paid.IsZero() && !hasPayments:
		return enums.PaymentStatusPending
	case paid.IsZero():
		return enums.PaymentStatusUnpaid
	case paid.GreaterThanOrEqual(due):
		return enums.PaymentStatusPaid
	default:
		return enums.PaymentStatusPartial
	}
}

// Remaining is due minus paid, floored at zero.
func Remaining(due, paid decimal.Decimal) decimal.Decimal {
	rest := due.Sub(paid)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}
