package payloads

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/pkg/enums"
)

// NotificationRequestedEvent asks the dispatcher to alert an audience about an entity state.
type NotificationRequestedEvent struct {
	Audience enums.Audience `json:"audience"`
	EntityID string         `json:"entity_id"`
	NewState string         `json:"new_state"`
	Actor    string         `json:"actor,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// LedgerSyncRequestedEvent asks the doc-sync handler to export a register snapshot.
type LedgerSyncRequestedEvent struct {
	RegisterID string `json:"register_id"`
	RequestID  string `json:"request_id"`
}

// FundingTransitionedEvent is emitted on every funding workflow transition.
type FundingTransitionedEvent struct {
	RequestID  string              `json:"request_id"`
	RegisterID string              `json:"register_id"`
	FromStage  enums.FundingStage  `json:"from_stage,omitempty"`
	ToStage    enums.FundingStage  `json:"to_stage"`
	Status     enums.FundingStatus `json:"status"`
	Amount     decimal.Decimal     `json:"amount"`
	Currency   enums.Currency      `json:"currency"`
	Actor      string              `json:"actor"`
}

// PaymentRecordedEvent is emitted when a payment is appended to an order or payment request.
type PaymentRecordedEvent struct {
	EntityID           string              `json:"entity_id"`
	PaymentID          string              `json:"payment_id"`
	PaymentNumber      string              `json:"payment_number"`
	DisbursementNumber *string             `json:"disbursement_number,omitempty"`
	Mode               enums.PaymentMode   `json:"mode"`
	Amount             decimal.Decimal     `json:"amount"`
	Fee                decimal.Decimal     `json:"fee"`
	Currency           enums.Currency      `json:"currency"`
	Status             enums.PaymentStatus `json:"status"`
	Remaining          decimal.Decimal     `json:"remaining"`
	Actor              string              `json:"actor"`
}

// PaymentModifiedEvent is emitted when an existing payment changes mode, amount or accounting flag.
type PaymentModifiedEvent struct {
	EntityID           string              `json:"entity_id"`
	PaymentID          string              `json:"payment_id"`
	PaymentNumber      string              `json:"payment_number"`
	DisbursementNumber *string             `json:"disbursement_number,omitempty"`
	PreviousMode       enums.PaymentMode   `json:"previous_mode"`
	Mode               enums.PaymentMode   `json:"mode"`
	PreviousAmount     decimal.Decimal     `json:"previous_amount"`
	Amount             decimal.Decimal     `json:"amount"`
	Status             enums.PaymentStatus `json:"status"`
	Actor              string              `json:"actor"`
}
