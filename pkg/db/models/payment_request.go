package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/pkg/enums"
)

// PaymentRequest asks finance to pay a beneficiary a fixed amount.
type PaymentRequest struct {
	ID              string              `gorm:"column:id;primaryKey"`
	Amount          decimal.Decimal     `gorm:"column:amount;type:numeric(18,2);not null"`
	Currency        enums.Currency      `gorm:"column:currency;not null"`
	Beneficiary     string              `gorm:"column:beneficiary;not null"`
	Reason          string              `gorm:"column:reason;not null"`
	RegisterID      uuid.UUID           `gorm:"column:register_id;type:uuid;not null"`
	AmountPaid      decimal.Decimal     `gorm:"column:amount_paid;type:numeric(18,2);not null"`
	RemainingAmount decimal.Decimal     `gorm:"column:remaining_amount;type:numeric(18,2);not null"`
	PaymentDone     bool                `gorm:"column:payment_done;not null;default:false"`
	Status          enums.PaymentStatus `gorm:"column:status;not null"`
	CreatedBy       string              `gorm:"column:created_by;not null"`
	CreatedAt       time.Time           `gorm:"column:created_at"`
	UpdatedAt       time.Time           `gorm:"column:updated_at"`
}

func (PaymentRequest) TableName() string { return "payment_requests" }
