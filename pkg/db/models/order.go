package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/pkg/enums"
)

// Order is a purchase order settled against its validated proforma.
type Order struct {
	ID              string              `gorm:"column:id;primaryKey"`
	Description     string              `gorm:"column:description;not null"`
	Currency        enums.Currency      `gorm:"column:currency;not null"`
	RegisterID      uuid.UUID           `gorm:"column:register_id;type:uuid;not null"`
	AmountPaid      decimal.Decimal     `gorm:"column:amount_paid;type:numeric(18,2);not null"`
	RemainingAmount decimal.Decimal     `gorm:"column:remaining_amount;type:numeric(18,2);not null"`
	PaymentDone     bool                `gorm:"column:payment_done;not null;default:false"`
	Status          enums.PaymentStatus `gorm:"column:status;not null"`
	CreatedBy       string              `gorm:"column:created_by;not null"`
	CreatedAt       time.Time           `gorm:"column:created_at"`
	UpdatedAt       time.Time           `gorm:"column:updated_at"`

	Proformas []Proforma `gorm:"foreignKey:OrderID;references:ID"`
}

func (Order) TableName() string { return "orders" }

// Proforma is a supplier quote attached to an order. At most one is validated.
type Proforma struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     string          `gorm:"column:order_id;not null"`
	Supplier    string          `gorm:"column:supplier;not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	Currency    enums.Currency  `gorm:"column:currency;not null"`
	Validated   bool            `gorm:"column:validated;not null;default:false"`
	ValidatedBy *string         `gorm:"column:validated_by"`
	ValidatedAt *time.Time      `gorm:"column:validated_at"`
	CreatedAt   time.Time       `gorm:"column:created_at"`
}

func (Proforma) TableName() string { return "proformas" }
