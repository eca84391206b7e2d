package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/pkg/enums"
	"github.com/angelmondragon/caisseflow/pkg/types"
)

// Payment is one disbursement applied to an order or payment request.
type Payment struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	EntityID           string              `gorm:"column:entity_id;not null"`
	PaymentNumber      string              `gorm:"column:payment_number;not null;uniqueIndex"`
	DisbursementNumber *string             `gorm:"column:disbursement_number"`
	Mode               enums.PaymentMode   `gorm:"column:mode;not null"`
	Amount             decimal.Decimal     `gorm:"column:amount;type:numeric(18,2);not null"`
	Currency           enums.Currency      `gorm:"column:currency;not null"`
	Fee                decimal.Decimal     `gorm:"column:fee;type:numeric(18,2);not null"`
	MethodDetails      types.MethodDetails `gorm:"column:method_details;type:jsonb"`
	Status             enums.PaymentStatus `gorm:"column:status;not null"`
	AccountingRequired bool                `gorm:"column:accounting_required;not null;default:false"`
	RegisterID         *uuid.UUID          `gorm:"column:register_id;type:uuid"`
	RecordedBy         string              `gorm:"column:recorded_by;not null"`
	ModifiedBy         *string             `gorm:"column:modified_by"`
	CreatedAt          time.Time           `gorm:"column:created_at"`
	UpdatedAt          time.Time           `gorm:"column:updated_at"`
}

func (Payment) TableName() string { return "payments" }
