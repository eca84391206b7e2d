package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/pkg/enums"
	"github.com/angelmondragon/caisseflow/pkg/types"
)

// RegisterTransaction is an immutable entry of the register transaction log.
// Amount is signed: credits are positive, debits negative.
type RegisterTransaction struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	RegisterID    uuid.UUID             `gorm:"column:register_id;type:uuid;not null"`
	Type          enums.TransactionType `gorm:"column:type;not null"`
	Amount        decimal.Decimal       `gorm:"column:amount;type:numeric(18,2);not null"`
	Currency      enums.Currency        `gorm:"column:currency;not null"`
	BalanceAfter  decimal.Decimal       `gorm:"column:balance_after;type:numeric(18,2);not null"`
	RequestID     string                `gorm:"column:request_id"`
	Reason        string                `gorm:"column:reason"`
	Actor         string                `gorm:"column:actor;not null"`
	MethodDetails types.MethodDetails   `gorm:"column:method_details;type:jsonb"`
	CreatedAt     time.Time             `gorm:"column:created_at"`
}

func (RegisterTransaction) TableName() string { return "register_transactions" }
