package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/pkg/enums"
)

// Register is a physical or logical cash box ("caisse").
type Register struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Type      string    `gorm:"column:type;not null;uniqueIndex"`
	Prefix    string    `gorm:"column:prefix;not null;uniqueIndex"`
	Label     string    `gorm:"column:label;not null"`
	IsDefault bool      `gorm:"column:is_default;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Balances []RegisterBalance `gorm:"foreignKey:RegisterID;references:ID"`
}

func (Register) TableName() string { return "registers" }

// RegisterBalance holds the running balance of one register in one currency.
type RegisterBalance struct {
	RegisterID uuid.UUID       `gorm:"column:register_id;type:uuid;primaryKey"`
	Currency   enums.Currency  `gorm:"column:currency;primaryKey"`
	Balance    decimal.Decimal `gorm:"column:balance;type:numeric(18,2);not null"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
}

func (RegisterBalance) TableName() string { return "register_balances" }
