package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
)

// SeedRegister inserts a register with a balance row per supported currency.
// Non-zero opening amounts are mirrored by opening transactions so the
// register starts balanced.
func SeedRegister(t testing.TB, conn *gorm.DB, registerType, prefix string, opening map[enums.Currency]decimal.Decimal) models.Register {
	t.Helper()

	now := time.Now().UTC()
	reg := models.Register{
		ID:     uuid.New(),
		Type:   registerType,
		Prefix: prefix,
		Label:  registerType,
	}
	if err := conn.Create(&reg).Error; err != nil {
		t.Fatalf("seed register: %v", err)
	}

	for _, currency := range enums.Currencies() {
		amount := opening[currency]
		balance := models.RegisterBalance{
			RegisterID: reg.ID,
			Currency:   currency,
			Balance:    amount,
			UpdatedAt:  now,
		}
		if err := conn.Create(&balance).Error; err != nil {
			t.Fatalf("seed balance: %v", err)
		}
		reg.Balances = append(reg.Balances, balance)
		if amount.IsZero() {
			continue
		}
		txn := models.RegisterTransaction{
			ID:           uuid.New(),
			RegisterID:   reg.ID,
			Type:         enums.TransactionTypeOpening,
			Amount:       amount,
			Currency:     currency,
			BalanceAfter: amount,
			Reason:       "opening balance",
			Actor:        "seed",
			CreatedAt:    now,
		}
		if err := conn.Create(&txn).Error; err != nil {
			t.Fatalf("seed opening transaction: %v", err)
		}
	}
	return reg
}

// Balance reads the stored balance of one register currency.
func Balance(t testing.TB, conn *gorm.DB, registerID uuid.UUID, currency enums.Currency) decimal.Decimal {
	t.Helper()
	var row models.RegisterBalance
	if err := conn.Where("register_id = ? AND currency = ?", registerID, currency).First(&row).Error; err != nil {
		t.Fatalf("load balance: %v", err)
	}
	return row.Balance
}

// CountTransactions counts log entries for a register.
func CountTransactions(t testing.TB, conn *gorm.DB, registerID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&models.RegisterTransaction{}).Where("register_id = ?", registerID).Count(&count).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return count
}
