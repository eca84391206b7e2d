package docsync

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
)

// Snapshot is the document exported after each ledger-affecting transition.
type Snapshot struct {
	RegisterID   uuid.UUID         `json:"register_id"`
	RequestID    string            `json:"request_id"`
	GeneratedAt  time.Time         `json:"generated_at"`
	Balances     []BalanceLine     `json:"balances"`
	Transactions []TransactionLine `json:"transactions"`
}

type BalanceLine struct {
	Currency enums.Currency  `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

type TransactionLine struct {
	ID           uuid.UUID             `json:"id"`
	Type         enums.TransactionType `json:"type"`
	Amount       decimal.Decimal       `json:"amount"`
	Currency     enums.Currency        `json:"currency"`
	BalanceAfter decimal.Decimal       `json:"balance_after"`
	RequestID    string                `json:"request_id,omitempty"`
	Actor        string                `json:"actor"`
	CreatedAt    time.Time             `json:"created_at"`
}

func buildSnapshot(registerID uuid.UUID, requestID string, at time.Time, balances []models.RegisterBalance, txs []models.RegisterTransaction) Snapshot {
	snap := Snapshot{
		RegisterID:   registerID,
		RequestID:    requestID,
		GeneratedAt:  at,
		Balances:     make([]BalanceLine, 0, len(balances)),
		Transactions: make([]TransactionLine, 0, len(txs)),
	}
	for _, b := range balances {
		snap.Balances = append(snap.Balances, BalanceLine{Currency: b.Currency, Balance: b.Balance})
	}
	for _, t := range txs {
		line := TransactionLine{
			ID:           t.ID,
			Type:         t.Type,
			Amount:       t.Amount,
			Currency:     t.Currency,
			BalanceAfter: t.BalanceAfter,
			RequestID:    t.RequestID,
			Actor:        t.Actor,
			CreatedAt:    t.CreatedAt,
		}
		snap.Transactions = append(snap.Transactions, line)
	}
	return snap
}

// ObjectName places snapshots under prefix/<register>/<yyyy>/<mm>/ so a
// register's history lists chronologically.
func ObjectName(prefix string, registerID uuid.UUID, requestID string, at time.Time) string {
	ref := strings.NewReplacer("/", "-", " ", "_").Replace(requestID)
	if ref == "" {
		ref = "register"
	}
	name := fmt.Sprintf("%s/%04d/%02d/%s-%s.json", registerID, at.Year(), at.Month(), at.Format("20060102T150405Z"), ref)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
