package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
)

// Repository manages register balances and the transaction log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ApplyDelta(ctx context.Context, registerID uuid.UUID, currency enums.Currency, delta decimal.Decimal, at time.Time) (decimal.Decimal, bool, error)
	FindBalance(ctx context.Context, registerID uuid.UUID, currency enums.Currency) (*models.RegisterBalance, error)
	ListBalances(ctx context.Context, registerID uuid.UUID) ([]models.RegisterBalance, error)
	InsertTransaction(ctx context.Context, txn *models.RegisterTransaction) error
	ListTransactions(ctx context.Context, registerID uuid.UUID, filter TransactionFilter) ([]models.RegisterTransaction, error)
	SumTransactions(ctx context.Context, registerID uuid.UUID) (map[enums.Currency]decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

const applyDeltaSQL = `UPDATE register_balances
SET balance = balance + ?, updated_at = ?
WHERE register_id = ? AND currency = ? AND balance + ? >= 0
RETURNING balance`

// ApplyDelta adds delta to the balance in one conditional statement. ok is
// false when no row matched: the balance is missing or would go negative.
func (r *repository) ApplyDelta(ctx context.Context, registerID uuid.UUID, currency enums.Currency, delta decimal.Decimal, at time.Time) (decimal.Decimal, bool, error) {
	var row struct {
		Balance decimal.Decimal
	}
	res := r.db.WithContext(ctx).Raw(applyDeltaSQL, delta, at, registerID, currency, delta).Scan(&row)
	if res.Error != nil {
		return decimal.Zero, false, res.Error
	}
	if res.RowsAffected == 0 {
		return decimal.Zero, false, nil
	}
	return row.Balance, true, nil
}

func (r *repository) FindBalance(ctx context.Context, registerID uuid.UUID, currency enums.Currency) (*models.RegisterBalance, error) {
	var balance models.RegisterBalance
	err := r.db.WithContext(ctx).
		Where("register_id = ? AND currency = ?", registerID, currency).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *repository) ListBalances(ctx context.Context, registerID uuid.UUID) ([]models.RegisterBalance, error) {
	var balances []models.RegisterBalance
	if err := r.db.WithContext(ctx).
		Where("register_id = ?", registerID).
		Order("currency ASC").
		Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

func (r *repository) InsertTransaction(ctx context.Context, txn *models.RegisterTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ListTransactions(ctx context.Context, registerID uuid.UUID, filter TransactionFilter) ([]models.RegisterTransaction, error) {
	query := r.db.WithContext(ctx).Where("register_id = ?", registerID)
	if filter.Currency != "" {
		query = query.Where("currency = ?", filter.Currency)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.RequestID != "" {
		query = query.Where("request_id = ?", filter.RequestID)
	}
	if filter.Since != nil {
		query = query.Where("created_at >= ?", *filter.Since)
	}
	if filter.Until != nil {
		query = query.Where("created_at < ?", *filter.Until)
	}

	var txns []models.RegisterTransaction
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(filter.limit()).
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) SumTransactions(ctx context.Context, registerID uuid.UUID) (map[enums.Currency]decimal.Decimal, error) {
	var rows []struct {
		Currency enums.Currency
		Total    decimal.Decimal
	}
	if err := r.db.WithContext(ctx).
		Model(&models.RegisterTransaction{}).
		Select("currency, COALESCE(SUM(amount), 0) AS total").
		Where("register_id = ?", registerID).
		Group("currency").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	totals := make(map[enums.Currency]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.Currency] = row.Total
	}
	return totals, nil
}
