package entities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/caisseflow/pkg/db"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
)

// Repository persists orders, proformas and payment requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id string, forUpdate bool) (*models.Order, error)
	CreateProforma(ctx context.Context, proforma *models.Proforma) error
	FindProforma(ctx context.Context, id uuid.UUID) (*models.Proforma, error)
	ValidatedProforma(ctx context.Context, orderID string) (*models.Proforma, error)
	SetProformaValidated(ctx context.Context, id uuid.UUID, validated bool, actor *string, at *time.Time) error
	CreatePaymentRequest(ctx context.Context, request *models.PaymentRequest) error
	FindPaymentRequest(ctx context.Context, id string, forUpdate bool) (*models.PaymentRequest, error)
	FindFundingRequest(ctx context.Context, id string) (*models.FundingRequest, error)
	IncrementPaid(ctx context.Context, kind Kind, id string, delta, ceiling decimal.Decimal, at time.Time) (bool, error)
	UpdateSettlement(ctx context.Context, kind Kind, id string, remaining decimal.Decimal, done bool, status enums.PaymentStatus, at time.Time) error
	CountPayments(ctx context.Context, entityID string) (int64, error)
}

var settlementTables = map[Kind]string{
	KindOrder:          "orders",
	KindPaymentRequest: "payment_requests",
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an entity repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) locking(query *gorm.DB, forUpdate bool) *gorm.DB {
	if forUpdate && db.IsPostgres(r.db) {
		return query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return query
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Proformas").Create(order).Error
}

func (r *repository) FindOrder(ctx context.Context, id string, forUpdate bool) (*models.Order, error) {
	var order models.Order
	query := r.locking(r.db.WithContext(ctx), forUpdate)
	err := query.Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var proformas []models.Proforma
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", id).
		Order("created_at ASC").
		Find(&proformas).Error; err != nil {
		return nil, err
	}
	order.Proformas = proformas
	return &order, nil
}

func (r *repository) CreateProforma(ctx context.Context, proforma *models.Proforma) error {
	return r.db.WithContext(ctx).Create(proforma).Error
}

func (r *repository) FindProforma(ctx context.Context, id uuid.UUID) (*models.Proforma, error) {
	var proforma models.Proforma
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&proforma).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &proforma, nil
}

func (r *repository) ValidatedProforma(ctx context.Context, orderID string) (*models.Proforma, error) {
	var proforma models.Proforma
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND validated = ?", orderID, true).
		First(&proforma).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &proforma, nil
}

func (r *repository) SetProformaValidated(ctx context.Context, id uuid.UUID, validated bool, actor *string, at *time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Proforma{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"validated":    validated,
			"validated_by": actor,
			"validated_at": at,
		}).Error
}

func (r *repository) CreatePaymentRequest(ctx context.Context, request *models.PaymentRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindPaymentRequest(ctx context.Context, id string, forUpdate bool) (*models.PaymentRequest, error) {
	var request models.PaymentRequest
	query := r.locking(r.db.WithContext(ctx), forUpdate)
	err := query.Where("id = ?", id).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindFundingRequest(ctx context.Context, id string) (*models.FundingRequest, error) {
	var request models.FundingRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// IncrementPaid moves amount_paid by delta only if the result stays within
// [0, ceiling]. It returns false when the guard rejected the update.
func (r *repository) IncrementPaid(ctx context.Context, kind Kind, id string, delta, ceiling decimal.Decimal, at time.Time) (bool, error) {
	table, ok := settlementTables[kind]
	if !ok {
		return false, fmt.Errorf("%s entities carry no settlement", kind)
	}
	stmt := "UPDATE " + table + ` SET amount_paid = amount_paid + ?, updated_at = ?
WHERE id = ? AND amount_paid + ? - ? <= 0 AND amount_paid + ? >= 0`
	res := r.db.WithContext(ctx).Exec(stmt, delta, at, id, delta, ceiling, delta)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateSettlement(ctx context.Context, kind Kind, id string, remaining decimal.Decimal, done bool, status enums.PaymentStatus, at time.Time) error {
	table, ok := settlementTables[kind]
	if !ok {
		return fmt.Errorf("%s entities carry no settlement", kind)
	}
	return r.db.WithContext(ctx).
		Table(table).
		Where("id = ?", id).
		Updates(map[string]any{
			"remaining_amount": remaining,
			"payment_done":     done,
			"status":           status,
			"updated_at":       at,
		}).Error
}

func (r *repository) CountPayments(ctx context.Context, entityID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("entity_id = ?", entityID).
		Count(&count).Error
	return count, err
}
