package payments

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/caisseflow/pkg/db"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
)

// Repository persists payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByNumber(ctx context.Context, number string, forUpdate bool) (*models.Payment, error)
	Update(ctx context.Context, payment *models.Payment) error
	ListByEntity(ctx context.Context, entityID string) ([]models.Payment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByNumber(ctx context.Context, number string, forUpdate bool) (*models.Payment, error) {
	query := r.db.WithContext(ctx)
	if forUpdate && db.IsPostgres(r.db) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var payment models.Payment
	err := query.Where("payment_number = ?", number).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// Update rewrites the mutable columns of a payment. Nil pointers are written
// as NULL so a cleared disbursement number is persisted.
func (r *repository) Update(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).
		Model(payment).
		Select("disbursement_number", "mode", "amount", "fee", "method_details", "status",
			"accounting_required", "register_id", "modified_by", "updated_at").
		Updates(payment).Error
}

func (r *repository) ListByEntity(ctx context.Context, entityID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("created_at ASC").
		Order("payment_number ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
