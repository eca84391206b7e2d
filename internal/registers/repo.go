package registers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/pkg/db/models"
)

// Repository persists registers and their balance rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, register *models.Register) error
	CreateBalances(ctx context.Context, balances []models.RegisterBalance) error
	ClearDefault(ctx context.Context) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Register, error)
	FindDefault(ctx context.Context) (*models.Register, error)
	List(ctx context.Context) ([]models.Register, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a register repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, register *models.Register) error {
	return r.db.WithContext(ctx).Omit("Balances").Create(register).Error
}

func (r *repository) CreateBalances(ctx context.Context, balances []models.RegisterBalance) error {
	if len(balances) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&balances).Error
}

func (r *repository) ClearDefault(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Model(&models.Register{}).
		Where("is_default = ?", true).
		Update("is_default", false).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Register, error) {
	var register models.Register
	err := r.db.WithContext(ctx).
		Preload("Balances", func(db *gorm.DB) *gorm.DB { return db.Order("currency ASC") }).
		Where("id = ?", id).
		First(&register).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &register, nil
}

func (r *repository) FindDefault(ctx context.Context) (*models.Register, error) {
	var register models.Register
	err := r.db.WithContext(ctx).
		Where("is_default = ?", true).
		First(&register).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &register, nil
}

func (r *repository) List(ctx context.Context) ([]models.Register, error) {
	var registers []models.Register
	if err := r.db.WithContext(ctx).
		Preload("Balances", func(db *gorm.DB) *gorm.DB { return db.Order("currency ASC") }).
		Order("type ASC").
		Find(&registers).Error; err != nil {
		return nil, err
	}
	return registers, nil
}
