package funding

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
)

// Repository persists funding requests with their history and issues.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.FundingRequest) error
	FindByID(ctx context.Context, id string, withRelations bool) (*models.FundingRequest, error)
	ListByRegister(ctx context.Context, registerID uuid.UUID, filter ListFilter) ([]models.FundingRequest, error)
	Transition(ctx context.Context, id string, from []enums.FundingStage, requireUnapplied bool, updates map[string]any) (bool, error)
	AppendHistory(ctx context.Context, entry *models.FundingHistory) error
	CreateIssue(ctx context.Context, issue *models.FundingIssue) error
	ResolveOpenIssues(ctx context.Context, requestID string, at time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a funding repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.FundingRequest) error {
	return r.db.WithContext(ctx).Omit("History", "Issues").Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id string, withRelations bool) (*models.FundingRequest, error) {
	query := r.db.WithContext(ctx)
	if withRelations {
		query = query.
			Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("occurred_at ASC") }).
			Preload("Issues", func(db *gorm.DB) *gorm.DB { return db.Order("reported_at ASC") })
	}
	var request models.FundingRequest
	err := query.Where("id = ?", id).First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) ListByRegister(ctx context.Context, registerID uuid.UUID, filter ListFilter) ([]models.FundingRequest, error) {
	query := r.db.WithContext(ctx).Where("register_id = ?", registerID)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	var requests []models.FundingRequest
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(filter.limit()).
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// Transition applies updates only while the request sits in one of the from
// stages (and, when requireUnapplied, before the balance was credited).
func (r *repository) Transition(ctx context.Context, id string, from []enums.FundingStage, requireUnapplied bool, updates map[string]any) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.FundingRequest{}).
		Where("id = ? AND stage IN ?", id, from)
	if requireUnapplied {
		query = query.Where("balance_applied = ?", false)
	}
	res := query.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.FundingHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) CreateIssue(ctx context.Context, issue *models.FundingIssue) error {
	return r.db.WithContext(ctx).Create(issue).Error
}

func (r *repository) ResolveOpenIssues(ctx context.Context, requestID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FundingIssue{}).
		Where("request_id = ? AND resolved_at IS NULL", requestID).
		Update("resolved_at", at)
	return res.RowsAffected, res.Error
}
