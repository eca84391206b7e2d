package actions

import (
	"context"
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/caisseflow/pkg/db"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
)

// Repository persists action jobs.
type Repository interface {
	Create(ctx context.Context, job *models.ActionJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ActionJob, error)
	ClaimDue(ctx context.Context, tx *gorm.DB, worker string, limit int, now time.Time) ([]models.ActionJob, error)
	Complete(tx *gorm.DB, id uuid.UUID, result json.RawMessage, at time.Time) error
	Fail(tx *gorm.DB, id uuid.UUID, status enums.ActionJobStatus, cause error, at time.Time) error
	Retry(tx *gorm.DB, id uuid.UUID, cause error, next time.Time, at time.Time) error
	RequeueStale(ctx context.Context, lockedBefore, at time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an action job repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, job *models.ActionJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ActionJob, error) {
	var job models.ActionJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimDue moves up to limit due pending jobs to processing inside tx. On
// Postgres rows are locked with SKIP LOCKED so workers never share a job.
func (r *repository) ClaimDue(ctx context.Context, tx *gorm.DB, worker string, limit int, now time.Time) ([]models.ActionJob, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	query := tx.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", enums.ActionJobPending, now).
		Order("next_attempt_at ASC").
		Order("created_at ASC").
		Limit(limit)
	if db.IsPostgres(tx) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var jobs []models.ActionJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	if err := tx.WithContext(ctx).
		Model(&models.ActionJob{}).
		Where("id IN ? AND status = ?", ids, enums.ActionJobPending).
		Updates(map[string]any{
			"status":        enums.ActionJobProcessing,
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"locked_by":     worker,
			"locked_at":     now,
			"updated_at":    now,
		}).Error; err != nil {
		return nil, err
	}
	for i := range jobs {
		jobs[i].Status = enums.ActionJobProcessing
		jobs[i].AttemptCount++
		jobs[i].LockedBy = &worker
		jobs[i].LockedAt = &now
	}
	return jobs, nil
}

func (r *repository) Complete(tx *gorm.DB, id uuid.UUID, result json.RawMessage, at time.Time) error {
	return tx.Model(&models.ActionJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.ActionJobCompleted,
			"result":     result,
			"last_error": nil,
			"locked_by":  nil,
			"locked_at":  nil,
			"updated_at": at,
		}).Error
}

func (r *repository) Fail(tx *gorm.DB, id uuid.UUID, status enums.ActionJobStatus, cause error, at time.Time) error {
	return tx.Model(&models.ActionJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"last_error": errorText(cause),
			"locked_by":  nil,
			"locked_at":  nil,
			"updated_at": at,
		}).Error
}

func (r *repository) Retry(tx *gorm.DB, id uuid.UUID, cause error, next time.Time, at time.Time) error {
	return tx.Model(&models.ActionJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          enums.ActionJobPending,
			"next_attempt_at": next,
			"last_error":      errorText(cause),
			"locked_by":       nil,
			"locked_at":       nil,
			"updated_at":      at,
		}).Error
}

// RequeueStale returns processing jobs whose worker stopped heartbeating to pending.
func (r *repository) RequeueStale(ctx context.Context, lockedBefore, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ActionJob{}).
		Where("status = ? AND locked_at < ?", enums.ActionJobProcessing, lockedBefore).
		Updates(map[string]any{
			"status":          enums.ActionJobPending,
			"next_attempt_at": at,
			"locked_by":       nil,
			"locked_at":       nil,
			"updated_at":      at,
		})
	return res.RowsAffected, res.Error
}

const maxErrorText = 2000

// errorText truncates on a rune boundary so the column always holds valid UTF-8.
func errorText(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxErrorText {
		cut := maxErrorText
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return &msg
}
