package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/caisseflow/internal/workflow"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/logger"
)

// Service queues workflow actions for asynchronous processing.
type Service interface {
	Enqueue(ctx context.Context, action workflow.Action) (*models.ActionJob, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ActionJob, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

// NewService builds the action queue front.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("action repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, logg: logg, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Enqueue validates the action and stores it as a pending job due now.
func (s *service) Enqueue(ctx context.Context, action workflow.Action) (*models.ActionJob, error) {
	if action.Version == 0 {
		action.Version = workflow.CurrentVersion
	}
	if err := action.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(action)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode action")
	}

	now := s.now()
	job := &models.ActionJob{
		ID:            uuid.New(),
		ActionType:    action.Type,
		TargetID:      action.TargetID,
		Actor:         action.Actor,
		Payload:       payload,
		Status:        enums.ActionJobPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue action")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"job_id":    job.ID.String(),
		"action":    string(job.ActionType),
		"entity_id": job.TargetID,
	}), "action enqueued")
	return job, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ActionJob, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load action job")
	}
	if job == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "action job %s not found", id)
	}
	return job, nil
}
