package funding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/internal/notify"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
)

type transition struct {
	requestID        string
	actor            string
	action           string
	from             []enums.FundingStage
	to               enums.FundingStage
	status           func(current *models.FundingRequest) enums.FundingStatus
	requireUnapplied bool
	updates          func(current *models.FundingRequest, at time.Time) map[string]any
	after            func(ctx context.Context, tx *gorm.DB, repo Repository, req *models.FundingRequest, at time.Time) error
	details          string
	notify           func(req *models.FundingRequest) []notify.Intent
}

func openStages() []enums.FundingStage {
	return []enums.FundingStage{
		enums.FundingStageInitial,
		enums.FundingStagePreApproved,
		enums.FundingStageDetailsSubmitted,
		enums.FundingStageProblemReported,
	}
}

func fixedStatus(status enums.FundingStatus) func(*models.FundingRequest) enums.FundingStatus {
	return func(*models.FundingRequest) enums.FundingStatus { return status }
}

func stageIn(stage enums.FundingStage, allowed []enums.FundingStage) bool {
	for _, candidate := range allowed {
		if candidate == stage {
			return true
		}
	}
	return false
}

// transition moves a request to t.to when it currently sits in t.from. The
// stage guard is re-checked by the conditional update so concurrent callers
// apply the change at most once.
func (s *service) transition(ctx context.Context, t transition) (*Outcome, error) {
	t.requestID = strings.TrimSpace(t.requestID)
	t.actor = strings.TrimSpace(t.actor)
	if t.requestID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id is required")
	}
	if t.actor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}

	var outcome *Outcome
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindByID(ctx, t.requestID, false)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load funding request")
		}
		if current == nil {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "funding request %s not found", t.requestID)
		}
		if current.Stage.IsTerminal() {
			outcome = finalized(current)
			return nil
		}
		if !stageIn(current.Stage, t.from) {
			return stateConflict(current, t.action)
		}

		now := s.now()
		updates := map[string]any{
			"stage":      t.to,
			"status":     t.status(current),
			"updated_at": now,
		}
		if t.updates != nil {
			for k, v := range t.updates(current, now) {
				updates[k] = v
			}
		}
		applied, err := repo.Transition(ctx, current.ID, t.from, t.requireUnapplied, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update funding request")
		}

		updated, err := repo.FindByID(ctx, current.ID, false)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload funding request")
		}
		if !applied {
			if updated != nil && updated.Stage.IsTerminal() {
				outcome = finalized(updated)
				return nil
			}
			return stateConflict(updated, t.action)
		}

		if t.after != nil {
			if err := t.after(ctx, tx, repo, updated, now); err != nil {
				return err
			}
		}
		var intents []notify.Intent
		if t.notify != nil {
			intents = t.notify(updated)
		}
		if err := s.record(ctx, tx, repo, updated, current.Stage, t.actor, t.details, intents); err != nil {
			return err
		}
		outcome = &Outcome{Request: updated, Notifications: intents}
		return nil
	})
	if err != nil {
		s.metrics.IncTransition(string(t.to), "failed")
		return nil, err
	}

	logCtx := s.logg.WithEntityID(ctx, t.requestID)
	logCtx = s.logg.WithActor(logCtx, t.actor)
	if outcome.AlreadyFinalized {
		s.metrics.IncTransition(string(t.to), "already_finalized")
		s.logg.Info(s.logg.WithField(logCtx, "action", t.action), "funding request already finalized")
		return outcome, nil
	}
	s.metrics.IncTransition(string(t.to), "applied")
	s.logg.Info(s.logg.WithField(logCtx, "stage", string(t.to)), "funding request transitioned")
	return outcome, nil
}

func finalized(req *models.FundingRequest) *Outcome {
	return &Outcome{
		Request:          req,
		AlreadyFinalized: true,
		Notice:           fmt.Sprintf("funding request %s is already %s", req.ID, req.Status),
	}
}

func stateConflict(req *models.FundingRequest, action string) error {
	if req == nil {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s not allowed", action)
	}
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s not allowed from stage %s", action, req.Stage).
		WithDetails(StateConflictDetails{RequestID: req.ID, Stage: req.Stage, Action: action})
}
