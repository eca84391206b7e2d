package funding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/internal/ledger"
	"github.com/angelmondragon/caisseflow/internal/notify"
	"github.com/angelmondragon/caisseflow/internal/registers"
	"github.com/angelmondragon/caisseflow/internal/sequence"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/logger"
	"github.com/angelmondragon/caisseflow/pkg/metrics"
	"github.com/angelmondragon/caisseflow/pkg/outbox"
	"github.com/angelmondragon/caisseflow/pkg/outbox/payloads"
	"github.com/angelmondragon/caisseflow/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RegisterLookup resolves a register from its user-facing type label.
type RegisterLookup interface {
	LookupByType(ctx context.Context, registerType string) (*registers.TypeRef, error)
}

// BalanceAdjuster credits the register when a request is approved.
type BalanceAdjuster interface {
	Adjust(ctx context.Context, tx *gorm.DB, input ledger.AdjustInput) (*ledger.AdjustResult, error)
}

// SequenceMinter mints FUND/ numbers inside a transaction.
type SequenceMinter interface {
	WithTx(tx *gorm.DB) *sequence.Generator
}

// Service drives funding requests through their approval workflow.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*Outcome, error)
	PreApprove(ctx context.Context, requestID, actor string) (*Outcome, error)
	SubmitDetails(ctx context.Context, input SubmitDetailsInput) (*Outcome, error)
	Approve(ctx context.Context, requestID, actor string) (*Outcome, error)
	Reject(ctx context.Context, requestID, actor, reason string) (*Outcome, error)
	ReportProblem(ctx context.Context, input ReportProblemInput) (*Outcome, error)
	Get(ctx context.Context, requestID string) (*models.FundingRequest, error)
	ListByRegister(ctx context.Context, registerID uuid.UUID, filter ListFilter) ([]models.FundingRequest, error)
}

// ServiceParams groups the funding service dependencies.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Sequence  SequenceMinter
	Registers RegisterLookup
	Ledger    BalanceAdjuster
	Outbox    outbox.Emitter
	Logger    *logger.Logger
	Metrics   *metrics.WorkflowMetrics
	Location  *time.Location
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	seq       SequenceMinter
	registers RegisterLookup
	ledger    BalanceAdjuster
	outbox    outbox.Emitter
	logg      *logger.Logger
	metrics   *metrics.WorkflowMetrics
	loc       *time.Location
	now       func() time.Time
}

// NewService builds the funding workflow service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("funding repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Sequence == nil {
		return nil, fmt.Errorf("sequence generator required")
	}
	if params.Registers == nil {
		return nil, fmt.Errorf("register lookup required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		seq:       params.Sequence,
		registers: params.Registers,
		ledger:    params.Ledger,
		outbox:    params.Outbox,
		logg:      logg,
		metrics:   params.Metrics,
		loc:       loc,
		now:       now,
	}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*Outcome, error) {
	if err := s.validateSubmit(input); err != nil {
		s.metrics.IncTransition(string(enums.FundingStageInitial), "rejected")
		return nil, err
	}
	ref, err := s.registers.LookupByType(ctx, input.RegisterType)
	if err != nil {
		return nil, err
	}

	now := s.now()
	request := &models.FundingRequest{
		RegisterID:    ref.ID,
		Amount:        input.Amount,
		Currency:      input.Currency,
		Reason:        strings.TrimSpace(input.Reason),
		RequestedDate: dateOnly(input.RequestedDate),
		Submitter:     strings.TrimSpace(input.Submitter),
		Status:        enums.FundingStatusPending,
		Stage:         enums.FundingStageInitial,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var intents []notify.Intent
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		id, err := s.seq.WithTx(tx).Mint(ctx, enums.SequenceFunding, ref.Prefix, now)
		if err != nil {
			return err
		}
		request.ID = id

		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create funding request")
		}
		intents = []notify.Intent{{
			Audience: enums.AudienceApprover,
			EntityID: request.ID,
			NewState: string(request.Status),
			Message:  fmt.Sprintf("%s %s requested for %s", request.Amount.StringFixed(2), request.Currency, ref.Type),
		}}
		return s.record(ctx, tx, repo, request, "", request.Submitter, "submitted", intents)
	})
	if err != nil {
		s.metrics.IncTransition(string(enums.FundingStageInitial), "failed")
		return nil, err
	}

	s.metrics.IncTransition(string(enums.FundingStageInitial), "applied")
	s.logg.Info(s.logg.WithEntityID(ctx, request.ID), "funding request submitted")
	return &Outcome{Request: request, Notifications: intents}, nil
}

func (s *service) validateSubmit(input SubmitInput) error {
	if strings.TrimSpace(input.RegisterType) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "register type is required")
	}
	if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must have at most two decimals")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid currency %q", input.Currency)
	}
	if strings.TrimSpace(input.Reason) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if strings.TrimSpace(input.Submitter) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "submitter is required")
	}
	if input.RequestedDate.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "requested date is required")
	}
	today := dateOnly(s.now().In(s.loc))
	if dateOnly(input.RequestedDate).Before(today) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "requested date %s is in the past", input.RequestedDate.Format(types.DateLayout))
	}
	return nil
}

func (s *service) PreApprove(ctx context.Context, requestID, actor string) (*Outcome, error) {
	return s.transition(ctx, transition{
		requestID: requestID,
		actor:     actor,
		action:    "pre_approve",
		from:      []enums.FundingStage{enums.FundingStageInitial},
		to:        enums.FundingStagePreApproved,
		status:    fixedStatus(enums.FundingStatusPreApproved),
		updates: func(_ *models.FundingRequest, _ time.Time) map[string]any {
			return map[string]any{"pre_approved_by": actor}
		},
		details: "pre-approved",
		notify: func(req *models.FundingRequest) []notify.Intent {
			return []notify.Intent{{
				Audience: enums.AudienceSubmitter,
				EntityID: req.ID,
				NewState: string(req.Status),
				Message:  "payment details required",
			}}
		},
	})
}

func (s *service) SubmitDetails(ctx context.Context, input SubmitDetailsInput) (*Outcome, error) {
	details := input.Details
	if details.Mode != enums.PaymentModeCash && details.Mode != enums.PaymentModeCheque {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "funding method must be %s or %s", enums.PaymentModeCash, enums.PaymentModeCheque)
	}
	if err := details.Validate(); err != nil {
		return nil, err
	}
	return s.transition(ctx, transition{
		requestID: input.RequestID,
		actor:     input.Actor,
		action:    "submit_details",
		from:      []enums.FundingStage{enums.FundingStageInitial, enums.FundingStagePreApproved, enums.FundingStageProblemReported},
		to:        enums.FundingStageDetailsSubmitted,
		status:    fixedStatus(enums.FundingStatusDetailsProvided),
		updates: func(_ *models.FundingRequest, _ time.Time) map[string]any {
			return map[string]any{"method": details.Mode, "method_details": details}
		},
		after: func(ctx context.Context, tx *gorm.DB, repo Repository, req *models.FundingRequest, at time.Time) error {
			if _, err := repo.ResolveOpenIssues(ctx, req.ID, at); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve funding issues")
			}
			return nil
		},
		details: "details submitted: " + string(details.Mode),
		notify: func(req *models.FundingRequest) []notify.Intent {
			return []notify.Intent{{
				Audience: enums.AudienceApprover,
				EntityID: req.ID,
				NewState: string(req.Status),
				Message:  "ready for approval",
			}}
		},
	})
}

func (s *service) Approve(ctx context.Context, requestID, actor string) (*Outcome, error) {
	return s.transition(ctx, transition{
		requestID: requestID,
		actor:     actor,
		action:    "approve",
		from: []enums.FundingStage{
			enums.FundingStageInitial,
			enums.FundingStagePreApproved,
			enums.FundingStageDetailsSubmitted,
		},
		to:               enums.FundingStageApproved,
		status:           fixedStatus(enums.FundingStatusValidated),
		requireUnapplied: true,
		updates: func(_ *models.FundingRequest, at time.Time) map[string]any {
			return map[string]any{
				"balance_applied": true,
				"finalized_by":    actor,
				"finalized_at":    at,
			}
		},
		after: func(ctx context.Context, tx *gorm.DB, _ Repository, req *models.FundingRequest, _ time.Time) error {
			_, err := s.ledger.Adjust(ctx, tx, ledger.AdjustInput{
				RegisterID:    req.RegisterID,
				Currency:      req.Currency,
				Amount:        req.Amount,
				Type:          enums.TransactionTypeFundingCredit,
				RequestID:     req.ID,
				Reason:        req.Reason,
				Actor:         actor,
				MethodDetails: req.MethodDetails,
			})
			return err
		},
		details: "approved",
		notify: func(req *models.FundingRequest) []notify.Intent {
			msg := fmt.Sprintf("%s %s credited", req.Amount.StringFixed(2), req.Currency)
			return []notify.Intent{
				{Audience: enums.AudienceSubmitter, EntityID: req.ID, NewState: string(req.Status), Message: msg},
				{Audience: enums.AudienceFinance, EntityID: req.ID, NewState: string(req.Status), Message: msg},
			}
		},
	})
}

func (s *service) Reject(ctx context.Context, requestID, actor, reason string) (*Outcome, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}
	return s.transition(ctx, transition{
		requestID: requestID,
		actor:     actor,
		action:    "reject",
		from:      openStages(),
		to:        enums.FundingStageRejected,
		status:    fixedStatus(enums.FundingStatusRejected),
		updates: func(_ *models.FundingRequest, at time.Time) map[string]any {
			return map[string]any{
				"rejection_reason": reason,
				"finalized_by":     actor,
				"finalized_at":     at,
			}
		},
		details: "rejected: " + reason,
		notify: func(req *models.FundingRequest) []notify.Intent {
			return []notify.Intent{{
				Audience: enums.AudienceSubmitter,
				EntityID: req.ID,
				NewState: string(req.Status),
				Message:  reason,
			}}
		},
	})
}

func (s *service) ReportProblem(ctx context.Context, input ReportProblemInput) (*Outcome, error) {
	issueType := strings.TrimSpace(input.Type)
	description := strings.TrimSpace(input.Description)
	if issueType == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "problem type is required")
	}
	if description == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "problem description is required")
	}
	return s.transition(ctx, transition{
		requestID: input.RequestID,
		actor:     input.Actor,
		action:    "report_problem",
		from:      openStages(),
		to:        enums.FundingStageProblemReported,
		status: func(current *models.FundingRequest) enums.FundingStatus {
			if current.Status == enums.FundingStatusDetailsProvided {
				return enums.FundingStatusPreApproved
			}
			return current.Status
		},
		after: func(ctx context.Context, _ *gorm.DB, repo Repository, req *models.FundingRequest, at time.Time) error {
			if err := repo.CreateIssue(ctx, &models.FundingIssue{
				ID:          uuid.New(),
				RequestID:   req.ID,
				Type:        issueType,
				Description: description,
				ReportedBy:  input.Actor,
				ReportedAt:  at,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create funding issue")
			}
			return nil
		},
		details: fmt.Sprintf("problem reported (%s): %s", issueType, description),
		notify: func(req *models.FundingRequest) []notify.Intent {
			return []notify.Intent{{
				Audience: enums.AudienceSubmitter,
				EntityID: req.ID,
				NewState: string(req.Status),
				Message:  issueType + ": " + description,
			}}
		},
	})
}

func (s *service) Get(ctx context.Context, requestID string) (*models.FundingRequest, error) {
	request, err := s.repo.FindByID(ctx, strings.TrimSpace(requestID), true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load funding request")
	}
	if request == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "funding request %s not found", requestID)
	}
	return request, nil
}

func (s *service) ListByRegister(ctx context.Context, registerID uuid.UUID, filter ListFilter) ([]models.FundingRequest, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid funding status %q", filter.Status)
	}
	requests, err := s.repo.ListByRegister(ctx, registerID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list funding requests")
	}
	return requests, nil
}

// record writes the history row and the outbox events of a transition.
func (s *service) record(ctx context.Context, tx *gorm.DB, repo Repository, req *models.FundingRequest, from enums.FundingStage, actor, details string, intents []notify.Intent) error {
	if err := repo.AppendHistory(ctx, &models.FundingHistory{
		ID:         uuid.New(),
		RequestID:  req.ID,
		Stage:      req.Stage,
		Actor:      actor,
		Details:    details,
		OccurredAt: req.UpdatedAt,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append funding history")
	}

	ref := &outbox.ActorRef{Name: actor}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventFundingTransitioned,
		AggregateType: enums.AggregateFundingRequest,
		AggregateID:   req.ID,
		Actor:         ref,
		Data: payloads.FundingTransitionedEvent{
			RequestID:  req.ID,
			RegisterID: req.RegisterID.String(),
			FromStage:  from,
			ToStage:    req.Stage,
			Status:     req.Status,
			Amount:     req.Amount,
			Currency:   req.Currency,
			Actor:      actor,
		},
	}); err != nil {
		return fmt.Errorf("emit funding transition: %w", err)
	}
	if err := notify.Enqueue(ctx, s.outbox, tx, enums.AggregateFundingRequest, actor, intents...); err != nil {
		return err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventLedgerSyncRequested,
		AggregateType: enums.AggregateRegister,
		AggregateID:   req.RegisterID.String(),
		Actor:         ref,
		Data: payloads.LedgerSyncRequestedEvent{
			RegisterID: req.RegisterID.String(),
			RequestID:  req.ID,
		},
	}); err != nil {
		return fmt.Errorf("emit ledger sync: %w", err)
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
