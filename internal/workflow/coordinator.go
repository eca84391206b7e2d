package workflow

import (
	"context"
	"fmt"

	"github.com/angelmondragon/caisseflow/internal/funding"
	"github.com/angelmondragon/caisseflow/internal/notify"
	"github.com/angelmondragon/caisseflow/internal/payments"
	"github.com/angelmondragon/caisseflow/internal/sequence"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/logger"
	"github.com/angelmondragon/caisseflow/pkg/types"
)

// FundingWorkflow is the funding side of the coordinator.
type FundingWorkflow interface {
	PreApprove(ctx context.Context, requestID, actor string) (*funding.Outcome, error)
	SubmitDetails(ctx context.Context, input funding.SubmitDetailsInput) (*funding.Outcome, error)
	Approve(ctx context.Context, requestID, actor string) (*funding.Outcome, error)
	Reject(ctx context.Context, requestID, actor, reason string) (*funding.Outcome, error)
	ReportProblem(ctx context.Context, input funding.ReportProblemInput) (*funding.Outcome, error)
}

// PaymentEngine is the payment side of the coordinator.
type PaymentEngine interface {
	RecordPayment(ctx context.Context, input payments.RecordInput) (*payments.Result, error)
	ModifyPayment(ctx context.Context, input payments.ModifyInput) (*payments.Result, error)
}

// Result is what a dispatched action reports back to the caller.
type Result struct {
	EntityID         string          `json:"entity_id"`
	State            string          `json:"state"`
	AlreadyFinalized bool            `json:"already_finalized"`
	Notice           string          `json:"notice,omitempty"`
	PaymentNumber    string          `json:"payment_number,omitempty"`
	Notifications    []notify.Intent `json:"notifications,omitempty"`
}

// Coordinator routes validated actions to the component owning the target.
type Coordinator struct {
	funding  FundingWorkflow
	payments PaymentEngine
	logg     *logger.Logger
}

// NewCoordinator wires the router.
func NewCoordinator(fundingSvc FundingWorkflow, paymentSvc PaymentEngine, logg *logger.Logger) (*Coordinator, error) {
	if fundingSvc == nil {
		return nil, fmt.Errorf("funding workflow required")
	}
	if paymentSvc == nil {
		return nil, fmt.Errorf("payment engine required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Coordinator{funding: fundingSvc, payments: paymentSvc, logg: logg}, nil
}

// Dispatch validates the action and routes it by the prefix of its target id.
func (c *Coordinator) Dispatch(ctx context.Context, action Action) (*Result, error) {
	if err := action.Validate(); err != nil {
		return nil, err
	}
	ref, err := sequence.Parse(action.TargetID)
	if err != nil {
		return nil, err
	}

	ctx = c.logg.WithFields(ctx, map[string]any{
		"action":    string(action.Type),
		"entity_id": action.TargetID,
		"actor":     action.Actor,
	})
	c.logg.Debug(ctx, "dispatching action")

	switch ref.Family {
	case enums.SequenceFunding:
		return c.dispatchFunding(ctx, action)
	case enums.SequenceOrder, enums.SequencePaymentRequest, enums.SequencePayment:
		return c.dispatchPayment(ctx, action)
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "no component handles %s", action.TargetID)
	}
}

func (c *Coordinator) dispatchFunding(ctx context.Context, action Action) (*Result, error) {
	var (
		outcome *funding.Outcome
		err     error
	)
	switch action.Type {
	case enums.ActionPreApprove:
		outcome, err = c.funding.PreApprove(ctx, action.TargetID, action.Actor)
	case enums.ActionSubmitDetails:
		outcome, err = c.funding.SubmitDetails(ctx, funding.SubmitDetailsInput{
			RequestID: action.TargetID,
			Actor:     action.Actor,
			Details:   *action.Details,
		})
	case enums.ActionApprove:
		outcome, err = c.funding.Approve(ctx, action.TargetID, action.Actor)
	case enums.ActionReject:
		outcome, err = c.funding.Reject(ctx, action.TargetID, action.Actor, action.Reason)
	case enums.ActionReportProblem:
		outcome, err = c.funding.ReportProblem(ctx, funding.ReportProblemInput{
			RequestID:   action.TargetID,
			Actor:       action.Actor,
			Type:        action.Problem.Type,
			Description: action.Problem.Description,
		})
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is not a funding action", action.Type)
	}
	if err != nil {
		return nil, err
	}
	return &Result{
		EntityID:         outcome.Request.ID,
		State:            string(outcome.Request.Status),
		AlreadyFinalized: outcome.AlreadyFinalized,
		Notice:           outcome.Notice,
		Notifications:    outcome.Notifications,
	}, nil
}

func (c *Coordinator) dispatchPayment(ctx context.Context, action Action) (*Result, error) {
	var (
		res *payments.Result
		err error
	)
	details := types.MethodDetails{}
	if action.Details != nil {
		details = *action.Details
	}
	switch action.Type {
	case enums.ActionRecordPayment:
		res, err = c.payments.RecordPayment(ctx, payments.RecordInput{
			EntityID:           action.TargetID,
			Amount:             action.Payment.Amount,
			Currency:           action.Payment.Currency,
			Fee:                action.Payment.Fee,
			Details:            details,
			AccountingRequired: action.Payment.AccountingRequired,
			Actor:              action.Actor,
		})
	case enums.ActionModifyPayment:
		res, err = c.payments.ModifyPayment(ctx, payments.ModifyInput{
			PaymentNumber:      action.TargetID,
			Amount:             action.Payment.Amount,
			Fee:                action.Payment.Fee,
			Details:            details,
			AccountingRequired: action.Payment.AccountingRequired,
			Actor:              action.Actor,
		})
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is not a payment action", action.Type)
	}
	if err != nil {
		return nil, err
	}
	return &Result{
		EntityID:      res.Entity.ID,
		State:         res.Entity.State,
		PaymentNumber: res.Payment.PaymentNumber,
		Notifications: res.Notifications,
	}, nil
}
