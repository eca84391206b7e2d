package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/internal/entities"
	"github.com/angelmondragon/caisseflow/internal/ledger"
	"github.com/angelmondragon/caisseflow/internal/notify"
	"github.com/angelmondragon/caisseflow/internal/sequence"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/logger"
	"github.com/angelmondragon/caisseflow/pkg/metrics"
	"github.com/angelmondragon/caisseflow/pkg/outbox"
	"github.com/angelmondragon/caisseflow/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EntityStore loads payable entities and moves their amount paid.
type EntityStore interface {
	Resolve(ctx context.Context, id string) (*entities.Entity, error)
	LoadPayable(ctx context.Context, tx *gorm.DB, id string) (*entities.Entity, error)
	ApplyPayment(ctx context.Context, tx *gorm.DB, entity *entities.Entity, delta, tolerance decimal.Decimal) (*entities.Entity, error)
}

// Ledger debits and refunds register cash.
type Ledger interface {
	Adjust(ctx context.Context, tx *gorm.DB, input ledger.AdjustInput) (*ledger.AdjustResult, error)
	Refund(ctx context.Context, tx *gorm.DB, input ledger.RefundInput) (*ledger.AdjustResult, error)
}

// SequenceMinter mints T/ and PC/ numbers inside a transaction.
type SequenceMinter interface {
	WithTx(tx *gorm.DB) *sequence.Generator
}

// Service records and modifies disbursements against orders and payment requests.
type Service interface {
	RecordPayment(ctx context.Context, input RecordInput) (*Result, error)
	ModifyPayment(ctx context.Context, input ModifyInput) (*Result, error)
	Summary(ctx context.Context, entityID string) (*Summary, error)
}

// ServiceParams groups the payment service dependencies.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Entities EntityStore
	Ledger   Ledger
	Sequence SequenceMinter
	Outbox   outbox.Emitter
	Logger   *logger.Logger
	Metrics  *metrics.WorkflowMetrics
	// FeeCapPercent bounds the mobile money fee as a percentage of the amount.
	FeeCapPercent decimal.Decimal
	Now           func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	entities EntityStore
	ledger   Ledger
	seq      SequenceMinter
	outbox   outbox.Emitter
	logg     *logger.Logger
	metrics  *metrics.WorkflowMetrics
	feeCap   decimal.Decimal
	now      func() time.Time
}

var hundred = decimal.NewFromInt(100)

// NewService builds the payment disbursement engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Entities == nil {
		return nil, fmt.Errorf("entity store required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Sequence == nil {
		return nil, fmt.Errorf("sequence generator required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.FeeCapPercent.IsNegative() {
		return nil, fmt.Errorf("fee cap must not be negative")
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
		repo:     params.Repo,
		tx:       params.Tx,
		entities: params.Entities,
		ledger:   params.Ledger,
		seq:      params.Sequence,
		outbox:   params.Outbox,
		logg:     logg,
		metrics:  params.Metrics,
		feeCap:   params.FeeCapPercent,
		now:      now,
	}, nil
}

func (s *service) RecordPayment(ctx context.Context, input RecordInput) (*Result, error) {
	mode := input.Details.Mode
	if err := s.validateMoney(input.Amount, input.Fee, mode); err != nil {
		s.metrics.IncPayment("record", string(mode), "rejected")
		return nil, err
	}
	if err := input.Details.Validate(); err != nil {
		s.metrics.IncPayment("record", string(mode), "rejected")
		return nil, err
	}
	actor := strings.TrimSpace(input.Actor)
	if actor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entity, err := s.entities.LoadPayable(ctx, tx, strings.TrimSpace(input.EntityID))
		if err != nil {
			return err
		}
		currency := input.Currency
		if currency == "" {
			currency = entity.Currency
		}
		if currency != entity.Currency {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "payment currency %s does not match %s currency %s", currency, entity.ID, entity.Currency)
		}

		now := s.now()
		gen := s.seq.WithTx(tx)
		number, err := gen.Mint(ctx, enums.SequencePayment, "", now)
		if err != nil {
			return err
		}
		var disbursement *string
		if input.AccountingRequired && mode.RequiresDisbursementNumber() {
			pc, err := gen.Mint(ctx, enums.SequenceDisbursement, "", now)
			if err != nil {
				return err
			}
			disbursement = &pc
		}

		payment := &models.Payment{
			ID:                 uuid.New(),
			EntityID:           entity.ID,
			PaymentNumber:      number,
			DisbursementNumber: disbursement,
			Mode:               mode,
			Amount:             input.Amount,
			Currency:           currency,
			Fee:                feeFor(mode, input.Fee),
			MethodDetails:      input.Details,
			Status:             enums.PaymentStatus(entity.State),
			AccountingRequired: input.AccountingRequired,
			RecordedBy:         actor,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if mode.TouchesRegister() {
			registerID := entity.RegisterID
			payment.RegisterID = &registerID
		}
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}

		updated, err := s.entities.ApplyPayment(ctx, tx, entity, payment.Amount, payment.Fee)
		if err != nil {
			return err
		}

		if mode.TouchesRegister() {
			if _, err := s.ledger.Adjust(ctx, tx, ledger.AdjustInput{
				RegisterID:    entity.RegisterID,
				Currency:      currency,
				Amount:        payment.Amount.Neg(),
				Type:          enums.TransactionTypePaymentDebit,
				RequestID:     payment.PaymentNumber,
				Reason:        "payment " + entity.ID,
				Actor:         actor,
				MethodDetails: payment.MethodDetails,
			}); err != nil {
				return err
			}
		}

		payment.Status = enums.PaymentStatus(updated.State)
		if err := repo.Update(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}

		intents := settlementIntents(updated, payment)
		if err := s.emit(ctx, tx, updated, mode.TouchesRegister(), actor, intents, outbox.DomainEvent{
			EventType: enums.EventPaymentRecorded,
			Data: payloads.PaymentRecordedEvent{
				EntityID:           updated.ID,
				PaymentID:          payment.ID.String(),
				PaymentNumber:      payment.PaymentNumber,
				DisbursementNumber: payment.DisbursementNumber,
				Mode:               payment.Mode,
				Amount:             payment.Amount,
				Fee:                payment.Fee,
				Currency:           payment.Currency,
				Status:             payment.Status,
				Remaining:          updated.Remaining,
				Actor:              actor,
			},
		}); err != nil {
			return err
		}
		result = &Result{Payment: payment, Entity: updated, Notifications: intents}
		return nil
	})
	if err != nil {
		s.metrics.IncPayment("record", string(mode), outcomeLabel(err))
		return nil, err
	}

	s.metrics.IncPayment("record", string(mode), "applied")
	logCtx := s.logg.WithEntityID(ctx, result.Entity.ID)
	s.logg.Info(s.logg.WithField(logCtx, "payment_number", result.Payment.PaymentNumber), "payment recorded")
	return result, nil
}

func (s *service) ModifyPayment(ctx context.Context, input ModifyInput) (*Result, error) {
	mode := input.Details.Mode
	if err := s.validateMoney(input.Amount, input.Fee, mode); err != nil {
		s.metrics.IncPayment("modify", string(mode), "rejected")
		return nil, err
	}
	if err := input.Details.Validate(); err != nil {
		s.metrics.IncPayment("modify", string(mode), "rejected")
		return nil, err
	}
	actor := strings.TrimSpace(input.Actor)
	if actor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}
	number := strings.TrimSpace(input.PaymentNumber)

	var result *Result
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindByNumber(ctx, number, true)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		if payment == nil {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "payment %s not found", number)
		}
		previous := *payment

		entity, err := s.entities.LoadPayable(ctx, tx, payment.EntityID)
		if err != nil {
			return err
		}
		fee := feeFor(mode, input.Fee)
		updated, err := s.entities.ApplyPayment(ctx, tx, entity, input.Amount.Sub(previous.Amount), fee)
		if err != nil {
			return err
		}

		wasCash := previous.Mode.TouchesRegister()
		isCash := mode.TouchesRegister()
		amountChanged := !input.Amount.Equal(previous.Amount)
		if wasCash && (!isCash || amountChanged) && previous.RegisterID != nil {
			if _, err := s.ledger.Refund(ctx, tx, ledger.RefundInput{
				RegisterID:    *previous.RegisterID,
				Currency:      previous.Currency,
				Amount:        previous.Amount,
				PaymentNumber: previous.PaymentNumber,
				Reason:        "payment modified " + previous.PaymentNumber,
				Actor:         actor,
				MethodDetails: previous.MethodDetails,
			}); err != nil {
				return err
			}
		}
		if isCash && (!wasCash || amountChanged) {
			if _, err := s.ledger.Adjust(ctx, tx, ledger.AdjustInput{
				RegisterID:    entity.RegisterID,
				Currency:      previous.Currency,
				Amount:        input.Amount.Neg(),
				Type:          enums.TransactionTypePaymentDebit,
				RequestID:     previous.PaymentNumber,
				Reason:        "payment " + entity.ID,
				Actor:         actor,
				MethodDetails: input.Details,
			}); err != nil {
				return err
			}
		}

		now := s.now()
		switch {
		case input.AccountingRequired && mode.RequiresDisbursementNumber():
			if payment.DisbursementNumber == nil {
				pc, err := s.seq.WithTx(tx).Mint(ctx, enums.SequenceDisbursement, "", now)
				if err != nil {
					return err
				}
				payment.DisbursementNumber = &pc
			}
		default:
			payment.DisbursementNumber = nil
		}

		payment.Mode = mode
		payment.Amount = input.Amount
		payment.Fee = fee
		payment.MethodDetails = input.Details
		payment.AccountingRequired = input.AccountingRequired
		payment.Status = enums.PaymentStatus(updated.State)
		payment.RegisterID = nil
		if isCash {
			registerID := entity.RegisterID
			payment.RegisterID = &registerID
		}
		payment.ModifiedBy = &actor
		payment.UpdatedAt = now
		if err := repo.Update(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
		}

		intents := settlementIntents(updated, payment)
		if err := s.emit(ctx, tx, updated, wasCash || isCash, actor, intents, outbox.DomainEvent{
			EventType: enums.EventPaymentModified,
			Data: payloads.PaymentModifiedEvent{
				EntityID:           updated.ID,
				PaymentID:          payment.ID.String(),
				PaymentNumber:      payment.PaymentNumber,
				DisbursementNumber: payment.DisbursementNumber,
				PreviousMode:       previous.Mode,
				Mode:               payment.Mode,
				PreviousAmount:     previous.Amount,
				Amount:             payment.Amount,
				Status:             payment.Status,
				Actor:              actor,
			},
		}); err != nil {
			return err
		}
		result = &Result{Payment: payment, Entity: updated, Notifications: intents}
		return nil
	})
	if err != nil {
		s.metrics.IncPayment("modify", string(mode), outcomeLabel(err))
		return nil, err
	}

	s.metrics.IncPayment("modify", string(mode), "applied")
	logCtx := s.logg.WithEntityID(ctx, result.Entity.ID)
	s.logg.Info(s.logg.WithField(logCtx, "payment_number", result.Payment.PaymentNumber), "payment modified")
	return result, nil
}

func (s *service) Summary(ctx context.Context, entityID string) (*Summary, error) {
	entity, err := s.entities.Resolve(ctx, strings.TrimSpace(entityID))
	if err != nil {
		return nil, err
	}
	if !entity.Payable() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s does not accept payments", entity.ID)
	}
	payments, err := s.repo.ListByEntity(ctx, entity.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return &Summary{
		EntityID:    entity.ID,
		Kind:        entity.Kind,
		Currency:    entity.Currency,
		Due:         entity.Due,
		Paid:        entity.Paid,
		Remaining:   entity.Remaining,
		Status:      entities.SettlementStatus(entity.Due, entity.Paid, len(payments) > 0),
		PaymentDone: entity.PaymentDone,
		Payments:    payments,
	}, nil
}

// validateMoney checks the amount and the mobile money fee against the cap.
func (s *service) validateMoney(amount, fee decimal.Decimal, mode enums.PaymentMode) error {
	if !mode.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment mode %q", mode)
	}
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must have at most two decimals")
	}
	if fee.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "fee must not be negative")
	}
	if fee.IsZero() {
		return nil
	}
	if mode != enums.PaymentModeMobileMoney {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "fee only applies to %s payments", enums.PaymentModeMobileMoney)
	}
	limit := amount.Mul(s.feeCap).Div(hundred).Round(2)
	if fee.GreaterThan(limit) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "fee %s exceeds the %s%% cap (%s)", fee.StringFixed(2), s.feeCap.String(), limit.StringFixed(2))
	}
	return nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, entity *entities.Entity, touchedRegister bool, actor string, intents []notify.Intent, event outbox.DomainEvent) error {
	aggregate := aggregateFor(entity.Kind)
	ref := &outbox.ActorRef{Name: actor}
	event.AggregateType = aggregate
	event.AggregateID = entity.ID
	event.Actor = ref
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return fmt.Errorf("emit %s: %w", event.EventType, err)
	}
	if err := notify.Enqueue(ctx, s.outbox, tx, aggregate, actor, intents...); err != nil {
		return err
	}
	if !touchedRegister {
		return nil
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventLedgerSyncRequested,
		AggregateType: enums.AggregateRegister,
		AggregateID:   entity.RegisterID.String(),
		Actor:         ref,
		Data: payloads.LedgerSyncRequestedEvent{
			RegisterID: entity.RegisterID.String(),
			RequestID:  entity.ID,
		},
	}); err != nil {
		return fmt.Errorf("emit ledger sync: %w", err)
	}
	return nil
}

func settlementIntents(entity *entities.Entity, payment *models.Payment) []notify.Intent {
	msg := fmt.Sprintf("%s %s %s (%s), remaining %s",
		payment.PaymentNumber, payment.Amount.StringFixed(2), payment.Currency, payment.Mode, entity.Remaining.StringFixed(2))
	intents := []notify.Intent{{
		Audience: enums.AudienceFinance,
		EntityID: entity.ID,
		NewState: entity.State,
		Message:  msg,
	}}
	if entity.PaymentDone {
		intents = append(intents, notify.Intent{
			Audience: enums.AudienceSubmitter,
			EntityID: entity.ID,
			NewState: entity.State,
			Message:  "fully paid",
		})
	}
	return intents
}

func aggregateFor(kind entities.Kind) enums.OutboxAggregateType {
	if kind == entities.KindPaymentRequest {
		return enums.AggregatePaymentRequest
	}
	return enums.AggregateOrder
}

// feeFor drops the fee on modes that cannot carry one.
func feeFor(mode enums.PaymentMode, fee decimal.Decimal) decimal.Decimal {
	if mode != enums.PaymentModeMobileMoney {
		return decimal.Zero
	}
	return fee
}

func outcomeLabel(err error) string {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeValidation, pkgerrors.CodeAmountExceeded, pkgerrors.CodeInsufficientFunds, pkgerrors.CodeStateConflict, pkgerrors.CodeNotFound:
		return "rejected"
	default:
		return "failed"
	}
}
