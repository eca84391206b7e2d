package entities

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/internal/registers"
	"github.com/angelmondragon/caisseflow/internal/sequence"
	"github.com/angelmondragon/caisseflow/pkg/db"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RegisterDirectory resolves the register an entity settles against.
type RegisterDirectory interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Register, error)
	Default(ctx context.Context) (*registers.TypeRef, error)
}

// SequenceMinter mints reference numbers inside a transaction.
type SequenceMinter interface {
	WithTx(tx *gorm.DB) *sequence.Generator
}

// Service is the entity store: orders, proformas, payment requests and id routing.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	AddProforma(ctx context.Context, input AddProformaInput) (*models.Proforma, error)
	ValidateProforma(ctx context.Context, proformaID uuid.UUID, actor string) (*models.Order, error)
	CreatePaymentRequest(ctx context.Context, input CreatePaymentRequestInput) (*models.PaymentRequest, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetPaymentRequest(ctx context.Context, id string) (*models.PaymentRequest, error)
	Resolve(ctx context.Context, id string) (*Entity, error)

	LoadPayable(ctx context.Context, tx *gorm.DB, id string) (*Entity, error)
	ApplyPayment(ctx context.Context, tx *gorm.DB, entity *Entity, delta, tolerance decimal.Decimal) (*Entity, error)
}

// CreateOrderInput describes a purchase order. RegisterID defaults to the default register.
type CreateOrderInput struct {
	Description string
	Currency    enums.Currency
	RegisterID  *uuid.UUID
	Actor       string
}

// AddProformaInput attaches a supplier quote to an order.
type AddProformaInput struct {
	OrderID  string
	Supplier string
	Amount   decimal.Decimal
	Currency enums.Currency
	Actor    string
}

// CreatePaymentRequestInput describes a fixed-amount payment to a beneficiary.
type CreatePaymentRequestInput struct {
	Amount      decimal.Decimal
	Currency    enums.Currency
	Beneficiary string
	Reason      string
	RegisterID  *uuid.UUID
	Actor       string
}

// AmountExceededDetails is attached to AMOUNT_EXCEEDED errors.
type AmountExceededDetails struct {
	EntityID  string          `json:"entity_id"`
	Remaining decimal.Decimal `json:"remaining"`
	Requested decimal.Decimal `json:"requested"`
	Excess    decimal.Decimal `json:"excess"`
}

type service struct {
	repo      Repository
	tx        txRunner
	seq       SequenceMinter
	registers RegisterDirectory
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the entity store.
func NewService(repo Repository, tx txRunner, seq SequenceMinter, registers RegisterDirectory, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("entities repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if seq == nil {
		return nil, fmt.Errorf("sequence generator required")
	}
	if registers == nil {
		return nil, fmt.Errorf("register directory required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		seq:       seq,
		registers: registers,
		logg:      logg,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) resolveRegister(ctx context.Context, id *uuid.UUID) (uuid.UUID, error) {
	if id != nil && *id != uuid.Nil {
		reg, err := s.registers.Get(ctx, *id)
		if err != nil {
			return uuid.Nil, err
		}
		return reg.ID, nil
	}
	ref, err := s.registers.Default(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return ref.ID, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if strings.TrimSpace(input.Description) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "description is required")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid currency %q", input.Currency)
	}
	if strings.TrimSpace(input.Actor) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}
	registerID, err := s.resolveRegister(ctx, input.RegisterID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		Description:     strings.TrimSpace(input.Description),
		Currency:        input.Currency,
		RegisterID:      registerID,
		AmountPaid:      decimal.Zero,
		RemainingAmount: decimal.Zero,
		Status:          enums.PaymentStatusPending,
		CreatedBy:       input.Actor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		id, err := s.seq.WithTx(tx).Mint(ctx, enums.SequenceOrder, "", now)
		if err != nil {
			return err
		}
		order.ID = id
		if err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logInfo(ctx, order.ID, "order created")
	return order, nil
}

func (s *service) AddProforma(ctx context.Context, input AddProformaInput) (*models.Proforma, error) {
	if strings.TrimSpace(input.Supplier) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	order, err := s.GetOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	currency := input.Currency
	if currency == "" {
		currency = order.Currency
	}
	if currency != order.Currency {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "proforma currency %s does not match order currency %s", currency, order.Currency)
	}

	proforma := &models.Proforma{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Supplier:  strings.TrimSpace(input.Supplier),
		Amount:    input.Amount,
		Currency:  currency,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateProforma(ctx, proforma); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create proforma")
	}
	return proforma, nil
}

// ValidateProforma makes the proforma the order's amount due. An order keeps a
// single validated proforma; switching is refused once payments exist.
func (s *service) ValidateProforma(ctx context.Context, proformaID uuid.UUID, actor string) (*models.Order, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}
	proforma, err := s.repo.FindProforma(ctx, proformaID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load proforma")
	}
	if proforma == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "proforma %s not found", proformaID)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, proforma.OrderID, true)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", proforma.OrderID)
		}

		current, err := repo.ValidatedProforma(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load validated proforma")
		}
		if current != nil && current.ID == proforma.ID {
			return nil
		}
		if current != nil {
			payments, err := repo.CountPayments(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count payments")
			}
			if payments > 0 {
				return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order %s already has payments against proforma %s", order.ID, current.ID)
			}
			if err := repo.SetProformaValidated(ctx, current.ID, false, nil, nil); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear validated proforma")
			}
		}

		now := s.now()
		if err := repo.SetProformaValidated(ctx, proforma.ID, true, &actor, &now); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "order %s already has a validated proforma", order.ID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate proforma")
		}

		payments, err := repo.CountPayments(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count payments")
		}
		status := SettlementStatus(proforma.Amount, order.AmountPaid, payments > 0)
		remaining := Remaining(proforma.Amount, order.AmountPaid)
		done := order.AmountPaid.GreaterThanOrEqual(proforma.Amount)
		if err := repo.UpdateSettlement(ctx, KindOrder, order.ID, remaining, done, status, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order settlement")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logInfo(ctx, proforma.OrderID, "proforma validated")
	return s.GetOrder(ctx, proforma.OrderID)
}

func (s *service) CreatePaymentRequest(ctx context.Context, input CreatePaymentRequestInput) (*models.PaymentRequest, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid currency %q", input.Currency)
	}
	if strings.TrimSpace(input.Beneficiary) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "beneficiary is required")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if strings.TrimSpace(input.Actor) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}
	registerID, err := s.resolveRegister(ctx, input.RegisterID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	request := &models.PaymentRequest{
		Amount:          input.Amount,
		Currency:        input.Currency,
		Beneficiary:     strings.TrimSpace(input.Beneficiary),
		Reason:          strings.TrimSpace(input.Reason),
		RegisterID:      registerID,
		AmountPaid:      decimal.Zero,
		RemainingAmount: input.Amount,
		Status:          enums.PaymentStatusPending,
		CreatedBy:       input.Actor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		id, err := s.seq.WithTx(tx).Mint(ctx, enums.SequencePaymentRequest, "", now)
		if err != nil {
			return err
		}
		request.ID = id
		if err := s.repo.WithTx(tx).CreatePaymentRequest(ctx, request); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logInfo(ctx, request.ID, "payment request created")
	return request, nil
}

func (s *service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, id, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", id)
	}
	return order, nil
}

func (s *service) GetPaymentRequest(ctx context.Context, id string) (*models.PaymentRequest, error) {
	request, err := s.repo.FindPaymentRequest(ctx, id, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment request")
	}
	if request == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "payment request %s not found", id)
	}
	return request, nil
}

// Resolve loads whatever entity a typed reference designates.
func (s *service) Resolve(ctx context.Context, id string) (*Entity, error) {
	return s.load(ctx, s.repo, id, false)
}

// LoadPayable loads an order or payment request inside tx, locking it on Postgres.
func (s *service) LoadPayable(ctx context.Context, tx *gorm.DB, id string) (*Entity, error) {
	entity, err := s.load(ctx, s.repo.WithTx(tx), id, true)
	if err != nil {
		return nil, err
	}
	if !entity.Payable() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s does not accept payments", id)
	}
	return entity, nil
}

func (s *service) load(ctx context.Context, repo Repository, id string, forUpdate bool) (*Entity, error) {
	kind, err := KindOf(id)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindOrder:
		order, err := repo.FindOrder(ctx, id, forUpdate)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order == nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", id)
		}
		entity := &Entity{
			ID:          order.ID,
			Kind:        KindOrder,
			Currency:    order.Currency,
			RegisterID:  order.RegisterID,
			Paid:        order.AmountPaid,
			Remaining:   order.RemainingAmount,
			PaymentDone: order.PaymentDone,
			State:       string(order.Status),
		}
		for _, p := range order.Proformas {
			if p.Validated {
				entity.Due = p.Amount
				entity.HasDue = true
			}
		}
		return entity, nil
	case KindPaymentRequest:
		request, err := repo.FindPaymentRequest(ctx, id, forUpdate)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment request")
		}
		if request == nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "payment request %s not found", id)
		}
		return &Entity{
			ID:          request.ID,
			Kind:        KindPaymentRequest,
			Currency:    request.Currency,
			RegisterID:  request.RegisterID,
			Due:         request.Amount,
			HasDue:      true,
			Paid:        request.AmountPaid,
			Remaining:   request.RemainingAmount,
			PaymentDone: request.PaymentDone,
			State:       string(request.Status),
		}, nil
	case KindFundingRequest:
		request, err := repo.FindFundingRequest(ctx, id)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load funding request")
		}
		if request == nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "funding request %s not found", id)
		}
		return &Entity{
			ID:         request.ID,
			Kind:       KindFundingRequest,
			Currency:   request.Currency,
			RegisterID: request.RegisterID,
			Due:        request.Amount,
			HasDue:     true,
			State:      string(request.Status),
		}, nil
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s does not identify an order, payment request or funding request", id)
	}
}

// ApplyPayment moves the entity's amount paid by delta under a single guarded
// update bounded by due + tolerance, then refreshes remaining and status.
func (s *service) ApplyPayment(ctx context.Context, tx *gorm.DB, entity *Entity, delta, tolerance decimal.Decimal) (*Entity, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if entity == nil || !entity.Payable() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payable entity required")
	}
	if !entity.HasDue {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s has no validated amount due", entity.ID)
	}
	if tolerance.IsNegative() {
		tolerance = decimal.Zero
	}

	repo := s.repo.WithTx(tx)
	now := s.now()
	ceiling := entity.Due.Add(tolerance)
	ok, err := repo.IncrementPaid(ctx, entity.Kind, entity.ID, delta, ceiling, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update amount paid")
	}

	fresh, err := s.load(ctx, repo, entity.ID, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		remaining := Remaining(fresh.Due, fresh.Paid)
		return nil, pkgerrors.Newf(pkgerrors.CodeAmountExceeded,
			"payment of %s exceeds remaining %s on %s", delta.StringFixed(2), remaining.StringFixed(2), entity.ID).
			WithDetails(AmountExceededDetails{
				EntityID:  entity.ID,
				Remaining: remaining,
				Requested: delta,
				Excess:    delta.Sub(remaining),
			})
	}

	payments, err := repo.CountPayments(ctx, entity.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count payments")
	}
	fresh.Remaining = Remaining(fresh.Due, fresh.Paid)
	fresh.PaymentDone = fresh.Paid.GreaterThanOrEqual(fresh.Due)
	status := SettlementStatus(fresh.Due, fresh.Paid, payments > 0)
	fresh.State = string(status)
	if err := repo.UpdateSettlement(ctx, fresh.Kind, fresh.ID, fresh.Remaining, fresh.PaymentDone, status, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update settlement")
	}
	return fresh, nil
}

func (s *service) logInfo(ctx context.Context, entityID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithEntityID(ctx, entityID), msg)
}
