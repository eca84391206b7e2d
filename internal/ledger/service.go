package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service moves money in and out of registers. Adjust and Refund join the
// caller's transaction when tx is non-nil so balance changes commit together
// with the workflow transition that caused them.
type Service interface {
	Adjust(ctx context.Context, tx *gorm.DB, input AdjustInput) (*AdjustResult, error)
	Refund(ctx context.Context, tx *gorm.DB, input RefundInput) (*AdjustResult, error)
	Balances(ctx context.Context, registerID uuid.UUID) ([]models.RegisterBalance, error)
	Transactions(ctx context.Context, registerID uuid.UUID, filter TransactionFilter) ([]models.RegisterTransaction, error)
	Verify(ctx context.Context, registerID uuid.UUID) (*VerifyReport, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	metrics *metrics.WorkflowMetrics
	now     func() time.Time
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, tx txRunner, m *metrics.WorkflowMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Adjust(ctx context.Context, tx *gorm.DB, input AdjustInput) (*AdjustResult, error) {
	if err := validateAdjust(input); err != nil {
		return nil, err
	}
	if tx != nil {
		return s.adjust(ctx, s.repo.WithTx(tx), input)
	}

	var result *AdjustResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.adjust(ctx, s.repo.WithTx(tx), input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Refund(ctx context.Context, tx *gorm.DB, input RefundInput) (*AdjustResult, error) {
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	if strings.TrimSpace(input.PaymentNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment number is required for refunds")
	}
	reason := input.Reason
	if reason == "" {
		reason = "refund of " + input.PaymentNumber
	}
	return s.Adjust(ctx, tx, AdjustInput{
		RegisterID:    input.RegisterID,
		Currency:      input.Currency,
		Amount:        input.Amount,
		Type:          enums.TransactionTypePaymentRefund,
		RequestID:     input.PaymentNumber,
		Reason:        reason,
		Actor:         input.Actor,
		MethodDetails: input.MethodDetails,
	})
}

func (s *service) adjust(ctx context.Context, repo Repository, input AdjustInput) (*AdjustResult, error) {
	now := s.now()
	balance, ok, err := repo.ApplyDelta(ctx, input.RegisterID, input.Currency, input.Amount, now)
	if err != nil {
		s.metrics.IncLedger(string(input.Type), string(input.Currency), "error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update register balance")
	}
	if !ok {
		s.metrics.IncLedger(string(input.Type), string(input.Currency), "rejected")
		return nil, s.explainRejection(ctx, repo, input)
	}

	txn := models.RegisterTransaction{
		ID:            uuid.New(),
		RegisterID:    input.RegisterID,
		Type:          input.Type,
		Amount:        input.Amount,
		Currency:      input.Currency,
		BalanceAfter:  balance,
		RequestID:     input.RequestID,
		Reason:        input.Reason,
		Actor:         input.Actor,
		MethodDetails: input.MethodDetails,
		CreatedAt:     now,
	}
	if err := repo.InsertTransaction(ctx, &txn); err != nil {
		s.metrics.IncLedger(string(input.Type), string(input.Currency), "error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append register transaction")
	}

	s.metrics.IncLedger(string(input.Type), string(input.Currency), "applied")
	return &AdjustResult{Balance: balance, Transaction: txn}, nil
}

// explainRejection reloads the balance after a conditional update matched nothing.
func (s *service) explainRejection(ctx context.Context, repo Repository, input AdjustInput) error {
	current, err := repo.FindBalance(ctx, input.RegisterID, input.Currency)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load register balance")
	}
	if current == nil {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "no %s balance for register %s", input.Currency, input.RegisterID)
	}

	requested := input.Amount.Abs()
	return pkgerrors.Newf(pkgerrors.CodeInsufficientFunds,
		"insufficient %s balance: %s available, %s requested", input.Currency, current.Balance.StringFixed(2), requested.StringFixed(2)).
		WithDetails(InsufficientFundsDetails{
			RegisterID: input.RegisterID,
			Currency:   input.Currency,
			Balance:    current.Balance,
			Requested:  requested,
			Shortfall:  requested.Sub(current.Balance),
		})
}

func (s *service) Balances(ctx context.Context, registerID uuid.UUID) ([]models.RegisterBalance, error) {
	if registerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "register id is required")
	}
	balances, err := s.repo.ListBalances(ctx, registerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list register balances")
	}
	if len(balances) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "register %s has no balances", registerID)
	}
	return balances, nil
}

func (s *service) Transactions(ctx context.Context, registerID uuid.UUID, filter TransactionFilter) ([]models.RegisterTransaction, error) {
	if registerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "register id is required")
	}
	if filter.Currency != "" && !filter.Currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid currency %q", filter.Currency)
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid transaction type %q", filter.Type)
	}
	txns, err := s.repo.ListTransactions(ctx, registerID, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list register transactions")
	}
	return txns, nil
}

func (s *service) Verify(ctx context.Context, registerID uuid.UUID) (*VerifyReport, error) {
	balances, err := s.Balances(ctx, registerID)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.SumTransactions(ctx, registerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum register transactions")
	}

	report := &VerifyReport{RegisterID: registerID, Balanced: true}
	for _, balance := range balances {
		total := totals[balance.Currency]
		drift := balance.Balance.Sub(total)
		if !drift.IsZero() {
			report.Balanced = false
		}
		report.Currencies = append(report.Currencies, CurrencyCheck{
			Currency:         balance.Currency,
			Balance:          balance.Balance,
			TransactionTotal: total,
			Drift:            drift,
		})
	}
	return report, nil
}

func validateAdjust(input AdjustInput) error {
	if input.RegisterID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "register id is required")
	}
	if !input.Currency.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid currency %q", input.Currency)
	}
	if !input.Type.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid transaction type %q", input.Type)
	}
	if input.Amount.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must not be zero")
	}
	if strings.TrimSpace(input.Actor) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}

	switch input.Type {
	case enums.TransactionTypeOpening, enums.TransactionTypeFundingCredit, enums.TransactionTypePaymentRefund:
		if input.Amount.IsNegative() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be a credit", input.Type)
		}
	case enums.TransactionTypePaymentDebit:
		if input.Amount.IsPositive() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be a debit", input.Type)
		}
	}

	if input.MethodDetails.Mode != "" {
		if err := input.MethodDetails.Validate(); err != nil {
			return err
		}
	}
	return nil
}
