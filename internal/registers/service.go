package registers

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/internal/ledger"
	"github.com/angelmondragon/caisseflow/pkg/db"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/logger"
)

var prefixPattern = regexp.MustCompile(`^[A-Z0-9]{1,12}$`)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// BalanceAdjuster posts opening balances through the ledger.
type BalanceAdjuster interface {
	Adjust(ctx context.Context, tx *gorm.DB, input ledger.AdjustInput) (*ledger.AdjustResult, error)
}

// Service manages the register catalog.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Register, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Register, error)
	List(ctx context.Context) ([]models.Register, error)
	LookupByType(ctx context.Context, registerType string) (*TypeRef, error)
	Default(ctx context.Context) (*TypeRef, error)
}

// CreateInput describes a new register and its optional opening balances.
type CreateInput struct {
	Type      string
	Prefix    string
	Label     string
	IsDefault bool
	Opening   map[enums.Currency]decimal.Decimal
	Actor     string
}

type service struct {
	repo   Repository
	tx     txRunner
	ledger BalanceAdjuster
	types  *TypeCache
	logg   *logger.Logger
}

// NewService wires the register catalog.
func NewService(repo Repository, tx txRunner, ledger BalanceAdjuster, types *TypeCache, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("registers repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if types == nil {
		return nil, fmt.Errorf("type cache required")
	}
	return &service{repo: repo, tx: tx, ledger: ledger, types: types, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Register, error) {
	input.Type = strings.TrimSpace(input.Type)
	input.Prefix = strings.ToUpper(strings.TrimSpace(input.Prefix))
	if input.Type == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "register type is required")
	}
	if !prefixPattern.MatchString(input.Prefix) {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "prefix %q must be 1-12 uppercase letters or digits", input.Prefix)
	}
	if strings.TrimSpace(input.Actor) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}
	for currency, amount := range input.Opening {
		if !currency.IsValid() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid currency %q", currency)
		}
		if amount.IsNegative() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "opening %s balance cannot be negative", currency)
		}
	}
	label := strings.TrimSpace(input.Label)
	if label == "" {
		label = input.Type
	}

	now := time.Now().UTC()
	register := &models.Register{
		ID:        uuid.New(),
		Type:      input.Type,
		Prefix:    input.Prefix,
		Label:     label,
		IsDefault: input.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if input.IsDefault {
			if err := repo.ClearDefault(ctx); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear default register")
			}
		}
		if err := repo.Create(ctx, register); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "register type %q or prefix %q already exists", input.Type, input.Prefix)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create register")
		}

		balances := make([]models.RegisterBalance, 0, len(enums.Currencies()))
		for _, currency := range enums.Currencies() {
			balances = append(balances, models.RegisterBalance{
				RegisterID: register.ID,
				Currency:   currency,
				Balance:    decimal.Zero,
				UpdatedAt:  now,
			})
		}
		if err := repo.CreateBalances(ctx, balances); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create register balances")
		}

		for _, currency := range enums.Currencies() {
			amount, ok := input.Opening[currency]
			if !ok || amount.IsZero() {
				continue
			}
			if _, err := s.ledger.Adjust(ctx, tx, ledger.AdjustInput{
				RegisterID: register.ID,
				Currency:   currency,
				Amount:     amount,
				Type:       enums.TransactionTypeOpening,
				Reason:     "opening balance",
				Actor:      input.Actor,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.types.Invalidate(ctx); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "register type cache invalidation failed")
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{"register_id": register.ID.String(), "register_type": register.Type})
		s.logg.Info(ctx, "register created")
	}
	return s.Get(ctx, register.ID)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Register, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "register id is required")
	}
	register, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load register")
	}
	if register == nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "register %s not found", id)
	}
	return register, nil
}

func (s *service) List(ctx context.Context) ([]models.Register, error) {
	registers, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list registers")
	}
	return registers, nil
}

// LookupByType resolves a register by its type label, case-insensitively.
func (s *service) LookupByType(ctx context.Context, registerType string) (*TypeRef, error) {
	wanted := strings.TrimSpace(registerType)
	if wanted == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "register type is required")
	}
	refs, err := s.types.Types(ctx, s.loadTypes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load register types")
	}
	for i := range refs {
		if strings.EqualFold(refs[i].Type, wanted) {
			return &refs[i], nil
		}
	}
	return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown register type %q", wanted)
}

// Default returns the register used when an entity names none.
func (s *service) Default(ctx context.Context) (*TypeRef, error) {
	refs, err := s.types.Types(ctx, s.loadTypes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load register types")
	}
	for i := range refs {
		if refs[i].IsDefault {
			return &refs[i], nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no default register configured")
}

func (s *service) loadTypes(ctx context.Context) ([]TypeRef, error) {
	registers, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]TypeRef, 0, len(registers))
	for _, r := range registers {
		refs = append(refs, TypeRef{ID: r.ID, Type: r.Type, Prefix: r.Prefix, IsDefault: r.IsDefault})
	}
	return refs, nil
}
