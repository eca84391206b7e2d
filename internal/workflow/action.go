package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/internal/sequence"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/types"
)

// CurrentVersion is the action context version produced by this build.
const CurrentVersion = 1

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Action is the versioned context of one workflow step. It is stored as the
// payload of an action job and validated again before dispatch.
type Action struct {
	Version  int                  `json:"version" validate:"required"`
	Type     enums.ActionType     `json:"type" validate:"required"`
	TargetID string               `json:"target_id" validate:"required,max=64"`
	Actor    string               `json:"actor" validate:"required,max=128"`
	Reason   string               `json:"reason,omitempty" validate:"max=500"`
	Details  *types.MethodDetails `json:"details,omitempty"`
	Problem  *Problem             `json:"problem,omitempty"`
	Payment  *PaymentContext      `json:"payment,omitempty"`
}

// Problem is the issue raised by report_problem.
type Problem struct {
	Type        string `json:"type" validate:"required,max=64"`
	Description string `json:"description" validate:"required,max=1000"`
}

// PaymentContext carries the money fields of record_payment and modify_payment.
type PaymentContext struct {
	Amount             decimal.Decimal `json:"amount"`
	Currency           enums.Currency  `json:"currency,omitempty"`
	Fee                decimal.Decimal `json:"fee"`
	AccountingRequired bool            `json:"accounting_required"`
}

// Decode parses and validates a stored action payload.
func Decode(raw []byte) (Action, error) {
	var action Action
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&action); err != nil {
		return Action{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action payload")
	}
	if err := action.Validate(); err != nil {
		return Action{}, err
	}
	return action, nil
}

// Validate checks the shape of the action for its type and target family.
func (a Action) Validate() error {
	if err := validate.Struct(a); err != nil {
		return validationError(err)
	}
	if a.Version != CurrentVersion {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported action version %d", a.Version)
	}
	if !a.Type.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown action type %q", a.Type)
	}

	ref, err := sequence.Parse(a.TargetID)
	if err != nil {
		return err
	}
	if !targetAccepts(a.Type, ref.Family) {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "%s cannot target %s", a.Type, a.TargetID)
	}

	switch a.Type {
	case enums.ActionReject:
		if strings.TrimSpace(a.Reason) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
		}
	case enums.ActionSubmitDetails:
		if a.Details == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "details are required")
		}
		return a.Details.Validate()
	case enums.ActionReportProblem:
		if a.Problem == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "problem is required")
		}
	case enums.ActionRecordPayment, enums.ActionModifyPayment:
		if a.Payment == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment is required")
		}
		if a.Details == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "details are required")
		}
		if !a.Payment.Amount.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment.amount must be positive")
		}
		if a.Payment.Currency != "" && !a.Payment.Currency.IsValid() {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid currency %q", a.Payment.Currency)
		}
		return a.Details.Validate()
	}
	return nil
}

func targetAccepts(action enums.ActionType, family enums.SequenceFamily) bool {
	switch action {
	case enums.ActionPreApprove, enums.ActionApprove, enums.ActionReject, enums.ActionSubmitDetails, enums.ActionReportProblem:
		return family == enums.SequenceFunding
	case enums.ActionRecordPayment:
		return family == enums.SequenceOrder || family == enums.SequencePaymentRequest
	case enums.ActionModifyPayment:
		return family == enums.SequencePayment
	default:
		return false
	}
}

func validationError(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action")
	}
	details := map[string]string{}
	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		name := strings.TrimPrefix(fe.Namespace(), "Action.")
		details[name] = fmt.Sprintf("failed %s", fe.Tag())
		fields = append(fields, name)
	}
	return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid action: %s", strings.Join(fields, ", ")).WithDetails(details)
}
