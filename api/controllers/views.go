package controllers

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/internal/notify"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	"github.com/angelmondragon/caisseflow/pkg/types"
)

const dateLayout = "2006-01-02"

type balanceView struct {
	Currency  enums.Currency  `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type registerView struct {
	ID        uuid.UUID     `json:"id"`
	Type      string        `json:"type"`
	Prefix    string        `json:"prefix"`
	Label     string        `json:"label"`
	IsDefault bool          `json:"is_default"`
	Balances  []balanceView `json:"balances,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

func newBalanceViews(balances []models.RegisterBalance) []balanceView {
	out := make([]balanceView, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceView{Currency: b.Currency, Balance: b.Balance, UpdatedAt: b.UpdatedAt})
	}
	return out
}

func newRegisterView(r models.Register) registerView {
	view := registerView{
		ID:        r.ID,
		Type:      r.Type,
		Prefix:    r.Prefix,
		Label:     r.Label,
		IsDefault: r.IsDefault,
		CreatedAt: r.CreatedAt,
	}
	if len(r.Balances) > 0 {
		view.Balances = newBalanceViews(r.Balances)
	}
	return view
}

type transactionView struct {
	ID            uuid.UUID             `json:"id"`
	Type          enums.TransactionType `json:"type"`
	Amount        decimal.Decimal       `json:"amount"`
	Currency      enums.Currency        `json:"currency"`
	BalanceAfter  decimal.Decimal       `json:"balance_after"`
	RequestID     string                `json:"request_id,omitempty"`
	Reason        string                `json:"reason,omitempty"`
	Actor         string                `json:"actor"`
	MethodDetails *types.MethodDetails  `json:"method_details,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
}

func newTransactionView(t models.RegisterTransaction) transactionView {
	view := transactionView{
		ID:           t.ID,
		Type:         t.Type,
		Amount:       t.Amount,
		Currency:     t.Currency,
		BalanceAfter: t.BalanceAfter,
		RequestID:    t.RequestID,
		Reason:       t.Reason,
		Actor:        t.Actor,
		CreatedAt:    t.CreatedAt,
	}
	if t.MethodDetails.Mode != "" {
		details := t.MethodDetails
		view.MethodDetails = &details
	}
	return view
}

type historyView struct {
	Stage      enums.FundingStage `json:"stage"`
	Actor      string             `json:"actor"`
	Details    string             `json:"details,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

type issueView struct {
	Type        string     `json:"type"`
	Description string     `json:"description"`
	ReportedBy  string     `json:"reported_by"`
	ReportedAt  time.Time  `json:"reported_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

type fundingView struct {
	ID              string               `json:"id"`
	RegisterID      uuid.UUID            `json:"register_id"`
	Amount          decimal.Decimal      `json:"amount"`
	Currency        enums.Currency       `json:"currency"`
	Reason          string               `json:"reason"`
	RequestedDate   string               `json:"requested_date"`
	Submitter       string               `json:"submitter"`
	Status          enums.FundingStatus  `json:"status"`
	Stage           enums.FundingStage   `json:"stage"`
	MethodDetails   *types.MethodDetails `json:"method_details,omitempty"`
	RejectionReason *string              `json:"rejection_reason,omitempty"`
	PreApprovedBy   *string              `json:"pre_approved_by,omitempty"`
	FinalizedBy     *string              `json:"finalized_by,omitempty"`
	FinalizedAt     *time.Time           `json:"finalized_at,omitempty"`
	History         []historyView        `json:"history,omitempty"`
	Issues          []issueView          `json:"issues,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

func newFundingView(f *models.FundingRequest) *fundingView {
	if f == nil {
		return nil
	}
	view := &fundingView{
		ID:              f.ID,
		RegisterID:      f.RegisterID,
		Amount:          f.Amount,
		Currency:        f.Currency,
		Reason:          f.Reason,
		RequestedDate:   f.RequestedDate.Format(dateLayout),
		Submitter:       f.Submitter,
		Status:          f.Status,
		Stage:           f.Stage,
		RejectionReason: f.RejectionReason,
		PreApprovedBy:   f.PreApprovedBy,
		FinalizedBy:     f.FinalizedBy,
		FinalizedAt:     f.FinalizedAt,
		CreatedAt:       f.CreatedAt,
	}
	if f.Method != nil {
		details := f.MethodDetails
		view.MethodDetails = &details
	}
	for _, h := range f.History {
		view.History = append(view.History, historyView{Stage: h.Stage, Actor: h.Actor, Details: h.Details, OccurredAt: h.OccurredAt})
	}
	for _, i := range f.Issues {
		view.Issues = append(view.Issues, issueView{
			Type:        i.Type,
			Description: i.Description,
			ReportedBy:  i.ReportedBy,
			ReportedAt:  i.ReportedAt,
			ResolvedAt:  i.ResolvedAt,
		})
	}
	return view
}

type fundingOutcomeView struct {
	Request          *fundingView    `json:"request"`
	AlreadyFinalized bool            `json:"already_finalized"`
	Notice           string          `json:"notice,omitempty"`
	Notifications    []notify.Intent `json:"notifications,omitempty"`
}

type proformaView struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     string          `json:"order_id"`
	Supplier    string          `json:"supplier"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    enums.Currency  `json:"currency"`
	Validated   bool            `json:"validated"`
	ValidatedBy *string         `json:"validated_by,omitempty"`
	ValidatedAt *time.Time      `json:"validated_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func newProformaView(p models.Proforma) proformaView {
	return proformaView{
		ID:          p.ID,
		OrderID:     p.OrderID,
		Supplier:    p.Supplier,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Validated:   p.Validated,
		ValidatedBy: p.ValidatedBy,
		ValidatedAt: p.ValidatedAt,
		CreatedAt:   p.CreatedAt,
	}
}

type orderView struct {
	ID              string              `json:"id"`
	Description     string              `json:"description"`
	Currency        enums.Currency      `json:"currency"`
	RegisterID      uuid.UUID           `json:"register_id"`
	AmountPaid      decimal.Decimal     `json:"amount_paid"`
	RemainingAmount decimal.Decimal     `json:"remaining_amount"`
	PaymentDone     bool                `json:"payment_done"`
	Status          enums.PaymentStatus `json:"status"`
	CreatedBy       string              `json:"created_by"`
	Proformas       []proformaView      `json:"proformas,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

func newOrderView(o *models.Order) orderView {
	view := orderView{
		ID:              o.ID,
		Description:     o.Description,
		Currency:        o.Currency,
		RegisterID:      o.RegisterID,
		AmountPaid:      o.AmountPaid,
		RemainingAmount: o.RemainingAmount,
		PaymentDone:     o.PaymentDone,
		Status:          o.Status,
		CreatedBy:       o.CreatedBy,
		CreatedAt:       o.CreatedAt,
	}
	for _, p := range o.Proformas {
		view.Proformas = append(view.Proformas, newProformaView(p))
	}
	return view
}

type paymentRequestView struct {
	ID              string              `json:"id"`
	Amount          decimal.Decimal     `json:"amount"`
	Currency        enums.Currency      `json:"currency"`
	Beneficiary     string              `json:"beneficiary"`
	Reason          string              `json:"reason"`
	RegisterID      uuid.UUID           `json:"register_id"`
	AmountPaid      decimal.Decimal     `json:"amount_paid"`
	RemainingAmount decimal.Decimal     `json:"remaining_amount"`
	PaymentDone     bool                `json:"payment_done"`
	Status          enums.PaymentStatus `json:"status"`
	CreatedBy       string              `json:"created_by"`
	CreatedAt       time.Time           `json:"created_at"`
}

func newPaymentRequestView(p *models.PaymentRequest) paymentRequestView {
	return paymentRequestView{
		ID:              p.ID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		Beneficiary:     p.Beneficiary,
		Reason:          p.Reason,
		RegisterID:      p.RegisterID,
		AmountPaid:      p.AmountPaid,
		RemainingAmount: p.RemainingAmount,
		PaymentDone:     p.PaymentDone,
		Status:          p.Status,
		CreatedBy:       p.CreatedBy,
		CreatedAt:       p.CreatedAt,
	}
}

type paymentView struct {
	PaymentNumber      string              `json:"payment_number"`
	DisbursementNumber *string             `json:"disbursement_number,omitempty"`
	Mode               enums.PaymentMode   `json:"mode"`
	Amount             decimal.Decimal     `json:"amount"`
	Currency           enums.Currency      `json:"currency"`
	Fee                decimal.Decimal     `json:"fee"`
	MethodDetails      types.MethodDetails `json:"method_details"`
	Status             enums.PaymentStatus `json:"status"`
	AccountingRequired bool                `json:"accounting_required"`
	RecordedBy         string              `json:"recorded_by"`
	ModifiedBy         *string             `json:"modified_by,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
}

func newPaymentView(p models.Payment) paymentView {
	return paymentView{
		PaymentNumber:      p.PaymentNumber,
		DisbursementNumber: p.DisbursementNumber,
		Mode:               p.Mode,
		Amount:             p.Amount,
		Currency:           p.Currency,
		Fee:                p.Fee,
		MethodDetails:      p.MethodDetails,
		Status:             p.Status,
		AccountingRequired: p.AccountingRequired,
		RecordedBy:         p.RecordedBy,
		ModifiedBy:         p.ModifiedBy,
		CreatedAt:          p.CreatedAt,
	}
}

type actionJobView struct {
	ID            uuid.UUID             `json:"id"`
	ActionType    enums.ActionType      `json:"action_type"`
	TargetID      string                `json:"target_id"`
	Actor         string                `json:"actor"`
	Status        enums.ActionJobStatus `json:"status"`
	AttemptCount  int                   `json:"attempt_count"`
	NextAttemptAt *time.Time            `json:"next_attempt_at,omitempty"`
	LastError     *string               `json:"last_error,omitempty"`
	Result        json.RawMessage       `json:"result,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func newActionJobView(j *models.ActionJob) actionJobView {
	view := actionJobView{
		ID:           j.ID,
		ActionType:   j.ActionType,
		TargetID:     j.TargetID,
		Actor:        j.Actor,
		Status:       j.Status,
		AttemptCount: j.AttemptCount,
		LastError:    j.LastError,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
	if len(j.Result) > 0 {
		view.Result = j.Result
	}
	if j.Status == enums.ActionJobPending {
		next := j.NextAttemptAt
		view.NextAttemptAt = &next
	}
	return view
}
