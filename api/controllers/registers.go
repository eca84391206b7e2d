package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/api/middleware"
	"github.com/angelmondragon/caisseflow/api/responses"
	"github.com/angelmondragon/caisseflow/api/validators"
	"github.com/angelmondragon/caisseflow/internal/ledger"
	"github.com/angelmondragon/caisseflow/internal/registers"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/logger"
)

type registerCreateRequest struct {
	Type      string                     `json:"type" validate:"required,max=64"`
	Prefix    string                     `json:"prefix" validate:"required,max=12"`
	Label     string                     `json:"label" validate:"max=128"`
	IsDefault bool                       `json:"is_default"`
	Opening   map[string]decimal.Decimal `json:"opening"`
	Actor     string                     `json:"actor" validate:"max=128"`
}

func (r registerCreateRequest) toInput(actor string) (registers.CreateInput, error) {
	opening := make(map[enums.Currency]decimal.Decimal, len(r.Opening))
	for code, amount := range r.Opening {
		currency, err := enums.ParseCurrency(strings.TrimSpace(code))
		if err != nil {
			return registers.CreateInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid opening currency")
		}
		opening[currency] = amount
	}
	return registers.CreateInput{
		Type:      validators.SanitizeString(r.Type, 64),
		Prefix:    validators.SanitizeString(r.Prefix, 12),
		Label:     validators.SanitizeString(r.Label, 128),
		IsDefault: r.IsDefault,
		Opening:   opening,
		Actor:     actor,
	}, nil
}

// RegisterCreate creates a register with zeroed balances and optional opening amounts.
func RegisterCreate(svc registers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "register service unavailable"))
			return
		}

		var payload registerCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(actorOf(r, payload.Actor))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		register, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newRegisterView(*register))
	}
}

func RegisterList(svc registers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "register service unavailable"))
			return
		}
		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]registerView, 0, len(list))
		for _, reg := range list {
			views = append(views, newRegisterView(reg))
		}
		responses.WriteSuccess(w, views)
	}
}

func RegisterBalances(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		registerID, err := validators.PathUUID(r, "registerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		balances, err := svc.Balances(r.Context(), registerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"register_id": registerID,
			"balances":    newBalanceViews(balances),
		})
	}
}

// RegisterTransactions lists the transaction log, newest first.
func RegisterTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		registerID, err := validators.PathUUID(r, "registerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := transactionFilterFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txns, err := svc.Transactions(r.Context(), registerID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]transactionView, 0, len(txns))
		for _, t := range txns {
			views = append(views, newTransactionView(t))
		}
		responses.WriteSuccess(w, views)
	}
}

// RegisterVerify recomputes balances from the transaction log.
func RegisterVerify(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		registerID, err := validators.PathUUID(r, "registerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Verify(r.Context(), registerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !report.Balanced && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "register_id", registerID.String()), "register ledger drift detected")
		}
		responses.WriteSuccess(w, report)
	}
}

func transactionFilterFromQuery(r *http.Request) (ledger.TransactionFilter, error) {
	q := r.URL.Query()
	limit, err := validators.ParseQueryInt(r, "limit", 100, 1, 500)
	if err != nil {
		return ledger.TransactionFilter{}, err
	}
	filter := ledger.TransactionFilter{
		Currency:  enums.Currency(strings.ToUpper(strings.TrimSpace(q.Get("currency")))),
		Type:      enums.TransactionType(strings.TrimSpace(q.Get("type"))),
		RequestID: strings.TrimSpace(q.Get("request_id")),
		Limit:     limit,
	}
	for key, dest := range map[string]**time.Time{"since": &filter.Since, "until": &filter.Until} {
		raw := strings.TrimSpace(q.Get(key))
		if raw == "" {
			continue
		}
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return ledger.TransactionFilter{}, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be RFC3339").WithDetails(map[string]any{"field": key})
		}
		at = at.UTC()
		*dest = &at
	}
	return filter, nil
}

// actorOf prefers the actor named in the body over the X-Actor-Id header.
func actorOf(r *http.Request, declared string) string {
	if actor := validators.SanitizeString(declared, 128); actor != "" {
		return actor
	}
	return middleware.ActorFromContext(r.Context())
}
