package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/api/responses"
	"github.com/angelmondragon/caisseflow/api/validators"
	"github.com/angelmondragon/caisseflow/internal/funding"
	"github.com/angelmondragon/caisseflow/internal/textparse"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/logger"
)

// FundingTextParser extracts a draft funding request from a chat message.
type FundingTextParser interface {
	ParseFundingText(ctx context.Context, text string) (textparse.Draft, error)
}

type fundingSubmitRequest struct {
	RegisterType  string          `json:"register_type" validate:"max=64"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"required"`
	Reason        string          `json:"reason" validate:"required,max=500"`
	RequestedDate string          `json:"requested_date" validate:"required,datetime=2006-01-02"`
	Submitter     string          `json:"submitter" validate:"max=128"`
}

func (r fundingSubmitRequest) toInput(submitter string) (funding.SubmitInput, error) {
	currency, err := enums.ParseCurrency(strings.TrimSpace(r.Currency))
	if err != nil {
		return funding.SubmitInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
	}
	date, err := time.Parse(dateLayout, strings.TrimSpace(r.RequestedDate))
	if err != nil {
		return funding.SubmitInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid requested_date")
	}
	return funding.SubmitInput{
		RegisterType:  validators.SanitizeString(r.RegisterType, 64),
		Amount:        r.Amount,
		Currency:      currency,
		Reason:        validators.SanitizeString(r.Reason, 500),
		RequestedDate: date,
		Submitter:     submitter,
	}, nil
}

// FundingSubmit opens a funding request at the initial stage.
func FundingSubmit(svc funding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "funding service unavailable"))
			return
		}

		var payload fundingSubmitRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(actorOf(r, payload.Submitter))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.Submit(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, fundingOutcomeView{
			Request:       newFundingView(outcome.Request),
			Notice:        outcome.Notice,
			Notifications: outcome.Notifications,
		})
	}
}

type fundingParseRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// FundingParse turns free text into a draft the requester confirms before submitting.
func FundingParse(parser FundingTextParser, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if parser == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "text parser unavailable"))
			return
		}

		var payload fundingParseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		draft, err := parser.ParseFundingText(r.Context(), payload.Text)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"amount":         draft.Amount,
			"currency":       draft.Currency,
			"reason":         draft.Reason,
			"requested_date": draft.Date.Format(dateLayout),
		})
	}
}

// FundingGet returns a funding request with its history. The reference is
// the catch-all remainder of the path: /api/v1/funding-requests/FUND/CP/2026/10/0001.
func FundingGet(svc funding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathReference(r, "*")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		req, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newFundingView(req))
	}
}

// FundingListByRegister lists a register's funding requests, newest first.
func FundingListByRegister(svc funding.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		registerID, err := validators.PathUUID(r, "registerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := funding.ListFilter{Limit: limit}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseFundingStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = status
		}

		list, err := svc.ListByRegister(r.Context(), registerID, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]*fundingView, 0, len(list))
		for i := range list {
			views = append(views, newFundingView(&list[i]))
		}
		responses.WriteSuccess(w, views)
	}
}
