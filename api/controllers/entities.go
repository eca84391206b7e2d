package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/api/responses"
	"github.com/angelmondragon/caisseflow/api/validators"
	"github.com/angelmondragon/caisseflow/internal/entities"
	"github.com/angelmondragon/caisseflow/internal/payments"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/logger"
)

type orderCreateRequest struct {
	Description string `json:"description" validate:"required,max=500"`
	Currency    string `json:"currency" validate:"required"`
	RegisterID  string `json:"register_id" validate:"omitempty,uuid"`
	Actor       string `json:"actor" validate:"max=128"`
}

func OrderCreate(svc entities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload orderCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		currency, err := enums.ParseCurrency(strings.TrimSpace(payload.Currency))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}
		registerID, err := optionalUUID(payload.RegisterID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.CreateOrder(r.Context(), entities.CreateOrderInput{
			Description: validators.SanitizeString(payload.Description, 500),
			Currency:    currency,
			RegisterID:  registerID,
			Actor:       actorOf(r, payload.Actor),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderView(order))
	}
}

type proformaAddRequest struct {
	Supplier string          `json:"supplier" validate:"required,max=200"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" validate:"required"`
	Actor    string          `json:"actor" validate:"max=128"`
}

// ProformaAdd attaches a supplier quote to an order. The order reference is
// path-escaped: /api/v1/orders/CMD%2F2026%2F10%2F0001/proformas.
func ProformaAdd(svc entities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathReference(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload proformaAddRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		currency, err := enums.ParseCurrency(strings.TrimSpace(payload.Currency))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}

		proforma, err := svc.AddProforma(r.Context(), entities.AddProformaInput{
			OrderID:  orderID,
			Supplier: validators.SanitizeString(payload.Supplier, 200),
			Amount:   payload.Amount,
			Currency: currency,
			Actor:    actorOf(r, payload.Actor),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newProformaView(*proforma))
	}
}

type proformaValidateRequest struct {
	Actor string `json:"actor" validate:"max=128"`
}

// ProformaValidate makes the proforma the amount due of its order.
func ProformaValidate(svc entities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		proformaID, err := validators.PathUUID(r, "proformaId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload proformaValidateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.ValidateProforma(r.Context(), proformaID, actorOf(r, payload.Actor))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

type paymentRequestCreateRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required"`
	Beneficiary string          `json:"beneficiary" validate:"required,max=200"`
	Reason      string          `json:"reason" validate:"required,max=500"`
	RegisterID  string          `json:"register_id" validate:"omitempty,uuid"`
	Actor       string          `json:"actor" validate:"max=128"`
}

func PaymentRequestCreate(svc entities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload paymentRequestCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		currency, err := enums.ParseCurrency(strings.TrimSpace(payload.Currency))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}
		registerID, err := optionalUUID(payload.RegisterID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		req, err := svc.CreatePaymentRequest(r.Context(), entities.CreatePaymentRequestInput{
			Amount:      payload.Amount,
			Currency:    currency,
			Beneficiary: validators.SanitizeString(payload.Beneficiary, 200),
			Reason:      validators.SanitizeString(payload.Reason, 500),
			RegisterID:  registerID,
			Actor:       actorOf(r, payload.Actor),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentRequestView(req))
	}
}

// EntitySummary reports due, paid and remaining amounts for ?id=CMD/… or ?id=PAY/….
func EntitySummary(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "id query parameter required").WithDetails(map[string]any{"field": "id"}))
			return
		}
		summary, err := svc.Summary(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list := make([]paymentView, 0, len(summary.Payments))
		for _, p := range summary.Payments {
			list = append(list, newPaymentView(p))
		}
		responses.WriteSuccess(w, map[string]any{
			"entity_id":    summary.EntityID,
			"kind":         summary.Kind,
			"currency":     summary.Currency,
			"due":          summary.Due,
			"paid":         summary.Paid,
			"remaining":    summary.Remaining,
			"status":       summary.Status,
			"payment_done": summary.PaymentDone,
			"payments":     list,
		})
	}
}

func optionalUUID(raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid register_id")
	}
	return &id, nil
}

// OrderGet returns an order with its proformas.
func OrderGet(svc entities.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathReference(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}
