package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/api/controllers"
	"github.com/angelmondragon/caisseflow/internal/actions"
	"github.com/angelmondragon/caisseflow/internal/entities"
	"github.com/angelmondragon/caisseflow/internal/funding"
	"github.com/angelmondragon/caisseflow/internal/ledger"
	"github.com/angelmondragon/caisseflow/internal/payments"
	"github.com/angelmondragon/caisseflow/internal/registers"
	"github.com/angelmondragon/caisseflow/internal/sequence"
	"github.com/angelmondragon/caisseflow/internal/textparse"
	"github.com/angelmondragon/caisseflow/pkg/config"
	"github.com/angelmondragon/caisseflow/pkg/db"
	"github.com/angelmondragon/caisseflow/pkg/db/dbtest"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/metrics"
	"github.com/angelmondragon/caisseflow/pkg/outbox"
	pkgredis "github.com/angelmondragon/caisseflow/pkg/redis"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type testServer struct {
	handler http.Handler
	conn    *gorm.DB
}

func newTestServer(t *testing.T, readiness map[string]controllers.Pinger) testServer {
	t.Helper()
	conn := dbtest.Open(t)
	tx := db.FromConn(conn)

	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	reg := prometheus.NewRegistry()
	wm := metrics.NewWorkflowMetrics(reg)
	seq := sequence.NewGenerator(conn, time.UTC, wm)
	ob := outbox.NewService(outbox.NewRepository(conn), nil)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), tx, wm)
	require.NoError(t, err)
	registerSvc, err := registers.NewService(registers.NewRepository(conn), tx, ledgerSvc, registers.NewTypeCache(raw, time.Minute), nil)
	require.NoError(t, err)
	entitySvc, err := entities.NewService(entities.NewRepository(conn), tx, seq, registerSvc, nil)
	require.NoError(t, err)
	fundingSvc, err := funding.NewService(funding.ServiceParams{
		Repo:      funding.NewRepository(conn),
		Tx:        tx,
		Sequence:  seq,
		Registers: registerSvc,
		Ledger:    ledgerSvc,
		Outbox:    ob,
		Metrics:   wm,
		Location:  time.UTC,
	})
	require.NoError(t, err)
	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repo:          payments.NewRepository(conn),
		Tx:            tx,
		Entities:      entitySvc,
		Ledger:        ledgerSvc,
		Sequence:      seq,
		Outbox:        ob,
		Metrics:       wm,
		FeeCapPercent: decimal.NewFromInt(3),
	})
	require.NoError(t, err)
	actionSvc, err := actions.NewService(actions.NewRepository(conn), nil)
	require.NoError(t, err)
	parser := textparse.New(textparse.Options{Timeout: time.Second})

	cfg := &config.Config{
		App:      config.AppConfig{Env: "test"},
		Eventing: config.EventingConfig{HTTPIdempotencyTTL: time.Hour},
	}
	handler := NewRouter(RouterParams{
		Config:      cfg,
		Idempotency: pkgredis.Wrap(raw),
		Gatherer:    reg,
		Readiness:   readiness,
		Registers:   registerSvc,
		Ledger:      ledgerSvc,
		Funding:     fundingSvc,
		Parser:      parser,
		Entities:    entitySvc,
		Payments:    paymentSvc,
		Actions:     actionSvc,
	})
	return testServer{handler: handler, conn: conn}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s testServer) do(t *testing.T, method, target, key string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "daf")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (s testServer) createRegister(t *testing.T) string {
	t.Helper()
	rec, env := s.do(t, http.MethodPost, "/api/v1/registers", "reg-1", map[string]any{
		"type":       "Caisse principale",
		"prefix":     "CP",
		"is_default": true,
		"opening":    map[string]string{"XOF": "100000"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var reg struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	return reg.ID
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, map[string]controllers.Pinger{"db": stubPinger{}})

	rec, _ := s.do(t, http.MethodGet, "/health/live", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", rec.Header().Get("X-Caisseflow-Env"))

	rec, _ = s.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessReportsFailingDependency(t *testing.T) {
	s := newTestServer(t, map[string]controllers.Pinger{
		"db":    stubPinger{},
		"redis": stubPinger{err: errors.New("connection refused")},
	})

	rec, env := s.do(t, http.MethodGet, "/health/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "DEPENDENCY_ERROR", env.Error.Code)
}

func TestRegisterAndFundingEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	registerID := s.createRegister(t)

	rec, env := s.do(t, http.MethodGet, "/api/v1/registers/"+registerID+"/balances", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balances struct {
		Balances []struct {
			Currency string          `json:"currency"`
			Balance  decimal.Decimal `json:"balance"`
		} `json:"balances"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &balances))
	found := false
	for _, b := range balances.Balances {
		if b.Currency == "XOF" {
			found = true
			require.True(t, b.Balance.Equal(decimal.NewFromInt(100000)))
		}
	}
	require.True(t, found)

	today := time.Now().UTC().Format("2006-01-02")
	rec, env = s.do(t, http.MethodPost, "/api/v1/funding-requests", "fund-1", map[string]any{
		"register_type":  "Caisse principale",
		"amount":         "20000",
		"currency":       "XOF",
		"reason":         "Réapprovisionnement",
		"requested_date": today,
		"submitter":      "awa",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var outcome struct {
		Request struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"request"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &outcome))
	require.True(t, strings.HasPrefix(outcome.Request.ID, "FUND/CP/"), outcome.Request.ID)
	require.Equal(t, "En attente", outcome.Request.Status)

	rec, env = s.do(t, http.MethodGet, "/api/v1/funding-requests/"+outcome.Request.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var fetched struct {
		ID      string `json:"id"`
		History []struct {
			Stage string `json:"stage"`
		} `json:"history"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &fetched))
	require.Equal(t, outcome.Request.ID, fetched.ID)
	require.Len(t, fetched.History, 1)
	require.Equal(t, "initial_request", fetched.History[0].Stage)

	rec, env = s.do(t, http.MethodGet, "/api/v1/registers/"+registerID+"/funding-requests?status=En%20attente", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var listed []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &listed))
	require.Len(t, listed, 1)

	rec, env = s.do(t, http.MethodGet, "/api/v1/registers/"+registerID+"/verify", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report ledger.VerifyReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	require.True(t, report.Balanced)
}

func TestFundingSubmitRejectsPastDate(t *testing.T) {
	s := newTestServer(t, nil)
	s.createRegister(t)

	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	rec, env := s.do(t, http.MethodPost, "/api/v1/funding-requests", "fund-past", map[string]any{
		"register_type":  "Caisse principale",
		"amount":         "20000",
		"currency":       "XOF",
		"reason":         "Réapprovisionnement",
		"requested_date": yesterday,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestFundingParseEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec, env := s.do(t, http.MethodPost, "/api/v1/funding-requests/parse", "", map[string]any{
		"text": "Besoin de 150 000 FCFA pour achat de fournitures le 20/10/2026",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var draft struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		Reason   string          `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &draft))
	require.True(t, draft.Amount.Equal(decimal.NewFromInt(150000)))
	require.Equal(t, "XOF", draft.Currency)
	require.Equal(t, "achat de fournitures", draft.Reason)
}

func TestOrderEndpointsWithEscapedReference(t *testing.T) {
	s := newTestServer(t, nil)
	s.createRegister(t)

	rec, env := s.do(t, http.MethodPost, "/api/v1/orders", "order-1", map[string]any{
		"description": "Fournitures de bureau",
		"currency":    "XOF",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var order struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &order))
	require.True(t, strings.HasPrefix(order.ID, "CMD/"), order.ID)

	escaped := url.PathEscape(order.ID)
	rec, env = s.do(t, http.MethodPost, "/api/v1/orders/"+escaped+"/proformas", "proforma-1", map[string]any{
		"supplier": "Papeterie du Plateau",
		"amount":   "15000",
		"currency": "XOF",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var proforma struct {
		ID      string `json:"id"`
		OrderID string `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &proforma))
	require.Equal(t, order.ID, proforma.OrderID)

	rec, _ = s.do(t, http.MethodPost, "/api/v1/proformas/"+proforma.ID+"/validate", "validate-1", map[string]any{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, env = s.do(t, http.MethodGet, "/api/v1/entities/summary?id="+url.QueryEscape(order.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary struct {
		Due       decimal.Decimal `json:"due"`
		Remaining decimal.Decimal `json:"remaining"`
		Status    string          `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	require.True(t, summary.Due.Equal(decimal.NewFromInt(15000)))
	require.True(t, summary.Remaining.Equal(decimal.NewFromInt(15000)))
	require.Equal(t, "En attente", summary.Status)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/orders/"+escaped, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestIdempotencyKeyReplaysCreate(t *testing.T) {
	s := newTestServer(t, nil)
	s.createRegister(t)

	body := map[string]any{"description": "Carburant", "currency": "XOF"}
	first, firstEnv := s.do(t, http.MethodPost, "/api/v1/orders", "same-key", body)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second, secondEnv := s.do(t, http.MethodPost, "/api/v1/orders", "same-key", body)
	require.Equal(t, http.StatusCreated, second.Code)
	require.JSONEq(t, string(firstEnv.Data), string(secondEnv.Data))

	var count int64
	require.NoError(t, s.conn.Model(&models.Order{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	rec, _ := s.do(t, http.MethodPost, "/api/v1/orders", "", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActionEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rec, env := s.do(t, http.MethodPost, "/api/v1/actions", "action-1", map[string]any{
		"type":      "approve",
		"target_id": "FUND/CP/2026/10/0001",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var ack struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ack))
	require.Equal(t, "pending", ack.Status)
	require.Equal(t, "/api/v1/actions/"+ack.JobID, rec.Header().Get("Location"))

	rec, env = s.do(t, http.MethodGet, "/api/v1/actions/"+ack.JobID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job struct {
		Actor    string `json:"actor"`
		TargetID string `json:"target_id"`
		Status   string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &job))
	require.Equal(t, "daf", job.Actor)
	require.Equal(t, "FUND/CP/2026/10/0001", job.TargetID)

	rec, env = s.do(t, http.MethodPost, "/api/v1/actions", "action-2", map[string]any{
		"type":      "reject",
		"target_id": "FUND/CP/2026/10/0001",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/v1/actions/not-a-uuid", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
