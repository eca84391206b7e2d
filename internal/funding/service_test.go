package funding

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/internal/ledger"
	"github.com/angelmondragon/caisseflow/internal/registers"
	"github.com/angelmondragon/caisseflow/internal/sequence"
	"github.com/angelmondragon/caisseflow/pkg/db"
	"github.com/angelmondragon/caisseflow/pkg/db/dbtest"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/outbox"
	"github.com/angelmondragon/caisseflow/pkg/types"
)

type fakeLookup struct {
	reg models.Register
}

func (f fakeLookup) LookupByType(_ context.Context, registerType string) (*registers.TypeRef, error) {
	if !strings.EqualFold(registerType, f.reg.Type) {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown register type %q", registerType)
	}
	return &registers.TypeRef{ID: f.reg.ID, Type: f.reg.Type, Prefix: f.reg.Prefix}, nil
}

var fixedNow = time.Date(2026, time.October, 19, 9, 30, 0, 0, time.UTC)

// tickingClock advances one second per read so history rows keep their order.
func tickingClock() func() time.Time {
	var (
		mu   sync.Mutex
		tick time.Duration
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick += time.Second
		return fixedNow.Add(tick)
	}
}

type fixture struct {
	svc  Service
	conn *gorm.DB
	reg  models.Register
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	reg := dbtest.SeedRegister(t, conn, "Caisse principale", "CP", map[enums.Currency]decimal.Decimal{
		enums.CurrencyXOF: decimal.NewFromInt(100000),
	})
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), db.FromConn(conn), nil)
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Tx:        db.FromConn(conn),
		Sequence:  sequence.NewGenerator(conn, time.UTC, nil),
		Registers: fakeLookup{reg: reg},
		Ledger:    ledgerSvc,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
		Location:  time.UTC,
		Now:       tickingClock(),
	})
	require.NoError(t, err)
	return fixture{svc: svc, conn: conn, reg: reg}
}

func (f fixture) submit(t *testing.T, amount int64) *models.FundingRequest {
	t.Helper()
	out, err := f.svc.Submit(context.Background(), SubmitInput{
		RegisterType:  "caisse principale",
		Amount:        decimal.NewFromInt(amount),
		Currency:      enums.CurrencyXOF,
		Reason:        "Réapprovisionnement",
		RequestedDate: fixedNow,
		Submitter:     "awa",
	})
	require.NoError(t, err)
	return out.Request
}

func (f fixture) events(t *testing.T, eventType enums.OutboxEventType) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, f.conn.Where("event_type = ?", eventType).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func TestSubmitMintsScopedNumberAndNotifiesApprover(t *testing.T) {
	f := newFixture(t)

	first := f.submit(t, 20000)
	second := f.submit(t, 5000)

	require.Equal(t, "FUND/CP/2026/10/0001", first.ID)
	require.Equal(t, "FUND/CP/2026/10/0002", second.ID)
	require.Equal(t, enums.FundingStatusPending, first.Status)
	require.Equal(t, enums.FundingStageInitial, first.Stage)
	require.False(t, first.BalanceApplied)

	notifications := f.events(t, enums.EventNotificationRequested)
	require.Len(t, notifications, 2)
	require.Len(t, f.events(t, enums.EventFundingTransitioned), 2)
	require.Len(t, f.events(t, enums.EventLedgerSyncRequested), 2)

	got, err := f.svc.Get(context.Background(), first.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	require.Equal(t, "awa", got.History[0].Actor)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	base := SubmitInput{
		RegisterType:  "Caisse principale",
		Amount:        decimal.NewFromInt(1000),
		Currency:      enums.CurrencyXOF,
		Reason:        "petty cash",
		RequestedDate: fixedNow,
		Submitter:     "awa",
	}

	cases := map[string]func(in *SubmitInput){
		"zero amount":       func(in *SubmitInput) { in.Amount = decimal.Zero },
		"negative amount":   func(in *SubmitInput) { in.Amount = decimal.NewFromInt(-5) },
		"three decimals":    func(in *SubmitInput) { in.Amount = decimal.RequireFromString("10.125") },
		"unknown currency":  func(in *SubmitInput) { in.Currency = "GBP" },
		"missing reason":    func(in *SubmitInput) { in.Reason = "  " },
		"missing submitter": func(in *SubmitInput) { in.Submitter = "" },
		"yesterday":         func(in *SubmitInput) { in.RequestedDate = fixedNow.AddDate(0, 0, -1) },
		"unknown register":  func(in *SubmitInput) { in.RegisterType = "Coffre" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, err := f.svc.Submit(context.Background(), in)
			require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	var count int64
	require.NoError(t, f.conn.Model(&models.FundingRequest{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSubmitAcceptsTodayAndTwoDecimals(t *testing.T) {
	f := newFixture(t)
	out, err := f.svc.Submit(context.Background(), SubmitInput{
		RegisterType:  "Caisse principale",
		Amount:        decimal.RequireFromString("1500.50"),
		Currency:      enums.CurrencyEUR,
		Reason:        "travel",
		RequestedDate: time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC),
		Submitter:     "awa",
	})
	require.NoError(t, err)
	require.True(t, out.Request.Amount.Equal(decimal.RequireFromString("1500.5")))
}

func TestFullWorkflowCreditsRegisterOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, 20000)

	out, err := f.svc.PreApprove(ctx, req.ID, "chef")
	require.NoError(t, err)
	require.Equal(t, enums.FundingStatusPreApproved, out.Request.Status)
	require.Len(t, out.Notifications, 1)
	require.Equal(t, enums.AudienceSubmitter, out.Notifications[0].Audience)

	out, err = f.svc.SubmitDetails(ctx, SubmitDetailsInput{RequestID: req.ID, Actor: "awa", Details: types.CashDetails()})
	require.NoError(t, err)
	require.Equal(t, enums.FundingStatusDetailsProvided, out.Request.Status)
	require.NotNil(t, out.Request.Method)
	require.Equal(t, enums.PaymentModeCash, *out.Request.Method)

	out, err = f.svc.Approve(ctx, req.ID, "daf")
	require.NoError(t, err)
	require.False(t, out.AlreadyFinalized)
	require.Equal(t, enums.FundingStatusValidated, out.Request.Status)
	require.True(t, out.Request.BalanceApplied)
	require.Len(t, out.Notifications, 2)
	require.True(t, dbtest.Balance(t, f.conn, f.reg.ID, enums.CurrencyXOF).Equal(decimal.NewFromInt(120000)))

	again, err := f.svc.Approve(ctx, req.ID, "daf")
	require.NoError(t, err)
	require.True(t, again.AlreadyFinalized)
	require.Contains(t, again.Notice, req.ID)
	require.True(t, dbtest.Balance(t, f.conn, f.reg.ID, enums.CurrencyXOF).Equal(decimal.NewFromInt(120000)))

	got, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 4)
	require.Equal(t, enums.FundingStageApproved, got.History[3].Stage)
}

func TestConcurrentApprovalCreditsAtMostOnce(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t, 30000)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		applied   int
		finalized int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.svc.Approve(context.Background(), req.ID, "daf")
			if err != nil {
				t.Errorf("approve: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if out.AlreadyFinalized {
				finalized++
			} else {
				applied++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, applied)
	require.Equal(t, workers-1, finalized)
	require.True(t, dbtest.Balance(t, f.conn, f.reg.ID, enums.CurrencyXOF).Equal(decimal.NewFromInt(130000)))

	var credits int64
	require.NoError(t, f.conn.Model(&models.RegisterTransaction{}).
		Where("register_id = ? AND type = ?", f.reg.ID, enums.TransactionTypeFundingCredit).
		Count(&credits).Error)
	require.EqualValues(t, 1, credits)
}

func TestRejectRequiresReasonAndFinalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, 10000)

	_, err := f.svc.Reject(ctx, req.ID, "daf", " ")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	out, err := f.svc.Reject(ctx, req.ID, "daf", "budget épuisé")
	require.NoError(t, err)
	require.Equal(t, enums.FundingStatusRejected, out.Request.Status)
	require.NotNil(t, out.Request.RejectionReason)
	require.Equal(t, "budget épuisé", *out.Request.RejectionReason)

	approve, err := f.svc.Approve(ctx, req.ID, "daf")
	require.NoError(t, err)
	require.True(t, approve.AlreadyFinalized)
	require.Equal(t, enums.FundingStatusRejected, approve.Request.Status)
	require.True(t, dbtest.Balance(t, f.conn, f.reg.ID, enums.CurrencyXOF).Equal(decimal.NewFromInt(100000)))
}

func TestReportProblemRevertsDetailsAndResolvesOnResubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, 10000)

	_, err := f.svc.PreApprove(ctx, req.ID, "chef")
	require.NoError(t, err)
	_, err = f.svc.SubmitDetails(ctx, SubmitDetailsInput{
		RequestID: req.ID,
		Actor:     "awa",
		Details: types.ChequeMethod(types.ChequeDetails{
			Number: "0012345",
			Bank:   "SGBCI",
			Date:   "2026-10-19",
			Payee:  "Caisse principale",
		}),
	})
	require.NoError(t, err)

	out, err := f.svc.ReportProblem(ctx, ReportProblemInput{RequestID: req.ID, Actor: "daf", Type: "cheque", Description: "signature manquante"})
	require.NoError(t, err)
	require.Equal(t, enums.FundingStageProblemReported, out.Request.Stage)
	require.Equal(t, enums.FundingStatusPreApproved, out.Request.Status)

	got, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, got.Issues, 1)
	require.Nil(t, got.Issues[0].ResolvedAt)

	_, err = f.svc.Approve(ctx, req.ID, "daf")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict), "got %v", err)

	_, err = f.svc.SubmitDetails(ctx, SubmitDetailsInput{RequestID: req.ID, Actor: "awa", Details: types.CashDetails()})
	require.NoError(t, err)
	got, err = f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Issues[0].ResolvedAt)
	require.Equal(t, enums.FundingStatusDetailsProvided, got.Status)
}

func TestReportProblemOnFinalizedRequestReturnsNotice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, 10000)
	_, err := f.svc.Approve(ctx, req.ID, "daf")
	require.NoError(t, err)

	out, err := f.svc.ReportProblem(ctx, ReportProblemInput{RequestID: req.ID, Actor: "daf", Type: "montant", Description: "trop élevé"})
	require.NoError(t, err)
	require.True(t, out.AlreadyFinalized)
	require.NotEmpty(t, out.Notice)

	var issues int64
	require.NoError(t, f.conn.Model(&models.FundingIssue{}).Count(&issues).Error)
	require.Zero(t, issues)
}

func TestSubmitDetailsRejectsNonFundingMethods(t *testing.T) {
	f := newFixture(t)
	req := f.submit(t, 10000)
	_, err := f.svc.PreApprove(context.Background(), req.ID, "chef")
	require.NoError(t, err)

	_, err = f.svc.SubmitDetails(context.Background(), SubmitDetailsInput{
		RequestID: req.ID,
		Actor:     "awa",
		Details:   types.TransferMethod(types.TransferDetails{Bank: "BICICI", AccountReference: "CI001"}),
	})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestSubmitDetailsAcceptedFromInitialStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, 10000)

	out, err := f.svc.SubmitDetails(ctx, SubmitDetailsInput{RequestID: req.ID, Actor: "awa", Details: types.CashDetails()})
	require.NoError(t, err)
	require.Equal(t, enums.FundingStageDetailsSubmitted, out.Request.Stage)
	require.Equal(t, enums.FundingStatusDetailsProvided, out.Request.Status)
	require.NotNil(t, out.Request.Method)
	require.Equal(t, enums.PaymentModeCash, *out.Request.Method)
}

func TestTransitionsFromWrongStageConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, 10000)

	_, err := f.svc.SubmitDetails(ctx, SubmitDetailsInput{RequestID: req.ID, Actor: "awa", Details: types.CashDetails()})
	require.NoError(t, err)

	_, err = f.svc.PreApprove(ctx, req.ID, "chef")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeStateConflict), "got %v", err)

	_, err = f.svc.PreApprove(ctx, "FUND/CP/2026/10/9999", "chef")
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestListByRegisterFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.submit(t, 1000)
	f.submit(t, 2000)
	_, err := f.svc.Approve(ctx, a.ID, "daf")
	require.NoError(t, err)

	all, err := f.svc.ListByRegister(ctx, f.reg.ID, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	validated, err := f.svc.ListByRegister(ctx, f.reg.ID, ListFilter{Status: enums.FundingStatusValidated})
	require.NoError(t, err)
	require.Len(t, validated, 1)
	require.Equal(t, a.ID, validated[0].ID)

	_, err = f.svc.ListByRegister(ctx, f.reg.ID, ListFilter{Status: "bogus"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}
