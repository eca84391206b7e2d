package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/caisseflow/internal/ledger"
	"github.com/angelmondragon/caisseflow/internal/notify"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
)

type stubLedger struct {
	limit int
}

func (s *stubLedger) Balances(_ context.Context, registerID uuid.UUID) ([]models.RegisterBalance, error) {
	return []models.RegisterBalance{
		{RegisterID: registerID, Currency: enums.CurrencyXOF, Balance: decimal.NewFromInt(105000)},
		{RegisterID: registerID, Currency: enums.CurrencyEUR, Balance: decimal.Zero},
	}, nil
}

func (s *stubLedger) Transactions(_ context.Context, registerID uuid.UUID, filter ledger.TransactionFilter) ([]models.RegisterTransaction, error) {
	s.limit = filter.Limit
	return []models.RegisterTransaction{{
		ID:           uuid.New(),
		RegisterID:   registerID,
		Type:         enums.TransactionTypeFundingCredit,
		Amount:       decimal.NewFromInt(20000),
		Currency:     enums.CurrencyXOF,
		BalanceAfter: decimal.NewFromInt(120000),
		RequestID:    "FUND/CP/2026/10/0001",
		Actor:        "daf",
	}}, nil
}

type flakyUploader struct {
	failures int
	calls    int
	object   string
	body     []byte
}

func (u *flakyUploader) Upload(_ context.Context, object, contentType string, data []byte) error {
	u.calls++
	if contentType != "application/json" {
		return errors.New("unexpected content type " + contentType)
	}
	if u.calls <= u.failures {
		return errors.New("503 backend unavailable")
	}
	u.object = object
	u.body = data
	return nil
}

type recordingAlerts struct {
	intents []notify.Intent
}

func (r *recordingAlerts) Notify(_ context.Context, intent notify.Intent) error {
	r.intents = append(r.intents, intent)
	return nil
}

var syncTime = time.Date(2026, time.October, 19, 14, 5, 9, 0, time.UTC)

func newTestSyncer(t *testing.T, up Uploader, alerts notify.Dispatcher, l *stubLedger) *Syncer {
	t.Helper()
	s, err := NewSyncer(SyncerParams{
		Ledger:           l,
		Uploader:         up,
		Alerts:           alerts,
		Prefix:           "ledger-snapshots/",
		Attempts:         3,
		TransactionLimit: 25,
		Now:              func() time.Time { return syncTime },
	})
	if err != nil {
		t.Fatalf("new syncer: %v", err)
	}
	return s
}

func TestSyncUploadsSnapshot(t *testing.T) {
	up := &flakyUploader{}
	l := &stubLedger{}
	s := newTestSyncer(t, up, nil, l)
	registerID := uuid.New()

	object, err := s.SyncLedgerSnapshot(context.Background(), registerID, "FUND/CP/2026/10/0001")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	want := "ledger-snapshots/" + registerID.String() + "/2026/10/20261019T140509Z-FUND-CP-2026-10-0001.json"
	if object != want || up.object != want {
		t.Fatalf("object = %q, want %q", object, want)
	}
	if l.limit != 25 {
		t.Fatalf("transaction limit = %d", l.limit)
	}

	var snap Snapshot
	if err := json.Unmarshal(up.body, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Balances) != 2 || !snap.Balances[0].Balance.Equal(decimal.NewFromInt(105000)) {
		t.Fatalf("unexpected balances %+v", snap.Balances)
	}
	if len(snap.Transactions) != 1 || snap.Transactions[0].RequestID != "FUND/CP/2026/10/0001" {
		t.Fatalf("unexpected transactions %+v", snap.Transactions)
	}
}

func TestSyncRetriesTransientFailures(t *testing.T) {
	up := &flakyUploader{failures: 2}
	alerts := &recordingAlerts{}
	s := newTestSyncer(t, up, alerts, &stubLedger{})

	if _, err := s.SyncLedgerSnapshot(context.Background(), uuid.New(), "PAY/2026/10/0002"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if up.calls != 3 {
		t.Fatalf("calls = %d, want 3", up.calls)
	}
	if len(alerts.intents) != 0 {
		t.Fatalf("unexpected alerts %+v", alerts.intents)
	}
}

func TestSyncGivesUpAfterThreeAttemptsAndAlerts(t *testing.T) {
	up := &flakyUploader{failures: 10}
	alerts := &recordingAlerts{}
	s := newTestSyncer(t, up, alerts, &stubLedger{})

	_, err := s.SyncLedgerSnapshot(context.Background(), uuid.New(), "FUND/CP/2026/10/0003")
	if !pkgerrors.Is(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if up.calls != 3 {
		t.Fatalf("calls = %d, want 3", up.calls)
	}
	if len(alerts.intents) != 1 {
		t.Fatalf("alerts = %+v", alerts.intents)
	}
	alert := alerts.intents[0]
	if alert.Audience != enums.AudienceTechnical || alert.EntityID != "FUND/CP/2026/10/0003" {
		t.Fatalf("unexpected alert %+v", alert)
	}
	if !strings.Contains(alert.Message, "503") {
		t.Fatalf("alert should carry the cause: %q", alert.Message)
	}
}

func TestObjectNameWithoutPrefixOrRequest(t *testing.T) {
	id := uuid.MustParse("7b1c2f4e-8d2a-4c55-9a51-4a7b3f1c9e10")
	got := ObjectName("", id, "", syncTime)
	want := "7b1c2f4e-8d2a-4c55-9a51-4a7b3f1c9e10/2026/10/20261019T140509Z-register.json"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
