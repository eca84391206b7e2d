package actions

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/internal/workflow"
	"github.com/angelmondragon/caisseflow/pkg/config"
	"github.com/angelmondragon/caisseflow/pkg/db"
	"github.com/angelmondragon/caisseflow/pkg/db/dbtest"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/outbox"
	"github.com/angelmondragon/caisseflow/pkg/outbox/payloads"
	"github.com/angelmondragon/caisseflow/pkg/types"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeDispatcher struct {
	mu     sync.Mutex
	err    error
	calls  int
	result *workflow.Result
}

func (f *fakeDispatcher) Dispatch(_ context.Context, action workflow.Action) (*workflow.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &workflow.Result{EntityID: action.TargetID, State: string(enums.FundingStatusValidated)}, nil
}

type harness struct {
	conn       *gorm.DB
	svc        Service
	processor  *Processor
	dispatcher *fakeDispatcher
	clock      *clock
}

func newHarness(t *testing.T, maxAttempts int) harness {
	t.Helper()
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	clk := &clock{now: time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)}
	svc, err := NewService(repo, nil)
	require.NoError(t, err)
	svc.(*service).now = clk.Now

	dispatcher := &fakeDispatcher{}
	processor, err := NewProcessor(ProcessorParams{
		Config: config.ActionsConfig{
			BatchSize:      10,
			MaxAttempts:    maxAttempts,
			InitialBackoff: time.Second,
			MaxBackoff:     time.Minute,
			StaleAfter:     5 * time.Minute,
		},
		Repo:       repo,
		DB:         db.FromConn(conn),
		Dispatcher: dispatcher,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		WorkerID:   "worker-test",
		Now:        clk.Now,
	})
	require.NoError(t, err)
	return harness{conn: conn, svc: svc, processor: processor, dispatcher: dispatcher, clock: clk}
}

func (h harness) enqueueApprove(t *testing.T) *models.ActionJob {
	t.Helper()
	job, err := h.svc.Enqueue(context.Background(), workflow.Action{
		Type:     enums.ActionApprove,
		TargetID: "FUND/CP/2026/10/0001",
		Actor:    "daf",
	})
	require.NoError(t, err)
	return job
}

func (h harness) reload(t *testing.T, job *models.ActionJob) *models.ActionJob {
	t.Helper()
	got, err := h.svc.Get(context.Background(), job.ID)
	require.NoError(t, err)
	return got
}

func (h harness) notifications(t *testing.T) []payloads.NotificationRequestedEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.conn.Where("event_type = ?", enums.EventNotificationRequested).Find(&rows).Error)
	out := make([]payloads.NotificationRequestedEvent, 0, len(rows))
	for _, row := range rows {
		var env outbox.PayloadEnvelope
		require.NoError(t, json.Unmarshal(row.Payload, &env))
		var evt payloads.NotificationRequestedEvent
		require.NoError(t, json.Unmarshal(env.Data, &evt))
		out = append(out, evt)
	}
	return out
}

func TestEnqueueValidatesAndDefaultsVersion(t *testing.T) {
	h := newHarness(t, 3)
	job := h.enqueueApprove(t)
	require.Equal(t, enums.ActionJobPending, job.Status)

	action, err := workflow.Decode(job.Payload)
	require.NoError(t, err)
	require.Equal(t, workflow.CurrentVersion, action.Version)

	_, err = h.svc.Enqueue(context.Background(), workflow.Action{Type: enums.ActionReject, TargetID: "FUND/CP/2026/10/0001", Actor: "daf"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestProcessBatchCompletesJob(t *testing.T) {
	h := newHarness(t, 3)
	job := h.enqueueApprove(t)

	n, err := h.processor.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got := h.reload(t, job)
	require.Equal(t, enums.ActionJobCompleted, got.Status)
	require.Equal(t, 1, got.AttemptCount)
	require.Nil(t, got.LockedBy)

	var result workflow.Result
	require.NoError(t, json.Unmarshal(got.Result, &result))
	require.Equal(t, "FUND/CP/2026/10/0001", result.EntityID)

	n, err = h.processor.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 1, h.dispatcher.calls)
}

func TestBusinessErrorFailsJobAndAlertsFinance(t *testing.T) {
	h := newHarness(t, 3)
	h.dispatcher.err = pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient register balance")
	job, err := h.svc.Enqueue(context.Background(), workflow.Action{
		Type:     enums.ActionRecordPayment,
		TargetID: "CMD/2026/10/0001",
		Actor:    "caissier",
		Details:  func() *types.MethodDetails { d := types.CashDetails(); return &d }(),
		Payment:  &workflow.PaymentContext{Amount: decimal.NewFromInt(10000)},
	})
	require.NoError(t, err)

	_, err = h.processor.ProcessBatch(context.Background())
	require.NoError(t, err)

	got := h.reload(t, job)
	require.Equal(t, enums.ActionJobFailed, got.Status)
	require.NotNil(t, got.LastError)

	audiences := map[enums.Audience]bool{}
	for _, n := range h.notifications(t) {
		audiences[n.Audience] = true
		require.Equal(t, "CMD/2026/10/0001", n.EntityID)
	}
	require.True(t, audiences[enums.AudienceSubmitter])
	require.True(t, audiences[enums.AudienceFinance])
	require.False(t, audiences[enums.AudienceTechnical])
}

func TestDependencyErrorRetriesThenDies(t *testing.T) {
	h := newHarness(t, 2)
	h.dispatcher.err = pkgerrors.New(pkgerrors.CodeDependency, "database unavailable")
	job := h.enqueueApprove(t)
	ctx := context.Background()

	_, err := h.processor.ProcessBatch(ctx)
	require.NoError(t, err)
	got := h.reload(t, job)
	require.Equal(t, enums.ActionJobPending, got.Status)
	require.Equal(t, 1, got.AttemptCount)
	require.True(t, got.NextAttemptAt.After(h.clock.Now()))

	n, err := h.processor.ProcessBatch(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "job must wait for its backoff")

	h.clock.Advance(time.Minute)
	_, err = h.processor.ProcessBatch(ctx)
	require.NoError(t, err)

	got = h.reload(t, job)
	require.Equal(t, enums.ActionJobDead, got.Status)
	require.Equal(t, 2, got.AttemptCount)
	require.Contains(t, *got.LastError, "max attempts")

	technical := 0
	for _, n := range h.notifications(t) {
		if n.Audience == enums.AudienceTechnical {
			technical++
		}
	}
	require.Equal(t, 1, technical)
}

func TestStaleProcessingJobsAreRequeued(t *testing.T) {
	h := newHarness(t, 3)
	job := h.enqueueApprove(t)
	locked := h.clock.Now()
	worker := "crashed"
	require.NoError(t, h.conn.Model(&models.ActionJob{}).Where("id = ?", job.ID).Updates(map[string]any{
		"status":        enums.ActionJobProcessing,
		"locked_by":     worker,
		"locked_at":     locked,
		"attempt_count": 1,
	}).Error)

	n, err := h.processor.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)

	h.clock.Advance(6 * time.Minute)
	n, err = h.processor.ProcessBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got := h.reload(t, job)
	require.Equal(t, enums.ActionJobCompleted, got.Status)
	require.Equal(t, 2, got.AttemptCount)
}

func TestRetryDelayGrowsAndIsCapped(t *testing.T) {
	h := newHarness(t, 10)
	first := h.processor.RetryDelay(1)
	require.GreaterOrEqual(t, first, 500*time.Millisecond)
	require.LessOrEqual(t, first, 1500*time.Millisecond)

	late := h.processor.RetryDelay(30)
	require.LessOrEqual(t, late, 90*time.Second)
	require.GreaterOrEqual(t, late, 30*time.Second)
}

func TestGetUnknownJob(t *testing.T) {
	h := newHarness(t, 3)
	_, err := h.svc.Get(context.Background(), uuid.New())
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}
