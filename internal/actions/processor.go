package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/internal/notify"
	"github.com/angelmondragon/caisseflow/internal/workflow"
	"github.com/angelmondragon/caisseflow/pkg/config"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/logger"
	"github.com/angelmondragon/caisseflow/pkg/metrics"
	"github.com/angelmondragon/caisseflow/pkg/outbox"
)

const (
	jobName             = "action_processor"
	defaultBatchSize    = 20
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 5
	defaultStaleAfter   = 5 * time.Minute
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Dispatcher executes a validated action.
type Dispatcher interface {
	Dispatch(ctx context.Context, action workflow.Action) (*workflow.Result, error)
}

// ProcessorParams groups the processor dependencies.
type ProcessorParams struct {
	Config     config.ActionsConfig
	Repo       Repository
	DB         txRunner
	Dispatcher Dispatcher
	Outbox     outbox.Emitter
	Logger     *logger.Logger
	Metrics    *metrics.JobMetrics
	WorkerID   string
	Now        func() time.Time
}

// Processor claims due action jobs and dispatches them.
type Processor struct {
	repo         Repository
	db           txRunner
	dispatcher   Dispatcher
	outbox       outbox.Emitter
	logg         *logger.Logger
	metrics      *metrics.JobMetrics
	worker       string
	batchSize    int
	pollInterval time.Duration
	maxAttempts  int
	staleAfter   time.Duration
	initialDelay time.Duration
	maxDelay     time.Duration
	now          func() time.Time
}

// NewProcessor builds the action processor.
func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Repo == nil {
		return nil, errors.New("action repository is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	cfg := params.Config
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	stale := cfg.StaleAfter
	if stale <= 0 {
		stale = defaultStaleAfter
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	maxDelay := cfg.MaxBackoff
	if maxDelay < initial {
		maxDelay = initial
	}
	worker := params.WorkerID
	if worker == "" {
		host, _ := os.Hostname()
		worker = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Processor{
		repo:         params.Repo,
		db:           params.DB,
		dispatcher:   params.Dispatcher,
		outbox:       params.Outbox,
		logg:         logg,
		metrics:      params.Metrics,
		worker:       worker,
		batchSize:    batch,
		pollInterval: poll,
		maxAttempts:  maxAttempts,
		staleAfter:   stale,
		initialDelay: initial,
		maxDelay:     maxDelay,
		now:          now,
	}, nil
}

// Run polls for due jobs until ctx is canceled.
func (p *Processor) Run(ctx context.Context) error {
	p.logg.Info(p.logg.WithField(ctx, "worker", p.worker), "action processor started")
	for {
		select {
		case <-ctx.Done():
			p.logg.Info(ctx, "action processor context canceled")
			return ctx.Err()
		default:
		}

		processed, err := p.ProcessBatch(ctx)
		if err != nil {
			p.logg.Error(ctx, "action processor batch error", err)
		}
		if processed >= p.batchSize {
			continue
		}
		if err := sleep(ctx, p.pollInterval); err != nil {
			return err
		}
	}
}

// ProcessBatch requeues stale jobs, claims a batch and processes it. It
// returns the number of jobs claimed.
func (p *Processor) ProcessBatch(ctx context.Context) (int, error) {
	start := time.Now()
	now := p.now()
	if requeued, err := p.repo.RequeueStale(ctx, now.Add(-p.staleAfter), now); err != nil {
		p.metrics.IncFailure(jobName)
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	} else if requeued > 0 {
		p.logg.Warn(p.logg.WithField(ctx, "requeued", requeued), "stale action jobs requeued")
	}

	var jobs []models.ActionJob
	err := p.db.WithTx(ctx, func(tx *gorm.DB) error {
		claimed, err := p.repo.ClaimDue(ctx, tx, p.worker, p.batchSize, now)
		jobs = claimed
		return err
	})
	if err != nil {
		p.metrics.IncFailure(jobName)
		return 0, fmt.Errorf("claim action jobs: %w", err)
	}

	var errs error
	for _, job := range jobs {
		if err := p.process(ctx, job); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	p.metrics.ObserveDuration(jobName, time.Since(start))
	if errs != nil {
		p.metrics.IncFailure(jobName)
		return len(jobs), errs
	}
	if len(jobs) > 0 {
		p.metrics.IncSuccess(jobName)
	}
	return len(jobs), nil
}

func (p *Processor) process(ctx context.Context, job models.ActionJob) error {
	ctx = p.logg.WithJobID(ctx, job.ID.String())
	ctx = p.logg.WithFields(ctx, map[string]any{
		"action":        string(job.ActionType),
		"entity_id":     job.TargetID,
		"attempt_count": job.AttemptCount,
	})

	action, err := workflow.Decode(job.Payload)
	if err != nil {
		return p.finishFailed(ctx, job, enums.ActionJobFailed, err)
	}

	result, err := p.dispatcher.Dispatch(ctx, action)
	if err == nil {
		payload, encErr := json.Marshal(result)
		if encErr != nil {
			return p.finishFailed(ctx, job, enums.ActionJobFailed, encErr)
		}
		if err := p.db.WithTx(ctx, func(tx *gorm.DB) error {
			return p.repo.Complete(tx, job.ID, payload, p.now())
		}); err != nil {
			return fmt.Errorf("complete job %s: %w", job.ID, err)
		}
		p.logg.Info(ctx, "action completed")
		return nil
	}

	if !pkgerrors.IsRetryable(err) {
		return p.finishFailed(ctx, job, enums.ActionJobFailed, err)
	}
	if job.AttemptCount >= p.maxAttempts {
		return p.finishFailed(ctx, job, enums.ActionJobDead, fmt.Errorf("max attempts reached: %w", err))
	}

	next := p.now().Add(p.RetryDelay(job.AttemptCount))
	if dbErr := p.db.WithTx(ctx, func(tx *gorm.DB) error {
		return p.repo.Retry(tx, job.ID, err, next, p.now())
	}); dbErr != nil {
		return fmt.Errorf("reschedule job %s: %w", job.ID, dbErr)
	}
	logCtx := p.logg.WithField(ctx, "next_attempt_at", next.Format(time.RFC3339))
	p.logg.Warn(p.logg.WithField(logCtx, "error", err.Error()), "action failed, retrying")
	return nil
}

// finishFailed records a terminal outcome and queues the alerts for it.
func (p *Processor) finishFailed(ctx context.Context, job models.ActionJob, status enums.ActionJobStatus, cause error) error {
	intents := []notify.Intent{{
		Audience: enums.AudienceSubmitter,
		EntityID: job.TargetID,
		NewState: string(status),
		Message:  fmt.Sprintf("%s failed: %s", job.ActionType, cause.Error()),
	}}
	switch {
	case status == enums.ActionJobDead:
		intents = append(intents, notify.Intent{
			Audience: enums.AudienceTechnical,
			EntityID: job.TargetID,
			NewState: string(status),
			Message:  fmt.Sprintf("job %s dead after %d attempts: %s", job.ID, job.AttemptCount, cause.Error()),
		})
	case isMoneyError(cause):
		intents = append(intents, notify.Intent{
			Audience: enums.AudienceFinance,
			EntityID: job.TargetID,
			NewState: string(status),
			Message:  cause.Error(),
		})
	}

	if err := p.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := p.repo.Fail(tx, job.ID, status, cause, p.now()); err != nil {
			return err
		}
		return notify.Enqueue(ctx, p.outbox, tx, enums.AggregateActionJob, job.Actor, intents...)
	}); err != nil {
		return fmt.Errorf("mark job %s %s: %w", job.ID, status, err)
	}

	logCtx := p.logg.WithField(ctx, "status", string(status))
	if status == enums.ActionJobDead {
		p.logg.Error(logCtx, "action dead", cause)
		return nil
	}
	p.logg.Warn(p.logg.WithField(logCtx, "error", cause.Error()), "action rejected")
	return nil
}

// RetryDelay is the exponential delay before the next attempt.
func (p *Processor) RetryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.initialDelay),
		backoff.WithMaxInterval(p.maxDelay),
		backoff.WithMaxElapsedTime(0),
	)
	delay := p.initialDelay
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func isMoneyError(err error) bool {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeInsufficientFunds, pkgerrors.CodeAmountExceeded:
		return true
	default:
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
