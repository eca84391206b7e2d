package docsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/angelmondragon/caisseflow/internal/ledger"
	"github.com/angelmondragon/caisseflow/internal/notify"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	pkgerrors "github.com/angelmondragon/caisseflow/pkg/errors"
	"github.com/angelmondragon/caisseflow/pkg/logger"
)

const (
	defaultAttempts         = 3
	defaultBackoff          = 2 * time.Second
	defaultTransactionLimit = 50
	contentTypeJSON         = "application/json"
)

// LedgerReader is the read side of the ledger used to build snapshots.
type LedgerReader interface {
	Balances(ctx context.Context, registerID uuid.UUID) ([]models.RegisterBalance, error)
	Transactions(ctx context.Context, registerID uuid.UUID, filter ledger.TransactionFilter) ([]models.RegisterTransaction, error)
}

// Uploader stores a document.
type Uploader interface {
	Upload(ctx context.Context, object, contentType string, data []byte) error
}

// SyncerParams groups the syncer dependencies.
type SyncerParams struct {
	Ledger           LedgerReader
	Uploader         Uploader
	Alerts           notify.Dispatcher
	Logger           *logger.Logger
	Prefix           string
	Attempts         int
	Backoff          time.Duration
	TransactionLimit int
	Now              func() time.Time
}

// Syncer exports register snapshots to object storage.
type Syncer struct {
	ledger   LedgerReader
	uploader Uploader
	alerts   notify.Dispatcher
	logg     *logger.Logger
	prefix   string
	attempts int
	backoff  time.Duration
	limit    int
	now      func() time.Time
}

// NewSyncer builds the snapshot exporter.
func NewSyncer(params SyncerParams) (*Syncer, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger reader required")
	}
	if params.Uploader == nil {
		return nil, fmt.Errorf("uploader required")
	}
	s := &Syncer{
		ledger:   params.Ledger,
		uploader: params.Uploader,
		alerts:   params.Alerts,
		logg:     params.Logger,
		prefix:   params.Prefix,
		attempts: params.Attempts,
		backoff:  params.Backoff,
		limit:    params.TransactionLimit,
		now:      params.Now,
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	if s.attempts <= 0 {
		s.attempts = defaultAttempts
	}
	if s.backoff < 0 {
		s.backoff = defaultBackoff
	}
	if s.limit <= 0 {
		s.limit = defaultTransactionLimit
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s, nil
}

// SyncLedgerSnapshot builds the snapshot of registerID and uploads it,
// retrying with a constant backoff. Committed ledger state is never touched;
// a persistent failure raises a technical alert and is returned to the caller.
func (s *Syncer) SyncLedgerSnapshot(ctx context.Context, registerID uuid.UUID, requestID string) (string, error) {
	at := s.now()
	balances, err := s.ledger.Balances(ctx, registerID)
	if err != nil {
		return "", err
	}
	txs, err := s.ledger.Transactions(ctx, registerID, ledger.TransactionFilter{Limit: s.limit})
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(buildSnapshot(registerID, requestID, at, balances, txs))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode snapshot")
	}
	object := ObjectName(s.prefix, registerID, requestID, at)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"register_id": registerID.String(),
		"entity_id":   requestID,
		"object":      object,
	})

	attempt := 0
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.backoff), uint64(s.attempts-1)),
		ctx,
	)
	err = backoff.RetryNotify(func() error {
		attempt++
		return s.uploader.Upload(ctx, object, contentTypeJSON, data)
	}, policy, func(err error, wait time.Duration) {
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err.Error(),
		}), "ledger snapshot upload failed, retrying")
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(logCtx, "attempts", attempt), "ledger snapshot upload failed", err)
		s.alert(ctx, registerID, requestID, err)
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("upload ledger snapshot after %d attempts", attempt))
	}

	s.logg.Info(logCtx, "ledger snapshot uploaded")
	return object, nil
}

func (s *Syncer) alert(ctx context.Context, registerID uuid.UUID, requestID string, cause error) {
	if s.alerts == nil {
		return
	}
	entity := requestID
	if entity == "" {
		entity = registerID.String()
	}
	err := s.alerts.Notify(ctx, notify.Intent{
		Audience: enums.AudienceTechnical,
		EntityID: entity,
		NewState: "ledger_sync_failed",
		Message:  fmt.Sprintf("snapshot of register %s not exported: %v", registerID, cause),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "technical alert failed", err)
	}
}
