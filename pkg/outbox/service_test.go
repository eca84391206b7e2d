package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/pkg/db/dbtest"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	"github.com/angelmondragon/caisseflow/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: enums.AggregateFundingRequest,
			AggregateID:   "FUND/CP/2026/10/0001",
			Actor:         &ActorRef{Name: "approver"},
			Data: payloads.NotificationRequestedEvent{
				Audience: enums.AudienceSubmitter,
				EntityID: "FUND/CP/2026/10/0001",
				NewState: string(enums.FundingStatusValidated),
			},
		})
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.Equal(t, "approver", envelope.Actor.Name)

	var data payloads.NotificationRequestedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, enums.AudienceSubmitter, data.Audience)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventLedgerSyncRequested,
			AggregateType: enums.AggregateRegister,
			AggregateID:   "reg-1",
			Data:          payloads.LedgerSyncRequestedEvent{RegisterID: "reg-1"},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	rows, err := repo.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmitRequiresTransactionAndAggregate(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventLedgerSyncRequested, AggregateID: "x"}))

	conn := dbtest.Open(t)
	require.Error(t, svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventLedgerSyncRequested}))
}

func TestMarkPublishedAndFailed(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.Emit(ctx, conn, DomainEvent{
		EventType:     enums.EventLedgerSyncRequested,
		AggregateType: enums.AggregateRegister,
		AggregateID:   "reg-1",
		Data:          payloads.LedgerSyncRequestedEvent{RegisterID: "reg-1"},
	}))
	rows, err := repo.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	require.NoError(t, repo.MarkFailed(ctx, rows[0].ID, errors.New("gcs down")))
	var failed models.OutboxEvent
	require.NoError(t, conn.First(&failed, "id = ?", rows[0].ID).Error)
	require.Equal(t, 1, failed.AttemptCount)
	require.Equal(t, "gcs down", *failed.LastError)

	require.NoError(t, repo.MarkPublished(ctx, rows[0].ID))
	rows, err = repo.FetchUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, rows)

	history, err := repo.ListForAggregate(ctx, enums.AggregateRegister, "reg-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestDLQInsertTruncatesMessage(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()

	long := make([]byte, maxDLQErrorLen+50)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	entry := models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventLedgerSyncRequested,
		AggregateType: enums.AggregateRegister,
		AggregateID:   "reg-1",
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
		AttemptCount:  3,
	}
	require.NoError(t, dlq.InsertTx(conn, entry))

	rows, err := dlq.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, *rows[0].ErrorMessage, maxDLQErrorLen)

	found, err := dlq.FindByEventID(ctx, rows[0].EventID)
	require.NoError(t, err)
	require.NotNil(t, found)
}

func TestFetchForPublishSkipsExhaustedRows(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, DomainEvent{
				EventType:     enums.EventLedgerSyncRequested,
				AggregateType: enums.AggregateRegister,
				AggregateID:   uuid.NewString(),
				Data:          payloads.LedgerSyncRequestedEvent{RequestID: "FUND/CP/2026/10/0001"},
			})
		}))
	}

	err := conn.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		require.NoError(t, repo.MarkFailedTx(tx, rows[0].ID, errors.New("transient")))
		return repo.MarkTerminalTx(tx, rows[1].ID, errors.New("fatal"), 3)
	})
	require.NoError(t, err)

	err = conn.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, 1, rows[0].AttemptCount)
		require.Equal(t, "transient", *rows[0].LastError)
		return nil
	})
	require.NoError(t, err)
}
