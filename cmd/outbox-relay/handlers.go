package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/caisseflow/internal/notify"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	"github.com/angelmondragon/caisseflow/pkg/outbox/payloads"
	"github.com/angelmondragon/caisseflow/pkg/outbox/registry"
)

type snapshotSyncer interface {
	SyncLedgerSnapshot(ctx context.Context, registerID uuid.UUID, requestID string) (string, error)
}

func buildHandlers(dispatcher notify.Dispatcher, syncer snapshotSyncer) map[enums.OutboxEventType]eventHandler {
	handlers := map[enums.OutboxEventType]eventHandler{}
	if dispatcher != nil {
		handlers[enums.EventNotificationRequested] = notificationHandler(dispatcher)
	}
	if syncer != nil {
		handlers[enums.EventLedgerSyncRequested] = ledgerSyncHandler(syncer)
	}
	return handlers
}

// notificationHandler hands the intent to the dispatcher. Malformed intents go
// straight to the DLQ; publish failures are retried by the relay.
func notificationHandler(dispatcher notify.Dispatcher) eventHandler {
	return func(ctx context.Context, resolved *registry.ResolvedEvent) error {
		payload, ok := resolved.Payload.(*payloads.NotificationRequestedEvent)
		if !ok || payload == nil {
			return registry.NewNonRetryableError(fmt.Errorf("unexpected notification payload %T", resolved.Payload))
		}
		intent := notify.FromEvent(*payload)
		if err := intent.Validate(); err != nil {
			return registry.NewNonRetryableError(err)
		}
		return dispatcher.Notify(ctx, intent)
	}
}

// ledgerSyncHandler exports the register snapshot. The syncer already retries
// and raises the technical alert, so any failure is terminal here.
func ledgerSyncHandler(syncer snapshotSyncer) eventHandler {
	return func(ctx context.Context, resolved *registry.ResolvedEvent) error {
		payload, ok := resolved.Payload.(*payloads.LedgerSyncRequestedEvent)
		if !ok || payload == nil {
			return registry.NewNonRetryableError(fmt.Errorf("unexpected ledger sync payload %T", resolved.Payload))
		}
		registerID, err := uuid.Parse(payload.RegisterID)
		if err != nil {
			return registry.NewNonRetryableError(fmt.Errorf("invalid register_id %q: %w", payload.RegisterID, err))
		}
		if _, err := syncer.SyncLedgerSnapshot(ctx, registerID, payload.RequestID); err != nil {
			return registry.NewNonRetryableError(err)
		}
		return nil
	}
}
