package notify

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/caisseflow/pkg/enums"
	"github.com/angelmondragon/caisseflow/pkg/outbox"
	"github.com/angelmondragon/caisseflow/pkg/outbox/payloads"
)

// Intent asks that an audience be told an entity reached a new state.
type Intent struct {
	Audience enums.Audience `json:"audience"`
	EntityID string         `json:"entity_id"`
	NewState string         `json:"new_state"`
	Message  string         `json:"message,omitempty"`
}

// Validate checks the intent is deliverable.
func (i Intent) Validate() error {
	if !i.Audience.IsValid() {
		return fmt.Errorf("invalid audience %q", i.Audience)
	}
	if strings.TrimSpace(i.EntityID) == "" {
		return fmt.Errorf("entity id is required")
	}
	if strings.TrimSpace(i.NewState) == "" {
		return fmt.Errorf("new state is required")
	}
	return nil
}

// Enqueue writes one notification_requested outbox event per intent inside tx.
func Enqueue(ctx context.Context, emitter outbox.Emitter, tx *gorm.DB, aggregate enums.OutboxAggregateType, actor string, intents ...Intent) error {
	for _, intent := range intents {
		if err := intent.Validate(); err != nil {
			return err
		}
		var ref *outbox.ActorRef
		if actor != "" {
			ref = &outbox.ActorRef{Name: actor}
		}
		if err := emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventNotificationRequested,
			AggregateType: aggregate,
			AggregateID:   intent.EntityID,
			Actor:         ref,
			Data: payloads.NotificationRequestedEvent{
				Audience: intent.Audience,
				EntityID: intent.EntityID,
				NewState: intent.NewState,
				Actor:    actor,
				Message:  intent.Message,
			},
		}); err != nil {
			return fmt.Errorf("enqueue %s notification: %w", intent.Audience, err)
		}
	}
	return nil
}

// FromEvent converts a relayed payload back into an Intent.
func FromEvent(event payloads.NotificationRequestedEvent) Intent {
	return Intent{
		Audience: event.Audience,
		EntityID: event.EntityID,
		NewState: event.NewState,
		Message:  event.Message,
	}
}
