package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/caisseflow/pkg/logger"
)

const defaultPublishTimeout = 10 * time.Second

// Dispatcher delivers an intent to its audience.
type Dispatcher interface {
	Notify(ctx context.Context, intent Intent) error
}

type publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
}

// PubSubDispatcher hands intents to the chat delivery service through a topic.
type PubSubDispatcher struct {
	pub     publisher
	topic   string
	logg    *logger.Logger
	timeout time.Duration
}

// NewPubSubDispatcher builds a dispatcher publishing to topic.
func NewPubSubDispatcher(pub publisher, topic string, logg *logger.Logger) (*PubSubDispatcher, error) {
	if pub == nil {
		return nil, errors.New("publisher required")
	}
	if topic == "" {
		return nil, errors.New("notification topic required")
	}
	return &PubSubDispatcher{pub: pub, topic: topic, logg: logg, timeout: defaultPublishTimeout}, nil
}

// Notify publishes the intent as JSON with routing attributes.
func (d *PubSubDispatcher) Notify(ctx context.Context, intent Intent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	id, err := d.pub.Publish(publishCtx, d.topic, data, map[string]string{
		"audience":  string(intent.Audience),
		"entity_id": intent.EntityID,
		"new_state": intent.NewState,
	})
	if err != nil {
		return fmt.Errorf("publish %s notification for %s: %w", intent.Audience, intent.EntityID, err)
	}

	if d.logg != nil {
		ctx = d.logg.WithFields(ctx, map[string]any{
			"audience":   intent.Audience,
			"entity_id":  intent.EntityID,
			"new_state":  intent.NewState,
			"message_id": id,
		})
		d.logg.Debug(ctx, "notification published")
	}
	return nil
}
