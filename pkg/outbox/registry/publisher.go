package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/caisseflow/pkg/config"
	"github.com/angelmondragon/caisseflow/pkg/db/models"
	"github.com/angelmondragon/caisseflow/pkg/enums"
	"github.com/angelmondragon/caisseflow/pkg/outbox"
	"github.com/angelmondragon/caisseflow/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its allowed aggregates, topic and payload schema.
// An empty Topic means the event is consumed in-process by a relay handler.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateTypes []enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the relay should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("notification topic is required")
	}
	if cfg.EventsTopic == "" {
		return nil, fmt.Errorf("events topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventNotificationRequested,
			Topic:          cfg.NotificationTopic,
			PayloadFactory: func() interface{} { return &payloads.NotificationRequestedEvent{} },
		},
		{
			EventType:      enums.EventLedgerSyncRequested,
			AggregateTypes: []enums.OutboxAggregateType{enums.AggregateRegister},
			PayloadFactory: func() interface{} { return &payloads.LedgerSyncRequestedEvent{} },
		},
		{
			EventType:      enums.EventFundingTransitioned,
			AggregateTypes: []enums.OutboxAggregateType{enums.AggregateFundingRequest},
			Topic:          cfg.EventsTopic,
			PayloadFactory: func() interface{} { return &payloads.FundingTransitionedEvent{} },
		},
		{
			EventType:      enums.EventPaymentRecorded,
			AggregateTypes: []enums.OutboxAggregateType{enums.AggregateOrder, enums.AggregatePaymentRequest},
			Topic:          cfg.EventsTopic,
			PayloadFactory: func() interface{} { return &payloads.PaymentRecordedEvent{} },
		},
		{
			EventType:      enums.EventPaymentModified,
			AggregateTypes: []enums.OutboxAggregateType{enums.AggregateOrder, enums.AggregatePaymentRequest},
			Topic:          cfg.EventsTopic,
			PayloadFactory: func() interface{} { return &payloads.PaymentModifiedEvent{} },
		},
	} {
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if !desc.allows(event.AggregateType) {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate %s not allowed for %s", event.AggregateType, event.EventType))
	}
	if event.AggregateID == "" {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

func (d EventDescriptor) allows(aggregate enums.OutboxAggregateType) bool {
	if !aggregate.IsValid() {
		return false
	}
	if len(d.AggregateTypes) == 0 {
		return true
	}
	for _, candidate := range d.AggregateTypes {
		if candidate == aggregate {
			return true
		}
	}
	return false
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
