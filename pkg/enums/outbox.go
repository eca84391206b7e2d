package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateRegister       OutboxAggregateType = "register"
	AggregateFundingRequest OutboxAggregateType = "funding_request"
	AggregateOrder          OutboxAggregateType = "order"
	AggregatePaymentRequest OutboxAggregateType = "payment_request"
	AggregateActionJob      OutboxAggregateType = "action_job"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRegister,
	AggregateFundingRequest,
	AggregateOrder,
	AggregatePaymentRequest,
	AggregateActionJob,
}

// IsValid reports whether the value matches the canonical aggregate types.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventNotificationRequested OutboxEventType = "notification_requested"
	EventLedgerSyncRequested   OutboxEventType = "ledger_sync_requested"
	EventFundingTransitioned   OutboxEventType = "funding_transitioned"
	EventPaymentRecorded       OutboxEventType = "payment_recorded"
	EventPaymentModified       OutboxEventType = "payment_modified"
)

var validOutboxEventTypes = []OutboxEventType{
	EventNotificationRequested,
	EventLedgerSyncRequested,
	EventFundingTransitioned,
	EventPaymentRecorded,
	EventPaymentModified,
}

// IsValid reports whether the value matches the canonical event types.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
