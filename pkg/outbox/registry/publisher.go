package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlez-backend/pkg/config"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/outbox"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/payloads"
)

// ErrUnroutable marks rows whose event type or aggregate has no descriptor.
var ErrUnroutable = errors.New("outbox event has no route")

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// keyed payloads carry the id of the aggregate they describe.
type keyed interface {
	AggregateKey() uuid.UUID
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func route[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry routes every settlement event to the configured topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.SettlementTopic)
	if topic == "" {
		return nil, errors.New("settlement topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, desc := range []EventDescriptor{
		route[payloads.OrderCompletedEvent](enums.EventOrderCompleted, enums.AggregateOrder),
		route[payloads.OrderCancelledEvent](enums.EventOrderCancelled, enums.AggregateOrder),
		route[payloads.OrderRefundedEvent](enums.EventOrderRefunded, enums.AggregateRefund),
		route[payloads.CashDrawerOpenedEvent](enums.EventCashDrawerOpened, enums.AggregateCashDrawerSession),
		route[payloads.CashDrawerClosedEvent](enums.EventCashDrawerClosed, enums.AggregateCashDrawerSession),
		route[payloads.TerminalReconciledEvent](enums.EventTerminalReconciled, enums.AggregateCashDrawerSession),
	} {
		desc.Topic = topic
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// EventTypes lists the routed event types in a stable order.
func (r *EventRegistry) EventTypes() []enums.OutboxEventType {
	return slices.Sorted(maps.Keys(r.entries))
}

// Resolve validates the row and decodes its typed payload. Every failure is
// non-retryable: the row will not change between attempts.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("%w: unsupported event type %s", ErrUnroutable, event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%w: aggregate mismatch: expected %s got %s", ErrUnroutable, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	if k, ok := payload.(keyed); ok && k.AggregateKey() != event.AggregateID {
		return nil, NewNonRetryableError(fmt.Errorf("%s payload names aggregate %s, row has %s", event.EventType, k.AggregateKey(), event.AggregateID))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
