package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlez-backend/pkg/enums"
)

// Envelope is a settlement event as received from the settlement topic.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	ActorID       string                    `json:"actor_id,omitempty"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Payload       json.RawMessage           `json:"payload"`
}

type keyed interface {
	AggregateKey() uuid.UUID
}

// DecodePayload unmarshals the event data into dst. A payload that names its
// aggregate must name the envelope's.
func (e Envelope) DecodePayload(dst any) error {
	trimmed := bytes.TrimSpace(e.Payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return fmt.Errorf("empty payload for %s", e.EventType)
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	if k, ok := dst.(keyed); ok && k.AggregateKey().String() != e.AggregateID {
		return fmt.Errorf("%s payload names aggregate %s, envelope has %q", e.EventType, k.AggregateKey(), e.AggregateID)
	}
	return nil
}
