package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/enums"
)

// OrderEvent is an append-only audit entry. Persisted rows reject updates and deletes.
type OrderEvent struct {
	ID        uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID            `gorm:"column:order_id;type:uuid;not null;index"`
	EventType enums.OrderEventType `gorm:"column:event_type;type:order_event_type;not null"`
	ActorID   uuid.UUID            `gorm:"column:actor_id;type:uuid;not null"`
	Payload   json.RawMessage      `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (e *OrderEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

func (e *OrderEvent) BeforeUpdate(*gorm.DB) error { return ErrImmutableRecord }
func (e *OrderEvent) BeforeDelete(*gorm.DB) error { return ErrImmutableRecord }
