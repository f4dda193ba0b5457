// Package orderevents records the append-only audit trail of order mutations.
package orderevents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
)

// Service defines operations that record order events.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.OrderEvent, error)
	List(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error)
}

type service struct {
	repo Repository
}

// RecordInput captures the data an order event requires.
type RecordInput struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
	Type    enums.OrderEventType
	Payload any
}

// NewService wires an order event service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("order event repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.OrderEvent, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.Validation("order_id", "order id is required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor id is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.Validation("event_type", fmt.Sprintf("invalid order event type %q", input.Type))
	}

	var payload json.RawMessage
	if input.Payload != nil {
		raw, err := json.Marshal(input.Payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode order event payload")
		}
		payload = raw
	}

	event := &models.OrderEvent{
		OrderID:   input.OrderID,
		EventType: input.Type,
		ActorID:   input.ActorID,
		Payload:   payload,
	}
	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append order event")
	}
	return event, nil
}

func (s *service) List(ctx context.Context, orderID uuid.UUID) ([]models.OrderEvent, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.Validation("order_id", "order id is required")
	}
	events, err := s.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order events")
	}
	return events, nil
}
