package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/settlez-backend/internal/analytics/types"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported settlement event type")

// Writer delivers BigQuery rows produced by the handlers.
type Writer interface {
	InsertSettlement(ctx context.Context, row types.SettlementEventRow) error
	InsertDrawerFact(ctx context.Context, row types.DrawerFactRow) error
}

// Archiver stores drawer close reports. Object names are stable per session
// so redelivered events overwrite rather than duplicate.
type Archiver interface {
	Upload(ctx context.Context, object, contentType string, body []byte) error
}

// Handler receives an envelope plus its decoded payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

type handlerEntry struct {
	factory func() any
	handler Handler
}

type Params struct {
	Writer Writer
	// Archiver is optional; without it close reports are not archived.
	Archiver     Archiver
	ReportPrefix string
	Logger       *logger.Logger
	Overrides    map[enums.OutboxEventType]Handler
}

// Router dispatches settlement envelopes to the handler for their event type.
type Router struct {
	handlers map[enums.OutboxEventType]handlerEntry
	logg     *logger.Logger
}

func NewRouter(p Params) (*Router, error) {
	if p.Writer == nil {
		return nil, errors.New("writer is required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}

	orders := &orderHandler{writer: p.Writer, logg: p.Logger}
	drawer := &drawerHandler{writer: p.Writer, archiver: p.Archiver, prefix: p.ReportPrefix, logg: p.Logger}
	entries := map[enums.OutboxEventType]handlerEntry{
		enums.EventOrderCompleted: {
			factory: func() any { return &payloads.OrderCompletedEvent{} },
			handler: HandlerFunc(orders.completed),
		},
		enums.EventOrderCancelled: {
			factory: func() any { return &payloads.OrderCancelledEvent{} },
			handler: HandlerFunc(orders.cancelled),
		},
		enums.EventOrderRefunded: {
			factory: func() any { return &payloads.OrderRefundedEvent{} },
			handler: HandlerFunc(orders.refunded),
		},
		enums.EventCashDrawerOpened: {
			factory: func() any { return &payloads.CashDrawerOpenedEvent{} },
			handler: HandlerFunc(drawer.opened),
		},
		enums.EventCashDrawerClosed: {
			factory: func() any { return &payloads.CashDrawerClosedEvent{} },
			handler: HandlerFunc(drawer.closed),
		},
		enums.EventTerminalReconciled: {
			factory: func() any { return &payloads.TerminalReconciledEvent{} },
			handler: HandlerFunc(drawer.reconciled),
		},
	}

	for event, custom := range p.Overrides {
		entry, ok := entries[event]
		if !ok || custom == nil {
			continue
		}
		entry.handler = custom
		entries[event] = entry
	}

	return &Router{handlers: entries, logg: p.Logger}, nil
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, envelope types.Envelope, payload any) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	return fn(ctx, envelope, payload)
}

// Handle decodes the payload for the envelope's event type and dispatches it.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	entry, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	payload := entry.factory()
	if err := envelope.DecodePayload(payload); err != nil {
		return err
	}
	return entry.handler.Handle(ctx, envelope, payload)
}
