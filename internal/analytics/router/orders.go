package router

import (
	"context"
	"fmt"

	"github.com/angelmondragon/settlez-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/settlez-backend/internal/analytics/writer"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/money"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/payloads"
)

type orderHandler struct {
	writer Writer
	logg   *logger.Logger
}

func (h *orderHandler) completed(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderCompletedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	row, err := baseSettlementRow(envelope, event)
	if err != nil {
		return err
	}
	tenders, err := analyticswriter.EncodeJSON(event.Payments)
	if err != nil {
		return fmt.Errorf("encode tenders: %w", err)
	}
	row.OrderID = event.OrderID.String()
	row.OrderNumber = types.String(event.OrderNumber)
	row.CustomerID = types.UUID(event.CustomerID)
	row.SessionID = types.UUID(event.CashDrawerSessionID)
	row.SubtotalCents = types.Cents(event.Subtotal)
	row.DiscountCents = types.Cents(event.DiscountTotal)
	row.TaxCents = types.Cents(event.TaxTotal)
	row.GrossCents = types.Cents(event.Total)
	row.NetCents = money.ToCents(event.Total)
	row.Tenders = tenders
	if !event.CompletedAt.IsZero() {
		row.OccurredAt = event.CompletedAt.UTC()
	}
	return h.insert(ctx, row)
}

func (h *orderHandler) cancelled(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderCancelledEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	row, err := baseSettlementRow(envelope, event)
	if err != nil {
		return err
	}
	row.OrderID = event.OrderID.String()
	row.OrderNumber = types.String(event.OrderNumber)
	if !event.CancelledAt.IsZero() {
		row.OccurredAt = event.CancelledAt.UTC()
	}
	return h.insert(ctx, row)
}

// refunded books the refund total as negative net revenue against the
// original order.
func (h *orderHandler) refunded(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.OrderRefundedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	row, err := baseSettlementRow(envelope, event)
	if err != nil {
		return err
	}
	cents := money.ToCents(event.Total)
	row.OrderID = event.OrderID.String()
	row.OrderNumber = types.String(event.OrderNumber)
	row.RefundID = types.String(event.RefundID.String())
	row.RefundNumber = types.String(event.RefundNumber)
	row.RefundCents = types.Int64(cents)
	row.NetCents = -cents
	if !event.ProcessedAt.IsZero() {
		row.OccurredAt = event.ProcessedAt.UTC()
	}
	return h.insert(ctx, row)
}

func (h *orderHandler) insert(ctx context.Context, row types.SettlementEventRow) error {
	logCtx := h.logg.WithFields(ctx, map[string]any{
		"order_id":  row.OrderID,
		"net_cents": row.NetCents,
	})
	if err := h.writer.InsertSettlement(logCtx, row); err != nil {
		h.logg.Error(logCtx, "analytics.settlement_insert_failed", err)
		return err
	}
	h.logg.Info(logCtx, "analytics.settlement_row_written")
	return nil
}

func baseSettlementRow(envelope types.Envelope, payload any) (types.SettlementEventRow, error) {
	payloadJSON, err := analyticswriter.EncodeJSON(payload)
	if err != nil {
		return types.SettlementEventRow{}, fmt.Errorf("encode payload json: %w", err)
	}
	return types.SettlementEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt.UTC(),
		ActorID:    types.String(envelope.ActorID),
		Payload:    payloadJSON,
	}, nil
}
