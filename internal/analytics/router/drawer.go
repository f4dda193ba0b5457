package router

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/angelmondragon/settlez-backend/internal/analytics/types"
	analyticswriter "github.com/angelmondragon/settlez-backend/internal/analytics/writer"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/payloads"
)

const defaultReportPrefix = "drawer-reports"

type drawerHandler struct {
	writer   Writer
	archiver Archiver
	prefix   string
	logg     *logger.Logger
}

// closeReport is the archived end-of-shift summary for one drawer session.
type closeReport struct {
	EventID              string    `json:"event_id"`
	SessionID            string    `json:"session_id"`
	ClosedBy             string    `json:"closed_by"`
	ClosedAt             time.Time `json:"closed_at"`
	OpeningTotalCents    int64     `json:"opening_total_cents"`
	ClosingTotalCents    int64     `json:"closing_total_cents"`
	ExpectedClosingCents int64     `json:"expected_closing_cents"`
	DiscrepancyCents     int64     `json:"discrepancy_cents"`
}

func (h *drawerHandler) opened(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.CashDrawerOpenedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	row, err := baseDrawerRow(envelope, event.SessionID.String(), event)
	if err != nil {
		return err
	}
	row.OpeningCents = types.Int64(event.OpeningTotalCents)
	if !event.OpenedAt.IsZero() {
		row.OccurredAt = event.OpenedAt.UTC()
	}
	return h.insert(ctx, row)
}

func (h *drawerHandler) closed(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.CashDrawerClosedEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	row, err := baseDrawerRow(envelope, event.SessionID.String(), event)
	if err != nil {
		return err
	}
	if !event.ClosedAt.IsZero() {
		row.OccurredAt = event.ClosedAt.UTC()
	}
	row.OpeningCents = types.Int64(event.OpeningTotalCents)
	row.ClosingCents = types.Int64(event.ClosingTotalCents)
	row.ExpectedClosingCents = types.Int64(event.ExpectedClosingCents)
	row.DiscrepancyCents = types.Int64(event.DiscrepancyCents)

	if h.archiver != nil {
		object, err := h.archive(ctx, envelope, event, row.OccurredAt)
		if err != nil {
			return err
		}
		row.ReportObject = types.String(object)
	}
	return h.insert(ctx, row)
}

func (h *drawerHandler) reconciled(ctx context.Context, envelope types.Envelope, payload any) error {
	event, ok := payload.(*payloads.TerminalReconciledEvent)
	if !ok {
		return fmt.Errorf("invalid payload for %s", envelope.EventType)
	}
	row, err := baseDrawerRow(envelope, event.SessionID.String(), event)
	if err != nil {
		return err
	}
	row.DebitDiscrepancyCents = types.Int64(event.DebitDiscrepancyCents)
	row.CreditDiscrepancyCents = types.Int64(event.CreditDiscrepancyCents)
	return h.insert(ctx, row)
}

func (h *drawerHandler) archive(ctx context.Context, envelope types.Envelope, event *payloads.CashDrawerClosedEvent, closedAt time.Time) (string, error) {
	body, err := json.Marshal(closeReport{
		EventID:              envelope.EventID,
		SessionID:            event.SessionID.String(),
		ClosedBy:             event.ClosedBy.String(),
		ClosedAt:             closedAt,
		OpeningTotalCents:    event.OpeningTotalCents,
		ClosingTotalCents:    event.ClosingTotalCents,
		ExpectedClosingCents: event.ExpectedClosingCents,
		DiscrepancyCents:     event.DiscrepancyCents,
	})
	if err != nil {
		return "", fmt.Errorf("encode close report: %w", err)
	}
	object := reportObject(h.prefix, closedAt, event.SessionID.String())
	logCtx := h.logg.WithField(ctx, "report_object", object)
	if err := h.archiver.Upload(logCtx, object, "application/json", body); err != nil {
		h.logg.Error(logCtx, "analytics.report_upload_failed", err)
		return "", err
	}
	h.logg.Info(logCtx, "analytics.report_archived")
	return object, nil
}

// reportObject names the archived report <prefix>/YYYY/MM/DD/<session>.json.
func reportObject(prefix string, closedAt time.Time, sessionID string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = defaultReportPrefix
	}
	return path.Join(prefix, closedAt.UTC().Format("2006/01/02"), sessionID+".json")
}

func (h *drawerHandler) insert(ctx context.Context, row types.DrawerFactRow) error {
	logCtx := h.logg.WithField(ctx, "session_id", row.SessionID)
	if err := h.writer.InsertDrawerFact(logCtx, row); err != nil {
		h.logg.Error(logCtx, "analytics.drawer_insert_failed", err)
		return err
	}
	h.logg.Info(logCtx, "analytics.drawer_row_written")
	return nil
}

func baseDrawerRow(envelope types.Envelope, sessionID string, payload any) (types.DrawerFactRow, error) {
	payloadJSON, err := analyticswriter.EncodeJSON(payload)
	if err != nil {
		return types.DrawerFactRow{}, fmt.Errorf("encode payload json: %w", err)
	}
	return types.DrawerFactRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt.UTC(),
		SessionID:  sessionID,
		ActorID:    types.String(envelope.ActorID),
		Payload:    payloadJSON,
	}, nil
}
