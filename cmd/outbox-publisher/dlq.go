package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/pagination"
)

type dlqAdmin interface {
	List(ctx context.Context, reason enums.OutboxDLQErrorReason, params pagination.Params) ([]models.OutboxDLQ, string, error)
	CountByReason(ctx context.Context) (map[enums.OutboxDLQErrorReason]int64, error)
	RequeueTx(tx *gorm.DB, eventID uuid.UUID) error
}

type dlqCommand struct {
	list    bool
	reason  string
	cursor  string
	limit   int
	requeue string
}

func (c dlqCommand) requested() bool {
	return c.list || strings.TrimSpace(c.requeue) != ""
}

type dlqLine struct {
	EventID      uuid.UUID                  `json:"event_id"`
	EventType    enums.OutboxEventType      `json:"event_type"`
	AggregateID  uuid.UUID                  `json:"aggregate_id"`
	Reason       enums.OutboxDLQErrorReason `json:"reason"`
	Message      string                     `json:"message,omitempty"`
	AttemptCount int                        `json:"attempt_count"`
	FailedAt     string                     `json:"failed_at"`
}

// runDLQCommand handles the operator flags and writes JSON lines to out.
func runDLQCommand(ctx context.Context, logg *logger.Logger, db dbClient, admin dlqAdmin, cmd dlqCommand, out io.Writer) error {
	if raw := strings.TrimSpace(cmd.requeue); raw != "" {
		eventID, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid event id %q: %w", raw, err)
		}
		if err := db.WithTx(ctx, func(tx *gorm.DB) error {
			return admin.RequeueTx(tx, eventID)
		}); err != nil {
			return fmt.Errorf("requeue %s: %w", eventID, err)
		}
		logg.Info(logg.WithField(ctx, "event_id", eventID.String()), "outbox.dlq_requeued")
		return nil
	}

	var reason enums.OutboxDLQErrorReason
	if strings.TrimSpace(cmd.reason) != "" {
		parsed, err := enums.ParseOutboxDLQErrorReason(cmd.reason)
		if err != nil {
			return err
		}
		reason = parsed
	}

	counts, err := admin.CountByReason(ctx)
	if err != nil {
		return fmt.Errorf("count dlq: %w", err)
	}
	summary := map[string]any{}
	for r, n := range counts {
		summary[string(r)] = n
	}
	logg.Info(logg.WithField(ctx, "counts", summary), "outbox.dlq_summary")

	rows, next, err := admin.List(ctx, reason, pagination.Params{Limit: cmd.limit, Cursor: cmd.cursor})
	if err != nil {
		return fmt.Errorf("list dlq: %w", err)
	}
	enc := json.NewEncoder(out)
	for _, row := range rows {
		line := dlqLine{
			EventID:      row.EventID,
			EventType:    row.EventType,
			AggregateID:  row.AggregateID,
			Reason:       row.ErrorReason,
			AttemptCount: row.AttemptCount,
			FailedAt:     row.FailedAt.UTC().Format(time.RFC3339),
		}
		if row.ErrorMessage != nil {
			line.Message = *row.ErrorMessage
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	if next != "" {
		return enc.Encode(map[string]string{"next_cursor": next})
	}
	return nil
}
