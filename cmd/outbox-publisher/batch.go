package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/outbox"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/registry"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeDuplicate
	outcomeRetry
	outcomeDeadLettered
)

type batchStats struct {
	published    int
	duplicates   int
	retried      int
	deadLettered int
}

func (b *batchStats) record(o outcome) {
	switch o {
	case outcomePublished:
		b.published++
	case outcomeDuplicate:
		b.duplicates++
	case outcomeRetry:
		b.retried++
	case outcomeDeadLettered:
		b.deadLettered++
	}
}

func (b batchStats) total() int {
	return b.published + b.duplicates + b.retried + b.deadLettered
}

func (b batchStats) fields(batchSize int) map[string]any {
	return map[string]any{
		"batch_size":    batchSize,
		"published":     b.published,
		"duplicates":    b.duplicates,
		"retried":       b.retried,
		"dead_lettered": b.deadLettered,
	}
}

// processBatch locks up to batchSize pending rows and dispatches each one.
// A row-level failure never aborts the batch; only bookkeeping errors do.
func (s *Service) processBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		for _, event := range events {
			result, err := s.dispatch(ctx, tx, event)
			if err != nil {
				return err
			}
			stats.record(result)
		}
		return nil
	})
	if err == nil && stats.total() > 0 {
		s.logg.Info(s.logg.WithFields(ctx, stats.fields(s.batchSize)), "outbox batch processed")
	}
	return stats, err
}

func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		reason := enums.OutboxDLQReasonNonRetryable
		if errors.Is(err, registry.ErrUnroutable) {
			reason = enums.OutboxDLQReasonUnroutable
		}
		return outcomeDeadLettered, s.deadLetter(ctx, tx, event, reason, err, eventFields(event, outbox.PayloadEnvelope{}, ""))
	}

	topic := resolved.Descriptor.Topic
	fields := eventFields(event, resolved.Envelope, topic)
	duplicate, err := s.publish(ctx, event, resolved)
	if err == nil {
		if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return outcomePublished, fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		if duplicate {
			s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event already delivered")
			return outcomeDuplicate, nil
		}
		s.logg.Debug(s.logg.WithFields(ctx, fields), "outbox event published")
		return outcomePublished, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return outcomeDeadLettered, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}

	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		fields["terminal_reason"] = "max_attempts"
		return outcomeDeadLettered, s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", err), fields)
	}

	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error()), "outbox publish failed")
	if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return outcomeRetry, fmt.Errorf("mark failure %s: %w", event.ID, markErr)
	}
	return outcomeRetry, nil
}

// deadLetter copies the row into outbox_dlq and marks it terminal in the same
// transaction, so the row is either retried or dead-lettered, never both.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", cause.Error()), "outbox event will not be retried")

	entry := event.Park(reason, cause, time.Now())
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

// publish sends the envelope and reports whether the guard had already seen
// it. A failed publish releases the guard claim so the retry is not skipped.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) (duplicate bool, err error) {
	if s.guard != nil {
		claim, guardErr := s.guard.Claim(ctx, event.ID)
		switch {
		case guardErr != nil:
			s.logg.Warn(s.logg.WithField(ctx, "error", guardErr.Error()), "publish guard unavailable, publishing anyway")
		case claim.State == idempotency.Done:
			return true, nil
		case claim.State == idempotency.InFlight:
			return false, fmt.Errorf("event %s is being published by %s", event.ID, claim.Holder)
		default:
			defer func() {
				bg := context.WithoutCancel(ctx)
				if err != nil {
					err = multierr.Append(err, s.guard.Release(bg, event.ID))
					return
				}
				if doneErr := s.guard.Complete(bg, event.ID); doneErr != nil {
					s.logg.Warn(s.logg.WithField(ctx, "error", doneErr.Error()), "publish guard not confirmed")
				}
			}()
		}
	}

	topic := resolved.Descriptor.Topic
	pub := s.publishers(topic)
	if pub == nil {
		return false, registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, message(event, resolved.Envelope))
	if result == nil {
		return false, registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err = result.Get(publishCtx)
	return false, err
}

func message(event models.OutboxEvent, envelope outbox.PayloadEnvelope) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"schema_version": strconv.Itoa(envelope.Version),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

func eventFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
