package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/settlez-backend/internal/analytics/router"
	"github.com/angelmondragon/settlez-backend/internal/analytics/types"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/outbox"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/idempotency"
)

// ConsumerName scopes this worker's idempotency claims.
const ConsumerName = "settlement-analytics"

const flushTimeout = 10 * time.Second

// Handler defines how to process settlement envelopes.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

// Handle calls the underlying function.
func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

// Flusher drains buffered rows when the worker stops.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Claimer is the per-consumer dedupe guard; see idempotency.Guard.
type Claimer interface {
	Claim(ctx context.Context, eventID uuid.UUID) (idempotency.Claim, error)
	Complete(ctx context.Context, eventID uuid.UUID) error
	Release(ctx context.Context, eventID uuid.UUID) error
}

type ServiceParams struct {
	Subscription *gcppubsub.Subscriber
	Handler      Handler
	Idempotency  Claimer
	Flusher      Flusher
	Logger       *logger.Logger
}

// Service consumes settlement events from Pub/Sub while honoring Redis idempotency.
type Service struct {
	subscription *gcppubsub.Subscriber
	handler      Handler
	claims       Claimer
	flusher      Flusher
	logg         *logger.Logger
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Subscription == nil {
		return nil, errors.New("analytics subscription is required")
	}
	if p.Handler == nil {
		return nil, errors.New("analytics handler is required")
	}
	if p.Idempotency == nil {
		return nil, errors.New("idempotency guard is required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger is required")
	}

	return &Service{
		subscription: p.Subscription,
		handler:      p.Handler,
		claims:       p.Idempotency,
		flusher:      p.Flusher,
		logg:         p.Logger,
	}, nil
}

type processResult struct {
	nack bool
}

// Run consumes messages until ctx is canceled, then flushes buffered rows.
func (s *Service) Run(ctx context.Context) error {
	err := s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
	if flushErr := s.flush(); flushErr != nil && err == nil {
		err = flushErr
	}
	return err
}

func (s *Service) flush() error {
	if s.flusher == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := s.flusher.Flush(ctx); err != nil {
		s.logg.Error(ctx, "analytics.flush_failed", err)
		return fmt.Errorf("flush analytics rows: %w", err)
	}
	return nil
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}

	envelope, err := buildEnvelope(msg)
	if err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "analytics.invalid_envelope")
		return processResult{}
	}
	fields["event_id"] = envelope.EventID
	fields["event_type"] = envelope.EventType
	fields["aggregate_type"] = envelope.AggregateType
	fields["aggregate_id"] = envelope.AggregateID
	fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	logCtx := s.logg.WithFields(ctx, fields)

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "analytics.invalid_event_id")
		return processResult{}
	}

	claim, err := s.claims.Claim(logCtx, eventID)
	if err != nil {
		s.logg.Error(logCtx, "analytics.idempotency_check_failed", err)
		return processResult{nack: true}
	}
	if claim.State != idempotency.Claimed {
		logCtx = s.logg.WithFields(logCtx, map[string]any{"claim": claim.State.String(), "claimed_by": claim.Holder})
		if claim.State == idempotency.InFlight {
			s.logg.Info(logCtx, "analytics.event_in_flight")
			return processResult{nack: true}
		}
		s.logg.Info(logCtx, "analytics.event_already_processed")
		return processResult{}
	}

	bg := context.WithoutCancel(logCtx)
	if err := s.handler.Handle(logCtx, *envelope); err != nil {
		if errors.Is(err, router.ErrUnsupportedEventType) {
			s.logg.Warn(logCtx, "analytics.event_unsupported")
			s.complete(bg, eventID)
			return processResult{}
		}
		s.logg.Error(logCtx, "analytics.handler_failed", err)
		if relErr := s.claims.Release(bg, eventID); relErr != nil {
			s.logg.Error(logCtx, "analytics.idempotency_release_failed", relErr)
		}
		return processResult{nack: true}
	}
	s.complete(bg, eventID)

	s.logg.Info(logCtx, "analytics.event_handled")
	return processResult{}
}

// complete confirms the claim. A lost confirmation only means the claim
// expires early and a redelivery is deduped by the BigQuery insert id.
func (s *Service) complete(ctx context.Context, eventID uuid.UUID) {
	if err := s.claims.Complete(ctx, eventID); err != nil {
		s.logg.Error(ctx, "analytics.idempotency_confirm_failed", err)
	}
}

func buildEnvelope(msg *gcppubsub.Message) (*types.Envelope, error) {
	stored, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		return nil, err
	}

	eventType, err := enums.ParseOutboxEventType(attribute(msg, "event_type"))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}

	aggregateType, err := enums.ParseOutboxAggregateType(attribute(msg, "aggregate_type"))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}

	aggregateID := attribute(msg, "aggregate_id")
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if created := attribute(msg, "created_at"); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				occurredAt = parsed
			}
		}
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = attribute(msg, "event_id")
	}
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}

	var actorID string
	if stored.Actor != nil && stored.Actor.ActorID != uuid.Nil {
		actorID = stored.Actor.ActorID.String()
	}

	return &types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		ActorID:       actorID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}

func attribute(msg *gcppubsub.Message, key string) string {
	return strings.TrimSpace(msg.Attributes[key])
}
