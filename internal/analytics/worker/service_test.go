package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlez-backend/internal/analytics/router"
	"github.com/angelmondragon/settlez-backend/internal/analytics/types"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/outbox"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/idempotency"
)

func TestBuildEnvelope(t *testing.T) {
	actor := uuid.New()
	eventID := uuid.NewString()
	payload := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Actor:      outbox.Actor(actor),
		Data:       json.RawMessage(`{"orderId":"ord-1"}`),
	}
	msg := buildMessage(t, payload, map[string]string{
		"event_type":     "order_completed",
		"aggregate_type": "order",
		"aggregate_id":   "ord-1",
	})

	env, err := buildEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, enums.EventOrderCompleted, env.EventType)
	assert.Equal(t, enums.AggregateOrder, env.AggregateType)
	assert.Equal(t, "ord-1", env.AggregateID)
	assert.Equal(t, eventID, env.EventID)
	assert.Equal(t, actor.String(), env.ActorID)
	assert.True(t, payload.OccurredAt.Equal(env.OccurredAt))
	assert.JSONEq(t, `{"orderId":"ord-1"}`, string(env.Payload))
}

func TestBuildEnvelopeFallsBackToAttributes(t *testing.T) {
	created := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	eventID := uuid.NewString()
	msg := buildMessage(t, outbox.PayloadEnvelope{Data: json.RawMessage(`{}`)}, map[string]string{
		"event_id":       eventID,
		"event_type":     "cash_drawer_closed",
		"aggregate_type": "cash_drawer_session",
		"aggregate_id":   "sess-1",
		"created_at":     created.Format(time.RFC3339Nano),
	})

	env, err := buildEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, eventID, env.EventID)
	assert.True(t, created.Equal(env.OccurredAt))
	assert.Empty(t, env.ActorID)
}

func TestBuildEnvelopeRejectsUnknownTypes(t *testing.T) {
	msg := buildMessage(t, outbox.PayloadEnvelope{EventID: uuid.NewString()}, map[string]string{
		"event_type":     "ad_clicked",
		"aggregate_type": "order",
		"aggregate_id":   "ord-1",
	})
	_, err := buildEnvelope(msg)
	assert.Error(t, err)
}

func TestProcessHandlesEvent(t *testing.T) {
	claims := &stubClaims{}
	handler := &stubHandler{}
	svc := newTestService(handler, claims, nil)

	res := svc.process(context.Background(), buildSettlementMessage(t))
	assert.False(t, res.nack)
	assert.True(t, handler.called)
	assert.Equal(t, enums.EventOrderCompleted, handler.envelope.EventType)
	assert.Len(t, claims.claimed, 1)
	assert.Len(t, claims.done, 1)
	assert.Empty(t, claims.released)
}

func TestProcessAlreadyProcessed(t *testing.T) {
	claims := &stubClaims{state: idempotency.Done}
	handler := &stubHandler{}
	svc := newTestService(handler, claims, nil)

	res := svc.process(context.Background(), buildSettlementMessage(t))
	assert.False(t, res.nack)
	assert.False(t, handler.called)
	assert.Len(t, claims.claimed, 1)
	assert.Empty(t, claims.done)
}

func TestProcessInFlightElsewhereNacks(t *testing.T) {
	claims := &stubClaims{state: idempotency.InFlight}
	handler := &stubHandler{}
	svc := newTestService(handler, claims, nil)

	res := svc.process(context.Background(), buildSettlementMessage(t))
	assert.True(t, res.nack)
	assert.False(t, handler.called)
	assert.Empty(t, claims.released)
}

func TestProcessIdempotencyFailureNacks(t *testing.T) {
	claims := &stubClaims{claimErr: errors.New("redis down")}
	handler := &stubHandler{}
	svc := newTestService(handler, claims, nil)

	res := svc.process(context.Background(), buildSettlementMessage(t))
	assert.True(t, res.nack)
	assert.False(t, handler.called)
}

func TestProcessHandlerErrorRetries(t *testing.T) {
	claims := &stubClaims{}
	handler := &stubHandler{err: errors.New("boom")}
	svc := newTestService(handler, claims, nil)

	res := svc.process(context.Background(), buildSettlementMessage(t))
	assert.True(t, res.nack)
	assert.True(t, handler.called)
	assert.Len(t, claims.released, 1)
	assert.Empty(t, claims.done)
}

func TestProcessInvalidEnvelope(t *testing.T) {
	claims := &stubClaims{}
	handler := &stubHandler{}
	svc := newTestService(handler, claims, nil)

	res := svc.process(context.Background(), &gcppubsub.Message{Data: []byte("invalid json")})
	assert.False(t, res.nack)
	assert.False(t, handler.called)
	assert.Empty(t, claims.claimed)
}

func TestProcessUnsupportedEvent(t *testing.T) {
	claims := &stubClaims{}
	handler := &stubHandler{err: fmt.Errorf("%w: x", router.ErrUnsupportedEventType)}
	svc := newTestService(handler, claims, nil)

	res := svc.process(context.Background(), buildSettlementMessage(t))
	assert.False(t, res.nack)
	assert.Empty(t, claims.released)
	assert.Len(t, claims.done, 1)
}

func TestFlushDrainsBufferedRows(t *testing.T) {
	flusher := &stubFlusher{}
	svc := newTestService(&stubHandler{}, &stubClaims{}, flusher)
	require.NoError(t, svc.flush())
	assert.Equal(t, 1, flusher.calls)

	flusher.err = errors.New("bq down")
	assert.Error(t, svc.flush())

	assert.NoError(t, newTestService(&stubHandler{}, &stubClaims{}, nil).flush())
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)

	_, err = NewService(ServiceParams{
		Subscription: &gcppubsub.Subscriber{},
		Handler:      &stubHandler{},
		Idempotency:  &stubClaims{},
	})
	assert.Error(t, err, "logger is required")
}

func buildSettlementMessage(t *testing.T) *gcppubsub.Message {
	t.Helper()
	payload := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"orderId":"abc-123"}`),
	}
	return buildMessage(t, payload, map[string]string{
		"event_type":     "order_completed",
		"aggregate_type": "order",
		"aggregate_id":   "abc-123",
	})
}

func buildMessage(t *testing.T, payload outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return &gcppubsub.Message{ID: "msg-1", Data: data, Attributes: attrs}
}

func newTestService(handler Handler, claims *stubClaims, flusher Flusher) *Service {
	return &Service{
		handler: handler,
		claims:  claims,
		flusher: flusher,
		logg:    logger.Nop(),
	}
}

type stubHandler struct {
	called   bool
	envelope types.Envelope
	err      error
}

func (h *stubHandler) Handle(_ context.Context, envelope types.Envelope) error {
	h.called = true
	h.envelope = envelope
	return h.err
}

type stubClaims struct {
	state    idempotency.State
	claimErr error
	claimed  []uuid.UUID
	released []uuid.UUID
	done     []uuid.UUID
}

func (s *stubClaims) Claim(_ context.Context, eventID uuid.UUID) (idempotency.Claim, error) {
	s.claimed = append(s.claimed, eventID)
	return idempotency.Claim{State: s.state, Holder: "worker-test"}, s.claimErr
}

func (s *stubClaims) Complete(_ context.Context, eventID uuid.UUID) error {
	s.done = append(s.done, eventID)
	return nil
}

func (s *stubClaims) Release(_ context.Context, eventID uuid.UUID) error {
	s.released = append(s.released, eventID)
	return nil
}

type stubFlusher struct {
	calls int
	err   error
}

func (f *stubFlusher) Flush(context.Context) error {
	f.calls++
	return f.err
}
