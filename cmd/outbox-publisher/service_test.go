package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/config"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/outbox"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/registry"
)

func orderEvent(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, uuid.NewString()),
		AttemptCount:  attempts,
	}
}

func resolvedOn(topic string, payload any) *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: topic, AggregateType: enums.AggregateOrder},
		Envelope:   outbox.PayloadEnvelope{Version: outbox.CurrentVersion, EventID: uuid.NewString(), OccurredAt: time.Now()},
		Payload:    payload,
	}
}

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	first := orderEvent(t, enums.EventOrderCompleted, 0)
	second := orderEvent(t, enums.EventOrderCompleted, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedOn("settlement-events", &payloads.OrderCompletedEvent{})}, &fakeDLQRepo{}, nil)

	stats, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batchStats{published: 1, retried: 1}, stats)
	assert.Equal(t, []uuid.UUID{first.ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, repo.published)
}

func TestProcessBatchEmptyReportsNothing(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, nil)

	stats, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.total())
}

func TestPublishSkipsEventsAlreadyDelivered(t *testing.T) {
	event := orderEvent(t, enums.EventOrderRefunded, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedOn("settlement-events", &payloads.OrderRefundedEvent{})}, &fakeDLQRepo{}, nil)
	service.guard = &fakeGuard{seen: map[uuid.UUID]idempotency.State{event.ID: idempotency.Done}}

	stats, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.duplicates)
	assert.Len(t, pub.results, 1, "publish should be skipped")
	assert.Equal(t, []uuid.UUID{event.ID}, repo.published)
}

func TestPublishReleasesGuardOnFailure(t *testing.T) {
	event := orderEvent(t, enums.EventCashDrawerClosed, 0)
	event.AggregateType = enums.AggregateCashDrawerSession
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("unavailable")}}}
	guard := &fakeGuard{seen: map[uuid.UUID]idempotency.State{}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedOn("settlement-events", &payloads.CashDrawerClosedEvent{})}, &fakeDLQRepo{}, nil)
	service.guard = guard

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, repo.failed, 1)
	assert.NotContains(t, guard.seen, event.ID)
	assert.Equal(t, []uuid.UUID{event.ID}, guard.released)
	assert.Empty(t, guard.completed)
}

func TestPublishConfirmsGuardOnSuccess(t *testing.T) {
	event := orderEvent(t, enums.EventOrderCompleted, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	guard := &fakeGuard{seen: map[uuid.UUID]idempotency.State{}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedOn("settlement-events", &payloads.OrderCompletedEvent{})}, &fakeDLQRepo{}, nil)
	service.guard = guard

	stats, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.published)
	assert.Equal(t, []uuid.UUID{event.ID}, guard.completed)
	assert.Equal(t, idempotency.Done, guard.seen[event.ID])
}

func TestPublishRetriesEventsClaimedElsewhere(t *testing.T) {
	event := orderEvent(t, enums.EventOrderCompleted, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedOn("settlement-events", &payloads.OrderCompletedEvent{})}, &fakeDLQRepo{}, nil)
	service.guard = &fakeGuard{seen: map[uuid.UUID]idempotency.State{event.ID: idempotency.InFlight}}

	stats, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.retried)
	assert.Len(t, repo.failed, 1)
	assert.Empty(t, repo.published)
}

func TestProcessBatchDeadLettersNonRetryable(t *testing.T) {
	event := orderEvent(t, enums.EventOrderCompleted, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlqRepo := &fakeDLQRepo{}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	service := newTestService(t, repo, &fakePublisher{}, reg, dlqRepo, nil)

	stats, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.deadLettered)
	require.Len(t, dlqRepo.entries, 1)
	entry := dlqRepo.entries[0]
	assert.Equal(t, event.ID, entry.EventID)
	assert.JSONEq(t, string(event.Payload), string(entry.Payload))
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "invalid payload")
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
}

func TestProcessBatchDeadLettersUnroutable(t *testing.T) {
	event := orderEvent(t, enums.OutboxEventType("ad_clicked"), 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlqRepo := &fakeDLQRepo{}
	unroutable := registry.NewNonRetryableError(fmt.Errorf("%w: unsupported event type ad_clicked", registry.ErrUnroutable))
	service := newTestService(t, repo, &fakePublisher{}, &fakeRegistry{err: unroutable}, dlqRepo, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, dlqRepo.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonUnroutable, dlqRepo.entries[0].ErrorReason)
}

func TestProcessBatchDeadLettersMissingPublisher(t *testing.T) {
	event := orderEvent(t, enums.EventOrderCompleted, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, nil, &fakeRegistry{resolved: resolvedOn("missing-topic", &payloads.OrderCompletedEvent{})}, dlqRepo, nil)
	service.publishers = func(string) publisher { return nil }

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, dlqRepo.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dlqRepo.entries[0].ErrorReason)
}

func TestProcessBatchDeadLettersOnMaxAttempts(t *testing.T) {
	event := orderEvent(t, enums.EventOrderCompleted, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("transient")}}}
	dlqRepo := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolvedOn("settlement-events", &payloads.OrderCompletedEvent{})}, dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	stats, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.deadLettered)
	require.Len(t, dlqRepo.entries, 1)
	assert.Equal(t, event.ID, dlqRepo.entries[0].EventID)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlqRepo.entries[0].ErrorReason)
	assert.Empty(t, repo.failed)
}

func TestMessageCarriesEnvelopeAttributes(t *testing.T) {
	event := orderEvent(t, enums.EventOrderCompleted, 0)
	envelope := outbox.PayloadEnvelope{Version: outbox.CurrentVersion, EventID: event.ID.String()}

	msg := message(event, envelope)
	assert.Equal(t, []byte(event.Payload), msg.Data)
	assert.Equal(t, event.ID.String(), msg.Attributes["event_id"])
	assert.Equal(t, "1", msg.Attributes["schema_version"])
	assert.Equal(t, string(enums.AggregateOrder), msg.Attributes["aggregate_type"])
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.EqualError(t, err, "config is required")

	_, err = NewService(ServiceParams{Config: &config.Config{}, Logger: logger.Nop()})
	assert.EqualError(t, err, "database client is required")
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	service, err := NewService(ServiceParams{
		Config:        &config.Config{},
		Logger:        logger.Nop(),
		DB:            &fakeDB{},
		PubSub:        &fakePubSubClient{},
		Repository:    &fakeRepo{},
		Registry:      &fakeRegistry{},
		DLQRepository: &fakeDLQRepo{},
	})
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, service.batchSize)
	assert.Equal(t, defaultMaxAttempts, service.maxAttempts)
	assert.Equal(t, time.Duration(defaultPollMs)*time.Millisecond, service.pollInterval)
	assert.Nil(t, service.publishers("settlement-events"))
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, service.Run(ctx), context.Canceled)
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, registry registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         registry,
		PublisherFactory: func(_ string) publisher { return pub },
		DLQRepository:    dlq,
	})
	require.NoError(t, err)
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	}
	payload, err := json.Marshal(env)
	require.NoError(tb, err)
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results []publishResult
}

func (f *fakePublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeGuard struct {
	seen      map[uuid.UUID]idempotency.State
	released  []uuid.UUID
	completed []uuid.UUID
}

func (f *fakeGuard) Claim(_ context.Context, eventID uuid.UUID) (idempotency.Claim, error) {
	if state, ok := f.seen[eventID]; ok {
		return idempotency.Claim{State: state, Holder: "publisher-2"}, nil
	}
	f.seen[eventID] = idempotency.InFlight
	return idempotency.Claim{State: idempotency.Claimed}, nil
}

func (f *fakeGuard) Complete(_ context.Context, eventID uuid.UUID) error {
	f.seen[eventID] = idempotency.Done
	f.completed = append(f.completed, eventID)
	return nil
}

func (f *fakeGuard) Release(_ context.Context, eventID uuid.UUID) error {
	delete(f.seen, eventID)
	f.released = append(f.released, eventID)
	return nil
}
