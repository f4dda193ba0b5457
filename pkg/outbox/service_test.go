package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/db/dbtest"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	sessionID := uuid.New()
	actorID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventCashDrawerClosed,
			AggregateType: enums.AggregateCashDrawerSession,
			AggregateID:   sessionID,
			Actor:         Actor(actorID),
			Data:          payloads.CashDrawerClosedEvent{SessionID: sessionID, DiscrepancyCents: -5},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(nil, sessionID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.Equal(t, rows[0].ID.String(), envelope.EventID)
	require.Equal(t, actorID, envelope.Actor.ActorID)

	var data payloads.CashDrawerClosedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.EqualValues(t, -5, data.DiscrepancyCents)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	orderID := uuid.New()

	_ = conn.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.OrderCancelledEvent{OrderID: orderID},
		}))
		return gorm.ErrInvalidTransaction
	})

	rows, err := repo.ListByAggregate(nil, orderID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCompleted}))
}

func TestEmitRejectsInvalidEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	valid := DomainEvent{
		EventType:     enums.EventOrderCompleted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          payloads.OrderCompletedEvent{},
	}

	cases := map[string]func(*DomainEvent){
		"event type":   func(e *DomainEvent) { e.EventType = "order.exploded" },
		"aggregate":    func(e *DomainEvent) { e.AggregateType = "basket" },
		"aggregate id": func(e *DomainEvent) { e.AggregateID = uuid.Nil },
		"version":      func(e *DomainEvent) { e.Version = CurrentVersion + 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			event := valid
			mutate(&event)
			err := conn.Transaction(func(tx *gorm.DB) error {
				return svc.Emit(context.Background(), tx, event)
			})
			require.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
}

func TestEmitStampsOccurredAtInUTC(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	fixed := time.Date(2026, 4, 2, 8, 0, 0, 0, time.FixedZone("PST", -8*3600))
	svc.now = func() time.Time { return fixed }
	orderID := uuid.New()

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         Actor(uuid.Nil),
			Data:          payloads.OrderCancelledEvent{OrderID: orderID},
		})
	}))

	rows, err := repo.ListByAggregate(nil, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	envelope, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	require.True(t, fixed.Equal(envelope.OccurredAt))
	require.Equal(t, time.UTC, envelope.OccurredAt.Location())
	require.Nil(t, envelope.Actor)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	orderID := uuid.New()

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.OrderCompletedEvent{OrderID: orderID},
		})
	}))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.NoError(t, repo.MarkFailedTx(tx, rows[0].ID, context.DeadlineExceeded))
		return nil
	}))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		require.Equal(t, 1, rows[0].AttemptCount)
		return repo.MarkPublishedTx(tx, rows[0].ID)
	}))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.NoError(t, err)
		require.Empty(t, rows)
		return nil
	}))
}

func TestRepositoryPruneBefore(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)
	recent := now.Add(-2 * time.Hour)
	cutoff := now.Add(-30 * 24 * time.Hour)

	rows := []models.OutboxEvent{
		{CreatedAt: old, PublishedAt: &old},
		{CreatedAt: recent, PublishedAt: &recent},
		{CreatedAt: old, AttemptCount: 10},
		{CreatedAt: old, AttemptCount: 2},
		{CreatedAt: recent, AttemptCount: 10},
	}
	for i := range rows {
		rows[i].EventType = enums.EventOrderCompleted
		rows[i].AggregateType = enums.AggregateOrder
		rows[i].AggregateID = uuid.New()
		rows[i].Payload = json.RawMessage(`{}`)
		require.NoError(t, conn.Create(&rows[i]).Error)
	}

	var published, terminal int64
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		published, terminal, err = repo.PruneBefore(context.Background(), tx, cutoff, 10)
		return err
	}))
	require.Equal(t, int64(1), published)
	require.Equal(t, int64(1), terminal)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	require.Equal(t, int64(3), remaining)
}
