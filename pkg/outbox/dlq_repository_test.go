package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/db/dbtest"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/pagination"
)

func parkEvent(t *testing.T, conn *gorm.DB, dlq *DLQRepository, reason enums.OutboxDLQErrorReason, failedAt time.Time) models.OutboxEvent {
	t.Helper()
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCompleted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  5,
	}
	require.NoError(t, conn.Create(&event).Error)

	msg := "publish failed"
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   reason,
			ErrorMessage:  &msg,
			AttemptCount:  event.AttemptCount,
			FailedAt:      failedAt,
		})
	}))
	return event
}

func TestDLQInsertKeepsLatestFailurePerEvent(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	event := parkEvent(t, conn, dlq, enums.OutboxDLQReasonMaxAttempts, time.Now().UTC())

	long := strings.Repeat("é", maxDLQErrorLen)
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			ErrorMessage:  &long,
		})
	}))

	var count int64
	require.NoError(t, conn.Model(&models.OutboxDLQ{}).Where("event_id = ?", event.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	entry, err := dlq.FindByEventID(context.Background(), event.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	require.NotNil(t, entry.ErrorMessage)
	assert.LessOrEqual(t, len(*entry.ErrorMessage), maxDLQErrorLen)
	assert.True(t, strings.HasPrefix(long, *entry.ErrorMessage))

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDLQListPagesNewestFirstAndFiltersByReason(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	oldest := parkEvent(t, conn, dlq, enums.OutboxDLQReasonMaxAttempts, base)
	middle := parkEvent(t, conn, dlq, enums.OutboxDLQReasonUnroutable, base.Add(time.Minute))
	newest := parkEvent(t, conn, dlq, enums.OutboxDLQReasonMaxAttempts, base.Add(2*time.Minute))

	page, cursor, err := dlq.List(ctx, "", pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, newest.ID, page[0].EventID)
	assert.Equal(t, middle.ID, page[1].EventID)
	require.NotEmpty(t, cursor)

	page, cursor, err = dlq.List(ctx, "", pagination.Params{Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, oldest.ID, page[0].EventID)
	assert.Empty(t, cursor)

	page, _, err = dlq.List(ctx, enums.OutboxDLQReasonUnroutable, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, middle.ID, page[0].EventID)

	counts, err := dlq.CountByReason(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[enums.OutboxDLQReasonMaxAttempts])
	assert.Equal(t, int64(1), counts[enums.OutboxDLQReasonUnroutable])

	_, _, err = dlq.List(ctx, "", pagination.Params{Cursor: "%%%"})
	assert.Error(t, err)
}

func TestDLQRequeueResetsOrRecreatesOutboxRow(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	repo := NewRepository(conn)

	parked := parkEvent(t, conn, dlq, enums.OutboxDLQReasonMaxAttempts, time.Now().UTC())
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return dlq.RequeueTx(tx, parked.ID)
	}))

	var reset models.OutboxEvent
	require.NoError(t, conn.First(&reset, "id = ?", parked.ID).Error)
	assert.Zero(t, reset.AttemptCount)
	assert.Nil(t, reset.LastError)

	pruned := parkEvent(t, conn, dlq, enums.OutboxDLQReasonUnroutable, time.Now().UTC())
	require.NoError(t, conn.Delete(&models.OutboxEvent{}, "id = ?", pruned.ID).Error)
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return dlq.RequeueTx(tx, pruned.ID)
	}))

	rows, err := repo.ListByAggregate(nil, pruned.AggregateID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pruned.ID, rows[0].ID)
	assert.JSONEq(t, `{"version":1}`, string(rows[0].Payload))

	var left int64
	require.NoError(t, conn.Model(&models.OutboxDLQ{}).Count(&left).Error)
	assert.Zero(t, left)

	err = conn.Transaction(func(tx *gorm.DB) error {
		return dlq.RequeueTx(tx, uuid.New())
	})
	assert.True(t, errors.Is(err, ErrNotInDLQ))
}
