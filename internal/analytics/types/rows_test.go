package types

import (
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlementRowSaveUsesEventIDAsInsertID(t *testing.T) {
	row := SettlementEventRow{
		EventID:    "evt-1",
		EventType:  "order_completed",
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		OrderID:    "ord-1",
		GrossCents: Int64(1250),
		NetCents:   1250,
		Payload:    cbigquery.NullJSON{Valid: true, JSONVal: `{"k":1}`},
	}

	values, insertID, err := row.Save()
	require.NoError(t, err)
	assert.Equal(t, "evt-1", insertID)
	assert.Equal(t, int64(1250), values["gross_cents"])
	assert.Nil(t, values["refund_cents"])
	assert.Nil(t, values["tenders"])
	assert.Equal(t, `{"k":1}`, values["payload"])
	assert.Len(t, values, len(SettlementEventSchema))
	for _, field := range SettlementEventSchema {
		assert.Contains(t, values, field.Name)
	}
}

func TestDrawerRowSaveMatchesSchema(t *testing.T) {
	values, insertID, err := DrawerFactRow{EventID: "evt-2", SessionID: "s-1"}.Save()
	require.NoError(t, err)
	assert.Equal(t, "evt-2", insertID)
	assert.Len(t, values, len(DrawerFactSchema))
	for _, field := range DrawerFactSchema {
		assert.Contains(t, values, field.Name)
	}
	assert.Nil(t, values["closing_cents"])
	assert.Nil(t, values["actor_id"])
}

func TestNullConstructors(t *testing.T) {
	assert.False(t, String("  ").Valid)
	assert.Equal(t, "ORD-1", String(" ORD-1 ").StringVal)
	assert.False(t, UUID(nil).Valid)
	nilID := uuid.Nil
	assert.False(t, UUID(&nilID).Valid)
	id := uuid.New()
	assert.Equal(t, id.String(), UUID(&id).StringVal)
	assert.Equal(t, cbigquery.NullInt64{Int64: 1999, Valid: true}, Cents(decimal.RequireFromString("19.99")))
}
