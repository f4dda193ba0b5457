package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlez-backend/internal/analytics/types"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/logger"
	"github.com/angelmondragon/settlez-backend/pkg/outbox/payloads"
)

type fakeWriter struct {
	settlement []types.SettlementEventRow
	drawer     []types.DrawerFactRow
	err        error
}

func (f *fakeWriter) InsertSettlement(_ context.Context, row types.SettlementEventRow) error {
	if f.err != nil {
		return f.err
	}
	f.settlement = append(f.settlement, row)
	return nil
}

func (f *fakeWriter) InsertDrawerFact(_ context.Context, row types.DrawerFactRow) error {
	if f.err != nil {
		return f.err
	}
	f.drawer = append(f.drawer, row)
	return nil
}

type fakeArchiver struct {
	objects map[string][]byte
	err     error
}

func (f *fakeArchiver) Upload(_ context.Context, object, contentType string, body []byte) error {
	if f.err != nil {
		return f.err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[object] = body
	return nil
}

func newTestRouter(t *testing.T, writer *fakeWriter, archiver Archiver) *Router {
	t.Helper()
	r, err := NewRouter(Params{
		Writer:       writer,
		Archiver:     archiver,
		ReportPrefix: "reports/",
		Logger:       logger.Nop(),
	})
	require.NoError(t, err)
	return r
}

func envelopeFor(t *testing.T, eventType enums.OutboxEventType, payload any) types.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	env := types.Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		ActorID:    "0b6e9f0c-6a53-4f43-9c35-7d8f0f2d8c11",
		OccurredAt: time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC),
		Payload:    data,
	}
	if k, ok := payload.(interface{ AggregateKey() uuid.UUID }); ok {
		env.AggregateID = k.AggregateKey().String()
	}
	return env
}

func TestRouterRejectsUnknownAndEmpty(t *testing.T) {
	r := newTestRouter(t, &fakeWriter{}, nil)

	err := r.Handle(context.Background(), types.Envelope{EventType: "loyalty_points_awarded", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrUnsupportedEventType)

	err = r.Handle(context.Background(), types.Envelope{EventType: enums.EventOrderCompleted})
	assert.Error(t, err)

	err = r.Handle(context.Background(), types.Envelope{EventType: enums.EventOrderCompleted, Payload: []byte(`{"order_id":12}`)})
	assert.Error(t, err)
}

func TestRouterRejectsPayloadForAnotherAggregate(t *testing.T) {
	writer := &fakeWriter{}
	r := newTestRouter(t, writer, nil)
	env := envelopeFor(t, enums.EventOrderCancelled, payloads.OrderCancelledEvent{OrderID: uuid.New()})
	env.AggregateID = uuid.NewString()

	err := r.Handle(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "names aggregate")
}

func TestOrderCompletedWritesGrossInCents(t *testing.T) {
	writer := &fakeWriter{}
	r := newTestRouter(t, writer, nil)
	session := uuid.New()
	completedAt := time.Date(2026, 4, 2, 17, 45, 0, 0, time.UTC)
	event := payloads.OrderCompletedEvent{
		OrderID:             uuid.New(),
		OrderNumber:         "ORD-000042",
		CashDrawerSessionID: &session,
		Subtotal:            decimal.RequireFromString("44.97"),
		DiscountTotal:       decimal.RequireFromString("0"),
		TaxTotal:            decimal.RequireFromString("5.85"),
		Total:               decimal.RequireFromString("50.82"),
		Payments:            []payloads.PaymentSummary{{Method: "cash", Amount: decimal.RequireFromString("50.82")}},
		CompletedAt:         completedAt,
	}

	require.NoError(t, r.Handle(context.Background(), envelopeFor(t, enums.EventOrderCompleted, event)))
	require.Len(t, writer.settlement, 1)
	row := writer.settlement[0]
	assert.Equal(t, "order_completed", row.EventType)
	assert.Equal(t, event.OrderID.String(), row.OrderID)
	assert.Equal(t, "ORD-000042", row.OrderNumber.StringVal)
	assert.Equal(t, session.String(), row.SessionID.StringVal)
	assert.False(t, row.CustomerID.Valid)
	assert.Equal(t, int64(4497), row.SubtotalCents.Int64)
	assert.Equal(t, int64(585), row.TaxCents.Int64)
	assert.Equal(t, int64(5082), row.GrossCents.Int64)
	assert.Equal(t, int64(5082), row.NetCents)
	assert.Equal(t, completedAt, row.OccurredAt)
	assert.True(t, row.Tenders.Valid)
	assert.Contains(t, row.Tenders.JSONVal, `"method":"cash"`)
	assert.Equal(t, "0b6e9f0c-6a53-4f43-9c35-7d8f0f2d8c11", row.ActorID.StringVal)
}

func TestOrderRefundedIsNegativeNet(t *testing.T) {
	writer := &fakeWriter{}
	r := newTestRouter(t, writer, nil)
	event := payloads.OrderRefundedEvent{
		OrderID:      uuid.New(),
		OrderNumber:  "ORD-000042",
		RefundID:     uuid.New(),
		RefundNumber: "REF-000007",
		OrderStatus:  "partially_refunded",
		Total:        decimal.RequireFromString("16.94"),
		Reason:       "damaged",
	}

	require.NoError(t, r.Handle(context.Background(), envelopeFor(t, enums.EventOrderRefunded, event)))
	require.Len(t, writer.settlement, 1)
	row := writer.settlement[0]
	assert.Equal(t, int64(1694), row.RefundCents.Int64)
	assert.Equal(t, int64(-1694), row.NetCents)
	assert.Equal(t, "REF-000007", row.RefundNumber.StringVal)
	assert.False(t, row.GrossCents.Valid)
	assert.Equal(t, time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC), row.OccurredAt)
}

func TestOrderCancelledHasNoRevenue(t *testing.T) {
	writer := &fakeWriter{}
	r := newTestRouter(t, writer, nil)
	event := payloads.OrderCancelledEvent{OrderID: uuid.New(), OrderNumber: "ORD-000043"}

	require.NoError(t, r.Handle(context.Background(), envelopeFor(t, enums.EventOrderCancelled, event)))
	require.Len(t, writer.settlement, 1)
	assert.Zero(t, writer.settlement[0].NetCents)
	assert.False(t, writer.settlement[0].GrossCents.Valid)
}

func TestDrawerClosedArchivesReport(t *testing.T) {
	writer := &fakeWriter{}
	archiver := &fakeArchiver{}
	r := newTestRouter(t, writer, archiver)
	event := payloads.CashDrawerClosedEvent{
		SessionID:            uuid.MustParse("6f1c1f52-2b1e-4a55-9d59-2c1b4f4e0a01"),
		ClosedBy:             uuid.New(),
		OpeningTotalCents:    10400,
		ClosingTotalCents:    10375,
		ExpectedClosingCents: 10400,
		DiscrepancyCents:     -25,
		ClosedAt:             time.Date(2026, 4, 2, 23, 5, 0, 0, time.UTC),
	}

	require.NoError(t, r.Handle(context.Background(), envelopeFor(t, enums.EventCashDrawerClosed, event)))
	object := "reports/2026/04/02/6f1c1f52-2b1e-4a55-9d59-2c1b4f4e0a01.json"
	require.Contains(t, archiver.objects, object)

	var report closeReport
	require.NoError(t, json.Unmarshal(archiver.objects[object], &report))
	assert.Equal(t, int64(-25), report.DiscrepancyCents)

	require.Len(t, writer.drawer, 1)
	row := writer.drawer[0]
	assert.Equal(t, object, row.ReportObject.StringVal)
	assert.Equal(t, int64(-25), row.DiscrepancyCents.Int64)
	assert.Equal(t, int64(10375), row.ClosingCents.Int64)
}

func TestDrawerClosedUploadFailureSkipsRow(t *testing.T) {
	writer := &fakeWriter{}
	r := newTestRouter(t, writer, &fakeArchiver{err: errors.New("gcs down")})
	event := payloads.CashDrawerClosedEvent{SessionID: uuid.New(), ClosedAt: time.Now()}

	assert.Error(t, r.Handle(context.Background(), envelopeFor(t, enums.EventCashDrawerClosed, event)))
	assert.Empty(t, writer.drawer)
}

func TestDrawerOpenedAndReconciledWithoutArchiver(t *testing.T) {
	writer := &fakeWriter{}
	r := newTestRouter(t, writer, nil)
	session := uuid.New()

	require.NoError(t, r.Handle(context.Background(), envelopeFor(t, enums.EventCashDrawerOpened, payloads.CashDrawerOpenedEvent{
		SessionID:         session,
		OpeningTotalCents: 10400,
	})))
	require.NoError(t, r.Handle(context.Background(), envelopeFor(t, enums.EventTerminalReconciled, payloads.TerminalReconciledEvent{
		SessionID:              session,
		ReconciliationID:       uuid.New(),
		DebitDiscrepancyCents:  0,
		CreditDiscrepancyCents: 150,
	})))

	require.Len(t, writer.drawer, 2)
	assert.Equal(t, int64(10400), writer.drawer[0].OpeningCents.Int64)
	assert.Equal(t, int64(150), writer.drawer[1].CreditDiscrepancyCents.Int64)
	assert.False(t, writer.drawer[1].ReportObject.Valid)
}

func TestOverridesReplaceDefaultHandler(t *testing.T) {
	writer := &fakeWriter{}
	called := false
	r, err := NewRouter(Params{
		Writer: writer,
		Logger: logger.Nop(),
		Overrides: map[enums.OutboxEventType]Handler{
			enums.EventOrderCancelled: HandlerFunc(func(context.Context, types.Envelope, any) error {
				called = true
				return nil
			}),
		},
	})
	require.NoError(t, err)

	require.NoError(t, r.Handle(context.Background(), envelopeFor(t, enums.EventOrderCancelled, payloads.OrderCancelledEvent{OrderID: uuid.New()})))
	assert.True(t, called)
	assert.Empty(t, writer.settlement)
}

func TestReportObjectDefaultsPrefix(t *testing.T) {
	at := time.Date(2026, 1, 9, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "drawer-reports/2026/01/09/s.json", reportObject("  ", at, "s"))
	assert.Equal(t, "z/2026/01/09/s.json", reportObject("/z/", at, "s"))
}
