package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/settlez-backend/pkg/db/dbtest"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/types"
)

func seedOrder(t *testing.T, repo Repository, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:                    uuid.New(),
		OrderNumber:           "ORD-" + uuid.NewString()[:6],
		Status:                status,
		CreatedBy:             uuid.New(),
		OverriddenDiscountIDs: types.UUIDSet{},
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func sampleLine(orderID uuid.UUID) models.OrderLine {
	lineID := uuid.New()
	discountID := uuid.New()
	return models.OrderLine{
		ID:           lineID,
		OrderID:      orderID,
		SellableType: enums.SellableProduct,
		SellableID:   uuid.New(),
		Code:         "WID",
		Name:         "Widget",
		UnitPrice:    decimal.RequireFromString("10"),
		Quantity:     2,
		TaxRate:      decimal.RequireFromString("0.13"),
		Discounts: []models.OrderLineDiscount{{
			ID:               uuid.New(),
			OrderLineID:      lineID,
			DiscountID:       &discountID,
			Name:             "Promo",
			Type:             enums.DiscountTypePercentage,
			Value:            decimal.RequireFromString("10"),
			AutoApplied:      true,
			ExcludedQuantity: 1,
		}},
	}
}

func TestSaveAggregateReplacesChildren(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	order := seedOrder(t, repo, enums.OrderStatusDraft)

	order.Lines = []models.OrderLine{sampleLine(order.ID)}
	order.Discounts = []models.OrderDiscount{{
		ID:        uuid.New(),
		Name:      "Manager",
		Type:      enums.DiscountTypeFixedTotal,
		Value:     decimal.RequireFromString("2"),
		Scope:     enums.OrderDiscountScopeAllItems,
		LineIDs:   types.UUIDSet{},
		CreatedBy: order.CreatedBy,
	}}
	order.Total = decimal.RequireFromString("18.00")
	require.NoError(t, repo.SaveAggregate(ctx, order, time.Now()))

	loaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Lines, 1)
	require.Len(t, loaded.Lines[0].Discounts, 1)
	assert.Equal(t, 1, loaded.Lines[0].Discounts[0].ExcludedQuantity)
	require.Len(t, loaded.Discounts, 1)
	assert.True(t, loaded.Total.Equal(decimal.RequireFromString("18")))

	loaded.Lines = nil
	loaded.Discounts = nil
	require.NoError(t, repo.SaveAggregate(ctx, loaded, time.Now()))

	var lineCount, allocCount int64
	require.NoError(t, conn.Model(&models.OrderLine{}).Count(&lineCount).Error)
	require.NoError(t, conn.Model(&models.OrderLineDiscount{}).Count(&allocCount).Error)
	assert.Zero(t, lineCount)
	assert.Zero(t, allocCount)
}

func TestFinalizedOrderRejectsAggregateWrites(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	order := seedOrder(t, repo, enums.OrderStatusCompleted)

	order.Lines = []models.OrderLine{sampleLine(order.ID)}
	err := repo.SaveAggregate(ctx, order, time.Now())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeImmutable))

	err = repo.CreatePayment(ctx, order, &models.OrderPayment{
		Method:    enums.PaymentMethodCash,
		Amount:    decimal.RequireFromString("1"),
		CreatedBy: order.CreatedBy,
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeImmutable))

	err = repo.DeletePayment(ctx, order, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeImmutable))

	var lineCount int64
	require.NoError(t, conn.Model(&models.OrderLine{}).Count(&lineCount).Error)
	assert.Zero(t, lineCount)
}

func TestGuardChecksStoredStatus(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	order := seedOrder(t, repo, enums.OrderStatusCancelled)

	stale := *order
	stale.Status = enums.OrderStatusDraft
	err := repo.SaveAggregate(ctx, &stale, time.Now())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeImmutable))
}

func TestUpdateStatusStillWorksOnFinalizedOrders(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	order := seedOrder(t, repo, enums.OrderStatusCompleted)

	order.Status = enums.OrderStatusPartiallyRefunded
	require.NoError(t, repo.UpdateStatus(ctx, order, time.Now()))

	loaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPartiallyRefunded, loaded.Status)

	err = repo.UpdateStatus(ctx, &models.Order{ID: uuid.New(), Status: enums.OrderStatusHeld}, time.Now())
	assert.Error(t, err)
}

func TestWritesStampUpdatedAtFromCaller(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	order := seedOrder(t, repo, enums.OrderStatusDraft)

	saved := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveAggregate(ctx, order, saved))
	assert.True(t, order.UpdatedAt.Equal(saved))

	loaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, loaded.UpdatedAt.Equal(saved), "updated_at=%s", loaded.UpdatedAt)

	completed := saved.Add(90 * time.Minute)
	loaded.Status = enums.OrderStatusCompleted
	require.NoError(t, repo.UpdateStatus(ctx, loaded, completed))

	loaded, err = repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, loaded.UpdatedAt.Equal(completed), "updated_at=%s", loaded.UpdatedAt)
}
