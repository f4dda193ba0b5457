// Package totals derives order money fields from lines and discounts.
package totals

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlez-backend/internal/discounts"
	"github.com/angelmondragon/settlez-backend/internal/lineitems"
	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/money"
)

// Recalculate rebuilds every derived money field on the order from the
// lines' unit price, quantity and tax rate plus the priced discount
// allocations. Calling it twice in a row yields the same result.
func Recalculate(order *models.Order) {
	discounts.PriceAllocations(order)

	subtotal := decimal.Zero
	lineDiscounts := decimal.Zero
	taxTotal := decimal.Zero

	for i := range order.Lines {
		line := &order.Lines[i]
		sum := decimal.Zero
		for _, alloc := range line.Discounts {
			sum = sum.Add(alloc.Amount)
		}
		line.DiscountAmount = money.Min(money.Round2(sum), line.Gross())
		lineitems.Recompute(line)

		subtotal = subtotal.Add(line.Gross())
		lineDiscounts = lineDiscounts.Add(line.DiscountAmount)
		taxTotal = taxTotal.Add(line.TaxAmount)
	}

	orderDiscounts := decimal.Zero
	for i := range order.Discounts {
		od := &order.Discounts[i]
		od.Amount = discounts.OrderDiscountAmount(order, *od)
		orderDiscounts = orderDiscounts.Add(od.Amount)
	}

	order.Subtotal = money.Round2(subtotal)
	order.DiscountTotal = money.Round2(lineDiscounts.Add(orderDiscounts))
	order.TaxTotal = money.Round2(taxTotal)
	order.Total = money.ClampZero(order.Subtotal.Sub(order.DiscountTotal).Add(order.TaxTotal))
}

// AmountPaid sums the recorded tenders net of change.
func AmountPaid(order *models.Order) decimal.Decimal {
	paid := decimal.Zero
	for _, p := range order.Payments {
		paid = paid.Add(p.Amount)
	}
	return paid
}

// BalanceDue is what remains to be tendered, never negative.
func BalanceDue(order *models.Order) decimal.Decimal {
	return money.ClampZero(order.Total.Sub(AmountPaid(order)))
}

// PaymentComplete reports whether the outstanding balance is under tolerance.
func PaymentComplete(order *models.Order, tolerance decimal.Decimal) bool {
	return order.Total.Sub(AmountPaid(order)).LessThan(tolerance)
}
