// Package discounts resolves store-wide discounts onto order lines and
// prices every line-level and order-level discount allocation.
package discounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/money"
)

// IsActive reports whether a store discount is live at now.
func IsActive(d models.Discount, now time.Time) bool {
	if !d.Active || d.DeletedAt.Valid {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return false
	}
	return true
}

// Eligible reports whether the discount targets the line. A denied entry
// wins over applies-to-all; without applies-to-all only allowed targets match.
func Eligible(d models.Discount, line models.OrderLine) bool {
	if !line.SellableType.Discountable() {
		return false
	}
	allowed := false
	for _, item := range d.Items {
		if !targets(item, line) {
			continue
		}
		if item.Mode == enums.DiscountItemDenied {
			return false
		}
		allowed = true
	}
	return d.AppliesToAll || allowed
}

func targets(item models.DiscountItem, line models.OrderLine) bool {
	switch item.TargetType {
	case enums.DiscountTargetProduct:
		return line.SellableType == enums.SellableProduct && line.SellableID == item.TargetID
	case enums.DiscountTargetService:
		return line.SellableType == enums.SellableService && line.SellableID == item.TargetID
	case enums.DiscountTargetProductGroup:
		return line.ProductGroupID != nil && *line.ProductGroupID == item.TargetID
	}
	return false
}

// AutoApply reconciles auto-applied allocations on every line with the set of
// currently active store discounts, then prices all line allocations.
// Existing allocations keep their excluded quantity; allocations whose
// source is no longer eligible or was overridden on the order are dropped.
func AutoApply(order *models.Order, storeDiscounts []models.Discount, now time.Time) {
	live := make([]models.Discount, 0, len(storeDiscounts))
	for _, d := range storeDiscounts {
		if IsActive(d, now) && !order.OverriddenDiscountIDs.Has(d.ID) {
			live = append(live, d)
		}
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		wanted := make(map[uuid.UUID]models.Discount)
		for _, d := range live {
			if Eligible(d, *line) {
				wanted[d.ID] = d
			}
		}

		kept := line.Discounts[:0]
		for _, alloc := range line.Discounts {
			if !alloc.AutoApplied {
				kept = append(kept, alloc)
				continue
			}
			if alloc.DiscountID == nil {
				continue
			}
			d, ok := wanted[*alloc.DiscountID]
			if !ok {
				continue
			}
			alloc.Name = d.Name
			alloc.Type = d.Type
			alloc.Value = d.Value
			kept = append(kept, alloc)
			delete(wanted, d.ID)
		}
		line.Discounts = kept

		for _, d := range live {
			if _, ok := wanted[d.ID]; !ok {
				continue
			}
			id := d.ID
			line.Discounts = append(line.Discounts, models.OrderLineDiscount{
				ID:          uuid.New(),
				OrderLineID: line.ID,
				DiscountID:  &id,
				Name:        d.Name,
				Type:        d.Type,
				Value:       d.Value,
				Amount:      decimal.Zero,
				AutoApplied: true,
			})
		}
	}

	PriceAllocations(order)
}

// RemoveAutoDiscount records the discount as overridden on the order and drops
// its auto-applied allocations. It reports whether the override set changed.
func RemoveAutoDiscount(order *models.Order, discountID uuid.UUID) bool {
	set, added := order.OverriddenDiscountIDs.Add(discountID)
	order.OverriddenDiscountIDs = set
	for i := range order.Lines {
		line := &order.Lines[i]
		kept := line.Discounts[:0]
		for _, alloc := range line.Discounts {
			if alloc.AutoApplied && alloc.DiscountID != nil && *alloc.DiscountID == discountID {
				continue
			}
			kept = append(kept, alloc)
		}
		line.Discounts = kept
	}
	return added
}

// RestoreAutoDiscount clears an override so the next AutoApply may reattach
// the discount. It reports whether the override set changed.
func RestoreAutoDiscount(order *models.Order, discountID uuid.UUID) bool {
	set, removed := order.OverriddenDiscountIDs.Remove(discountID)
	order.OverriddenDiscountIDs = set
	return removed
}

// FindAllocation locates a line allocation by id.
func FindAllocation(order *models.Order, allocationID uuid.UUID) (*models.OrderLine, *models.OrderLineDiscount) {
	for i := range order.Lines {
		line := &order.Lines[i]
		for j := range line.Discounts {
			if line.Discounts[j].ID == allocationID {
				return line, &line.Discounts[j]
			}
		}
	}
	return nil, nil
}

// ExcludeOneUnit takes one more unit of the line out of the allocation.
// It is a no-op once every unit is excluded.
func ExcludeOneUnit(alloc *models.OrderLineDiscount, lineQuantity int) bool {
	if alloc.ExcludedQuantity >= lineQuantity {
		return false
	}
	alloc.ExcludedQuantity++
	return true
}

// RestoreOneUnit puts one excluded unit back under the allocation.
// It is a no-op when nothing is excluded.
func RestoreOneUnit(alloc *models.OrderLineDiscount) bool {
	if alloc.ExcludedQuantity <= 0 {
		return false
	}
	alloc.ExcludedQuantity--
	return true
}

// AppliedBase is unit_price * applied quantity for one allocation.
func AppliedBase(line models.OrderLine, alloc models.OrderLineDiscount) decimal.Decimal {
	return line.UnitPrice.Mul(decimal.NewFromInt(int64(alloc.AppliedQuantity(line.Quantity))))
}

type allocRef struct {
	line  int
	alloc int
}

// PriceAllocations sets the calculated amount of every line allocation.
// fixed_total sources are spread across all lines they touch in proportion
// to each line's applied base.
func PriceAllocations(order *models.Order) {
	fixedTotals := make(map[uuid.UUID][]allocRef)
	var fixedOrder []uuid.UUID

	for i := range order.Lines {
		line := order.Lines[i]
		for j := range order.Lines[i].Discounts {
			alloc := &order.Lines[i].Discounts[j]
			base := AppliedBase(line, *alloc)
			switch alloc.Type {
			case enums.DiscountTypePercentage:
				alloc.Amount = money.Min(money.Round2(money.Percent(base, alloc.Value)), base)
			case enums.DiscountTypeFixedPerItem:
				qty := decimal.NewFromInt(int64(alloc.AppliedQuantity(line.Quantity)))
				alloc.Amount = money.Min(money.Round2(alloc.Value.Mul(qty)), base)
			case enums.DiscountTypeFixedTotal:
				key := alloc.ID
				if alloc.DiscountID != nil {
					key = *alloc.DiscountID
				}
				if _, seen := fixedTotals[key]; !seen {
					fixedOrder = append(fixedOrder, key)
				}
				fixedTotals[key] = append(fixedTotals[key], allocRef{line: i, alloc: j})
			default:
				alloc.Amount = decimal.Zero
			}
			alloc.Amount = money.ClampZero(alloc.Amount)
		}
	}

	for _, key := range fixedOrder {
		spreadFixedTotal(order, fixedTotals[key])
	}
}

func spreadFixedTotal(order *models.Order, refs []allocRef) {
	bases := make([]decimal.Decimal, len(refs))
	totalBase := decimal.Zero
	for k, ref := range refs {
		bases[k] = AppliedBase(order.Lines[ref.line], order.Lines[ref.line].Discounts[ref.alloc])
		totalBase = totalBase.Add(bases[k])
	}
	value := order.Lines[refs[0].line].Discounts[refs[0].alloc].Value

	shares := Allocate(money.ClampZero(value), bases, totalBase)
	for k, ref := range refs {
		order.Lines[ref.line].Discounts[ref.alloc].Amount = shares[k]
	}
}

// Allocate splits value across bases proportionally, rounding each share to
// cents and capping it at its base. Rounding residue lands on the last base
// with room left, so the shares sum to min(value, sum(bases)).
func Allocate(value decimal.Decimal, bases []decimal.Decimal, totalBase decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(bases))
	if totalBase.Sign() <= 0 || value.Sign() <= 0 {
		for k := range shares {
			shares[k] = decimal.Zero
		}
		return shares
	}
	target := money.Round2(money.Min(value, totalBase))

	assigned := decimal.Zero
	for k, base := range bases {
		share := money.Round2(target.Mul(base).Div(totalBase))
		shares[k] = money.Min(share, base)
		assigned = assigned.Add(shares[k])
	}

	residue := target.Sub(assigned)
	for k := len(shares) - 1; k >= 0 && !residue.IsZero(); k-- {
		if residue.Sign() > 0 {
			room := bases[k].Sub(shares[k])
			step := money.Min(room, residue)
			shares[k] = shares[k].Add(step)
			residue = residue.Sub(step)
			continue
		}
		step := money.Min(shares[k], residue.Neg())
		shares[k] = shares[k].Sub(step)
		residue = residue.Add(step)
	}
	return shares
}

// OrderDiscountBase is the net amount an order-level discount can draw from:
// the scoped lines' gross less their line-level discounts.
func OrderDiscountBase(order *models.Order, od models.OrderDiscount) decimal.Decimal {
	base := decimal.Zero
	for _, line := range order.Lines {
		if od.Scope == enums.OrderDiscountScopeSpecificItems && !od.LineIDs.Has(line.ID) {
			continue
		}
		base = base.Add(line.Taxable())
	}
	return money.ClampZero(base)
}

// OrderDiscountAmount prices an order-level discount against the order's
// current line discount amounts.
func OrderDiscountAmount(order *models.Order, od models.OrderDiscount) decimal.Decimal {
	base := OrderDiscountBase(order, od)
	switch od.Type {
	case enums.DiscountTypePercentage:
		return money.Min(money.Round2(money.Percent(base, od.Value)), base)
	case enums.DiscountTypeFixedTotal:
		return money.Min(money.Round2(od.Value), base)
	}
	return decimal.Zero
}

// OrderDiscountShares spreads each priced order-level discount over its
// scoped lines pro rata to their taxable amount, keyed by line id.
func OrderDiscountShares(order *models.Order) map[uuid.UUID]decimal.Decimal {
	shares := make(map[uuid.UUID]decimal.Decimal, len(order.Lines))
	for _, od := range order.Discounts {
		bases := make([]decimal.Decimal, len(order.Lines))
		totalBase := decimal.Zero
		for i, line := range order.Lines {
			if od.Scope == enums.OrderDiscountScopeSpecificItems && !od.LineIDs.Has(line.ID) {
				bases[i] = decimal.Zero
				continue
			}
			bases[i] = money.ClampZero(line.Taxable())
			totalBase = totalBase.Add(bases[i])
		}
		for i, share := range Allocate(od.Amount, bases, totalBase) {
			id := order.Lines[i].ID
			shares[id] = shares[id].Add(share)
		}
	}
	return shares
}
