// Package lineitems snapshots sellables onto order lines and keeps each
// line's tax and total derived from its own fields.
package lineitems

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlez-backend/pkg/db/models"
	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
	"github.com/angelmondragon/settlez-backend/pkg/money"
)

// Sellable is anything that can be captured onto an order line.
type Sellable interface {
	SellableRef() (enums.SellableType, uuid.UUID)
	SellableCode() string
	SellableName() string
	SellablePrice() decimal.Decimal
	SellableTaxCode() *models.TaxCode
	SellableGroupID() *uuid.UUID
}

var (
	_ Sellable = (*models.Product)(nil)
	_ Sellable = (*models.Service)(nil)
	_ Sellable = (*models.GiftCertificate)(nil)
)

// TaxSelection is the rate a line is taxed at and the code it came from.
type TaxSelection struct {
	Rate      decimal.Decimal
	TaxCodeID *uuid.UUID
}

// NeverTaxed reports whether lines of this kind carry no tax whatever the
// order or customer says. Selling a gift certificate sells stored value.
func NeverTaxed(kind enums.SellableType) bool {
	return kind == enums.SellableGiftCertificate
}

// ResolveTaxRate picks the effective tax for a sellable on an order.
// Gift certificates and tax-exempt orders are never taxed. A customer
// carrying its own tax code overrides the sellable's code. No code at all
// means a zero rate.
func ResolveTaxRate(order *models.Order, customer *models.Customer, item Sellable) TaxSelection {
	if order != nil && order.TaxExempt {
		return TaxSelection{Rate: decimal.Zero}
	}
	if item != nil {
		if kind, _ := item.SellableRef(); NeverTaxed(kind) {
			return TaxSelection{Rate: decimal.Zero}
		}
	}
	if customer != nil && customer.TaxCode != nil {
		return selectionFor(customer.TaxCode)
	}
	if item != nil {
		if code := item.SellableTaxCode(); code != nil {
			return selectionFor(code)
		}
	}
	return TaxSelection{Rate: decimal.Zero}
}

func selectionFor(code *models.TaxCode) TaxSelection {
	id := code.ID
	return TaxSelection{Rate: code.Rate, TaxCodeID: &id}
}

// AddLine adds quantity units of item to the order. An existing line for the
// same sellable absorbs the quantity; otherwise a new snapshot line is appended.
// The returned pointer aliases order.Lines.
func AddLine(order *models.Order, item Sellable, quantity int, tax TaxSelection) (*models.OrderLine, bool, error) {
	if quantity <= 0 {
		return nil, false, pkgerrors.Validation("quantity", "quantity must be greater than zero")
	}
	if item == nil {
		return nil, false, pkgerrors.Validation("sellable", "sellable is required")
	}
	kind, id := item.SellableRef()
	if !kind.IsValid() || id == uuid.Nil {
		return nil, false, pkgerrors.Validation("sellable", "sellable reference is invalid")
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		if line.SellableType == kind && line.SellableID == id {
			line.Quantity += quantity
			Recompute(line)
			return line, true, nil
		}
	}

	line := models.OrderLine{
		ID:             uuid.New(),
		OrderID:        order.ID,
		SellableType:   kind,
		SellableID:     id,
		Code:           item.SellableCode(),
		Name:           item.SellableName(),
		UnitPrice:      money.Round2(item.SellablePrice()),
		Quantity:       quantity,
		TaxCodeID:      tax.TaxCodeID,
		TaxRate:        tax.Rate,
		ProductGroupID: item.SellableGroupID(),
		DiscountAmount: decimal.Zero,
	}
	Recompute(&line)
	order.Lines = append(order.Lines, line)
	return &order.Lines[len(order.Lines)-1], false, nil
}

// UpdateQuantity sets a line's quantity and pulls every discount exclusion
// back inside the new bound.
func UpdateQuantity(line *models.OrderLine, quantity int) error {
	if quantity <= 0 {
		return pkgerrors.Validation("quantity", "quantity must be greater than zero")
	}
	line.Quantity = quantity
	for i := range line.Discounts {
		if line.Discounts[i].ExcludedQuantity > quantity {
			line.Discounts[i].ExcludedQuantity = quantity
		}
	}
	Recompute(line)
	return nil
}

// RemoveLine drops a line from the order and reports whether it was present.
func RemoveLine(order *models.Order, lineID uuid.UUID) (models.OrderLine, bool) {
	for i := range order.Lines {
		if order.Lines[i].ID == lineID {
			removed := order.Lines[i]
			order.Lines = append(order.Lines[:i], order.Lines[i+1:]...)
			return removed, true
		}
	}
	return models.OrderLine{}, false
}

// Recompute derives tax_amount and line_total from unit price, quantity,
// discount amount and tax rate.
func Recompute(line *models.OrderLine) {
	taxable := line.Taxable()
	line.TaxAmount = money.Round2(taxable.Mul(line.TaxRate))
	line.LineTotal = money.Round2(taxable.Add(line.TaxAmount))
}
