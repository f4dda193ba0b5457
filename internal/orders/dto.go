package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/settlez-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlez-backend/pkg/errors"
)

// Target identifies the order being changed and who is changing it.
type Target struct {
	OrderID uuid.UUID
	ActorID uuid.UUID
}

func (t Target) validate() error {
	if t.OrderID == uuid.Nil {
		return pkgerrors.Validation("order_id", "order id is required")
	}
	if t.ActorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor id is required")
	}
	return nil
}

// CreateInput opens a new draft order.
type CreateInput struct {
	ActorID    uuid.UUID
	CustomerID *uuid.UUID
	Notes      *string
}

// AddLineInput adds quantity units of a sellable.
type AddLineInput struct {
	Target
	SellableType enums.SellableType
	SellableID   uuid.UUID
	Quantity     int
}

// UpdateLineQuantityInput sets a line's quantity.
type UpdateLineQuantityInput struct {
	Target
	LineID   uuid.UUID
	Quantity int
}

// LineInput references a single line.
type LineInput struct {
	Target
	LineID uuid.UUID
}

// ApplyOrderDiscountInput attaches a manual order-level discount.
type ApplyOrderDiscountInput struct {
	Target
	Name    string
	Type    enums.DiscountType
	Value   decimal.Decimal
	Scope   enums.OrderDiscountScope
	LineIDs []uuid.UUID
}

// ApplyLineDiscountInput attaches a manual discount allocation to one line.
type ApplyLineDiscountInput struct {
	Target
	LineID uuid.UUID
	Name   string
	Type   enums.DiscountType
	Value  decimal.Decimal
}

// DiscountInput references an order discount, a line allocation or a store
// discount depending on the operation.
type DiscountInput struct {
	Target
	DiscountID uuid.UUID
}

// SetCustomerInput attaches or clears the order's customer.
type SetCustomerInput struct {
	Target
	CustomerID *uuid.UUID
}

// SetTaxExemptInput toggles tax exemption on the order.
type SetTaxExemptInput struct {
	Target
	TaxExempt   bool
	Certificate *string
}

// SetNotesInput replaces the order's notes.
type SetNotesInput struct {
	Target
	Notes *string
}

type linePayload struct {
	LineID       uuid.UUID          `json:"line_id"`
	SellableType enums.SellableType `json:"sellable_type,omitempty"`
	SellableID   uuid.UUID          `json:"sellable_id,omitempty"`
	Quantity     int                `json:"quantity"`
	Previous     int                `json:"previous_quantity,omitempty"`
	Merged       bool               `json:"merged,omitempty"`
}

type discountPayload struct {
	DiscountID   uuid.UUID          `json:"discount_id"`
	LineID       *uuid.UUID         `json:"line_id,omitempty"`
	Name         string             `json:"name,omitempty"`
	Type         enums.DiscountType `json:"type,omitempty"`
	Value        *decimal.Decimal   `json:"value,omitempty"`
	Source       string             `json:"source"`
	ExcludedUnit *int               `json:"excluded_quantity,omitempty"`
}

type totalsPayload struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	Total         decimal.Decimal `json:"total"`
}

type statusPayload struct {
	From enums.OrderStatus `json:"from"`
	To   enums.OrderStatus `json:"to"`
}
