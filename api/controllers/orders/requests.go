package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type createOrderRequest struct {
	CustomerID *uuid.UUID `json:"customer_id"`
	Notes      *string    `json:"notes" validate:"omitempty,max=1000"`
}

type addLineRequest struct {
	SellableType string    `json:"sellable_type" validate:"required,oneof=product service gift_certificate"`
	SellableID   uuid.UUID `json:"sellable_id" validate:"required"`
	Quantity     int       `json:"quantity" validate:"required,gt=0"`
}

type updateLineRequest struct {
	Quantity int `json:"quantity" validate:"gte=0"`
}

type orderDiscountRequest struct {
	Name    string          `json:"name" validate:"required,max=120"`
	Type    string          `json:"type" validate:"required,oneof=percentage fixed_total fixed_per_item"`
	Value   decimal.Decimal `json:"value" validate:"gt=0"`
	Scope   string          `json:"scope" validate:"omitempty,oneof=all_items specific_items"`
	LineIDs []uuid.UUID     `json:"line_ids"`
}

type lineDiscountRequest struct {
	Name  string          `json:"name" validate:"required,max=120"`
	Type  string          `json:"type" validate:"required,oneof=percentage fixed_total fixed_per_item"`
	Value decimal.Decimal `json:"value" validate:"gt=0"`
}

type setCustomerRequest struct {
	CustomerID *uuid.UUID `json:"customer_id"`
}

type setTaxExemptRequest struct {
	TaxExempt   bool    `json:"tax_exempt"`
	Certificate *string `json:"certificate" validate:"omitempty,max=120"`
}

type setNotesRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=1000"`
}

type addPaymentRequest struct {
	Method              string           `json:"method" validate:"required,oneof=cash debit credit store_credit gift_certificate other"`
	Amount              *decimal.Decimal `json:"amount" validate:"omitempty,gt=0"`
	AmountTendered      *decimal.Decimal `json:"amount_tendered" validate:"omitempty,gt=0"`
	GiftCertificateCode string           `json:"gift_certificate_code" validate:"max=64"`
	Reference           *string          `json:"reference" validate:"omitempty,max=120"`
}

type refundLineRequest struct {
	OrderLineID uuid.UUID        `json:"order_line_id" validate:"required"`
	Quantity    int              `json:"quantity" validate:"gte=0"`
	Amount      *decimal.Decimal `json:"amount" validate:"omitempty,gt=0"`
	Restock     bool             `json:"restock"`
}

type refundRequest struct {
	Reason string              `json:"reason" validate:"required,max=500"`
	Lines  []refundLineRequest `json:"lines" validate:"required,min=1,dive"`
}
