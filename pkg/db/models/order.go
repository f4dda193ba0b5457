package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/enums"
	"github.com/angelmondragon/settlez-backend/pkg/types"
)

// Order is the settlement aggregate root. Lines, order discounts and payments
// are loaded with it and persisted only while the order is not finalized.
type Order struct {
	ID                    uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber           string            `gorm:"column:order_number;not null;uniqueIndex"`
	Status                enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'draft'"`
	CustomerID            *uuid.UUID        `gorm:"column:customer_id;type:uuid"`
	CreatedBy             uuid.UUID         `gorm:"column:created_by;type:uuid;not null"`
	CashDrawerSessionID   *uuid.UUID        `gorm:"column:cash_drawer_session_id;type:uuid"`
	Subtotal              decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null;default:0"`
	DiscountTotal         decimal.Decimal   `gorm:"column:discount_total;type:numeric(12,2);not null;default:0"`
	TaxTotal              decimal.Decimal   `gorm:"column:tax_total;type:numeric(12,2);not null;default:0"`
	Total                 decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null;default:0"`
	TaxExempt             bool              `gorm:"column:tax_exempt;not null;default:false"`
	TaxExemptCertificate  *string           `gorm:"column:tax_exempt_certificate"`
	Notes                 *string           `gorm:"column:notes"`
	OverriddenDiscountIDs types.UUIDSet     `gorm:"column:overridden_discount_ids;type:jsonb;not null;default:'[]'"`
	HeldAt                *time.Time        `gorm:"column:held_at"`
	CompletedAt           *time.Time        `gorm:"column:completed_at"`
	CancelledAt           *time.Time        `gorm:"column:cancelled_at"`
	DeletedAt             gorm.DeletedAt    `gorm:"column:deleted_at;index"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Lines     []OrderLine     `gorm:"foreignKey:OrderID"`
	Discounts []OrderDiscount `gorm:"foreignKey:OrderID"`
	Payments  []OrderPayment  `gorm:"foreignKey:OrderID"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// LineByID returns a pointer into Lines so callers can mutate in place.
func (o *Order) LineByID(id uuid.UUID) *OrderLine {
	for i := range o.Lines {
		if o.Lines[i].ID == id {
			return &o.Lines[i]
		}
	}
	return nil
}

// OrderLine is a by-value snapshot of a sellable at the time it was added.
type OrderLine struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	SellableType   enums.SellableType `gorm:"column:sellable_type;type:sellable_type;not null"`
	SellableID     uuid.UUID          `gorm:"column:sellable_id;type:uuid;not null"`
	Code           string             `gorm:"column:code;not null"`
	Name           string             `gorm:"column:name;not null"`
	UnitPrice      decimal.Decimal    `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity       int                `gorm:"column:quantity;not null"`
	TaxCodeID      *uuid.UUID         `gorm:"column:tax_code_id;type:uuid"`
	TaxRate        decimal.Decimal    `gorm:"column:tax_rate;type:numeric(6,4);not null;default:0"`
	ProductGroupID *uuid.UUID         `gorm:"column:product_group_id;type:uuid"`
	DiscountAmount decimal.Decimal    `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	TaxAmount      decimal.Decimal    `gorm:"column:tax_amount;type:numeric(12,2);not null;default:0"`
	LineTotal      decimal.Decimal    `gorm:"column:line_total;type:numeric(12,2);not null;default:0"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime"`

	Discounts []OrderLineDiscount `gorm:"foreignKey:OrderLineID"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// Gross is unit_price * quantity before any discount.
func (l OrderLine) Gross() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Taxable is the gross amount net of the line's discount.
func (l OrderLine) Taxable() decimal.Decimal {
	return l.Gross().Sub(l.DiscountAmount)
}

// OrderLineDiscount is one allocation of a discount source onto one line.
type OrderLineDiscount struct {
	ID               uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderLineID      uuid.UUID          `gorm:"column:order_line_id;type:uuid;not null;index"`
	DiscountID       *uuid.UUID         `gorm:"column:discount_id;type:uuid"`
	Name             string             `gorm:"column:name;not null"`
	Type             enums.DiscountType `gorm:"column:type;type:discount_type;not null"`
	Value            decimal.Decimal    `gorm:"column:value;type:numeric(12,4);not null"`
	Amount           decimal.Decimal    `gorm:"column:calculated_amount;type:numeric(12,2);not null;default:0"`
	AutoApplied      bool               `gorm:"column:auto_applied;not null;default:false"`
	ExcludedQuantity int                `gorm:"column:excluded_quantity;not null;default:0"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (d *OrderLineDiscount) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

// AppliedQuantity is the number of the line's units still receiving this discount.
func (d OrderLineDiscount) AppliedQuantity(lineQuantity int) int {
	applied := lineQuantity - d.ExcludedQuantity
	if applied < 0 {
		return 0
	}
	return applied
}

// OrderDiscount is a manual order-level discount.
type OrderDiscount struct {
	ID        uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	Name      string                   `gorm:"column:name;not null"`
	Type      enums.DiscountType       `gorm:"column:type;type:discount_type;not null"`
	Value     decimal.Decimal          `gorm:"column:value;type:numeric(12,4);not null"`
	Scope     enums.OrderDiscountScope `gorm:"column:scope;type:order_discount_scope;not null;default:'all_items'"`
	LineIDs   types.UUIDSet            `gorm:"column:line_ids;type:jsonb;not null;default:'[]'"`
	Amount    decimal.Decimal          `gorm:"column:calculated_amount;type:numeric(12,2);not null;default:0"`
	CreatedBy uuid.UUID                `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt time.Time                `gorm:"column:created_at;autoCreateTime"`
}

func (d *OrderDiscount) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
