package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Refund is the immutable header of a refund against a settled order.
type Refund struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	RefundNumber string          `gorm:"column:refund_number;not null;uniqueIndex"`
	OrderID      uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	Reason       string          `gorm:"column:reason;not null"`
	Total        decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null"`
	ProcessedBy  uuid.UUID       `gorm:"column:processed_by;type:uuid;not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`

	Lines []RefundLine `gorm:"foreignKey:RefundID"`
}

func (r *Refund) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

func (r *Refund) BeforeUpdate(*gorm.DB) error { return ErrImmutableRecord }
func (r *Refund) BeforeDelete(*gorm.DB) error { return ErrImmutableRecord }

// RefundLine records the quantity and amount reversed for one order line.
type RefundLine struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	RefundID    uuid.UUID       `gorm:"column:refund_id;type:uuid;not null;index"`
	OrderLineID uuid.UUID       `gorm:"column:order_line_id;type:uuid;not null;index"`
	Quantity    int             `gorm:"column:quantity;not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Restock     bool            `gorm:"column:restock;not null;default:false"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (l *RefundLine) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

func (l *RefundLine) BeforeUpdate(*gorm.DB) error { return ErrImmutableRecord }
func (l *RefundLine) BeforeDelete(*gorm.DB) error { return ErrImmutableRecord }
