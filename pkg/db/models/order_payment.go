package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/enums"
)

// OrderPayment is a single tender recorded against an order.
type OrderPayment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Method            enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	AmountTendered    decimal.Decimal     `gorm:"column:amount_tendered;type:numeric(12,2);not null;default:0"`
	ChangeGiven       decimal.Decimal     `gorm:"column:change_given;type:numeric(12,2);not null;default:0"`
	GiftCertificateID *uuid.UUID          `gorm:"column:gift_certificate_id;type:uuid"`
	Reference         *string             `gorm:"column:reference"`
	CreatedBy         uuid.UUID           `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
}

func (p *OrderPayment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
