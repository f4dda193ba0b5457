package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/enums"
)

// GiftCertificate is a stored-value instrument. Its balance only moves
// through locked increments and decrements tied to payments.
type GiftCertificate struct {
	ID               uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	Code             string                      `gorm:"column:code;not null;uniqueIndex"`
	Status           enums.GiftCertificateStatus `gorm:"column:status;type:gift_certificate_status;not null;default:'pending'"`
	InitialAmount    decimal.Decimal             `gorm:"column:initial_amount;type:numeric(12,2);not null"`
	RemainingBalance decimal.Decimal             `gorm:"column:remaining_balance;type:numeric(12,2);not null"`
	SoldOnOrderID    *uuid.UUID                  `gorm:"column:sold_on_order_id;type:uuid"`
	ActivatedAt      *time.Time                  `gorm:"column:activated_at"`
	CreatedAt        time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}

func (g *GiftCertificate) BeforeCreate(*gorm.DB) error {
	ensureID(&g.ID)
	return nil
}

func (g *GiftCertificate) SellableRef() (enums.SellableType, uuid.UUID) {
	return enums.SellableGiftCertificate, g.ID
}
func (g *GiftCertificate) SellableCode() string           { return g.Code }
func (g *GiftCertificate) SellableName() string           { return "Gift Certificate " + g.Code }
func (g *GiftCertificate) SellablePrice() decimal.Decimal { return g.InitialAmount }

// SellableTaxCode is always nil: selling stored value is not a taxable supply.
func (g *GiftCertificate) SellableTaxCode() *TaxCode   { return nil }
func (g *GiftCertificate) SellableGroupID() *uuid.UUID { return nil }
