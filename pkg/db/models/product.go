package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/enums"
)

// Product is a stocked catalog item.
type Product struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Code           string          `gorm:"column:code;not null;uniqueIndex"`
	Name           string          `gorm:"column:name;not null"`
	Price          decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	TaxCodeID      *uuid.UUID      `gorm:"column:tax_code_id;type:uuid"`
	ProductGroupID *uuid.UUID      `gorm:"column:product_group_id;type:uuid"`
	TrackInventory bool            `gorm:"column:track_inventory;not null;default:false"`
	StockQuantity  int             `gorm:"column:stock_quantity;not null;default:0"`
	Active         bool            `gorm:"column:active;not null;default:true"`
	DeletedAt      gorm.DeletedAt  `gorm:"column:deleted_at;index"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	TaxCode *TaxCode `gorm:"foreignKey:TaxCodeID"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

func (p *Product) SellableRef() (enums.SellableType, uuid.UUID) {
	return enums.SellableProduct, p.ID
}
func (p *Product) SellableCode() string           { return p.Code }
func (p *Product) SellableName() string           { return p.Name }
func (p *Product) SellablePrice() decimal.Decimal { return p.Price }
func (p *Product) SellableTaxCode() *TaxCode      { return p.TaxCode }
func (p *Product) SellableGroupID() *uuid.UUID    { return p.ProductGroupID }

// Service is a non-stocked catalog item such as labour.
type Service struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Code      string          `gorm:"column:code;not null;uniqueIndex"`
	Name      string          `gorm:"column:name;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	TaxCodeID *uuid.UUID      `gorm:"column:tax_code_id;type:uuid"`
	Active    bool            `gorm:"column:active;not null;default:true"`
	DeletedAt gorm.DeletedAt  `gorm:"column:deleted_at;index"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`

	TaxCode *TaxCode `gorm:"foreignKey:TaxCodeID"`
}

func (s *Service) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

func (s *Service) SellableRef() (enums.SellableType, uuid.UUID) {
	return enums.SellableService, s.ID
}
func (s *Service) SellableCode() string           { return s.Code }
func (s *Service) SellableName() string           { return s.Name }
func (s *Service) SellablePrice() decimal.Decimal { return s.Price }
func (s *Service) SellableTaxCode() *TaxCode      { return s.TaxCode }
func (s *Service) SellableGroupID() *uuid.UUID    { return nil }

// TaxCode is a named tax rate, e.g. HST at 0.13.
type TaxCode struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Code      string          `gorm:"column:code;not null;uniqueIndex"`
	Name      string          `gorm:"column:name;not null"`
	Rate      decimal.Decimal `gorm:"column:rate;type:numeric(6,4);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *TaxCode) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// Customer carries an optional tax code that overrides the sellable's own.
type Customer struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Name      string         `gorm:"column:name;not null"`
	Email     *string        `gorm:"column:email"`
	TaxCodeID *uuid.UUID     `gorm:"column:tax_code_id;type:uuid"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`

	TaxCode *TaxCode `gorm:"foreignKey:TaxCodeID"`
}

func (c *Customer) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
