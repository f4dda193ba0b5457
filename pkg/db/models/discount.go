package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlez-backend/pkg/enums"
)

// Discount is a store-wide discount definition evaluated by auto-apply.
type Discount struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name         string             `gorm:"column:name;not null"`
	Type         enums.DiscountType `gorm:"column:type;type:discount_type;not null"`
	Value        decimal.Decimal    `gorm:"column:value;type:numeric(12,4);not null"`
	Active       bool               `gorm:"column:active;not null;default:true"`
	StartsAt     *time.Time         `gorm:"column:starts_at"`
	EndsAt       *time.Time         `gorm:"column:ends_at"`
	AppliesToAll bool               `gorm:"column:applies_to_all;not null;default:false"`
	DeletedAt    gorm.DeletedAt     `gorm:"column:deleted_at;index"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`

	Items []DiscountItem `gorm:"foreignKey:DiscountID"`
}

func (d *Discount) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

// DiscountItem allows or denies one target for a discount.
type DiscountItem struct {
	ID         uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	DiscountID uuid.UUID                `gorm:"column:discount_id;type:uuid;not null;index"`
	TargetType enums.DiscountTargetType `gorm:"column:target_type;type:discount_target_type;not null"`
	TargetID   uuid.UUID                `gorm:"column:target_id;type:uuid;not null"`
	Mode       enums.DiscountItemMode   `gorm:"column:mode;type:discount_item_mode;not null;default:'allowed'"`
	CreatedAt  time.Time                `gorm:"column:created_at;autoCreateTime"`
}

func (i *DiscountItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
