package models

import "time"

// DocumentSequence backs order and refund numbering when redis is not configured.
type DocumentSequence struct {
	Name      string    `gorm:"column:name;primaryKey"`
	Value     int64     `gorm:"column:value;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
