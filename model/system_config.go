package model

import (
	"time"

	"gorm.io/datatypes"
)

// SystemConfig represents one system-wide configuration entry. There is exactly
// one row per key; writes upsert in place and a delete reverts the key to its
// hardcoded default rather than leaving a tombstone.
type SystemConfig struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Key         string         `gorm:"uniqueIndex;not null;type:varchar(100)" json:"key"`
	Value       datatypes.JSON `gorm:"type:jsonb;not null" json:"value"`
	Description string         `gorm:"type:text" json:"description"`
	UpdatedBy   string         `gorm:"type:varchar(255)" json:"updated_by"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TableName specifies the table name for SystemConfig
func (SystemConfig) TableName() string {
	return "system_configs"
}
