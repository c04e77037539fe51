package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Project represents a tenant. Each project may carry a configuration override
// document that the effective-config resolver merges over the system defaults,
// and may own project-scoped secrets that shadow system secrets of the same name.
type Project struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	PublicID        string         `gorm:"uniqueIndex;not null;type:varchar(36)" json:"public_id"`
	Name            string         `gorm:"not null;type:varchar(255)" json:"name"`
	Description     string         `gorm:"type:text" json:"description"`
	ConfigOverrides datatypes.JSON `gorm:"type:jsonb" json:"config_overrides"`
	CreatedBy       string         `gorm:"type:varchar(255)" json:"created_by"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for Project
func (Project) TableName() string {
	return "projects"
}

// BeforeCreate hook assigns the public identifier used in URLs and API payloads
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.PublicID == "" {
		p.PublicID = uuid.New().String()
	}
	return nil
}
