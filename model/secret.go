package model

import (
	"fmt"
	"time"
)

// SecretScope identifies whether a secret belongs to the whole system or to a
// single project (tenant).
type SecretScope string

const (
	SecretScopeSystem  SecretScope = "system"
	SecretScopeProject SecretScope = "project"
)

// Secret stores an encrypted credential scoped to the system or to one project.
// Exactly one row may exist per (scope, name, project_id); ProjectID is null
// when and only when the scope is system.
type Secret struct {
	ID             uint        `gorm:"primaryKey" json:"id"`
	Scope          SecretScope `gorm:"not null;type:varchar(20);uniqueIndex:idx_secret_identity" json:"scope"`
	ProjectID      *uint       `gorm:"uniqueIndex:idx_secret_identity" json:"project_id"`
	Name           string      `gorm:"not null;type:varchar(100);uniqueIndex:idx_secret_identity" json:"name"`
	Provider       string      `gorm:"type:varchar(50);index" json:"provider"`
	EncryptedValue []byte      `gorm:"not null;type:bytea" json:"-"` // Never expose ciphertext
	Nonce          []byte      `gorm:"not null;type:bytea" json:"-"` // GCM nonce
	MaskedValue    string      `gorm:"not null;type:varchar(100)" json:"masked_value"`
	IsValid        bool        `gorm:"not null;default:true" json:"is_valid"`
	CreatedBy      string      `gorm:"type:varchar(255)" json:"created_by"`
	UpdatedBy      string      `gorm:"type:varchar(255)" json:"updated_by"`
	LastUsedAt     *time.Time  `json:"last_used_at"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`

	// Relationships
	Project *Project `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Secret
func (Secret) TableName() string {
	return "secrets"
}

// IdentityKey returns the composite identity used for write serialization and
// lookups. Secrets are unique per (scope, name, project_id).
func (s *Secret) IdentityKey() string {
	return SecretIdentityKey(s.Scope, s.Name, s.ProjectID)
}

// SecretIdentityKey builds the composite identity string for a secret.
func SecretIdentityKey(scope SecretScope, name string, projectID *uint) string {
	if projectID == nil {
		return fmt.Sprintf("%s/%s", scope, name)
	}
	return fmt.Sprintf("%s/%s/%d", scope, name, *projectID)
}
