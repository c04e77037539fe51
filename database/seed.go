package database

import (
	"encoding/json"
	"fmt"

	"github.com/tenantcore/configvault/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunSeeds populates a fresh database with a demo project so the API has
// something to resolve configuration against. Seeding is idempotent: it does
// nothing when projects already exist.
func RunSeeds(db *gorm.DB) error {
	var count int64
	if err := db.Model(&model.Project{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count projects: %w", err)
	}
	if count > 0 {
		fmt.Println("Projects already exist, skipping seed")
		return nil
	}

	overrides, err := json.Marshal(map[string]interface{}{
		"llm_tasks": map[string]interface{}{
			"chat": map[string]interface{}{
				"provider": "anthropic",
				"model":    "claude-3-5-sonnet-latest",
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode demo overrides: %w", err)
	}

	demo := model.Project{
		Name:            "demo",
		Description:     "Demo project seeded for local development",
		ConfigOverrides: datatypes.JSON(overrides),
		CreatedBy:       "seed",
	}
	if err := db.Create(&demo).Error; err != nil {
		return fmt.Errorf("failed to create demo project: %w", err)
	}

	fmt.Printf("✅ Created demo project (id=%d, public_id=%s)\n", demo.ID, demo.PublicID)
	return nil
}
