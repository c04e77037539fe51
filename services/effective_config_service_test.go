package services

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/tenantcore/configvault/model"
	"gorm.io/datatypes"
)

func newEffectiveService(t *testing.T) (*EffectiveConfigService, *SystemConfigService) {
	t.Helper()
	db := openTestDB(t)
	configService := NewSystemConfigService(db)
	return NewEffectiveConfigService(db, configService), configService
}

func TestResolveWithoutOverridesReturnsSystemConfig(t *testing.T) {
	svc, _ := newEffectiveService(t)
	ctx := context.Background()

	resolved := svc.Resolve(ctx, nil)
	if !reflect.DeepEqual(resolved, DefaultSystemConfig()) {
		t.Errorf("expected the system configuration unchanged, got %#v", resolved)
	}

	// The result must be a private copy, not the cached map
	resolved["injected"] = true
	again := svc.Resolve(ctx, nil)
	if _, exists := again["injected"]; exists {
		t.Error("mutating a resolved map leaked into shared state")
	}
}

func TestResolveDeepMergesTaskOverrides(t *testing.T) {
	svc, _ := newEffectiveService(t)
	ctx := context.Background()

	resolved := svc.Resolve(ctx, map[string]interface{}{
		ConfigKeyLLMTasks: map[string]interface{}{
			"chat": map[string]interface{}{
				"model": "gpt-4o",
			},
		},
	})

	chat := resolved[ConfigKeyLLMTasks].(map[string]interface{})["chat"].(map[string]interface{})
	if chat["model"] != "gpt-4o" {
		t.Errorf("expected overridden model, got %#v", chat["model"])
	}
	// Sibling fields survive a partial override
	if chat["provider"] != "openai" {
		t.Errorf("expected system provider to survive, got %#v", chat["provider"])
	}
	if chat["temperature"] != 0.7 {
		t.Errorf("expected system temperature to survive, got %#v", chat["temperature"])
	}
}

func TestResolveRevertsFlaggedTasksAndStripsFlags(t *testing.T) {
	svc, _ := newEffectiveService(t)
	ctx := context.Background()

	resolved := svc.Resolve(ctx, map[string]interface{}{
		ConfigKeyLLMTasks: map[string]interface{}{
			"chat": map[string]interface{}{
				"provider": "groq",
				"model":    "llama-3.3-70b",
			},
			"summary": map[string]interface{}{
				"model": "claude-3-opus-latest",
			},
			useSystemDefaultsKey: map[string]interface{}{
				"summary": true,
				"chat":    false,
			},
		},
	})

	tasks := resolved[ConfigKeyLLMTasks].(map[string]interface{})

	// Flagged task reverts to the system value regardless of its override
	systemSummary := DefaultSystemConfig()[ConfigKeyLLMTasks].(map[string]interface{})["summary"]
	if !reflect.DeepEqual(tasks["summary"], systemSummary) {
		t.Errorf("expected summary reverted to system default, got %#v", tasks["summary"])
	}

	// Unflagged task keeps its override
	chat := tasks["chat"].(map[string]interface{})
	if chat["provider"] != "groq" || chat["model"] != "llama-3.3-70b" {
		t.Errorf("expected chat override applied, got %#v", chat)
	}

	// The flag map never appears in the output
	if _, exists := tasks[useSystemDefaultsKey]; exists {
		t.Error("use_system_defaults leaked into the resolved configuration")
	}
}

func TestResolveIgnoresBlankPromptOverrides(t *testing.T) {
	svc, _ := newEffectiveService(t)
	ctx := context.Background()

	resolved := svc.Resolve(ctx, map[string]interface{}{
		ConfigKeyPrompts: map[string]interface{}{
			"system":    "   \n\t",
			"summarize": "Summarize tersely.",
		},
	})

	prompts := resolved[ConfigKeyPrompts].(map[string]interface{})
	systemDefault := DefaultSystemConfig()[ConfigKeyPrompts].(map[string]interface{})["system"]
	if prompts["system"] != systemDefault {
		t.Errorf("blank override must not clear the system prompt, got %#v", prompts["system"])
	}
	if prompts["summarize"] != "Summarize tersely." {
		t.Errorf("non-blank override must apply, got %#v", prompts["summarize"])
	}
}

func TestResolveGraphOverrideRequiresEnabled(t *testing.T) {
	svc, _ := newEffectiveService(t)
	ctx := context.Background()

	// Disabled override is ignored entirely
	resolved := svc.Resolve(ctx, map[string]interface{}{
		ConfigKeyGraph: map[string]interface{}{
			"enabled": false,
			"url":     "bolt://graph.internal:7687",
		},
	})
	graph := resolved[ConfigKeyGraph].(map[string]interface{})
	if graph["url"] != "bolt://localhost:7687" {
		t.Errorf("disabled graph override must be ignored, got %#v", graph["url"])
	}

	// Enabled override merges
	resolved = svc.Resolve(ctx, map[string]interface{}{
		ConfigKeyGraph: map[string]interface{}{
			"enabled": true,
			"url":     "bolt://graph.internal:7687",
		},
	})
	graph = resolved[ConfigKeyGraph].(map[string]interface{})
	if graph["enabled"] != true || graph["url"] != "bolt://graph.internal:7687" {
		t.Errorf("enabled graph override must merge, got %#v", graph)
	}
	if graph["backend"] != "neo4j" {
		t.Errorf("unmentioned graph fields must survive, got %#v", graph["backend"])
	}
}

func TestResolveReplacesArraysWholesale(t *testing.T) {
	svc, configService := newEffectiveService(t)
	ctx := context.Background()

	if err := configService.Set(ctx, "stop_words", []interface{}{"a", "b", "c"}, "admin@example.com", ""); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	resolved := svc.Resolve(ctx, map[string]interface{}{
		"stop_words": []interface{}{"x"},
	})

	want := []interface{}{"x"}
	if !reflect.DeepEqual(resolved["stop_words"], want) {
		t.Errorf("arrays must be replaced, not merged: got %#v", resolved["stop_words"])
	}
}

func TestResolveProjectUsesStoredOverrides(t *testing.T) {
	db := openTestDB(t)
	configService := NewSystemConfigService(db)
	svc := NewEffectiveConfigService(db, configService)
	ctx := context.Background()

	overrides, err := json.Marshal(map[string]interface{}{
		ConfigKeyPrompts: map[string]interface{}{"title": "Name this thread."},
	})
	if err != nil {
		t.Fatalf("failed to marshal overrides: %v", err)
	}

	project := model.Project{
		Name:            "research",
		ConfigOverrides: datatypes.JSON(overrides),
		CreatedBy:       "admin@example.com",
	}
	if err := db.Create(&project).Error; err != nil {
		t.Fatalf("failed to create project: %v", err)
	}

	resolved, err := svc.ResolveProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("ResolveProject failed: %v", err)
	}

	prompts := resolved[ConfigKeyPrompts].(map[string]interface{})
	if prompts["title"] != "Name this thread." {
		t.Errorf("expected stored override applied, got %#v", prompts["title"])
	}

	// A project without overrides resolves to the system configuration
	bare := model.Project{Name: "empty", CreatedBy: "admin@example.com"}
	if err := db.Create(&bare).Error; err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	resolved, err = svc.ResolveProject(ctx, bare.ID)
	if err != nil {
		t.Fatalf("ResolveProject failed: %v", err)
	}
	if !reflect.DeepEqual(resolved, DefaultSystemConfig()) {
		t.Errorf("expected system configuration for project without overrides")
	}

	if _, err := svc.ResolveProject(ctx, 99999); err == nil {
		t.Error("expected error for missing project")
	}
}
