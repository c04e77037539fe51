package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tenantcore/configvault/model"
	"gorm.io/gorm"
)

// useSystemDefaultsKey marks per-task reverts inside an llm_tasks override
// document. It is merge-time metadata only and never appears in the output.
const useSystemDefaultsKey = "use_system_defaults"

// EffectiveConfigService computes the configuration a project actually
// operates under: the system map with the project's override document deep
// merged on top. The result is derived per request and never persisted.
type EffectiveConfigService struct {
	db            *gorm.DB
	configService *SystemConfigService
}

// NewEffectiveConfigService creates a new effective configuration service
func NewEffectiveConfigService(db *gorm.DB, configService *SystemConfigService) *EffectiveConfigService {
	return &EffectiveConfigService{
		db:            db,
		configService: configService,
	}
}

// ResolveProject loads a project's override document and resolves it against
// the current system configuration.
func (s *EffectiveConfigService) ResolveProject(ctx context.Context, projectID uint) (map[string]interface{}, error) {
	var project model.Project
	if err := s.db.WithContext(ctx).First(&project, projectID).Error; err != nil {
		return nil, fmt.Errorf("failed to load project %d: %w", projectID, err)
	}

	var overrides map[string]interface{}
	if len(project.ConfigOverrides) > 0 {
		if err := json.Unmarshal(project.ConfigOverrides, &overrides); err != nil {
			return nil, fmt.Errorf("failed to parse overrides for project %d: %w", projectID, err)
		}
	}

	return s.Resolve(ctx, overrides), nil
}

// Resolve merges a project override document over the system configuration.
// With no overrides the system map is returned as a private copy, so callers
// can never mutate shared cache state.
func (s *EffectiveConfigService) Resolve(ctx context.Context, overrides map[string]interface{}) map[string]interface{} {
	system, _ := s.configService.GetAll(ctx)
	if len(overrides) == 0 {
		return system
	}

	result := system // GetAll already returned a private copy
	for key, override := range overrides {
		switch key {
		case ConfigKeyLLMTasks:
			result[key] = mergeTaskOverrides(asMap(system[key]), asMap(override))
		case ConfigKeyPrompts:
			result[key] = mergePromptOverrides(asMap(system[key]), asMap(override))
		case ConfigKeyGraph:
			// Structural overrides for optional subsystems only apply when
			// explicitly enabled; a disabled override is ignored entirely.
			overrideMap := asMap(override)
			if enabled, ok := overrideMap["enabled"].(bool); ok && enabled {
				result[key] = deepMerge(asMap(system[key]), overrideMap)
			}
		default:
			if target, source := asMap(result[key]), asMap(override); target != nil && source != nil {
				result[key] = deepMerge(target, source)
			} else {
				result[key] = deepCopyValue(override)
			}
		}
	}

	return result
}

// mergeTaskOverrides merges per-task provider/model overrides key by key, then
// applies the use_system_defaults revert flags: every task flagged true gets
// the system value back regardless of what the merge produced. The flag map
// itself is stripped from the output.
func mergeTaskOverrides(system, override map[string]interface{}) map[string]interface{} {
	if override == nil {
		return deepCopyMap(system)
	}

	reverts := revertFlags(override[useSystemDefaultsKey])

	trimmed := make(map[string]interface{}, len(override))
	for k, v := range override {
		if k == useSystemDefaultsKey {
			continue
		}
		trimmed[k] = v
	}

	merged := deepMerge(system, trimmed)

	for task, revert := range reverts {
		if !revert {
			continue
		}
		if systemValue, ok := system[task]; ok {
			merged[task] = deepCopyValue(systemValue)
		} else {
			delete(merged, task)
		}
	}

	return merged
}

// revertFlags normalizes the use_system_defaults document, which arrives as
// map[string]bool from Go callers and map[string]interface{} from JSON.
func revertFlags(v interface{}) map[string]bool {
	switch flags := v.(type) {
	case map[string]bool:
		return flags
	case map[string]interface{}:
		out := make(map[string]bool, len(flags))
		for task, flag := range flags {
			b, _ := flag.(bool)
			out[task] = b
		}
		return out
	default:
		return nil
	}
}

// mergePromptOverrides merges prompt overrides key by key. An override that is
// empty or blank after trimming is treated as "no override" so an accidental
// blank submission never clears a working system prompt.
func mergePromptOverrides(system, override map[string]interface{}) map[string]interface{} {
	merged := deepCopyMap(system)
	for name, value := range override {
		if text, ok := value.(string); ok && strings.TrimSpace(text) == "" {
			continue
		}
		merged[name] = deepCopyValue(value)
	}
	return merged
}

// deepMerge recursively merges source onto target and returns a new map.
// Only plain mappings merge; any other value, including arrays, is replaced
// wholesale.
func deepMerge(target, source map[string]interface{}) map[string]interface{} {
	merged := deepCopyMap(target)
	for key, sourceValue := range source {
		if targetMap, ok := merged[key].(map[string]interface{}); ok {
			if sourceMap := asMap(sourceValue); sourceMap != nil {
				merged[key] = deepMerge(targetMap, sourceMap)
				continue
			}
		}
		merged[key] = deepCopyValue(sourceValue)
	}
	return merged
}

// deepCopyMap returns a recursive copy of a plain mapping
func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

// deepCopyConfigMap copies a full configuration map for handing to callers
func deepCopyConfigMap(m map[string]interface{}) map[string]interface{} {
	return deepCopyMap(m)
}

// deepCopyValue copies nested maps and slices; scalars are returned as is
func deepCopyValue(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(typed)
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, item := range typed {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

// asMap returns v as a plain mapping, or nil when it is not one
func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}
