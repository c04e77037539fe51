package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tenantcore/configvault/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConfigSource reports where a configuration value came from. It exists for
// observability and tests; callers must not branch on it.
type ConfigSource string

const (
	ConfigSourceCache    ConfigSource = "cache"
	ConfigSourceDatabase ConfigSource = "database"
	ConfigSourceDefault  ConfigSource = "default"
)

// configCacheTTL bounds how stale the in-process configuration snapshot may get.
const configCacheTTL = 60 * time.Second

// ConfigChangeListener receives the changed key and its new value. A nil value
// signals reversion to the hardcoded default for that key.
type ConfigChangeListener func(key string, value interface{})

// configCache holds the full merged configuration in a single slot. Any write
// invalidates the whole slot; there is no per-key invalidation.
type configCache struct {
	mu        sync.RWMutex
	data      map[string]interface{}
	expiresAt time.Time
}

func (c *configCache) get() (map[string]interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *configCache) set(data map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = time.Now().Add(configCacheTTL)
}

func (c *configCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// SystemConfigService provides typed access to system-wide configuration,
// merging persisted rows over the hardcoded default table. Reads never fail:
// a missing row or an unreachable database degrades to the defaults.
type SystemConfigService struct {
	db    *gorm.DB
	cache configCache

	listenerMu sync.Mutex
	listeners  map[int]ConfigChangeListener
	nextID     int
}

// NewSystemConfigService creates a new system configuration service. Each
// instance owns its cache and listener registry, so instances in tests do not
// share state.
func NewSystemConfigService(db *gorm.DB) *SystemConfigService {
	return &SystemConfigService{
		db:        db,
		listeners: make(map[int]ConfigChangeListener),
	}
}

// Get returns the effective system value for a single key and where it came
// from. A database error or a missing row falls back to the hardcoded default;
// the settings layer must never block unrelated functionality on a read.
func (s *SystemConfigService) Get(ctx context.Context, key string) (interface{}, ConfigSource) {
	if cached, ok := s.cache.get(); ok {
		if value, exists := cached[key]; exists {
			return deepCopyValue(value), ConfigSourceCache
		}
	}

	var row model.SystemConfig
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if err == nil {
		var value interface{}
		if jsonErr := json.Unmarshal(row.Value, &value); jsonErr == nil {
			return value, ConfigSourceDatabase
		}
	}

	return deepCopyValue(DefaultSystemConfig()[key]), ConfigSourceDefault
}

// GetAll returns the full configuration map: every persisted row merged over a
// copy of the default table. The merged result is cached for configCacheTTL.
func (s *SystemConfigService) GetAll(ctx context.Context) (map[string]interface{}, ConfigSource) {
	if cached, ok := s.cache.get(); ok {
		return deepCopyConfigMap(cached), ConfigSourceCache
	}

	merged := DefaultSystemConfig()

	var rows []model.SystemConfig
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		// Availability over consistency: serve defaults when the store is down.
		return merged, ConfigSourceDefault
	}

	for _, row := range rows {
		var value interface{}
		if err := json.Unmarshal(row.Value, &value); err != nil {
			log.Printf("SystemConfigService: skipping unparseable value for key %q: %v", row.Key, err)
			continue
		}
		merged[row.Key] = value
	}

	s.cache.set(merged)
	return deepCopyConfigMap(merged), ConfigSourceDatabase
}

// Set upserts a configuration value, invalidates the cache and notifies all
// registered listeners synchronously. Write errors are surfaced to the caller
// with no retry.
func (s *SystemConfigService) Set(ctx context.Context, key string, value interface{}, updatedBy, description string) error {
	if key == "" {
		return fmt.Errorf("config key is required")
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode config value: %w", err)
	}

	if description == "" {
		if _, known := DefaultSystemConfig()[key]; known {
			description = fmt.Sprintf("System default for %s", key)
		}
	}

	row := model.SystemConfig{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: description,
		UpdatedBy:   updatedBy,
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_by", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to save config %q: %w", key, err)
	}

	s.cache.invalidate()
	s.notify(key, value)
	return nil
}

// Delete removes a persisted value, reverting the key to its hardcoded
// default. Listeners are notified with a nil value.
func (s *SystemConfigService) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("key = ?", key).Delete(&model.SystemConfig{}).Error; err != nil {
		return fmt.Errorf("failed to delete config %q: %w", key, err)
	}

	s.cache.invalidate()
	s.notify(key, nil)
	return nil
}

// OnChange registers a change listener and returns an unsubscribe function.
// Unsubscribing is idempotent and safe to call multiple times.
func (s *SystemConfigService) OnChange(listener ConfigChangeListener) func() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = listener

	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		delete(s.listeners, id)
	}
}

// notify fans out a change to every registered listener. Listeners run
// synchronously with respect to the triggering write, but each invocation is
// isolated so a panicking listener cannot abort the write or starve the rest.
func (s *SystemConfigService) notify(key string, value interface{}) {
	s.listenerMu.Lock()
	snapshot := make([]ConfigChangeListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		snapshot = append(snapshot, l)
	}
	s.listenerMu.Unlock()

	for _, listener := range snapshot {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("SystemConfigService: config listener panicked for key %q: %v", key, r)
				}
			}()
			listener(key, value)
		}()
	}
}
