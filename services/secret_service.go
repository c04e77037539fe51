package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tenantcore/configvault/model"
	"gorm.io/gorm"
)

var (
	ErrSecretNotFound     = errors.New("secret not found")
	ErrSecretInvalid      = errors.New("secret is marked invalid")
	ErrSecretNameRequired = errors.New("secret name is required")
	ErrSecretValueEmpty   = errors.New("secret value is required")
	ErrInvalidScope       = errors.New("scope must be system or project")
	ErrProjectIDRequired  = errors.New("project scope requires a project id")
	ErrProjectIDForbidden = errors.New("system scope forbids a project id")

	// Encryption failures are reported generically so callers never see the
	// underlying cryptographic detail.
	ErrEncryptSecret = errors.New("failed to encrypt secret")
	ErrDecryptSecret = errors.New("failed to decrypt secret")

	ErrProviderKeyNotConfigured = errors.New("no API key configured for provider")
)

// Encryptor is the encryption primitive the vault delegates to. The vault only
// orchestrates calls; it never implements cryptography itself.
type Encryptor interface {
	Encrypt(plaintext string) (encrypted []byte, nonce []byte, err error)
	Decrypt(encrypted []byte, nonce []byte) (string, error)
}

// ProviderPattern maps a provider to the literal prefix its keys carry.
// Detection walks this table in order, so more specific prefixes must come
// before prefixes they extend (anthropic's sk-ant- before openai's sk-).
// Providers with an empty prefix are never auto-detected.
type ProviderPattern struct {
	ID        string
	KeyPrefix string
}

var providerPatterns = []ProviderPattern{
	{ID: "anthropic", KeyPrefix: "sk-ant-"},
	{ID: "openrouter", KeyPrefix: "sk-or-"},
	{ID: "groq", KeyPrefix: "gsk_"},
	{ID: "google", KeyPrefix: "AIza"},
	{ID: "openai", KeyPrefix: "sk-"},
	{ID: "ollama", KeyPrefix: ""},
}

// KnownProviders returns the providers the vault understands, in detection order.
func KnownProviders() []string {
	ids := make([]string, 0, len(providerPatterns))
	for _, p := range providerPatterns {
		ids = append(ids, p.ID)
	}
	return ids
}

// DetectProvider classifies a plaintext credential by matching the provider
// prefix table. Returns the empty string when no prefix matches.
func DetectProvider(value string) string {
	for _, p := range providerPatterns {
		if p.KeyPrefix != "" && len(value) >= len(p.KeyPrefix) && value[:len(p.KeyPrefix)] == p.KeyPrefix {
			return p.ID
		}
	}
	return ""
}

const maskGlyphs = "••••"

// MaskSecretValue derives the display form of a secret: first four and last
// four characters with a fixed mask between. Values shorter than eight
// characters are fully masked with nothing revealed. Counted in runes so a
// non-ASCII value never yields a broken display form.
func MaskSecretValue(value string) string {
	runes := []rune(value)
	if len(runes) < 8 {
		return "••••••••"
	}
	return string(runes[:4]) + maskGlyphs + string(runes[len(runes)-4:])
}

// SecretService is the vault: CRUD over encrypted credential rows plus the
// project-then-system fallback chain for resolving provider API keys.
type SecretService struct {
	db     *gorm.DB
	cipher Encryptor

	// Per-identity write locks close the check-then-insert race between two
	// concurrent SetSecret calls for the same (scope, name, project_id).
	writeLocks sync.Map
}

// NewSecretService creates a new secret service
func NewSecretService(db *gorm.DB, cipher Encryptor) *SecretService {
	return &SecretService{
		db:     db,
		cipher: cipher,
	}
}

// SetSecretInput carries everything needed to create or replace a secret
type SetSecretInput struct {
	Scope     model.SecretScope
	ProjectID *uint
	Name      string
	Value     string
	Provider  string
	Actor     string
}

// validateIdentity enforces the scope invariant before any I/O: project scope
// requires a project id, system scope forbids one.
func validateIdentity(scope model.SecretScope, name string, projectID *uint) error {
	if name == "" {
		return ErrSecretNameRequired
	}
	switch scope {
	case model.SecretScopeSystem:
		if projectID != nil {
			return ErrProjectIDForbidden
		}
	case model.SecretScopeProject:
		if projectID == nil {
			return ErrProjectIDRequired
		}
	default:
		return ErrInvalidScope
	}
	return nil
}

// identityQuery scopes a query to one secret identity
func (s *SecretService) identityQuery(ctx context.Context, scope model.SecretScope, name string, projectID *uint) *gorm.DB {
	q := s.db.WithContext(ctx).Where("scope = ? AND name = ?", scope, name)
	if projectID == nil {
		return q.Where("project_id IS NULL")
	}
	return q.Where("project_id = ?", *projectID)
}

func (s *SecretService) lockIdentity(scope model.SecretScope, name string, projectID *uint) *sync.Mutex {
	lock, _ := s.writeLocks.LoadOrStore(model.SecretIdentityKey(scope, name, projectID), &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// SetSecret creates or replaces the secret for one identity. Replacement
// re-encrypts, re-masks and resets is_valid to true. Writes for the same
// identity are serialized so two concurrent calls cannot both insert.
func (s *SecretService) SetSecret(ctx context.Context, input SetSecretInput) (*model.Secret, error) {
	if err := validateIdentity(input.Scope, input.Name, input.ProjectID); err != nil {
		return nil, err
	}
	if input.Value == "" {
		return nil, ErrSecretValueEmpty
	}

	provider := input.Provider
	if provider == "" {
		provider = DetectProvider(input.Value)
	}

	encrypted, nonce, err := s.cipher.Encrypt(input.Value)
	if err != nil {
		log.Printf("SecretService: encryption failed for %s: %v", model.SecretIdentityKey(input.Scope, input.Name, input.ProjectID), err)
		return nil, ErrEncryptSecret
	}

	masked := MaskSecretValue(input.Value)

	lock := s.lockIdentity(input.Scope, input.Name, input.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	var existing model.Secret
	err = s.identityQuery(ctx, input.Scope, input.Name, input.ProjectID).First(&existing).Error
	switch {
	case err == nil:
		existing.Provider = provider
		existing.EncryptedValue = encrypted
		existing.Nonce = nonce
		existing.MaskedValue = masked
		existing.IsValid = true
		existing.UpdatedBy = input.Actor
		if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return nil, fmt.Errorf("failed to update secret: %w", err)
		}
		return &existing, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		secret := model.Secret{
			Scope:          input.Scope,
			ProjectID:      input.ProjectID,
			Name:           input.Name,
			Provider:       provider,
			EncryptedValue: encrypted,
			Nonce:          nonce,
			MaskedValue:    masked,
			IsValid:        true,
			CreatedBy:      input.Actor,
			UpdatedBy:      input.Actor,
		}
		if err := s.db.WithContext(ctx).Create(&secret).Error; err != nil {
			return nil, fmt.Errorf("failed to create secret: %w", err)
		}
		return &secret, nil

	default:
		return nil, fmt.Errorf("failed to look up secret: %w", err)
	}
}

// GetSecret returns the decrypted plaintext and provider for one identity.
// Reserved for callers about to present the credential to an external system.
// A secret marked invalid is an explicit error distinct from not-found.
func (s *SecretService) GetSecret(ctx context.Context, scope model.SecretScope, name string, projectID *uint) (string, string, error) {
	if err := validateIdentity(scope, name, projectID); err != nil {
		return "", "", err
	}

	var secret model.Secret
	if err := s.identityQuery(ctx, scope, name, projectID).First(&secret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", ErrSecretNotFound
		}
		return "", "", fmt.Errorf("failed to look up secret: %w", err)
	}

	if !secret.IsValid {
		return "", "", ErrSecretInvalid
	}

	plaintext, err := s.cipher.Decrypt(secret.EncryptedValue, secret.Nonce)
	if err != nil {
		log.Printf("SecretService: decryption failed for %s: %v", secret.IdentityKey(), err)
		return "", "", ErrDecryptSecret
	}

	s.touchLastUsed(ctx, secret.ID)

	return plaintext, secret.Provider, nil
}

// touchLastUsed records that a secret's plaintext was handed out. Best effort;
// a failed update never fails the read.
func (s *SecretService) touchLastUsed(ctx context.Context, secretID uint) {
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&model.Secret{}).Where("id = ?", secretID).
		Update("last_used_at", now).Error; err != nil {
		log.Printf("SecretService: failed to update last_used_at for secret %d: %v", secretID, err)
	}
}

// GetSecretInfo returns metadata only (masked value, validity, timestamps).
// Safe to expose to any authenticated viewer; never touches the cipher.
func (s *SecretService) GetSecretInfo(ctx context.Context, scope model.SecretScope, name string, projectID *uint) (*model.Secret, error) {
	if err := validateIdentity(scope, name, projectID); err != nil {
		return nil, err
	}

	var secret model.Secret
	if err := s.identityQuery(ctx, scope, name, projectID).First(&secret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("failed to look up secret: %w", err)
	}

	return &secret, nil
}

// ListSecrets returns metadata rows for one scope, ordered by name
func (s *SecretService) ListSecrets(ctx context.Context, scope model.SecretScope, projectID *uint) ([]model.Secret, error) {
	if scope == model.SecretScopeProject && projectID == nil {
		return nil, ErrProjectIDRequired
	}
	if scope == model.SecretScopeSystem && projectID != nil {
		return nil, ErrProjectIDForbidden
	}

	q := s.db.WithContext(ctx).Where("scope = ?", scope)
	if projectID == nil {
		q = q.Where("project_id IS NULL")
	} else {
		q = q.Where("project_id = ?", *projectID)
	}

	var secrets []model.Secret
	if err := q.Order("name ASC").Find(&secrets).Error; err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	return secrets, nil
}

// DeleteSecret permanently removes a secret. No soft delete.
func (s *SecretService) DeleteSecret(ctx context.Context, scope model.SecretScope, name string, projectID *uint) error {
	if err := validateIdentity(scope, name, projectID); err != nil {
		return err
	}

	result := s.identityQuery(ctx, scope, name, projectID).Delete(&model.Secret{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete secret: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSecretNotFound
	}
	return nil
}

// MarkSecretInvalid flags a secret after an external consumer reported an
// authentication failure with it. The value is kept so the owner can inspect
// the masked form; only a new SetSecret resets validity.
func (s *SecretService) MarkSecretInvalid(ctx context.Context, scope model.SecretScope, name string, projectID *uint) error {
	if err := validateIdentity(scope, name, projectID); err != nil {
		return err
	}

	result := s.identityQuery(ctx, scope, name, projectID).Model(&model.Secret{}).Update("is_valid", false)
	if result.Error != nil {
		return fmt.Errorf("failed to mark secret invalid: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSecretNotFound
	}
	return nil
}

// ProviderKeyName is the naming convention for provider credentials
func ProviderKeyName(provider string) string {
	return provider + "_api_key"
}

// GetProviderAPIKey resolves "the API key to use right now" for a provider:
// the project-scoped secret wins when it exists, is valid and decrypts to a
// non-empty value; otherwise the system-scoped secret of the same name is
// used. Fails only when neither yields a usable key.
func (s *SecretService) GetProviderAPIKey(ctx context.Context, provider string, projectID *uint) (string, model.SecretScope, error) {
	if provider == "" {
		return "", "", fmt.Errorf("provider is required")
	}
	name := ProviderKeyName(provider)

	if projectID != nil {
		var secret model.Secret
		err := s.identityQuery(ctx, model.SecretScopeProject, name, projectID).First(&secret).Error
		if err == nil && secret.IsValid {
			plaintext, decErr := s.cipher.Decrypt(secret.EncryptedValue, secret.Nonce)
			if decErr == nil && plaintext != "" {
				s.touchLastUsed(ctx, secret.ID)
				return plaintext, model.SecretScopeProject, nil
			}
		}
	}

	var secret model.Secret
	err := s.identityQuery(ctx, model.SecretScopeSystem, name, nil).First(&secret).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", fmt.Errorf("%w: %s", ErrProviderKeyNotConfigured, provider)
		}
		return "", "", fmt.Errorf("failed to look up secret: %w", err)
	}
	if !secret.IsValid {
		return "", "", ErrSecretInvalid
	}

	plaintext, err := s.cipher.Decrypt(secret.EncryptedValue, secret.Nonce)
	if err != nil {
		log.Printf("SecretService: decryption failed for %s: %v", secret.IdentityKey(), err)
		return "", "", ErrDecryptSecret
	}

	s.touchLastUsed(ctx, secret.ID)
	return plaintext, model.SecretScopeSystem, nil
}

// ProviderStatus summarizes one provider's credential state for display
type ProviderStatus struct {
	Provider    string            `json:"provider"`
	Configured  bool              `json:"configured"`
	Source      model.SecretScope `json:"source,omitempty"`
	MaskedValue string            `json:"masked_value,omitempty"`
	IsValid     bool              `json:"is_valid"`
	LastUsedAt  *time.Time        `json:"last_used_at,omitempty"`
}

// GetConfiguredProviders reports, for every known provider, whether a key is
// configured and its masked display state. The project-scoped row takes
// precedence for display, mirroring the fallback order of GetProviderAPIKey.
func (s *SecretService) GetConfiguredProviders(ctx context.Context, projectID *uint) ([]ProviderStatus, error) {
	statuses := make([]ProviderStatus, 0, len(providerPatterns))

	for _, p := range providerPatterns {
		name := ProviderKeyName(p.ID)
		status := ProviderStatus{Provider: p.ID}

		var secret model.Secret
		found := false

		if projectID != nil {
			err := s.identityQuery(ctx, model.SecretScopeProject, name, projectID).First(&secret).Error
			if err == nil {
				found = true
				status.Source = model.SecretScopeProject
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("failed to look up secret: %w", err)
			}
		}

		if !found {
			err := s.identityQuery(ctx, model.SecretScopeSystem, name, nil).First(&secret).Error
			if err == nil {
				found = true
				status.Source = model.SecretScopeSystem
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("failed to look up secret: %w", err)
			}
		}

		if found {
			status.Configured = true
			status.MaskedValue = secret.MaskedValue
			status.IsValid = secret.IsValid
			status.LastUsedAt = secret.LastUsedAt
		}

		statuses = append(statuses, status)
	}

	return statuses, nil
}
