package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tenantcore/configvault/model"
	"github.com/tenantcore/configvault/utils/crypto"
)

func newSecretService(t *testing.T) *SecretService {
	t.Helper()
	db := openTestDB(t)
	cipher := crypto.NewKeyedCipher("test-passphrase", []byte("test-derivation-salt"))
	return NewSecretService(db, cipher)
}

func uintPtr(v uint) *uint { return &v }

func TestMaskSecretValue(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"sk-abcd1234efgh", "sk-a••••efgh"},
		{"12345678", "1234••••5678"},
		{"1234567", "••••••••"},
		{"", "••••••••"},
		{"x", "••••••••"},
		// Multi-byte values mask by rune, never splitting a character
		{"ключ-секрет-значение", "ключ••••ение"},
		{"パスワード", "••••••••"},
	}
	for _, tt := range tests {
		if got := MaskSecretValue(tt.value); got != tt.want {
			t.Errorf("MaskSecretValue(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{"sk-ant-api03-xxxx", "anthropic"}, // more specific prefix wins over sk-
		{"sk-or-v1-xxxx", "openrouter"},
		{"sk-proj-xxxx", "openai"},
		{"gsk_xxxx", "groq"},
		{"AIzaSyXXXX", "google"},
		{"some-random-token", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := DetectProvider(tt.value); got != tt.want {
			t.Errorf("DetectProvider(%q) = %q, want %q", tt.value, got, tt.want)
		}
	}
}

func TestSetSecretScopeValidation(t *testing.T) {
	svc := newSecretService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input SetSecretInput
		want  error
	}{
		{"missing name", SetSecretInput{Scope: model.SecretScopeSystem, Value: "v"}, ErrSecretNameRequired},
		{"empty value", SetSecretInput{Scope: model.SecretScopeSystem, Name: "k", Value: ""}, ErrSecretValueEmpty},
		{"bad scope", SetSecretInput{Scope: "tenant", Name: "k", Value: "v"}, ErrInvalidScope},
		{"system with project id", SetSecretInput{Scope: model.SecretScopeSystem, ProjectID: uintPtr(1), Name: "k", Value: "v"}, ErrProjectIDForbidden},
		{"project without project id", SetSecretInput{Scope: model.SecretScopeProject, Name: "k", Value: "v"}, ErrProjectIDRequired},
	}
	for _, tt := range tests {
		if _, err := svc.SetSecret(ctx, tt.input); !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestSetSecretRoundTrip(t *testing.T) {
	svc := newSecretService(t)
	ctx := context.Background()

	secret, err := svc.SetSecret(ctx, SetSecretInput{
		Scope: model.SecretScopeSystem,
		Name:  "openai_api_key",
		Value: "sk-proj-1234567890abcdef",
		Actor: "admin@example.com",
	})
	if err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}

	if secret.Provider != "openai" {
		t.Errorf("expected auto-detected provider openai, got %q", secret.Provider)
	}
	if secret.MaskedValue != "sk-p••••cdef" {
		t.Errorf("unexpected masked value %q", secret.MaskedValue)
	}
	if !secret.IsValid {
		t.Error("new secret must start valid")
	}
	if len(secret.EncryptedValue) == 0 || string(secret.EncryptedValue) == "sk-proj-1234567890abcdef" {
		t.Error("stored value must be encrypted")
	}

	plaintext, provider, err := svc.GetSecret(ctx, model.SecretScopeSystem, "openai_api_key", nil)
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if plaintext != "sk-proj-1234567890abcdef" {
		t.Errorf("round trip lost the plaintext: %q", plaintext)
	}
	if provider != "openai" {
		t.Errorf("expected provider openai, got %q", provider)
	}

	// Reading the plaintext records usage
	info, err := svc.GetSecretInfo(ctx, model.SecretScopeSystem, "openai_api_key", nil)
	if err != nil {
		t.Fatalf("GetSecretInfo failed: %v", err)
	}
	if info.LastUsedAt == nil {
		t.Error("expected last_used_at set after plaintext read")
	}
}

func TestSetSecretReplacesAndResetsValidity(t *testing.T) {
	svc := newSecretService(t)
	ctx := context.Background()

	if _, err := svc.SetSecret(ctx, SetSecretInput{
		Scope: model.SecretScopeSystem, Name: "anthropic_api_key",
		Value: "sk-ant-old-0000000000", Actor: "admin@example.com",
	}); err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}
	if err := svc.MarkSecretInvalid(ctx, model.SecretScopeSystem, "anthropic_api_key", nil); err != nil {
		t.Fatalf("MarkSecretInvalid failed: %v", err)
	}

	replaced, err := svc.SetSecret(ctx, SetSecretInput{
		Scope: model.SecretScopeSystem, Name: "anthropic_api_key",
		Value: "sk-ant-new-1111111111", Actor: "rotator@example.com",
	})
	if err != nil {
		t.Fatalf("replacement SetSecret failed: %v", err)
	}
	if !replaced.IsValid {
		t.Error("replacement must reset validity")
	}
	if replaced.UpdatedBy != "rotator@example.com" {
		t.Errorf("expected updated_by recorded, got %q", replaced.UpdatedBy)
	}

	// Still exactly one row for the identity
	secrets, err := svc.ListSecrets(ctx, model.SecretScopeSystem, nil)
	if err != nil {
		t.Fatalf("ListSecrets failed: %v", err)
	}
	if len(secrets) != 1 {
		t.Fatalf("expected 1 secret after replacement, got %d", len(secrets))
	}

	plaintext, _, err := svc.GetSecret(ctx, model.SecretScopeSystem, "anthropic_api_key", nil)
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if plaintext != "sk-ant-new-1111111111" {
		t.Errorf("expected replacement value, got %q", plaintext)
	}
}

func TestGetSecretInvalidDistinctFromNotFound(t *testing.T) {
	svc := newSecretService(t)
	ctx := context.Background()

	if _, _, err := svc.GetSecret(ctx, model.SecretScopeSystem, "missing", nil); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("expected ErrSecretNotFound, got %v", err)
	}

	if _, err := svc.SetSecret(ctx, SetSecretInput{
		Scope: model.SecretScopeSystem, Name: "revoked_key",
		Value: "gsk_12345678abcd", Actor: "admin@example.com",
	}); err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}
	if err := svc.MarkSecretInvalid(ctx, model.SecretScopeSystem, "revoked_key", nil); err != nil {
		t.Fatalf("MarkSecretInvalid failed: %v", err)
	}

	if _, _, err := svc.GetSecret(ctx, model.SecretScopeSystem, "revoked_key", nil); !errors.Is(err, ErrSecretInvalid) {
		t.Errorf("expected ErrSecretInvalid, got %v", err)
	}

	// Metadata stays readable so the owner can inspect the masked value
	info, err := svc.GetSecretInfo(ctx, model.SecretScopeSystem, "revoked_key", nil)
	if err != nil {
		t.Fatalf("GetSecretInfo failed: %v", err)
	}
	if info.IsValid {
		t.Error("expected is_valid false after invalidation")
	}
}

func TestScopeIsolation(t *testing.T) {
	svc := newSecretService(t)
	ctx := context.Background()

	// Same name in system scope and two project scopes coexist
	if _, err := svc.SetSecret(ctx, SetSecretInput{
		Scope: model.SecretScopeSystem, Name: "openai_api_key",
		Value: "sk-system-000000", Actor: "admin@example.com",
	}); err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}
	for _, pid := range []uint{1, 2} {
		if _, err := svc.SetSecret(ctx, SetSecretInput{
			Scope: model.SecretScopeProject, ProjectID: uintPtr(pid), Name: "openai_api_key",
			Value: "sk-project-000000", Actor: "admin@example.com",
		}); err != nil {
			t.Fatalf("SetSecret failed for project %d: %v", pid, err)
		}
	}

	system, err := svc.ListSecrets(ctx, model.SecretScopeSystem, nil)
	if err != nil {
		t.Fatalf("ListSecrets failed: %v", err)
	}
	if len(system) != 1 {
		t.Errorf("expected 1 system secret, got %d", len(system))
	}

	projectOne, err := svc.ListSecrets(ctx, model.SecretScopeProject, uintPtr(1))
	if err != nil {
		t.Fatalf("ListSecrets failed: %v", err)
	}
	if len(projectOne) != 1 {
		t.Errorf("expected 1 secret for project 1, got %d", len(projectOne))
	}

	// Deleting one project's secret leaves the others alone
	if err := svc.DeleteSecret(ctx, model.SecretScopeProject, "openai_api_key", uintPtr(1)); err != nil {
		t.Fatalf("DeleteSecret failed: %v", err)
	}
	if _, _, err := svc.GetSecret(ctx, model.SecretScopeProject, "openai_api_key", uintPtr(1)); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("expected deleted secret gone, got %v", err)
	}
	if _, _, err := svc.GetSecret(ctx, model.SecretScopeProject, "openai_api_key", uintPtr(2)); err != nil {
		t.Errorf("sibling project secret must survive: %v", err)
	}
	if _, _, err := svc.GetSecret(ctx, model.SecretScopeSystem, "openai_api_key", nil); err != nil {
		t.Errorf("system secret must survive: %v", err)
	}
}

func TestDeleteSecretNotFound(t *testing.T) {
	svc := newSecretService(t)
	ctx := context.Background()

	if err := svc.DeleteSecret(ctx, model.SecretScopeSystem, "missing", nil); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("expected ErrSecretNotFound, got %v", err)
	}
	if err := svc.MarkSecretInvalid(ctx, model.SecretScopeSystem, "missing", nil); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("expected ErrSecretNotFound, got %v", err)
	}
}

func TestGetProviderAPIKeyFallbackChain(t *testing.T) {
	svc := newSecretService(t)
	ctx := context.Background()

	if _, _, err := svc.GetProviderAPIKey(ctx, "openai", nil); !errors.Is(err, ErrProviderKeyNotConfigured) {
		t.Errorf("expected ErrProviderKeyNotConfigured, got %v", err)
	}

	if _, err := svc.SetSecret(ctx, SetSecretInput{
		Scope: model.SecretScopeSystem, Name: "openai_api_key",
		Value: "sk-system-abcdef", Actor: "admin@example.com",
	}); err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}

	// No project key yet: system key serves both with and without a project
	value, scope, err := svc.GetProviderAPIKey(ctx, "openai", uintPtr(7))
	if err != nil {
		t.Fatalf("GetProviderAPIKey failed: %v", err)
	}
	if value != "sk-system-abcdef" || scope != model.SecretScopeSystem {
		t.Errorf("expected system fallback, got (%q, %q)", value, scope)
	}

	// Project key takes precedence once present
	if _, err := svc.SetSecret(ctx, SetSecretInput{
		Scope: model.SecretScopeProject, ProjectID: uintPtr(7), Name: "openai_api_key",
		Value: "sk-project-abcdef", Actor: "admin@example.com",
	}); err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}
	value, scope, err = svc.GetProviderAPIKey(ctx, "openai", uintPtr(7))
	if err != nil {
		t.Fatalf("GetProviderAPIKey failed: %v", err)
	}
	if value != "sk-project-abcdef" || scope != model.SecretScopeProject {
		t.Errorf("expected project key to win, got (%q, %q)", value, scope)
	}

	// An invalid project key falls through to the system key
	if err := svc.MarkSecretInvalid(ctx, model.SecretScopeProject, "openai_api_key", uintPtr(7)); err != nil {
		t.Fatalf("MarkSecretInvalid failed: %v", err)
	}
	value, scope, err = svc.GetProviderAPIKey(ctx, "openai", uintPtr(7))
	if err != nil {
		t.Fatalf("GetProviderAPIKey failed: %v", err)
	}
	if value != "sk-system-abcdef" || scope != model.SecretScopeSystem {
		t.Errorf("expected fallback past invalid project key, got (%q, %q)", value, scope)
	}

	// When the system key is also invalid the chain surfaces the invalid state
	if err := svc.MarkSecretInvalid(ctx, model.SecretScopeSystem, "openai_api_key", nil); err != nil {
		t.Fatalf("MarkSecretInvalid failed: %v", err)
	}
	if _, _, err := svc.GetProviderAPIKey(ctx, "openai", uintPtr(7)); !errors.Is(err, ErrSecretInvalid) {
		t.Errorf("expected ErrSecretInvalid, got %v", err)
	}
}

func TestGetConfiguredProviders(t *testing.T) {
	svc := newSecretService(t)
	ctx := context.Background()

	if _, err := svc.SetSecret(ctx, SetSecretInput{
		Scope: model.SecretScopeSystem, Name: "anthropic_api_key",
		Value: "sk-ant-api03-xxxxxx", Actor: "admin@example.com",
	}); err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}
	if _, err := svc.SetSecret(ctx, SetSecretInput{
		Scope: model.SecretScopeProject, ProjectID: uintPtr(3), Name: "groq_api_key",
		Value: "gsk_project_xxxxxx", Actor: "admin@example.com",
	}); err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}

	statuses, err := svc.GetConfiguredProviders(ctx, uintPtr(3))
	if err != nil {
		t.Fatalf("GetConfiguredProviders failed: %v", err)
	}
	if len(statuses) != len(KnownProviders()) {
		t.Fatalf("expected one status per known provider, got %d", len(statuses))
	}

	byProvider := make(map[string]ProviderStatus, len(statuses))
	for _, s := range statuses {
		byProvider[s.Provider] = s
	}

	anthropic := byProvider["anthropic"]
	if !anthropic.Configured || anthropic.Source != model.SecretScopeSystem {
		t.Errorf("unexpected anthropic status: %+v", anthropic)
	}
	if anthropic.MaskedValue == "" || anthropic.MaskedValue == "sk-ant-api03-xxxxxx" {
		t.Errorf("masked value must be set and masked, got %q", anthropic.MaskedValue)
	}

	groq := byProvider["groq"]
	if !groq.Configured || groq.Source != model.SecretScopeProject {
		t.Errorf("unexpected groq status: %+v", groq)
	}

	openai := byProvider["openai"]
	if openai.Configured {
		t.Errorf("openai must report unconfigured, got %+v", openai)
	}
}
