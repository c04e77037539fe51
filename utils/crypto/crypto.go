package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters for key derivation
	Argon2Time      uint32 = 1
	Argon2Memory    uint32 = 64 * 1024 // 64 MB
	Argon2Threads   uint8  = 4
	Argon2KeyLength uint32 = 32 // 256 bits for AES-256

	// Salt length for key derivation
	SaltLength = 32
)

var (
	ErrInvalidKeyLength = errors.New("invalid key length")
	ErrDecryptionFailed = errors.New("decryption failed")
)

// GenerateSalt generates a cryptographically secure random salt
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives an encryption key from a passphrase and salt using Argon2id
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey(
		[]byte(passphrase),
		salt,
		Argon2Time,
		Argon2Memory,
		Argon2Threads,
		Argon2KeyLength,
	)
}

// EncryptSecretValue encrypts a plaintext credential using AES-256-GCM.
// Returns the ciphertext and the nonce; both are required for decryption.
func EncryptSecretValue(plaintext string, encryptionKey []byte) (encrypted []byte, nonce []byte, err error) {
	if len(encryptionKey) != 32 {
		return nil, nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	encrypted = gcm.Seal(nil, nonce, []byte(plaintext), nil)

	return encrypted, nonce, nil
}

// DecryptSecretValue decrypts an encrypted credential using AES-256-GCM
func DecryptSecretValue(encrypted []byte, nonce []byte, encryptionKey []byte) (string, error) {
	if len(encryptionKey) != 32 {
		return "", ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}

// KeyedCipher binds a derived key so callers never carry raw key material.
// It is the process-wide encryption primitive handed to the secrets vault.
type KeyedCipher struct {
	key []byte
}

// NewKeyedCipher derives an AES-256 key from the configured passphrase and a
// deployment-stable salt
func NewKeyedCipher(passphrase string, salt []byte) *KeyedCipher {
	return &KeyedCipher{key: DeriveKey(passphrase, salt)}
}

// Encrypt encrypts a plaintext value with the bound key
func (k *KeyedCipher) Encrypt(plaintext string) (encrypted []byte, nonce []byte, err error) {
	return EncryptSecretValue(plaintext, k.key)
}

// Decrypt decrypts a ciphertext with the bound key
func (k *KeyedCipher) Decrypt(encrypted []byte, nonce []byte) (string, error) {
	return DecryptSecretValue(encrypted, nonce, k.key)
}
