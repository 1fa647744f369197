// Package vault encrypts inventory credentials at rest.
//
// Ciphertexts are XChaCha20-Poly1305 sealed boxes keyed from the process-wide
// secret via HKDF-SHA256, encoded as "v1." + base64url(nonce || sealed).
package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"atstore-api/pkg/apierror"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	formatPrefix = "v1."
	hkdfInfo     = "atstore credential vault v1"
)

var (
	// ErrMissingKey is returned when the vault is built without a secret.
	ErrMissingKey = errors.New("vault: encryption key is not configured")

	// ErrDecryption is the cause attached to every decryption failure.
	ErrDecryption = errors.New("vault: ciphertext cannot be decrypted")
)

// Credential is a plaintext username/password pair.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Vault performs symmetric encryption of credential strings.
type Vault struct {
	aead interface {
		NonceSize() int
		Overhead() int
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// New derives the encryption key from secret. It fails when secret is empty
// so a misconfigured process stops at startup.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, ErrMissingKey
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive vault key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize(), v.aead.NonceSize()+len(plaintext)+v.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return formatPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt with the same secret.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	encoded, ok := strings.CutPrefix(ciphertext, formatPrefix)
	if !ok {
		return "", decryptionError("unknown ciphertext format")
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", decryptionError("malformed ciphertext encoding")
	}
	if len(raw) < v.aead.NonceSize()+v.aead.Overhead() {
		return "", decryptionError("ciphertext too short")
	}

	nonce, sealed := raw[:v.aead.NonceSize()], raw[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", decryptionError("authentication failed")
	}
	return string(plaintext), nil
}

// EncryptCredential encrypts both halves of a credential.
func (v *Vault) EncryptCredential(c Credential) (Credential, error) {
	username, err := v.Encrypt(c.Username)
	if err != nil {
		return Credential{}, err
	}
	password, err := v.Encrypt(c.Password)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Username: username, Password: password}, nil
}

// DecryptCredential decrypts both halves of an encrypted credential.
func (v *Vault) DecryptCredential(c Credential) (Credential, error) {
	username, err := v.Decrypt(c.Username)
	if err != nil {
		return Credential{}, err
	}
	password, err := v.Decrypt(c.Password)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Username: username, Password: password}, nil
}

func decryptionError(reason string) error {
	return apierror.Decryption("Unable to decrypt credential (" + reason + ")").WithCause(ErrDecryption)
}
