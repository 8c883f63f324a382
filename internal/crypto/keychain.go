// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// ErrUnsupportedKDF is returned for an unknown KDF version.
var ErrUnsupportedKDF = errors.New("unsupported key derivation version")

const (
	saltLength = 16
	keyLength  = 32 // 256 bits

	checkDomain = "go-note-keeper/vault-check"
)

// KDFParams tunes the derivation cost.
type KDFParams struct {
	ArgonTime        uint32
	ArgonMemory      uint32 // KiB
	ArgonThreads     uint8
	PBKDF2Iterations int
}

// DefaultKDFParams are the parameters recommended by OWASP (2024) for
// Argon2id, plus the iteration count of the legacy PBKDF2 headers.
var DefaultKDFParams = KDFParams{
	ArgonTime:        1,
	ArgonMemory:      64 * 1024, // 64 MiB
	ArgonThreads:     4,
	PBKDF2Iterations: 100000,
}

// keyChainService is the private implementation of [KeyChainService].
type keyChainService struct {
	params KDFParams
}

// NewKeyChainService constructs a [KeyChainService] with [DefaultKDFParams].
func NewKeyChainService() KeyChainService {
	return NewKeyChainServiceWithParams(DefaultKDFParams)
}

// NewKeyChainServiceWithParams constructs a [KeyChainService] with custom
// derivation cost. Keys derived with different params are not interchangeable.
func NewKeyChainServiceWithParams(params KDFParams) KeyChainService {
	return &keyChainService{params: params}
}

func (k *keyChainService) GenerateSalt() ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func (k *keyChainService) DeriveKey(version int, passphrase string, salt []byte) ([]byte, error) {
	switch version {
	case KDFVersionPBKDF2:
		return pbkdf2.Key([]byte(passphrase), salt, k.params.PBKDF2Iterations, keyLength, sha256.New), nil
	case KDFVersionArgon2id:
		return argon2.IDKey(
			[]byte(passphrase),
			salt,
			k.params.ArgonTime,
			k.params.ArgonMemory,
			k.params.ArgonThreads,
			keyLength,
		), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedKDF, version)
	}
}

// CheckValue computes SHA-256(checkDomain ‖ key). The domain prefix keeps
// the check value distinct from any other digest of the key.
func (k *keyChainService) CheckValue(key []byte) []byte {
	h := sha256.New()
	h.Write([]byte(checkDomain))
	h.Write(key)
	return h.Sum(nil)
}

func (k *keyChainService) Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (k *keyChainService) Open(key, blob []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(blob) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt data: %w", err)
	}

	return plaintext, nil
}

func (k *keyChainService) EncryptData(data any, key []byte) (string, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal data: %w", err)
	}

	blob, err := k.Seal(key, plaintext)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(blob), nil
}

func (k *keyChainService) DecryptData(encryptedB64 string, key []byte, target any) error {
	blob, err := base64.StdEncoding.DecodeString(encryptedB64)
	if err != nil {
		return fmt.Errorf("decode base64: %w", err)
	}

	plaintext, err := k.Open(key, blob)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(plaintext, target); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}

	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
