// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package vault gates locked items behind a passphrase-derived key.
package vault

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MKhiriev/go-note-keeper/internal/config"
	"github.com/MKhiriev/go-note-keeper/internal/crypto"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/internal/store"
	"github.com/MKhiriev/go-note-keeper/models"
)

// HeaderKey is the storage key of the vault header.
const HeaderKey = "vault"

var algorithms = map[int]string{
	crypto.KDFVersionPBKDF2:   "PBKDF2-SHA256",
	crypto.KDFVersionArgon2id: "Argon2id",
}

// Header is the persisted description of the vault key. It holds no secret.
type Header struct {
	Version   int    `json:"version"`
	Algorithm string `json:"algorithm"`
	Salt      []byte `json:"salt"`
	Check     []byte `json:"check"`
}

type vault struct {
	kv   store.KeyValueStorage
	keys crypto.KeyChainService
	cfg  config.Vault
	now  func() time.Time

	mu          sync.Mutex
	state       State
	key         []byte
	epoch       uint64
	failed      int
	nextAttempt time.Time
}

// New returns a locked vault reading its header from kv.
func New(kv store.KeyValueStorage, keys crypto.KeyChainService, cfg config.Vault) Vault {
	return &vault{
		kv:    kv,
		keys:  keys,
		cfg:   cfg,
		now:   time.Now,
		state: StateLocked,
	}
}

func (v *vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *vault) IsLocked() bool {
	return v.State() != StateUnlocked
}

func (v *vault) Exists(ctx context.Context) (bool, error) {
	var h Header
	return v.kv.Read(ctx, HeaderKey, &h)
}

func (v *vault) Create(ctx context.Context, passphrase string) error {
	log := logger.FromContext(ctx)

	if passphrase == "" {
		return ErrEmptyPassphrase
	}

	exists, err := v.Exists(ctx)
	if err != nil {
		return fmt.Errorf("error reading vault header: %w", err)
	}
	if exists {
		return ErrVaultExists
	}

	salt, err := v.keys.GenerateSalt()
	if err != nil {
		return fmt.Errorf("error generating salt: %w", err)
	}

	key, err := v.derive(ctx, crypto.KDFVersionArgon2id, passphrase, salt)
	if err != nil {
		return err
	}

	header := Header{
		Version:   crypto.KDFVersionArgon2id,
		Algorithm: algorithms[crypto.KDFVersionArgon2id],
		Salt:      salt,
		Check:     v.keys.CheckValue(key),
	}
	if err = v.kv.Write(ctx, HeaderKey, header); err != nil {
		clear(key)
		log.Err(err).Str("func", "vault.Create").Msg("failed to store vault header")
		return fmt.Errorf("error storing vault header: %w", err)
	}

	v.mu.Lock()
	v.setKey(key)
	v.mu.Unlock()

	log.Info().Str("func", "vault.Create").Str("algorithm", header.Algorithm).Msg("vault created")
	return nil
}

func (v *vault) Unlock(ctx context.Context, passphrase string) error {
	log := logger.FromContext(ctx)

	v.mu.Lock()
	switch v.state {
	case StateUnlocked:
		v.mu.Unlock()
		return nil
	case StateUnlocking:
		v.mu.Unlock()
		return ErrUnlockInProgress
	}
	if wait := v.nextAttempt.Sub(v.now()); wait > 0 {
		v.mu.Unlock()
		return &ThrottledError{RetryAfter: wait}
	}
	v.state = StateUnlocking
	epoch := v.epoch
	v.mu.Unlock()

	key, err := v.deriveFromHeader(ctx, passphrase)

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.epoch != epoch {
		// locked while deriving
		clear(key)
		return models.ErrVaultLocked
	}
	if err != nil {
		v.state = StateLocked
		return err
	}
	if key == nil {
		v.state = StateLocked
		v.registerFailure()
		log.Warn().
			Str("func", "vault.Unlock").
			Int("failed_attempts", v.failed).
			Time("next_attempt", v.nextAttempt).
			Msg("wrong passphrase")
		return ErrWrongPassphrase
	}

	v.failed = 0
	v.nextAttempt = time.Time{}
	v.setKey(key)
	return nil
}

// deriveFromHeader returns nil key and nil error on a check value mismatch.
func (v *vault) deriveFromHeader(ctx context.Context, passphrase string) ([]byte, error) {
	var header Header
	ok, err := v.kv.Read(ctx, HeaderKey, &header)
	if err != nil {
		return nil, fmt.Errorf("error reading vault header: %w", err)
	}
	if !ok {
		return nil, ErrNoVault
	}

	key, err := v.derive(ctx, header.Version, passphrase, header.Salt)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare(v.keys.CheckValue(key), header.Check) != 1 {
		clear(key)
		return nil, nil
	}

	return key, nil
}

// derive runs the CPU-bound KDF off the caller's goroutine so a cancelled
// context returns promptly.
func (v *vault) derive(ctx context.Context, version int, passphrase string, salt []byte) ([]byte, error) {
	type result struct {
		key []byte
		err error
	}

	done := make(chan result, 1)
	go func() {
		key, err := v.keys.DeriveKey(version, passphrase, salt)
		done <- result{key: key, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() { r := <-done; clear(r.key) }()
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("error deriving key: %w", r.err)
		}
		return r.key, nil
	}
}

// registerFailure must be called with mu held.
func (v *vault) registerFailure() {
	v.failed++
	if v.cfg.ThrottleAfter <= 0 || v.failed < v.cfg.ThrottleAfter {
		return
	}

	delay := v.cfg.ThrottleBase
	for i := v.cfg.ThrottleAfter; i < v.failed && delay < v.cfg.ThrottleMax; i++ {
		delay *= 2
	}
	if v.cfg.ThrottleMax > 0 && delay > v.cfg.ThrottleMax {
		delay = v.cfg.ThrottleMax
	}

	v.nextAttempt = v.now().Add(delay)
}

// setKey must be called with mu held.
func (v *vault) setKey(key []byte) {
	clear(v.key)
	v.key = key
	v.state = StateUnlocked
}

func (v *vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()

	clear(v.key)
	v.key = nil
	v.state = StateLocked
	v.epoch++
}

func (v *vault) Encrypt(ctx context.Context, item models.Item) (models.Item, error) {
	if !item.Locked {
		return item, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateUnlocked {
		return models.Item{}, models.ErrVaultLocked
	}

	blob, err := v.keys.Seal(v.key, item.Data)
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "vault.Encrypt").Str("id", item.ID).Msg("failed to seal item")
		return models.Item{}, fmt.Errorf("error encrypting item %s: %w", item.ID, err)
	}

	sealed, err := json.Marshal(base64.StdEncoding.EncodeToString(blob))
	if err != nil {
		return models.Item{}, fmt.Errorf("error encoding item %s: %w", item.ID, err)
	}

	item.Data = sealed
	return item, nil
}

func (v *vault) Decrypt(ctx context.Context, item models.Item) (models.Item, error) {
	if !item.Locked {
		return item, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.state != StateUnlocked {
		return models.Item{}, models.ErrVaultLocked
	}

	var encoded string
	if err := json.Unmarshal(item.Data, &encoded); err != nil {
		return models.Item{}, fmt.Errorf("%w (id=%s): %w", ErrCorruptedItem, item.ID, err)
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return models.Item{}, fmt.Errorf("%w (id=%s): %w", ErrCorruptedItem, item.ID, err)
	}

	plain, err := v.keys.Open(v.key, blob)
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "vault.Decrypt").Str("id", item.ID).Msg("failed to open item")
		return models.Item{}, fmt.Errorf("%w (id=%s): %w", ErrCorruptedItem, item.ID, err)
	}

	item.Data = plain
	return item, nil
}
