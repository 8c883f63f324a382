package vault

import (
	"context"

	"github.com/MKhiriev/go-note-keeper/models"
)

//go:generate mockgen -source=interfaces.go -destination=../mock/vault_mock.go -package=mock

// Vault is the passphrase gate for locked items. The key lives in memory
// only and is dropped by Lock.
type Vault interface {
	State() State
	IsLocked() bool

	// Exists reports whether a vault header has been created.
	Exists(ctx context.Context) (bool, error)
	// Create sets up a new vault and leaves it unlocked.
	Create(ctx context.Context, passphrase string) error
	Unlock(ctx context.Context, passphrase string) error
	// Lock always succeeds and is idempotent.
	Lock()

	// Encrypt seals item.Data when item.Locked is set; other items pass through.
	Encrypt(ctx context.Context, item models.Item) (models.Item, error)
	// Decrypt opens item.Data when item.Locked is set. It fails with
	// models.ErrVaultLocked unless the vault is unlocked.
	Decrypt(ctx context.Context, item models.Item) (models.Item, error)
}
