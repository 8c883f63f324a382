package crypto

//go:generate mockgen -source=interfaces.go -destination=../mock/keychain_service_mock.go -package=mock

// KDF versions understood by [KeyChainService.DeriveKey].
const (
	// KDFVersionPBKDF2 is the legacy PBKDF2-HMAC-SHA256 scheme. Only read.
	KDFVersionPBKDF2 = 0
	// KDFVersionArgon2id is the current scheme written by new vaults.
	KDFVersionArgon2id = 1
)

// KeyChainService holds the vault cryptography. It knows nothing about
// storage or items; it derives keys and seals bytes.
//
//	Salt     = GenerateSalt()
//	Key      = DeriveKey(version, passphrase, Salt)
//	Check    = CheckValue(Key)            stored next to Salt
//	Blob     = Seal(Key, plaintext)       nonce || ciphertext
type KeyChainService interface {
	// GenerateSalt returns 16 random bytes. The salt is not secret.
	GenerateSalt() ([]byte, error)

	// DeriveKey derives a 256-bit key from passphrase and salt with the
	// scheme identified by version.
	DeriveKey(version int, passphrase string, salt []byte) ([]byte, error)

	// CheckValue returns the value stored to verify a derived key without
	// storing the key itself.
	CheckValue(key []byte) []byte

	// Seal encrypts plaintext with AES-256-GCM under key.
	Seal(key, plaintext []byte) ([]byte, error)

	// Open reverses Seal. It fails when key is wrong or blob was altered.
	Open(key, blob []byte) ([]byte, error)

	// EncryptData serializes the given value to JSON and seals it.
	// Returns a base64-encoded blob.
	EncryptData(data any, key []byte) (string, error)

	// DecryptData opens a base64-encoded blob and unmarshals the result into
	// the target pointer (same as json.Unmarshal).
	DecryptData(encryptedB64 string, key []byte, target any) error
}
