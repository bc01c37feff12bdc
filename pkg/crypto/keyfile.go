package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrBadPassphrase is returned when a keyfile fails to decrypt.
var ErrBadPassphrase = errors.New("wrong passphrase or corrupt keyfile")

const (
	saltSize = 32
	// Keyfile layout: salt(32) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
	keyfileHeaderSize = saltSize + 4 + 4 + 1
)

// KDFParams holds the Argon2id cost parameters stored in the keyfile
// header so old files stay readable when the defaults change.
type KDFParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultKDFParams returns the Argon2id parameters used for new keyfiles.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

func deriveKey(passphrase, salt []byte, params KDFParams) []byte {
	return argon2.IDKey(
		passphrase,
		salt,
		params.Iterations,
		params.Memory,
		params.Parallelism,
		chacha20poly1305.KeySize,
	)
}

// EncryptKey seals a raw private key under a passphrase using
// Argon2id + XChaCha20-Poly1305.
func EncryptKey(keyBytes, passphrase []byte, params KDFParams) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt, params)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, keyBytes, nil)

	out := make([]byte, 0, keyfileHeaderSize+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, params.Memory)
	out = binary.LittleEndian.AppendUint32(out, params.Iterations)
	out = append(out, params.Parallelism)
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	return out, nil
}

// DecryptKey opens a keyfile sealed by EncryptKey.
func DecryptKey(encrypted, passphrase []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	minSize := keyfileHeaderSize + nonceSize + chacha20poly1305.Overhead
	if len(encrypted) < minSize {
		return nil, fmt.Errorf("keyfile too short: %d bytes, need at least %d", len(encrypted), minSize)
	}

	salt := encrypted[:saltSize]
	params := KDFParams{
		Memory:      binary.LittleEndian.Uint32(encrypted[saltSize:]),
		Iterations:  binary.LittleEndian.Uint32(encrypted[saltSize+4:]),
		Parallelism: encrypted[saltSize+8],
	}

	nonce := encrypted[keyfileHeaderSize : keyfileHeaderSize+nonceSize]
	ciphertext := encrypted[keyfileHeaderSize+nonceSize:]

	key := deriveKey(passphrase, salt, params)
	defer zeroBytes(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrBadPassphrase
	}
	return plaintext, nil
}

// SaveIdentity writes an identity's key to an encrypted keyfile.
func SaveIdentity(id *Identity, path string, passphrase []byte) error {
	keyBytes := id.KeyBytes()
	defer zeroBytes(keyBytes)

	encrypted, err := EncryptKey(keyBytes, passphrase, DefaultKDFParams())
	if err != nil {
		return fmt.Errorf("encrypt keyfile: %w", err)
	}
	if err := os.WriteFile(path, encrypted, 0o600); err != nil {
		return fmt.Errorf("write keyfile: %w", err)
	}
	return nil
}

// LoadIdentity reads and decrypts an identity keyfile.
func LoadIdentity(path string, passphrase []byte) (*Identity, error) {
	encrypted, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyfile: %w", err)
	}
	keyBytes, err := DecryptKey(encrypted, passphrase)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(keyBytes)

	return IdentityFromBytes(keyBytes)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
