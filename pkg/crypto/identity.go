package crypto

import (
	"errors"
	"fmt"

	"github.com/petronet-labs/petronet-chain/pkg/types"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// ErrInvalidMnemonic is returned when a recovery phrase fails checksum
// or wordlist validation.
var ErrInvalidMnemonic = errors.New("invalid mnemonic phrase")

// derivationPath is m/44'/7077'/0'/0/0.
var derivationPath = []uint32{
	bip32.FirstHardenedChild + 44,
	bip32.FirstHardenedChild + 7077,
	bip32.FirstHardenedChild,
	0,
	0,
}

// Identity is a node's signing identity: the private key together with
// its derived public key and address.
type Identity struct {
	key    *PrivateKey
	PubKey []byte
	Addr   types.Address
}

// NewIdentity creates an identity from a fresh random key.
func NewIdentity() (*Identity, error) {
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	return identityFromKey(key), nil
}

// NewMnemonic generates a fresh 24-word recovery phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// IdentityFromMnemonic derives an identity from a BIP-39 recovery
// phrase at path m/44'/7077'/0'/0/0.
func IdentityFromMnemonic(mnemonic, passphrase string) (*Identity, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, passphrase)

	node, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	for _, index := range derivationPath {
		node, err = node.NewChildKey(index)
		if err != nil {
			return nil, fmt.Errorf("derive child %d: %w", index, err)
		}
	}

	key, err := PrivateKeyFromBytes(node.Key)
	if err != nil {
		return nil, fmt.Errorf("derived key: %w", err)
	}
	return identityFromKey(key), nil
}

// IdentityFromBytes reconstructs an identity from a raw 32-byte key.
func IdentityFromBytes(b []byte) (*Identity, error) {
	key, err := PrivateKeyFromBytes(b)
	if err != nil {
		return nil, err
	}
	return identityFromKey(key), nil
}

func identityFromKey(key *PrivateKey) *Identity {
	pub := key.PublicKey()
	return &Identity{
		key:    key,
		PubKey: pub,
		Addr:   AddressFromPubKey(pub),
	}
}

// Sign signs a 32-byte hash with the identity's private key.
func (id *Identity) Sign(hash []byte) ([]byte, error) {
	return id.key.Sign(hash)
}

// KeyBytes returns the raw private key for keyfile persistence.
func (id *Identity) KeyBytes() []byte {
	return id.key.Serialize()
}

// Zero wipes the private key material.
func (id *Identity) Zero() {
	id.key.Zero()
}
