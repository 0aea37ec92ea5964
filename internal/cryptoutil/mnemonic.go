// Package cryptoutil wires the BIP-0039/BIP-0032 key derivation and
// the PBKDF2/HMAC primitives the rest of the core needs onto concrete
// third-party implementations where the dependency set has one; the
// sliced PBKDF2, the NIST P-256 derivation, ESSIV and CBC decryption
// are built directly on the standard library.
package cryptoutil

import (
	"errors"

	"github.com/tyler-smith/go-bip39"
)

// ErrInvalidMnemonic reports a mnemonic that fails the BIP-39 checksum.
var ErrInvalidMnemonic = errors.New("cryptoutil: invalid mnemonic checksum")

// GenerateMnemonic produces a new BIP-39 mnemonic of the given entropy
// strength in bits (128, 160, 192, 224, or 256).
func GenerateMnemonic(strengthBits int) (string, error) {
	entropy, err := bip39.NewEntropy(strengthBits)
	if err != nil {
		return "", err
	}

	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic reports whether mnemonic is well-formed BIP-39 (word
// list membership plus checksum).
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// SeedFromMnemonic derives the 512-bit BIP-39 seed from a mnemonic and
// optional passphrase. It does not validate the mnemonic's checksum -
// callers that need that must call ValidateMnemonic separately (the
// device accepts recovery of a mnemonic from another vendor whose
// checksum it may not enforce, mirroring spec.md §4.6's "import"
// path).
func SeedFromMnemonic(mnemonic, passphrase string) []byte {
	return bip39.NewSeed(mnemonic, passphrase)
}
