package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// ErrNotBlockAligned reports data whose length isn't a multiple of the
// AES block size.
var ErrNotBlockAligned = errors.New("cryptoutil: data is not a multiple of the AES block size")

// DecryptCBCInPlace AES-256-CBC-decrypts data in place under key and
// iv (the standard library's CBC decrypter wants exactly one block
// size, 16 bytes, of IV). Used to unwrap an imported HD node's chain
// code and private key under a passphrase-derived key (spec.md's
// get_root_node decrypt step, "TREZORHD" KDF).
func DecryptCBCInPlace(key [32]byte, iv [aes.BlockSize]byte, data []byte) error {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return err
	}

	if len(data)%block.BlockSize() != 0 {
		return ErrNotBlockAligned
	}

	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(data, data)

	return nil
}
