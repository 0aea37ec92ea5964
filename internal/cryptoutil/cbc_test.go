package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecryptCBCInPlaceInvertsEncryption(t *testing.T) {
	t.Parallel()

	var key [32]byte
	var iv [aes.BlockSize]byte

	for i := range key {
		key[i] = byte(i)
	}

	for i := range iv {
		iv[i] = byte(i * 3)
	}

	plain := []byte("exactly32byteschaincodehere!!!!")
	require.Len(t, plain, 32)

	block, err := aes.NewCipher(key[:])
	require.NoError(t, err)

	ciphertext := append([]byte(nil), plain...)
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(ciphertext, ciphertext)
	require.NotEqual(t, plain, ciphertext)

	require.NoError(t, DecryptCBCInPlace(key, iv, ciphertext))
	require.Equal(t, plain, ciphertext)
}

func TestDecryptCBCInPlaceRejectsUnalignedData(t *testing.T) {
	t.Parallel()

	var key [32]byte
	var iv [aes.BlockSize]byte

	err := DecryptCBCInPlace(key, iv, make([]byte, 17))
	require.ErrorIs(t, err, ErrNotBlockAligned)
}
