package cryptoutil

import (
	"crypto/sha512"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"
)

func TestSlicedPBKDF2MatchesUnsliced(t *testing.T) {
	t.Parallel()

	password := []byte("correct horse battery staple")
	salt := append([]byte("mnemonic"), "a passphrase"...)

	got := SlicedPBKDF2(password, salt, 2048, 2048/8, nil)

	// golang.org/x/crypto/pbkdf2 has no progress hook, which is why
	// SlicedPBKDF2 exists; this pins the sliced implementation against
	// the reference implementation it is standing in for.
	want := pbkdf2.Key(password, salt, 2048, 64, sha512.New)

	require.Equal(t, want, got[:])
}

func TestSlicedPBKDF2ReportsMonotonicProgress(t *testing.T) {
	t.Parallel()

	var fractions []float32

	SlicedPBKDF2([]byte("pw"), []byte("salt"), 64, 8, func(f float32) {
		fractions = append(fractions, f)
	})

	require.NotEmpty(t, fractions)

	var last float32

	for _, f := range fractions {
		require.GreaterOrEqual(t, f, last)
		last = f
	}

	require.Equal(t, float32(1), fractions[len(fractions)-1])
}

func TestSlicedPBKDF2ZeroChunkRunsWhole(t *testing.T) {
	t.Parallel()

	out := SlicedPBKDF2([]byte("pw"), []byte("salt"), 16, 0, nil)
	require.NotZero(t, out)
}
