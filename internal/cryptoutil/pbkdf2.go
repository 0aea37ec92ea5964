package cryptoutil

import (
	"crypto/hmac"
	"crypto/sha512"
)

// SlicedPBKDF2 computes PBKDF2-HMAC-SHA512(password, salt, iterations,
// 64) the same way golang.org/x/crypto/pbkdf2 does, but in
// yield-many-times form: every chunk iterations it calls yield with
// the fraction of work completed so far, letting the caller pump a USB
// endpoint or a display animation between chunks instead of blocking
// for the whole derivation (spec.md's progress-reporting get_seed).
// golang.org/x/crypto/pbkdf2's Key function has no such hook, which is
// why the inner loop is reimplemented here directly against
// crypto/hmac rather than wrapping that call.
func SlicedPBKDF2(password, salt []byte, iterations, chunk int, yield func(fraction float32)) [64]byte {
	if chunk <= 0 {
		chunk = iterations
	}

	prf := hmac.New(sha512.New, password)
	hashLen := prf.Size()

	var saltBlock []byte

	saltBlock = append(saltBlock, salt...)
	saltBlock = append(saltBlock, 0, 0, 0, 1) // single block: 64 bytes fits in one PRF block

	prf.Reset()
	prf.Write(saltBlock)
	u := prf.Sum(nil)

	t := make([]byte, hashLen)
	copy(t, u)

	for i := 1; i < iterations; i++ {
		prf.Reset()
		prf.Write(u)
		u = prf.Sum(nil)

		for j := range t {
			t[j] ^= u[j]
		}

		if chunk > 0 && i%chunk == 0 && yield != nil {
			yield(float32(i) / float32(iterations))
		}
	}

	var out [64]byte
	copy(out[:], t)

	if yield != nil {
		yield(1)
	}

	return out
}
