package cryptoutil

import "crypto/subtle"

// ConstantTimeEqual reports whether a and b hold the same bytes, in
// time independent of where they first differ. Used everywhere a PIN
// or secret buffer is compared against user input.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	return subtle.ConstantTimeCompare(a, b) == 1
}
