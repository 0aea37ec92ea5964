package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstantTimeEqual(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		a    []byte
		b    []byte
		want bool
	}{
		{name: "Equal", a: []byte("1234"), b: []byte("1234"), want: true},
		{name: "DifferentContent", a: []byte("1234"), b: []byte("4321"), want: false},
		{name: "DifferentLength", a: []byte("1234"), b: []byte("12345"), want: false},
		{name: "BothEmpty", a: []byte{}, b: []byte{}, want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, ConstantTimeEqual(tc.a, tc.b))
		})
	}
}
