package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMasterNodeSECP256K1IsDeterministic(t *testing.T) {
	t.Parallel()

	seed := make([]byte, 64)
	for i := range seed {
		seed[i] = byte(i)
	}

	a, err := MasterNodeSECP256K1(seed)
	require.NoError(t, err)

	b, err := MasterNodeSECP256K1(seed)
	require.NoError(t, err)

	require.Equal(t, a.PrivateKey, b.PrivateKey)
	require.Equal(t, a.ChainCode, b.ChainCode)
}

func TestDeriveChildSECP256K1HardenedVsNormalDiffer(t *testing.T) {
	t.Parallel()

	seed := make([]byte, 64)
	for i := range seed {
		seed[i] = byte(i * 3)
	}

	master, err := MasterNodeSECP256K1(seed)
	require.NoError(t, err)

	normal, err := DeriveChildSECP256K1(master, 0)
	require.NoError(t, err)

	hardened, err := DeriveChildSECP256K1(master, 0x80000000)
	require.NoError(t, err)

	require.NotEqual(t, normal.PrivateKey, hardened.PrivateKey)
}

func TestPublicKeySECP256K1IsCompressed(t *testing.T) {
	t.Parallel()

	seed := make([]byte, 64)
	for i := range seed {
		seed[i] = byte(i + 7)
	}

	node, err := MasterNodeSECP256K1(seed)
	require.NoError(t, err)

	pub := PublicKeySECP256K1(node)
	require.Len(t, pub, 33)
	require.Contains(t, []byte{0x02, 0x03}, pub[0])
}

func TestMasterNodeNIST256P1IsDeterministic(t *testing.T) {
	t.Parallel()

	seed := []byte("a fixed test seed value, long enough")

	a, err := MasterNodeNIST256P1(seed)
	require.NoError(t, err)

	b, err := MasterNodeNIST256P1(seed)
	require.NoError(t, err)

	require.Equal(t, a.PrivateKey, b.PrivateKey)
	require.Equal(t, a.ChainCode, b.ChainCode)
}

func TestDeriveChildNIST256P1ProducesNewFingerprint(t *testing.T) {
	t.Parallel()

	seed := []byte("another fixed test seed value, long enough")

	master, err := MasterNodeNIST256P1(seed)
	require.NoError(t, err)

	child, err := DeriveChildNIST256P1(master, 0)
	require.NoError(t, err)

	require.Equal(t, master.Depth+1, child.Depth)
	require.NotZero(t, child.Fingerprint)
}

func TestNodeZeroWipesKeyMaterial(t *testing.T) {
	t.Parallel()

	n := Node{PrivateKey: [32]byte{1, 2, 3}, ChainCode: [32]byte{4, 5, 6}}
	n.Zero()

	require.Equal(t, [32]byte{}, n.PrivateKey)
	require.Equal(t, [32]byte{}, n.ChainCode)
}
