package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ironvault/storecore/internal/flash"
	"github.com/ironvault/storecore/internal/securechip"
	"github.com/ironvault/storecore/internal/storecore"
)

func newTestCore(t *testing.T) (*storecore.Core, *Cache) {
	t.Helper()

	dev := flash.NewMemDevice(0x6000)
	cache := New()

	core, err := storecore.Open(dev, securechip.InMcu{}, cache)
	require.NoError(t, err)
	require.NoError(t, core.SetMnemonic("abandon abandon about", false))

	return core, cache
}

func TestGetSeedCachesUntilPassphraseChanges(t *testing.T) {
	t.Parallel()

	core, cache := newTestCore(t)

	seedA, err := cache.GetSeed(core, "", nil)
	require.NoError(t, err)

	seedAAgain, err := cache.GetSeed(core, "", nil)
	require.NoError(t, err)
	require.Equal(t, seedA, seedAAgain)

	seedB, err := cache.GetSeed(core, "different", nil)
	require.NoError(t, err)
	require.NotEqual(t, seedA, seedB)
}

func TestGetRootNodeDerivesFromSeed(t *testing.T) {
	t.Parallel()

	core, cache := newTestCore(t)

	node, err := cache.GetRootNode(core, storecore.CurveSECP256K1, "", nil)
	require.NoError(t, err)
	require.True(t, node.HasPrivateKey)

	again, err := cache.GetRootNode(core, storecore.CurveSECP256K1, "", nil)
	require.NoError(t, err)
	require.Equal(t, node.PrivateKey, again.PrivateKey)
}

func TestGetRootNodeDiffersByCurve(t *testing.T) {
	t.Parallel()

	core, cache := newTestCore(t)

	secp, err := cache.GetRootNode(core, storecore.CurveSECP256K1, "", nil)
	require.NoError(t, err)

	nist, err := cache.GetRootNode(core, storecore.CurveNIST256P1, "", nil)
	require.NoError(t, err)

	require.NotEqual(t, secp.PrivateKey, nist.PrivateKey)
}

func TestGetRootNodeUsesImportedNodeWhenPresent(t *testing.T) {
	t.Parallel()

	dev := flash.NewMemDevice(0x6000)
	cache := New()

	core, err := storecore.Open(dev, securechip.InMcu{}, cache)
	require.NoError(t, err)

	imported := storecore.HDNode{HasPrivateKey: true}
	imported.ChainCode[0] = 0xAB
	imported.PrivateKey[0] = 0xCD

	require.NoError(t, core.SetNode(imported))

	node, err := cache.GetRootNode(core, storecore.CurveSECP256K1, "", nil)
	require.NoError(t, err)
	require.Equal(t, imported.ChainCode, node.ChainCode)
	require.Equal(t, imported.PrivateKey, node.PrivateKey)
}

func TestGetRootPublicKeyNeverExposesPrivateKey(t *testing.T) {
	t.Parallel()

	core, cache := newTestCore(t)

	pub, err := cache.GetRootPublicKey(core, "", nil)
	require.NoError(t, err)
	require.Len(t, pub, 33)
}

func TestGetU2FRootIsCachedAndMatchesCore(t *testing.T) {
	t.Parallel()

	core, cache := newTestCore(t)

	fromCore, err := core.U2FRoot()
	require.NoError(t, err)

	fromCache, err := cache.GetU2FRoot(core)
	require.NoError(t, err)

	require.Equal(t, fromCore.PrivateKey, fromCache.PrivateKey)
}

func TestClearDropsCachedSecretsNotAuthentication(t *testing.T) {
	t.Parallel()

	core, cache := newTestCore(t)

	_, err := cache.GetSeed(core, "", nil)
	require.NoError(t, err)
	cache.SetPINOK()

	cache.Clear(true)

	state := cache.GetState()
	require.False(t, state.HasSeed)
	require.True(t, state.Authenticated)

	cache.Clear(false)
	require.False(t, cache.Authenticated())
}

func TestClearPINOKLeavesSeedCached(t *testing.T) {
	t.Parallel()

	core, cache := newTestCore(t)

	_, err := cache.GetSeed(core, "", nil)
	require.NoError(t, err)
	cache.SetPINOK()

	cache.ClearPINOK()

	state := cache.GetState()
	require.True(t, state.HasSeed)
	require.False(t, state.Authenticated)
}
