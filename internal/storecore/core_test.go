package storecore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ironvault/storecore/internal/flash"
)

// plaintextBackend is a minimal SecretBackend for exercising Core
// without pulling in internal/securechip (which would import this
// package, were it wired the other way).
type plaintextBackend struct {
	pin string
}

func (b *plaintextBackend) Name() string { return "test" }

func (b *plaintextBackend) EncodeMnemonic(plain [MnemonicCap]byte) ([MnemonicCap]byte, error) {
	return plain, nil
}

func (b *plaintextBackend) DecodeMnemonic(stored [MnemonicCap]byte) ([MnemonicCap]byte, error) {
	return stored, nil
}

func (b *plaintextBackend) SetPIN(digits string) error {
	b.pin = digits

	return nil
}

func (b *plaintextBackend) ContainsPIN(record *Record, candidate string) bool {
	return candidate == b.pin
}

func (b *plaintextBackend) Wipe() error {
	b.pin = ""

	return nil
}

func newTestCore(t *testing.T) (*Core, *flash.MemDevice, *plaintextBackend) {
	t.Helper()

	dev := flash.NewMemDevice(0x6000)
	backend := &plaintextBackend{}

	core, err := Open(dev, backend, nil)
	require.NoError(t, err)

	return core, dev, backend
}

func TestOpenFirstBootIsUninitialized(t *testing.T) {
	t.Parallel()

	core, _, _ := newTestCore(t)

	require.False(t, core.Initialized())
	require.False(t, core.HasPIN())
	require.Equal(t, uint32(0), core.U2FCounter())
}

func TestSetMnemonicThenReopenSurvives(t *testing.T) {
	t.Parallel()

	core, dev, backend := newTestCore(t)

	require.NoError(t, core.SetMnemonic("abandon abandon about", false))
	require.True(t, core.Initialized())

	reopened, err := Open(dev, backend, nil)
	require.NoError(t, err)
	require.True(t, reopened.Initialized())

	words, err := reopened.Mnemonic()
	require.NoError(t, err)
	require.Equal(t, "abandon abandon about", words)
}

func TestSetLabelPreservesMnemonicAcrossCommit(t *testing.T) {
	t.Parallel()

	core, _, _ := newTestCore(t)

	require.NoError(t, core.SetMnemonic("abandon abandon about", false))
	require.NoError(t, core.SetLabel("my wallet"))

	words, err := core.Mnemonic()
	require.NoError(t, err)
	require.Equal(t, "abandon abandon about", words)
}

func TestSetPassphraseProtectionLeavesMnemonicUnchanged(t *testing.T) {
	t.Parallel()

	core, _, _ := newTestCore(t)

	require.NoError(t, core.SetMnemonic("abandon abandon about", false))
	require.NoError(t, core.SetPassphraseProtection(true))

	require.True(t, core.PassphraseProtection())

	words, err := core.Mnemonic()
	require.NoError(t, err)
	require.Equal(t, "abandon abandon about", words)
}

func TestSetPINEmptyStringRemovesPIN(t *testing.T) {
	t.Parallel()

	core, _, _ := newTestCore(t)

	require.NoError(t, core.SetPIN("1234"))
	require.True(t, core.HasPIN())

	require.NoError(t, core.SetPIN(""))
	require.False(t, core.HasPIN())
}

func TestCheckPINWrongIncreasesWait(t *testing.T) {
	t.Parallel()

	core, _, _ := newTestCore(t)
	require.NoError(t, core.SetPIN("1234"))

	ok, wait, err := core.CheckPIN("0000")
	require.NoError(t, err)
	require.False(t, ok)
	require.Greater(t, wait, uint32(0))

	ok, _, err = core.CheckPIN("1234")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(0), core.PinFailsRemainingWait())
}

func TestWipeResetsEverything(t *testing.T) {
	t.Parallel()

	core, _, _ := newTestCore(t)

	require.NoError(t, core.SetMnemonic("abandon abandon about", false))
	require.NoError(t, core.SetPIN("1234"))

	require.NoError(t, core.Wipe())

	require.False(t, core.Initialized())
	require.False(t, core.HasPIN())

	_, err := core.Mnemonic()
	require.ErrorIs(t, err, ErrNoSecret)
}

func TestApplyFlagsOnlyAccumulates(t *testing.T) {
	t.Parallel()

	core, _, _ := newTestCore(t)

	require.NoError(t, core.ApplyFlags(0x01))
	require.NoError(t, core.ApplyFlags(0x02))

	require.Equal(t, uint32(0x03), core.Flags())
}

func TestApplyFlagsNoOpWhenBitsAlreadySet(t *testing.T) {
	t.Parallel()

	core, dev, _ := newTestCore(t)

	require.NoError(t, core.ApplyFlags(0x03))

	before := dev.Clone()
	require.NoError(t, core.ApplyFlags(0x01))
	require.Equal(t, before, dev.Clone(), "a no-op ApplyFlags must not touch flash")

	require.Equal(t, uint32(0x03), core.Flags())
}

func TestSetNodeReplacesMnemonicAndMarksInitialized(t *testing.T) {
	t.Parallel()

	core, _, _ := newTestCore(t)

	require.NoError(t, core.SetMnemonic("abandon abandon about", false))
	require.True(t, core.Initialized())

	var node HDNode
	node.HasPrivateKey = true
	node.ChainCode[0] = 0x11
	node.PrivateKey[0] = 0x22

	require.NoError(t, core.SetNode(node))

	require.True(t, core.Initialized())
	require.False(t, core.HasPIN())
	require.True(t, core.rom.HasNode)
	require.False(t, core.rom.HasMnemonic)

	got, err := core.Node()
	require.NoError(t, err)
	require.Equal(t, node.ChainCode, got.ChainCode)
	require.Equal(t, node.PrivateKey, got.PrivateKey)

	_, err = core.Mnemonic()
	require.ErrorIs(t, err, ErrNoSecret)
}

func TestFreshDeviceHasNoNodeAndIsUninitialized(t *testing.T) {
	t.Parallel()

	core, _, _ := newTestCore(t)

	require.False(t, core.HasNode())
	require.False(t, core.Initialized())

	_, err := core.Node()
	require.ErrorIs(t, err, ErrNoSecret)
}

func TestNextU2FCounterIsMonotonic(t *testing.T) {
	t.Parallel()

	core, _, _ := newTestCore(t)

	var last uint32

	for i := 0; i < 40; i++ {
		v, err := core.NextU2FCounter()
		require.NoError(t, err)
		require.Greater(t, v, last)
		last = v
	}
}

func TestCommitSurvivesPowerCutAtEveryFlashOp(t *testing.T) {
	t.Parallel()

	base := flash.NewMemDevice(0x6000)
	backend := &plaintextBackend{}

	core, err := Open(base, backend, nil)
	require.NoError(t, err)
	require.NoError(t, core.SetMnemonic("abandon abandon about", false))

	cd := flash.NewCrashDevice(base)
	require.NoError(t, cd.Unlock())

	core2, err := Open(cd, backend, nil)
	require.NoError(t, err)
	require.NoError(t, core2.SetLabel("renamed"))

	total := cd.OpCount()

	for n := 0; n <= total; n++ {
		replay, err := cd.SimulateCrash(n, 0x6000)
		require.NoError(t, err)

		replayed, err := Open(replay, &plaintextBackend{}, nil)
		require.NoError(t, err, "crash at op %d/%d produced a corrupt record", n, total)

		// Every crash point must leave either a device that reads as
		// wiped (magic not yet rewritten) or the fully-committed record
		// - never a device that reads as valid but holds a torn record.
		if !replayed.Initialized() {
			continue
		}

		words, err := replayed.Mnemonic()
		require.NoError(t, err)
		require.Equal(t, "abandon abandon about", words)
	}
}
