package flash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemDeviceProgramWordOnlyClearsBits(t *testing.T) {
	t.Parallel()

	d := NewMemDevice(0x100)
	require.NoError(t, d.Unlock())

	require.NoError(t, d.ProgramWord(0, 0xFFFF0000))
	require.Equal(t, uint32(0xFFFF0000), d.ReadWord(0))

	// Attempting to set a bit back to 1 must have no effect: the word
	// can only ever get more zeros, never fewer.
	require.NoError(t, d.ProgramWord(0, 0xFFFFFFFF))
	require.Equal(t, uint32(0xFFFF0000), d.ReadWord(0))
}

func TestMemDeviceEraseSectorResetsToAllOnes(t *testing.T) {
	t.Parallel()

	d := NewMemDevice(0x6000)
	require.NoError(t, d.Unlock())
	require.NoError(t, d.ProgramWord(RecordOffset, 0))
	require.NoError(t, d.EraseSector(SectorMeta))

	require.Equal(t, uint32(0xFFFFFFFF), d.ReadWord(RecordOffset))
}

func TestMemDeviceProgramWhileLockedFails(t *testing.T) {
	t.Parallel()

	d := NewMemDevice(0x100)

	err := d.ProgramWord(0, 0)
	require.Error(t, err)
}

func TestMemDeviceEraseSectorMetaResetsMetaDescriptor(t *testing.T) {
	t.Parallel()

	d := NewMemDevice(0x6000)
	require.NoError(t, d.Unlock())

	data := make([]byte, MetaDescriptorSize)
	for i := range data {
		data[i] = 0x42
	}

	require.NoError(t, d.ProgramMetaDescriptor(data))
	require.Equal(t, data, d.ReadMetaDescriptor())

	require.NoError(t, d.EraseSector(SectorMeta))

	want := make([]byte, MetaDescriptorSize)
	for i := range want {
		want[i] = 0xFF
	}

	require.Equal(t, want, d.ReadMetaDescriptor())
}

func TestMemDeviceCloneIsIndependent(t *testing.T) {
	t.Parallel()

	d := NewMemDevice(0x100)
	require.NoError(t, d.Unlock())
	require.NoError(t, d.ProgramWord(0, 0xAAAAAAAA))

	clone := d.Clone()
	require.NoError(t, clone.Unlock())
	require.NoError(t, clone.ProgramWord(0, 0))

	require.Equal(t, uint32(0xAAAAAAAA), d.ReadWord(0))
	require.Equal(t, uint32(0), clone.ReadWord(0))
}

func TestMemDeviceSetFailAll(t *testing.T) {
	t.Parallel()

	d := NewMemDevice(0x100)
	require.NoError(t, d.Unlock())
	d.SetFailAll(true)

	require.ErrorIs(t, d.ProgramWord(0, 0), ErrProgramFailed)
	require.ErrorIs(t, d.EraseSector(SectorMeta), ErrProgramFailed)
}

func TestWithUnlockAlwaysLocks(t *testing.T) {
	t.Parallel()

	d := NewMemDevice(0x100)

	err := WithUnlock(d, func() error {
		return d.ProgramWord(0, 0)
	})
	require.NoError(t, err)

	// The bracket must have re-locked afterward.
	require.Error(t, d.ProgramWord(4, 0))
}
