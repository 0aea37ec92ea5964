package flash

import "fmt"

// sectorBounds returns the [start, end) byte range covered by id.
func sectorBounds(id SectorID) (uint32, uint32, error) {
	switch id {
	case SectorMeta:
		return 0, MetaSectorEnd, nil
	case SectorCounters:
		return PINAreaOffset, U2FAreaOffset + U2FAreaLen, nil
	default:
		return 0, 0, fmt.Errorf("flash: unknown sector %d", id)
	}
}

// MemDevice is an in-memory flash simulator enforcing the NOR
// write-once-per-bit rule. It is the default Device for all tests that
// do not specifically exercise crash recovery (see CrashDevice for
// that).
type MemDevice struct {
	words    []uint32 // one entry per 4-byte word, index = addr/4
	metaDesc [MetaDescriptorSize]byte
	locked   bool
	failAll  bool // test hook: force every ProgramWord/EraseSector to fail
}

// NewMemDevice returns a device with the whole region erased (all-ones),
// matching a factory-fresh NOR chip.
func NewMemDevice(size uint32) *MemDevice {
	if size%4 != 0 {
		panic("flash: size must be word-aligned")
	}

	d := &MemDevice{
		words:  make([]uint32, size/4),
		locked: true,
	}

	for i := range d.words {
		d.words[i] = 0xFFFFFFFF
	}

	for i := range d.metaDesc {
		d.metaDesc[i] = 0xFF
	}

	return d
}

func (d *MemDevice) Unlock() error {
	d.locked = false

	return nil
}

func (d *MemDevice) Lock() error {
	d.locked = true

	return nil
}

func (d *MemDevice) EraseSector(id SectorID) error {
	if d.locked {
		return fmt.Errorf("flash: erase while locked")
	}

	if d.failAll {
		return ErrProgramFailed
	}

	start, end, err := sectorBounds(id)
	if err != nil {
		return err
	}

	for a := start; a < end; a += 4 {
		d.words[a/4] = 0xFFFFFFFF
	}

	if id == SectorMeta {
		for i := range d.metaDesc {
			d.metaDesc[i] = 0xFF
		}
	}

	return nil
}

func (d *MemDevice) ReadMetaDescriptor() []byte {
	out := make([]byte, MetaDescriptorSize)
	copy(out, d.metaDesc[:])

	return out
}

func (d *MemDevice) ProgramMetaDescriptor(data []byte) error {
	if d.locked {
		return fmt.Errorf("flash: program while locked")
	}

	if d.failAll {
		return ErrProgramFailed
	}

	for i := range d.metaDesc {
		var v byte = 0xFF
		if i < len(data) {
			v = data[i]
		}

		d.metaDesc[i] &= v
	}

	return nil
}

func (d *MemDevice) ProgramWord(addr uint32, value uint32) error {
	if d.locked {
		return fmt.Errorf("flash: program while locked")
	}

	if d.failAll {
		return ErrProgramFailed
	}

	idx := addr / 4
	if int(idx) >= len(d.words) {
		return fmt.Errorf("flash: addr 0x%x out of range", addr)
	}

	// NOR flash can only clear bits without an erase.
	d.words[idx] &= value

	return nil
}

func (d *MemDevice) ReadWord(addr uint32) uint32 {
	idx := addr / 4
	if int(idx) >= len(d.words) {
		return 0xFFFFFFFF
	}

	return d.words[idx]
}

// SetFailAll arms or disarms a test hook that makes every subsequent
// program/erase call return ErrProgramFailed, for exercising the fatal
// path (spec.md §7 FlashProgramFailed).
func (d *MemDevice) SetFailAll(fail bool) {
	d.failAll = fail
}

// Snapshot returns a copy of the raw word image, for test assertions
// and for seeding a CrashDevice from a known-good state.
func (d *MemDevice) Snapshot() []uint32 {
	out := make([]uint32, len(d.words))
	copy(out, d.words)

	return out
}

// Clone returns an independent copy of d, including the
// meta-descriptor preamble.
func (d *MemDevice) Clone() *MemDevice {
	c := &MemDevice{
		words:  d.Snapshot(),
		locked: d.locked,
	}
	copy(c.metaDesc[:], d.metaDesc[:])

	return c
}
