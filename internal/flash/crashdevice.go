package flash

// opKind distinguishes the three mutating flash primitives for replay.
type opKind int

const (
	opEraseSector opKind = iota
	opProgramWord
	opProgramMetaDescriptor
)

type loggedOp struct {
	kind  opKind
	id    SectorID
	addr  uint32
	value uint32
	desc  []byte
}

// CrashDevice wraps a MemDevice and records every mutating call
// (EraseSector, ProgramWord, ProgramMetaDescriptor) in order. SimulateCrash truncates the log
// at an arbitrary call boundary and replays only the durable prefix
// into a fresh device, modeling an MCU power loss mid-commit.
//
// This is the harness for testable property P2 (power-cut safety):
// tests drive a commit through a CrashDevice, call SimulateCrash at
// every possible op index, and assert the resulting device always
// reads as either the pre-commit record or a wiped device - never a
// torn one.
type CrashDevice struct {
	*MemDevice

	log []loggedOp
}

// NewCrashDevice returns a CrashDevice seeded with initial's contents.
func NewCrashDevice(initial *MemDevice) *CrashDevice {
	return &CrashDevice{MemDevice: initial.Clone()}
}

func (d *CrashDevice) EraseSector(id SectorID) error {
	if err := d.MemDevice.EraseSector(id); err != nil {
		return err
	}

	d.log = append(d.log, loggedOp{kind: opEraseSector, id: id})

	return nil
}

func (d *CrashDevice) ProgramWord(addr uint32, value uint32) error {
	if err := d.MemDevice.ProgramWord(addr, value); err != nil {
		return err
	}

	d.log = append(d.log, loggedOp{kind: opProgramWord, addr: addr, value: value})

	return nil
}

func (d *CrashDevice) ProgramMetaDescriptor(data []byte) error {
	if err := d.MemDevice.ProgramMetaDescriptor(data); err != nil {
		return err
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	d.log = append(d.log, loggedOp{kind: opProgramMetaDescriptor, desc: cp})

	return nil
}

// OpCount returns the number of mutating calls recorded so far.
func (d *CrashDevice) OpCount() int {
	return len(d.log)
}

// SimulateCrash returns a fresh device that only ever saw the first n
// logged operations, as if power was cut immediately after the n-th
// flash write completed. n may range from 0 (nothing applied) to
// OpCount() (everything applied, i.e. a clean shutdown).
func (d *CrashDevice) SimulateCrash(n int, size uint32) (*MemDevice, error) {
	if n < 0 || n > len(d.log) {
		n = len(d.log)
	}

	replay := NewMemDevice(size)
	if err := replay.Unlock(); err != nil {
		return nil, err
	}

	for _, op := range d.log[:n] {
		switch op.kind {
		case opEraseSector:
			if err := replay.EraseSector(op.id); err != nil {
				return nil, err
			}
		case opProgramWord:
			if err := replay.ProgramWord(op.addr, op.value); err != nil {
				return nil, err
			}
		case opProgramMetaDescriptor:
			if err := replay.ProgramMetaDescriptor(op.desc); err != nil {
				return nil, err
			}
		}
	}

	_ = replay.Lock()

	return replay, nil
}

// Reset clears the recorded log without altering the underlying
// device's contents, for starting a fresh commit scenario from the
// current state.
func (d *CrashDevice) Reset() {
	d.log = d.log[:0]
}
