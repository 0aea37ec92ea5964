package flash

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	"golang.org/x/sys/unix"
)

// FileDevice backs a MemDevice with a real file so that a corectl
// session's device state survives process restarts, the way a real
// NOR chip survives a reboot. It is not a flash simulator in the
// torn-write sense (see CrashDevice for that) - it durably writes the
// whole image when Flush is called (not on each unlock/lock bracket),
// using an OS-level advisory lock to serialize concurrent corectl
// processes touching the same image file.
//
// The flock call is grounded on the single-writer guarantee the
// storage engine needs around flash access; the atomic rename-based
// flush is grounded on the same durable-write-then-rename pattern used
// throughout this codebase's own atomic writer.
type FileDevice struct {
	*MemDevice

	path   string
	lockFD int
}

// OpenFileDevice opens (creating if absent) a file-backed flash image
// of the given size at path, taking an exclusive advisory lock for the
// lifetime of the returned device.
func OpenFileDevice(path string, size uint32) (*FileDevice, error) {
	lockPath := path + ".lock"

	lockFD, err := unix.Open(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("flash: open lock file: %w", err)
	}

	if err := unix.Flock(lockFD, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = unix.Close(lockFD)

		return nil, fmt.Errorf("flash: image %q is locked by another process: %w", path, err)
	}

	mem, err := loadOrCreate(path, size)
	if err != nil {
		_ = unix.Close(lockFD)

		return nil, err
	}

	return &FileDevice{MemDevice: mem, path: path, lockFD: lockFD}, nil
}

func loadOrCreate(path string, size uint32) (*MemDevice, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewMemDevice(size), nil
	}

	if err != nil {
		return nil, fmt.Errorf("flash: read image: %w", err)
	}

	if uint32(len(raw)) != size+MetaDescriptorSize {
		return nil, fmt.Errorf("flash: image %q has size %d, want %d", path, len(raw), size+MetaDescriptorSize)
	}

	words := make([]uint32, size/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}

	d := &MemDevice{words: words, locked: true}
	copy(d.metaDesc[:], raw[size:])

	return d, nil
}

// Flush durably persists the current device contents to disk via a
// temp-file-then-rename, so a crash between Flush calls loses at most
// the writes made since the previous Flush - matching the semantics of
// a real NOR chip, where every ProgramWord/EraseSector call is already
// durable, and Flush exists only because this simulator's backing
// store is a regular file rather than addressable memory.
func (d *FileDevice) Flush() error {
	buf := make([]byte, len(d.words)*4+MetaDescriptorSize)

	for i, w := range d.words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}

	copy(buf[len(d.words)*4:], d.metaDesc[:])

	return atomic.WriteFile(d.path, bytes.NewReader(buf))
}

// Close releases the advisory lock. It does not flush; callers must
// call Flush explicitly after every commit they want durable.
func (d *FileDevice) Close() error {
	return unix.Close(d.lockFD)
}
