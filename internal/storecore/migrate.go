package storecore

import (
	"encoding/binary"

	"github.com/ironvault/storecore/internal/flash"
)

// migrationResult communicates what the migrator found to the caller
// so boot-time wiring (Core.fromFlash) can decide whether a commit is
// required afterward.
type migrationResult struct {
	needsCommit bool
}

// migrate reconciles an on-flash record of the given legacy version
// against StorageVersion, bit-clearing newly introduced fields in
// place and staging whatever the update record needs for the
// subsequent commit (spec.md §4.3). imageLen is the byte length the
// record actually occupies in its stored form, i.e. legacy.through*
// for old versions or RecordImageSize for the current one.
func (c *Core) migrate(version uint32, imageLen int) (migrationResult, error) {
	if version > StorageVersion {
		return migrationResult{}, ErrDowngradeDetected
	}

	if version == StorageVersion {
		return migrationResult{needsCommit: false}, nil
	}

	newSize := legacyRecordSize(version)

	if err := c.bitClearGap(imageLen, newSize); err != nil {
		return migrationResult{}, err
	}

	if version <= 5 {
		if err := c.migratePinFailCounter(); err != nil {
			return migrationResult{}, err
		}
	}

	if version < 9 {
		// Stage has_mnemonic with the rom's current mnemonic so the
		// subsequent commit is forced to recompute u2froot (the
		// commit merge policy in committer.go treats any staged
		// has_mnemonic as "recompute the U2F root").
		c.update.HasMnemonic = c.rom.HasMnemonic
		c.update.Mnemonic = c.rom.Mnemonic
	}

	return migrationResult{needsCommit: true}, nil
}

// legacyRecordSize returns the byte length a record of the given
// legacy version occupied on flash, per spec.md §4.3's version table.
func legacyRecordSize(version uint32) int {
	switch {
	case version <= 2:
		return legacy.throughImported
	case version <= 5:
		return legacy.throughHomescreen
	case version <= 7:
		return legacy.throughU2FCounter
	case version == 8:
		return legacy.throughFlags
	case version == 9:
		return legacy.throughU2FRoot
	default:
		return RecordImageSize
	}
}

// bitClearGap programs zero words from oldSize to newSize within the
// record region, so every presence bit introduced by a newer schema
// reads as "absent" rather than whatever garbage followed the old
// record's shorter image.
func (c *Core) bitClearGap(oldSize, newSize int) error {
	if oldSize >= newSize {
		return nil
	}

	return flash.WithUnlock(c.dev, func() error {
		start := uint32(flash.RecordOffset + oldSize)
		end := uint32(flash.RecordOffset + newSize)

		return flash.ZeroFill(c.dev, start, end)
	})
}

// migratePinFailCounter converts the legacy (<=v5) small-integer PIN
// failure count, which lived inline in the record, into the bit-clear
// wait-word encoding the counter area uses from v6 onward. The legacy
// field itself is erased by bitClearGap; this only needs its numeric
// value, already decoded into the rom record before migrate() is
// called.
func (c *Core) migratePinFailCounter() error {
	pinctr := c.legacyPinFailedAttempts
	if pinctr > 31 {
		pinctr = 31
	}

	word := uint32(0xFFFFFFFF) << pinctr

	return flash.WithUnlock(c.dev, func() error {
		if err := c.dev.EraseSector(flash.SectorCounters); err != nil {
			return err
		}

		return c.dev.ProgramWord(flash.PINAreaOffset, word)
	})
}

// decodeLegacyPinFailedAttempts reads the small integer PIN-failure
// counter that versions <=5 stored inline, immediately after the
// "imported" field, as a single presence-bit + u32 pair (the same
// shape every other optional scalar field in the record uses).
func decodeLegacyPinFailedAttempts(buf []byte, afterOffset int) uint32 {
	if afterOffset+8 > len(buf) {
		return 0
	}

	has := binary.LittleEndian.Uint32(buf[afterOffset:])
	if has == 0 {
		return 0
	}

	return binary.LittleEndian.Uint32(buf[afterOffset+4:])
}
