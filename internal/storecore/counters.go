package storecore

import (
	"math/bits"

	"github.com/ironvault/storecore/internal/flash"
)

// pinFailsOffset returns the address of the current (first non-zero)
// word in the PIN-fail area. A fresh area reads all words as
// 0xFFFFFFFF, so the current word is always well-defined until the
// area is exhausted, at which point the caller must recycle first.
func pinFailsOffset(dev flash.Device) (uint32, bool) {
	for addr := uint32(flash.PINAreaOffset); addr < flash.PINAreaOffset+flash.PINAreaLen; addr += 4 {
		if dev.ReadWord(addr) != 0 {
			return addr, true
		}
	}

	return 0, false
}

// getPinWait returns the inverted wait time in seconds encoded by the
// current word's bit pattern (1...10...0): wait = ^word.
func getPinWait(dev flash.Device, addr uint32) uint32 {
	return ^dev.ReadWord(addr)
}

// increasePinFails bit-clears one more trailing bit of the current
// word. If the counter has saturated (shifting left produces zero),
// it returns ErrSaturated but the caller must still treat this as
// "PIN check proceeds" per spec.md §4.5 - saturation does not block a
// correct PIN, it only means the wait time can no longer grow.
func increasePinFails(dev flash.Device, addr uint32) error {
	cur := dev.ReadWord(addr)

	newctr := cur << 1
	if newctr == 0 {
		return ErrSaturated
	}

	if err := flash.WithUnlock(dev, func() error {
		return dev.ProgramWord(addr, newctr)
	}); err != nil {
		return err
	}

	if dev.ReadWord(addr) != newctr {
		return fatalf("pin-fail counter write did not verify", nil)
	}

	return nil
}

// resetPinFails clears the current word to zero, advancing the
// current word to the next one in the area. If no next word exists,
// it recycles the counter sector instead, re-arming the area with a
// fresh 0xFFFFFFFF counter.
func resetPinFails(c *Core, addr uint32) error {
	if addr+4 >= flash.PINAreaOffset+flash.PINAreaLen {
		return areaRecycle(c, 0xFFFFFFFF)
	}

	return flash.WithUnlock(c.dev, func() error {
		return c.dev.ProgramWord(addr, 0)
	})
}

// u2fOffsetFromArea scans the U2F area bit-by-bit (LSB-first within
// each word) to recompute u2f_offset from scratch, used on boot.
func u2fOffsetFromArea(dev flash.Device) uint32 {
	var offset uint32

	for addr := uint32(flash.U2FAreaOffset); addr < flash.U2FAreaOffset+flash.U2FAreaLen; addr += 4 {
		word := dev.ReadWord(addr)
		if word == 0 {
			offset += 32

			continue
		}

		// Cleared bits are the trailing zeros of word when counted
		// LSB-first: a cleared bit reads 0, so count how many low
		// bits of word are zero before the first set bit.
		offset += uint32(bits.TrailingZeros32(word))

		return offset
	}

	return offset
}

// nextU2FCounter clears the next bit of the U2F area, recycling the
// sector if the area is exhausted, and returns the new effective
// counter value (u2f_counter + u2f_offset). Monotonicity (P3) follows
// because every call either clears one more bit (offset++) or folds
// the exhausted area's full offset into u2f_counter before resetting
// offset to zero - the sum never decreases.
func nextU2FCounter(c *Core) (uint32, error) {
	addr := flash.U2FAreaOffset + 4*(c.u2fOffset/32)
	newval := uint32(0xFFFFFFFE) << (c.u2fOffset & 31)

	if err := flash.WithUnlock(c.dev, func() error {
		return c.dev.ProgramWord(addr, newval)
	}); err != nil {
		return 0, err
	}

	c.u2fOffset++

	if c.u2fOffset >= 8*flash.U2FAreaLen {
		if err := areaRecycle(c, getCurrentPinWord(c)); err != nil {
			return 0, err
		}
	}

	return c.rom.U2FCounter + c.u2fOffset, nil
}

// getCurrentPinWord returns the PIN area's current word value
// unmodified, used to preserve the PIN-fail counter across a recycle
// triggered by U2F exhaustion (which must not reset PIN fails).
func getCurrentPinWord(c *Core) uint32 {
	addr, ok := pinFailsOffset(c.dev)
	if !ok {
		return 0xFFFFFFFF
	}

	return c.dev.ReadWord(addr)
}

// areaRecycle implements spec.md §4.5: clear the storage magic first
// (so a crash between here and the final commit leaves the device
// wiped rather than running with a zeroed PIN-fail counter), erase the
// counter sector, reseed the PIN-fail word, fold u2f_offset into
// rom.U2FCounter, and commit.
func areaRecycle(c *Core, newPinFails uint32) error {
	err := flash.WithUnlock(c.dev, func() error {
		if err := c.dev.ProgramWord(flash.MagicOffset, 0); err != nil {
			return err
		}

		if c.dev.ReadWord(flash.MagicOffset) != 0 {
			return fatalf("magic clear did not verify", nil)
		}

		if err := c.dev.EraseSector(flash.SectorCounters); err != nil {
			return err
		}

		return c.dev.ProgramWord(flash.PINAreaOffset, newPinFails)
	})
	if err != nil {
		return err
	}

	c.rom.U2FCounter += c.u2fOffset
	c.u2fOffset = 0

	c.update = &Record{HasU2FCounter: true, U2FCounter: c.rom.U2FCounter}

	// Commit brackets its own unlock/lock; it must not be nested
	// inside the bracket above (flash.WithUnlock is not reentrant).
	// update=true runs the merge policy, carrying every other field
	// forward from c.rom instead of re-persisting an empty record.
	return c.commitLocked(true)
}
