package storecore

import (
	"github.com/ironvault/storecore/internal/flash"
)

// commit merges c.update into c.rom and rewrites the meta sector
// atomically with respect to power loss (spec.md §4.2). update=false
// means "do not carry anything forward from rom" - used only by Wipe,
// which wants an empty record.
func (c *Core) commitLocked(update bool) error {
	if update {
		c.applyMergePolicy()
	}

	c.update.Version = StorageVersion

	img := EncodeRecord(c.update)

	if flash.RecordOffset+uint32(len(img)) > flash.MetaSectorEnd {
		return fatalf("record image does not fit reserved flash region", nil)
	}

	err := flash.WithUnlock(c.dev, func() error {
		meta := c.dev.ReadMetaDescriptor()

		if err := c.dev.EraseSector(flash.SectorMeta); err != nil {
			return flash.ErrProgramFailed
		}

		if err := c.dev.ProgramMetaDescriptor(meta); err != nil {
			return err
		}

		if err := c.programUUID(); err != nil {
			return err
		}

		if err := c.programRecordImage(img); err != nil {
			return err
		}

		if err := flash.ZeroFill(c.dev, flash.RecordOffset+uint32(len(img)), flash.MetaSectorEnd); err != nil {
			return err
		}

		// Magic is the last word programmed: until it reads back as
		// Magic, a crash anywhere above leaves the sector reading as
		// erased (first boot), never as a valid-but-incomplete record.
		return c.dev.ProgramWord(flash.MagicOffset, flash.Magic)
	})

	// Zeroize the staged update regardless of outcome (spec.md §4.2
	// step 5): a failed commit must not leave secret material sitting
	// in the in-memory update record.
	c.update.ZeroSecrets()
	c.update = &Record{}

	if err != nil {
		if err == flash.ErrProgramFailed {
			return fatalf("storage failure detected", err)
		}

		return err
	}

	c.rom, err = DecodeRecord(img)
	if err != nil {
		return fatalf("commit produced an unreadable record", err)
	}

	return nil
}

func (c *Core) programUUID() error {
	for i := 0; i < flash.UUIDSize; i += 4 {
		var word uint32

		for j := 0; j < 4; j++ {
			word |= uint32(c.uuid[i+j]) << (8 * j)
		}

		if err := c.dev.ProgramWord(flash.UUIDOffset+uint32(i), word); err != nil {
			return err
		}
	}

	return nil
}

func (c *Core) programRecordImage(img []byte) error {
	addr := uint32(flash.RecordOffset)

	for i := 0; i < len(img); i += 4 {
		var word uint32
		for j := 0; j < 4 && i+j < len(img); j++ {
			word |= uint32(img[i+j]) << (8 * j)
		}

		if err := c.dev.ProgramWord(addr, word); err != nil {
			return err
		}

		addr += 4
	}

	return nil
}

// applyMergePolicy implements spec.md §4.2's field-by-field merge:
// for each optional field, an update that sets HasX wins; otherwise
// rom's value is carried forward, with the node/mnemonic/u2froot
// carried as a unit and the u2froot forced to recompute whenever a
// new mnemonic is staged.
func (c *Core) applyMergePolicy() {
	u := c.update
	r := c.rom

	if u.HasPassphraseProtection {
		c.session.Clear(false)
	}

	if u.HasPIN {
		c.session.ClearPINOK()
	}

	switch {
	case !u.HasNode && !u.HasMnemonic:
		u.HasNode = r.HasNode
		u.Node = r.Node
		u.HasMnemonic = r.HasMnemonic
		u.Mnemonic = r.Mnemonic
		u.HasU2FRoot = r.HasU2FRoot
		u.U2FRoot = r.U2FRoot
	case u.HasMnemonic:
		u.HasU2FRoot = true

		root, err := c.computeU2FRoot(u.Mnemonic)
		if err != nil {
			u.HasU2FRoot = false
		} else {
			u.U2FRoot = root
		}
	}

	if !u.HasPassphraseProtection {
		u.HasPassphraseProtection = r.HasPassphraseProtection
		u.PassphraseProtection = r.PassphraseProtection
	}

	if !u.HasPIN {
		u.HasPIN = r.HasPIN
		u.PIN = r.PIN
	} else if stringFromNUL(u.PIN[:]) == "" {
		u.HasPIN = false
	}

	if !u.HasLanguage {
		u.HasLanguage = r.HasLanguage
		u.Language = r.Language
	}

	if !u.HasLabel {
		u.HasLabel = r.HasLabel
		u.Label = r.Label
	} else if stringFromNUL(u.Label[:]) == "" {
		u.HasLabel = false
	}

	if !u.HasImported {
		u.HasImported = r.HasImported
		u.Imported = r.Imported
	}

	if !u.HasHomescreen {
		u.HasHomescreen = r.HasHomescreen
		u.Homescreen = r.Homescreen
	} else if u.Homescreen.Size == 0 {
		u.HasHomescreen = false
	}

	if !u.HasU2FCounter {
		u.HasU2FCounter = r.HasU2FCounter
		u.U2FCounter = r.U2FCounter
	}

	if !u.HasNeedsBackup {
		u.HasNeedsBackup = r.HasNeedsBackup
		u.NeedsBackup = r.NeedsBackup
	}

	if !u.HasFlags {
		u.HasFlags = r.HasFlags
		u.Flags = r.Flags
	}

	if !u.HasZoneIsInitialized {
		u.HasZoneIsInitialized = r.HasZoneIsInitialized
		u.ZoneIsInitialized = r.ZoneIsInitialized
	}
}
