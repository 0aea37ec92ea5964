package storecore

// legacySizes mirrors EncodeRecord's field order, recording the byte
// offset immediately after each field named in spec.md §4.3's
// migration table. Computing them by replaying the same encoder the
// current codec uses (rather than hand-maintained arithmetic) keeps
// them from silently drifting out of sync with the wire format.
type legacySizes struct {
	throughImported   int
	throughHomescreen int
	throughU2FCounter int
	throughFlags      int
	throughU2FRoot    int
}

func computeLegacySizes() legacySizes {
	var r Record

	e := &encoder{}

	e.u32(r.Version)
	e.boolean(r.HasNode)
	e.node(&r.Node)
	e.boolean(r.HasMnemonic)
	e.raw(r.Mnemonic[:])
	e.boolean(r.HasPassphraseProtection)
	e.boolean(r.PassphraseProtection)
	e.boolean(r.HasPIN)
	e.raw(r.PIN[:])
	e.boolean(r.HasLanguage)
	e.raw(r.Language[:])
	e.boolean(r.HasLabel)
	e.raw(r.Label[:])
	e.boolean(r.HasImported)
	e.boolean(r.Imported)

	var s legacySizes
	s.throughImported = len(e.buf)

	e.boolean(r.HasHomescreen)
	e.u32(r.Homescreen.Size)
	e.raw(r.Homescreen.Bytes[:])
	s.throughHomescreen = len(e.buf)

	e.boolean(r.HasU2FCounter)
	e.u32(r.U2FCounter)
	s.throughU2FCounter = len(e.buf)

	e.boolean(r.HasNeedsBackup)
	e.boolean(r.NeedsBackup)
	e.boolean(r.HasFlags)
	e.u32(r.Flags)
	s.throughFlags = len(e.buf)

	e.boolean(r.HasU2FRoot)
	e.node(&r.U2FRoot)
	s.throughU2FRoot = len(e.buf)

	return s
}

var legacy = computeLegacySizes()
