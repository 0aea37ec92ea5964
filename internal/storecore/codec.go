package storecore

import (
	"encoding/binary"
	"fmt"
)

// The codec is a direct structural mapping, not a variable-length
// encoding (spec.md §4.1): every optional field is preceded by its
// presence bit, strings use fixed-capacity NUL-terminated buffers, and
// blobs use a {size, bytes} pair. Presence bits and u32/bool scalars
// are each written as a 4-byte little-endian word so the whole image
// stays 4-byte aligned without manual padding bookkeeping.

// encoder appends a Record's wire image to an internal buffer.
type encoder struct {
	buf []byte
}

func (e *encoder) u32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *encoder) boolean(v bool) {
	if v {
		e.u32(1)
	} else {
		e.u32(0)
	}
}

func (e *encoder) raw(b []byte) {
	e.buf = append(e.buf, b...)

	for len(e.buf)%4 != 0 {
		e.buf = append(e.buf, 0)
	}
}

func (e *encoder) node(n *HDNode) {
	e.u32(n.Depth)
	e.u32(n.Fingerprint)
	e.u32(n.ChildNum)
	e.raw(n.ChainCode[:])
	e.boolean(n.HasPrivateKey)
	e.raw(n.PrivateKey[:])
}

// decoder reads a Record's wire image sequentially.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) u32() (uint32, error) {
	if d.off+4 > len(d.buf) {
		return 0, fmt.Errorf("storecore: record image truncated at offset %d", d.off)
	}

	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4

	return v, nil
}

func (d *decoder) boolean() (bool, error) {
	v, err := d.u32()

	return v != 0, err
}

func (d *decoder) raw(n int) ([]byte, error) {
	padded := (n + 3) &^ 3

	if d.off+padded > len(d.buf) {
		return nil, fmt.Errorf("storecore: record image truncated at offset %d", d.off)
	}

	b := d.buf[d.off : d.off+n]
	d.off += padded

	return b, nil
}

func (d *decoder) node() (HDNode, error) {
	var n HDNode

	var err error

	if n.Depth, err = d.u32(); err != nil {
		return n, err
	}

	if n.Fingerprint, err = d.u32(); err != nil {
		return n, err
	}

	if n.ChildNum, err = d.u32(); err != nil {
		return n, err
	}

	cc, err := d.raw(32)
	if err != nil {
		return n, err
	}

	copy(n.ChainCode[:], cc)

	if n.HasPrivateKey, err = d.boolean(); err != nil {
		return n, err
	}

	pk, err := d.raw(32)
	if err != nil {
		return n, err
	}

	copy(n.PrivateKey[:], pk)

	return n, nil
}

// EncodeRecord serializes r into its flash-resident wire image,
// ending at a 4-byte boundary (every field it writes is already a
// multiple of 4 bytes, so no trailing pad is needed).
func EncodeRecord(r *Record) []byte {
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

	e.boolean(r.HasHomescreen)
	e.u32(r.Homescreen.Size)
	e.raw(r.Homescreen.Bytes[:])

	e.boolean(r.HasU2FCounter)
	e.u32(r.U2FCounter)

	e.boolean(r.HasNeedsBackup)
	e.boolean(r.NeedsBackup)

	e.boolean(r.HasFlags)
	e.u32(r.Flags)

	e.boolean(r.HasU2FRoot)
	e.node(&r.U2FRoot)

	e.boolean(r.HasZoneIsInitialized)
	e.boolean(r.ZoneIsInitialized)

	return e.buf
}

// RecordImageSize is the exact byte length EncodeRecord always
// produces; callers use it to size the flash region reserved for the
// record (spec.md §4.1: FLASH_STORAGE_START + sizeof(image) <= 0x4000).
var RecordImageSize = len(EncodeRecord(&Record{}))

// DecodeRecord parses a wire image produced by EncodeRecord. Schema
// versions older than the image length it was serialized with are
// handled by the migrator, not here: DecodeRecord only ever sees
// images that are already padded up to the current schema's size (the
// migrator bit-clears the gap first).
func DecodeRecord(buf []byte) (*Record, error) {
	d := &decoder{buf: buf}

	r := &Record{}

	var err error

	if r.Version, err = d.u32(); err != nil {
		return nil, err
	}

	if r.HasNode, err = d.boolean(); err != nil {
		return nil, err
	}

	if r.Node, err = d.node(); err != nil {
		return nil, err
	}

	if r.HasMnemonic, err = d.boolean(); err != nil {
		return nil, err
	}

	mn, err := d.raw(MnemonicCap)
	if err != nil {
		return nil, err
	}

	copy(r.Mnemonic[:], mn)

	if r.HasPassphraseProtection, err = d.boolean(); err != nil {
		return nil, err
	}

	if r.PassphraseProtection, err = d.boolean(); err != nil {
		return nil, err
	}

	if r.HasPIN, err = d.boolean(); err != nil {
		return nil, err
	}

	pin, err := d.raw(PINCap + 1)
	if err != nil {
		return nil, err
	}

	copy(r.PIN[:], pin)

	if r.HasLanguage, err = d.boolean(); err != nil {
		return nil, err
	}

	lang, err := d.raw(LanguageCap)
	if err != nil {
		return nil, err
	}

	copy(r.Language[:], lang)

	if r.HasLabel, err = d.boolean(); err != nil {
		return nil, err
	}

	label, err := d.raw(LabelCap)
	if err != nil {
		return nil, err
	}

	copy(r.Label[:], label)

	if r.HasImported, err = d.boolean(); err != nil {
		return nil, err
	}

	if r.Imported, err = d.boolean(); err != nil {
		return nil, err
	}

	if r.HasHomescreen, err = d.boolean(); err != nil {
		return nil, err
	}

	if r.Homescreen.Size, err = d.u32(); err != nil {
		return nil, err
	}

	hs, err := d.raw(HomescreenLen)
	if err != nil {
		return nil, err
	}

	copy(r.Homescreen.Bytes[:], hs)

	if r.HasU2FCounter, err = d.boolean(); err != nil {
		return nil, err
	}

	if r.U2FCounter, err = d.u32(); err != nil {
		return nil, err
	}

	if r.HasNeedsBackup, err = d.boolean(); err != nil {
		return nil, err
	}

	if r.NeedsBackup, err = d.boolean(); err != nil {
		return nil, err
	}

	if r.HasFlags, err = d.boolean(); err != nil {
		return nil, err
	}

	if r.Flags, err = d.u32(); err != nil {
		return nil, err
	}

	if r.HasU2FRoot, err = d.boolean(); err != nil {
		return nil, err
	}

	if r.U2FRoot, err = d.node(); err != nil {
		return nil, err
	}

	if r.HasZoneIsInitialized, err = d.boolean(); err != nil {
		return nil, err
	}

	if r.ZoneIsInitialized, err = d.boolean(); err != nil {
		return nil, err
	}

	return r, nil
}
