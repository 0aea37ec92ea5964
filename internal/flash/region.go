// Package flash models the device's reserved NOR flash region: a
// storage-record area, a PIN-failure counter area, and a U2F counter
// area, plus the word-program/sector-erase primitives that the rest of
// the core builds its power-fail-safe protocol on.
package flash

// Region offsets and sizes, bit-exact with the device's flash layout.
//
//	0x0000  4      magic
//	0x0004  12     uuid
//	0x0010  ...    storage record
//	0x4000  0x1000 PIN-fail area
//	0x5000  0x0100 U2F area
//	0x5100  ...    reserved
const (
	MagicOffset  = 0x0000
	MagicSize    = 4
	UUIDOffset   = 0x0004
	UUIDSize     = 12
	RecordOffset = 0x0010

	// MetaSectorEnd is the exclusive end of the storage-record region;
	// everything up to here belongs to the sector erased/rewritten by
	// a commit.
	MetaSectorEnd = 0x4000

	PINAreaOffset = 0x4000
	PINAreaLen    = 0x1000

	U2FAreaOffset = 0x5000
	U2FAreaLen    = 0x0100

	ReservedOffset = 0x5100

	// Magic is the little-endian encoding of "stor".
	Magic uint32 = 0x726f7473
)

// SectorID identifies an erasable flash sector.
//
// SectorMeta holds the magic/uuid/record image (plus a small opaque
// meta-descriptor preamble owned by other firmware regions sharing
// the same physical erase block - see Device.ReadMetaDescriptor) and
// is erased as a whole by the Atomic Committer.
//
// SectorCounters holds both the PIN-fail area and the U2F area: on
// the real device these share one physical erase block ("the meta
// sector-last" in spec.md §4.5), so a sector recycle always clears
// both areas together.
type SectorID int

const (
	SectorMeta SectorID = iota
	SectorCounters
)

// MetaDescriptorSize is the size of the opaque preamble that the
// Atomic Committer must preserve verbatim across a SectorMeta erase
// (spec.md §4.2 step 1). It belongs to other firmware regions sharing
// the same physical sector and is never interpreted by this core.
const MetaDescriptorSize = 16
