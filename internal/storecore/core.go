package storecore

import (
	"encoding/binary"
	"strconv"

	"github.com/agext/uuid"

	"github.com/ironvault/storecore/internal/cryptoutil"
	"github.com/ironvault/storecore/internal/flash"
)

// sessionCache is the slice of internal/session's Cache that the core
// needs to invalidate when a commit changes something the cache was
// keyed on (a new PIN, new passphrase setting, or a wipe). Declared
// here rather than imported to keep internal/session free to depend on
// storecore instead of the other way around.
type sessionCache interface {
	// Clear drops the cached seed/root node. keepAuthenticated controls
	// whether a currently-valid PIN-OK flag survives the clear.
	Clear(keepAuthenticated bool)

	// ClearPINOK drops only the PIN-OK flag, leaving any cached seed in
	// place (spec.md §4.4: a PIN change must force re-authentication
	// without necessarily invalidating a still-valid cached seed).
	ClearPINOK()
}

// noopSession is used when Open is given a nil session cache (as the
// storecore tests do); corectl always wires in a session.Cache.
type noopSession struct{}

func (noopSession) Clear(bool)  {}
func (noopSession) ClearPINOK() {}

// Core is the public API every UI/USB/CLI surface drives: the single
// owner of the flash device, the decoded rom record, and the backend
// that protects the mnemonic and PIN at rest.
type Core struct {
	dev     flash.Device
	backend SecretBackend
	session sessionCache

	rom    *Record
	update *Record

	uuid [flash.UUIDSize]byte

	u2fOffset               uint32
	legacyPinFailedAttempts uint32
}

// Open reads the device's flash region, migrating a legacy record
// forward if necessary, or initializes a fresh in-memory record if the
// device has never been committed to (magic mismatch - spec.md §4.2
// "first boot").
func Open(dev flash.Device, backend SecretBackend, session sessionCache) (*Core, error) {
	if session == nil {
		session = noopSession{}
	}

	c := &Core{dev: dev, backend: backend, session: session, update: &Record{}}

	if dev.ReadWord(flash.MagicOffset) != flash.Magic {
		c.rom = &Record{Version: StorageVersion}
		c.generateUUID()

		return c, nil
	}

	c.readUUID()

	version := dev.ReadWord(flash.RecordOffset)

	rawLen := RecordImageSize
	if version != StorageVersion {
		rawLen = legacyRecordSize(version)
	}

	raw := c.readRecordBytes(rawLen)

	if version <= 5 {
		c.legacyPinFailedAttempts = decodeLegacyPinFailedAttempts(raw, legacy.throughImported-8)
	}

	rom, err := DecodeRecord(padTo(raw, RecordImageSize))
	if err != nil {
		return nil, fatalf("corrupt storage record", err)
	}

	c.rom = rom

	result, err := c.migrate(version, rawLen)
	if err != nil {
		return nil, err
	}

	if result.needsCommit {
		rom2, err := DecodeRecord(c.readRecordBytes(RecordImageSize))
		if err != nil {
			return nil, fatalf("corrupt storage record after migration", err)
		}

		c.rom = rom2

		// update=true: the merge policy carries every field migrate()
		// didn't explicitly stage forward from rom2, and recomputes the
		// U2F root when migrate() staged has_mnemonic to force that.
		if err := c.commitLocked(true); err != nil {
			return nil, err
		}
	}

	c.u2fOffset = u2fOffsetFromArea(dev)

	return c, nil
}

func padTo(buf []byte, size int) []byte {
	out := make([]byte, size)
	copy(out, buf)

	return out
}

func (c *Core) readRecordBytes(n int) []byte {
	out := make([]byte, n)

	addr := uint32(flash.RecordOffset)
	for i := 0; i < n; i += 4 {
		word := c.dev.ReadWord(addr)
		binary.LittleEndian.PutUint32(out[i:], word)
		addr += 4
	}

	return out[:n]
}

func (c *Core) readUUID() {
	addr := uint32(flash.UUIDOffset)
	for i := 0; i < flash.UUIDSize; i += 4 {
		word := c.dev.ReadWord(addr)
		binary.LittleEndian.PutUint32(c.uuid[i:], word)
		addr += 4
	}
}

func (c *Core) generateUUID() {
	id := uuid.NewCrypto()

	n := copy(c.uuid[:], id)
	for ; n < flash.UUIDSize; n++ {
		c.uuid[n] = byte(n)
	}
}

// Initialized reports whether the device holds usable secret
// material, either a committed mnemonic or an imported node
// (spec.md's supplemented storage_is_initialized(): has_node ||
// has_mnemonic).
func (c *Core) Initialized() bool {
	return c.rom.HasMnemonic || c.rom.HasNode
}

// Wipe erases the meta sector and counter sector, returning the device
// to its factory state. It is the only caller that commits with
// update=false against a deliberately empty update record.
func (c *Core) Wipe() error {
	if err := c.backend.Wipe(); err != nil {
		return err
	}

	if err := flash.WithUnlock(c.dev, func() error {
		return c.dev.EraseSector(flash.SectorCounters)
	}); err != nil {
		return err
	}

	c.rom.ZeroSecrets()
	c.rom = &Record{}
	c.update = &Record{}
	c.u2fOffset = 0
	c.generateUUID()

	c.session.Clear(false)

	return c.commitLocked(false)
}

// SetMnemonic stages a new mnemonic (already split into words by the
// caller) and passphrase-protection flag, and commits.
func (c *Core) SetMnemonic(words string, passphraseProtection bool) error {
	encoded, err := c.prepareMnemonic(words)
	if err != nil {
		return err
	}

	c.update = &Record{
		HasMnemonic:             true,
		Mnemonic:                encoded,
		HasPassphraseProtection: true,
		PassphraseProtection:    passphraseProtection,
		HasNeedsBackup:          true,
		NeedsBackup:             true,
	}

	return c.commitLocked(true)
}

// SetNode imports a pre-derived secp256k1 HD node in place of a
// mnemonic (spec.md §1 "mnemonic or serialized HD key"; mirrors the
// firmware's LoadDevice has_node path, storage_setNode). The node is
// stored as given; unlike a mnemonic it is never routed through the
// SecretBackend, matching the original firmware's own limitation
// ("we only protect seeds by encryption, not nodes").
func (c *Core) SetNode(node HDNode) error {
	c.session.Clear(false)

	c.update = &Record{HasNode: true, Node: node}

	return c.commitLocked(true)
}

// HasNode reports whether an imported HD node (rather than a
// mnemonic) is the device's current secret material.
func (c *Core) HasNode() bool {
	return c.rom.HasNode
}

// Node returns the imported HD node, or ErrNoSecret if none is set.
func (c *Core) Node() (HDNode, error) {
	if !c.rom.HasNode {
		return HDNode{}, ErrNoSecret
	}

	return c.rom.Node, nil
}

func (c *Core) prepareMnemonic(words string) ([MnemonicCap]byte, error) {
	var plain [MnemonicCap]byte

	if !putNULString(plain[:], words) {
		return plain, fatalf("mnemonic does not fit reserved storage", nil)
	}

	return c.backend.EncodeMnemonic(plain)
}

// SetPassphraseProtection stages the passphrase-protection flag alone,
// leaving the mnemonic untouched (the merge policy carries it forward
// since the update record sets neither HasNode nor HasMnemonic).
func (c *Core) SetPassphraseProtection(v bool) error {
	c.update = &Record{HasPassphraseProtection: true, PassphraseProtection: v}

	return c.commitLocked(true)
}

// SetPIN stages a new PIN. An empty string removes PIN protection.
func (c *Core) SetPIN(digits string) error {
	if err := c.backend.SetPIN(digits); err != nil {
		return err
	}

	var pin [PINCap + 1]byte
	putNULString(pin[:], digits)

	c.update = &Record{
		HasPIN:               true,
		PIN:                  pin,
		HasZoneIsInitialized: true,
		ZoneIsInitialized:    true,
	}

	return c.commitLocked(true)
}

// SetLabel stages a new device label.
func (c *Core) SetLabel(label string) error {
	var buf [LabelCap]byte
	putNULString(buf[:], label)

	c.update = &Record{HasLabel: true, Label: buf}

	return c.commitLocked(true)
}

// SetLanguage stages a new UI language, normalized per spec.md's
// Language() rules (empty input means "leave unchanged").
func (c *Core) SetLanguage(lang string) error {
	if lang == "" {
		return nil
	}

	var buf [LanguageCap]byte
	putNULString(buf[:], normalizeLanguage(lang))

	c.update = &Record{HasLanguage: true, Language: buf}

	return c.commitLocked(true)
}

// Language returns the normalized, NUL-stripped current language, or
// "en-US" if never set (spec.md's supplemented Language() accessor).
func (c *Core) Language() string {
	if !c.rom.HasLanguage {
		return "en-US"
	}

	s := stringFromNUL(c.rom.Language[:])
	if s == "" {
		return "en-US"
	}

	if s == "english" {
		return "EN"
	}

	return s
}

func normalizeLanguage(s string) string {
	if len(s) > LanguageCap-1 {
		return s[:LanguageCap-1]
	}

	return s
}

// SetHomescreen stages a new homescreen bitmap.
func (c *Core) SetHomescreen(data []byte) error {
	if len(data) > HomescreenLen {
		return fatalf("homescreen image exceeds reserved storage", nil)
	}

	var hs Homescreen

	hs.Size = uint32(len(data))
	copy(hs.Bytes[:], data)

	c.update = &Record{HasHomescreen: true, Homescreen: hs}

	return c.commitLocked(true)
}

// SetNeedsBackup stages the needs-backup flag.
func (c *Core) SetNeedsBackup(v bool) error {
	c.update = &Record{HasNeedsBackup: true, NeedsBackup: v}

	return c.commitLocked(true)
}

// NeedsBackup reports the current needs-backup flag.
func (c *Core) NeedsBackup() bool {
	return c.rom.HasNeedsBackup && c.rom.NeedsBackup
}

// Flags returns the current feature-flag bitmask.
func (c *Core) Flags() uint32 {
	if !c.rom.HasFlags {
		return 0
	}

	return c.rom.Flags
}

// ApplyFlags ORs newFlags into the current flag bitmask and commits
// (spec.md's supplemented ApplyFlags(): flags only ever accumulate,
// matching the firmware's "flags can't be unset once set" contract).
func (c *Core) ApplyFlags(newFlags uint32) error {
	merged := c.Flags() | newFlags
	if merged == c.Flags() {
		return nil
	}

	c.update = &Record{HasFlags: true, Flags: merged}

	return c.commitLocked(true)
}

// SetImported stages the imported flag.
func (c *Core) SetImported(v bool) error {
	c.update = &Record{HasImported: true, Imported: v}

	return c.commitLocked(true)
}

// CheckPIN verifies candidate against the stored PIN (constant-time),
// bit-clearing the PIN-fail counter on failure and resetting it on
// success. It returns the seconds the caller must wait before the next
// attempt when candidate is wrong, or 0 with ok=true on success.
func (c *Core) CheckPIN(candidate string) (ok bool, waitSeconds uint32, err error) {
	addr, present := pinFailsOffset(c.dev)
	if !present {
		if err := resetPinFails(c, flash.PINAreaOffset); err != nil {
			return false, 0, err
		}

		addr, _ = pinFailsOffset(c.dev)
	}

	wait := getPinWait(c.dev, addr)
	if wait > 0 {
		return false, wait, nil
	}

	if c.backend.ContainsPIN(c.rom, candidate) {
		if err := resetPinFails(c, addr); err != nil {
			return false, 0, err
		}

		c.session.ClearPINOK()

		return true, 0, nil
	}

	if err := increasePinFails(c.dev, addr); err != nil && err != ErrSaturated {
		return false, 0, err
	}

	return false, getPinWait(c.dev, addr), nil
}

// HasPIN reports whether a PIN is currently configured.
func (c *Core) HasPIN() bool {
	return c.rom.HasPIN
}

// PassphraseProtection reports the current passphrase-protection flag.
func (c *Core) PassphraseProtection() bool {
	return c.rom.HasPassphraseProtection && c.rom.PassphraseProtection
}

// NextU2FCounter advances and returns the monotonic U2F counter (P3).
func (c *Core) NextU2FCounter() (uint32, error) {
	return nextU2FCounter(c)
}

// U2FCounter returns the current effective U2F counter value without
// advancing it.
func (c *Core) U2FCounter() uint32 {
	return c.rom.U2FCounter + c.u2fOffset
}

// Mnemonic decodes and returns the plaintext mnemonic words, or
// ErrNoSecret if none is set. Callers must zero the returned buffer's
// backing array once done with it.
func (c *Core) Mnemonic() (string, error) {
	if !c.rom.HasMnemonic {
		return "", ErrNoSecret
	}

	plain, err := c.backend.DecodeMnemonic(c.rom.Mnemonic)
	if err != nil {
		return "", err
	}

	defer zeroBytes(plain[:])

	return stringFromNUL(plain[:]), nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// computeU2FRoot derives the fixed U2F root node from a plaintext
// mnemonic, for staging into the record whenever a new mnemonic is
// committed (spec.md §4.6).
func (c *Core) computeU2FRoot(encodedMnemonic [MnemonicCap]byte) (HDNode, error) {
	plain, err := c.backend.DecodeMnemonic(encodedMnemonic)
	if err != nil {
		return HDNode{}, err
	}

	defer zeroBytes(plain[:])

	mnemonic := stringFromNUL(plain[:])

	seed := cryptoutil.SeedFromMnemonic(mnemonic, "")
	defer zeroBytes(seed)

	node, err := cryptoutil.MasterNodeNIST256P1(seed)
	if err != nil {
		return HDNode{}, err
	}

	for _, idx := range U2FKeyPathComponents {
		node, err = cryptoutil.DeriveChildNIST256P1(node, idx)
		if err != nil {
			return HDNode{}, err
		}
	}

	out := HDNode{
		Depth:         node.Depth,
		Fingerprint:   node.Fingerprint,
		ChildNum:      node.ChildNum,
		HasPrivateKey: true,
	}

	copy(out.ChainCode[:], node.ChainCode[:])
	copy(out.PrivateKey[:], node.PrivateKey[:])

	node.Zero()

	return out, nil
}

// UUID returns the device's 12-byte storage UUID as a hex string, for
// status reporting.
func (c *Core) UUID() string {
	buf := make([]byte, 0, flash.UUIDSize*2)

	for _, b := range c.uuid {
		buf = append(buf, hexDigits[b>>4], hexDigits[b&0xF])
	}

	return string(buf)
}

var hexDigits = "0123456789abcdef"

// BackendName reports which SecretBackend is active, for status
// reporting and the corectl "status" subcommand.
func (c *Core) BackendName() string {
	return c.backend.Name()
}

// U2FRoot returns the cached U2F root node, or ErrNoSecret if absent.
func (c *Core) U2FRoot() (HDNode, error) {
	if !c.rom.HasU2FRoot {
		return HDNode{}, ErrNoSecret
	}

	return c.rom.U2FRoot, nil
}

// PinFailsRemainingWait reports the current PIN-retry backoff in
// seconds without consuming an attempt.
func (c *Core) PinFailsRemainingWait() uint32 {
	addr, present := pinFailsOffset(c.dev)
	if !present {
		return 0
	}

	return getPinWait(c.dev, addr)
}

// String implements fmt.Stringer for debug/status output.
func (c *Core) String() string {
	return "storecore.Core{uuid=" + c.UUID() + ", version=" + strconv.FormatUint(uint64(c.rom.Version), 16) + "}"
}
