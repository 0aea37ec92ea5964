package securechip

// ExternalChip abstracts the secure element the SecureChip backend
// delegates PIN verification and key derivation to. Zone is the
// element's own notion of a provisioned storage slot: it must be
// initialized once before the mnemonic can be encrypted and must be
// erased (not merely overwritten) on wipe, mirroring the flash
// sector-erase discipline storecore applies to its own region.
type ExternalChip interface {
	// ZoneIsInitialized reports whether the chip's zone has already
	// been provisioned with a PIN and key material.
	ZoneIsInitialized() (bool, error)

	// InitializeZone provisions the zone with the given initial PIN,
	// generating the chip-resident key the ESSIV cipher will use.
	InitializeZone(initialPIN string) error

	// VerifyPIN asks the chip to check candidate against its own
	// internally held PIN, returning the chip's own remaining-attempts
	// counter alongside the verdict. This is the "external PIN
	// verification" step: the chip, not this process, enforces the
	// counter that actually matters.
	VerifyPIN(candidate string) (ok bool, attemptsRemaining int, err error)

	// ChangePIN rewrites the chip's internal PIN, requiring the current
	// one to still be valid from the most recent VerifyPIN call.
	ChangePIN(newPIN string) error

	// DeriveKey returns the chip-resident AES key used to key the
	// ESSIV mnemonic cipher. It must only succeed after a successful
	// VerifyPIN in the same session.
	DeriveKey() ([]byte, error)

	// Wipe erases the zone, discarding the PIN and derived key.
	Wipe() error
}
