package securechip

import (
	"github.com/ironvault/storecore/internal/cryptoutil"
	"github.com/ironvault/storecore/internal/storecore"
)

// SecureChip is the backend used when the device carries an external
// secure element: the mnemonic is stored as AES-CTR-ESSIV ciphertext
// keyed by a value the chip only releases after its own successful PIN
// verification, and the record's own PIN field is unused (HasPIN alone
// records presence - storecore.Record documents this asymmetry).
type SecureChip struct {
	Chip ExternalChip
}

func NewSecureChip(chip ExternalChip) *SecureChip {
	return &SecureChip{Chip: chip}
}

func (s *SecureChip) Name() string { return "secure-chip" }

func (s *SecureChip) EncodeMnemonic(plain [storecore.MnemonicCap]byte) ([storecore.MnemonicCap]byte, error) {
	var out [storecore.MnemonicCap]byte

	key, err := s.Chip.DeriveKey()
	if err != nil {
		return out, err
	}

	cipher, err := cryptoutil.NewESSIVCipher(key)
	if err != nil {
		return out, err
	}

	ct, err := cipher.EncryptBlock(0, plain[:])
	if err != nil {
		return out, err
	}

	copy(out[:], ct)

	return out, nil
}

func (s *SecureChip) DecodeMnemonic(stored [storecore.MnemonicCap]byte) ([storecore.MnemonicCap]byte, error) {
	var out [storecore.MnemonicCap]byte

	key, err := s.Chip.DeriveKey()
	if err != nil {
		return out, err
	}

	cipher, err := cryptoutil.NewESSIVCipher(key)
	if err != nil {
		return out, err
	}

	pt, err := cipher.DecryptBlock(0, stored[:])
	if err != nil {
		return out, err
	}

	copy(out[:], pt)

	return out, nil
}

func (s *SecureChip) SetPIN(digits string) error {
	initialized, err := s.Chip.ZoneIsInitialized()
	if err != nil {
		return err
	}

	if !initialized {
		return s.Chip.InitializeZone(digits)
	}

	return s.Chip.ChangePIN(digits)
}

// ContainsPIN delegates verification to the chip rather than comparing
// anything stored in the record, since the record carries no PIN
// digits for this backend.
func (s *SecureChip) ContainsPIN(record *storecore.Record, candidate string) bool {
	if !record.HasZoneIsInitialized || !record.ZoneIsInitialized {
		return candidate == ""
	}

	ok, _, err := s.Chip.VerifyPIN(candidate)

	return err == nil && ok
}

func (s *SecureChip) Wipe() error {
	return s.Chip.Wipe()
}
