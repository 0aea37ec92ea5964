// Package securechip provides the two concrete storecore.SecretBackend
// implementations: InMcu, which keeps the mnemonic and PIN in the
// storage record itself, and SecureChip, which delegates both to an
// external secure element reachable through the ExternalChip
// interface.
package securechip

import (
	"github.com/ironvault/storecore/internal/cryptoutil"
	"github.com/ironvault/storecore/internal/storecore"
)

// InMcu is the backend used when the device has no secure element: the
// mnemonic is stored as plaintext UTF-8 in the record and the PIN
// digits live directly in Record.PIN.
type InMcu struct{}

func (InMcu) Name() string { return "in-mcu" }

func (InMcu) EncodeMnemonic(plain [storecore.MnemonicCap]byte) ([storecore.MnemonicCap]byte, error) {
	return plain, nil
}

func (InMcu) DecodeMnemonic(stored [storecore.MnemonicCap]byte) ([storecore.MnemonicCap]byte, error) {
	return stored, nil
}

func (InMcu) SetPIN(string) error { return nil }

func (InMcu) ContainsPIN(record *storecore.Record, candidate string) bool {
	if !record.HasPIN {
		return candidate == ""
	}

	var want [storecore.PINCap + 1]byte
	copy(want[:], record.PIN[:])

	var got [storecore.PINCap + 1]byte

	n := copy(got[:], candidate)
	for i := n; i < len(got); i++ {
		got[i] = 0
	}

	return cryptoutil.ConstantTimeEqual(want[:], got[:])
}

func (InMcu) Wipe() error { return nil }
