package securechip

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"github.com/ironvault/storecore/internal/cryptoutil"
)

// SimChip is a software-only ExternalChip, used by corectl's
// secure-chip configuration and by tests that exercise the SecureChip backend
// without real hardware attached - the secure-element equivalent of
// flash.MemDevice.
type SimChip struct {
	initialized bool
	pin         string
	key         []byte
	fails       int
}

// NewSimChip returns an unprovisioned chip.
func NewSimChip() *SimChip {
	return &SimChip{}
}

var errZoneNotInitialized = errors.New("securechip: zone not initialized")

func (c *SimChip) ZoneIsInitialized() (bool, error) {
	return c.initialized, nil
}

func (c *SimChip) InitializeZone(initialPIN string) error {
	if c.initialized {
		return errors.New("securechip: zone already initialized")
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return err
	}

	c.key = key
	c.pin = initialPIN
	c.initialized = true
	c.fails = 0

	return nil
}

const simChipMaxAttempts = 15

func (c *SimChip) VerifyPIN(candidate string) (bool, int, error) {
	if !c.initialized {
		return false, 0, errZoneNotInitialized
	}

	if c.fails >= simChipMaxAttempts {
		return false, 0, errors.New("securechip: zone locked, wipe required")
	}

	if cryptoutil.ConstantTimeEqual(hashPIN(candidate), hashPIN(c.pin)) {
		c.fails = 0

		return true, simChipMaxAttempts, nil
	}

	c.fails++

	return false, simChipMaxAttempts - c.fails, nil
}

func (c *SimChip) ChangePIN(newPIN string) error {
	if !c.initialized {
		return errZoneNotInitialized
	}

	c.pin = newPIN

	return nil
}

func (c *SimChip) DeriveKey() ([]byte, error) {
	if !c.initialized {
		return nil, errZoneNotInitialized
	}

	return append([]byte(nil), c.key...), nil
}

func (c *SimChip) Wipe() error {
	c.initialized = false
	c.pin = ""
	c.fails = 0

	for i := range c.key {
		c.key[i] = 0
	}

	c.key = nil

	return nil
}

func hashPIN(pin string) []byte {
	sum := sha256.Sum256([]byte(pin))

	return sum[:]
}
