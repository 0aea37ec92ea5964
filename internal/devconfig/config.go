// Package devconfig loads the device's static configuration: which
// SecretBackend to run (in-MCU or secure-chip) and the flash image's
// path and size. The PIN and U2F area layout is fixed by package flash
// and is not configurable here. Real firmware
// bakes this in at compile time; corectl reads it from a HuJSON file
// so the same binary can emulate either hardware variant.
package devconfig

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Backend selects which storecore.SecretBackend corectl wires up.
type Backend string

const (
	BackendInMcu      Backend = "in-mcu"
	BackendSecureChip Backend = "secure-chip"
)

// Config is the device's static configuration, written in HuJSON
// (JSON plus comments and trailing commas) so an operator's config
// file can carry inline documentation the way the rest of this
// codebase's ambient config does.
type Config struct {
	// Backend selects the secret-storage backend.
	Backend Backend `json:"backend"`

	// FlashImagePath is where corectl's FileDevice persists its
	// simulated flash region between invocations.
	FlashImagePath string `json:"flashImagePath"`

	// FlashSize is the simulated flash region's size in bytes. It must
	// be at least flash.ReservedOffset-sized to hold the record, PIN,
	// and U2F areas.
	FlashSize uint32 `json:"flashSize"`
}

// Default returns the configuration corectl falls back to when no
// config file is given.
func Default() Config {
	return Config{
		Backend:        BackendInMcu,
		FlashImagePath: "storecore.img",
		FlashSize:      0x5200,
	}
}

// Load reads and parses a HuJSON config file at path, filling in
// Default()'s values for anything the file leaves unset.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("devconfig: read %q: %w", path, err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("devconfig: parse %q: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(std, &cfg); err != nil {
		return Config{}, fmt.Errorf("devconfig: decode %q: %w", path, err)
	}

	if cfg.Backend != BackendInMcu && cfg.Backend != BackendSecureChip {
		return Config{}, fmt.Errorf("devconfig: unknown backend %q", cfg.Backend)
	}

	return cfg, nil
}
