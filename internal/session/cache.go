// Package session holds the volatile, RAM-only secrets the USB/UI
// layers need across multiple requests within one authenticated
// session: the derived seed, the root HD node, and whether the PIN has
// been verified since the last clear. Nothing here ever touches flash;
// a power cycle or an explicit Clear erases it all.
package session

import (
	"sync"

	"github.com/ironvault/storecore/internal/storecore"
)

// Cache is the volatile secret cache (spec.md §4.4). It implements the
// sessionCache interface storecore.Core expects, so a *Cache can be
// passed straight to storecore.Open.
type Cache struct {
	mu sync.Mutex

	pinOK bool

	hasSeed bool
	seed    [64]byte

	hasRootNode   bool
	rootNode      storecore.HDNode
	rootNodeCurve storecore.CurveName

	hasU2FRoot bool
	u2fRoot    storecore.HDNode

	passphrase string
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{}
}

// Clear drops every cached secret. keepAuthenticated preserves pinOK
// (used after a passphrase change that must not force PIN re-entry).
func (c *Cache) Clear(keepAuthenticated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.zeroLocked()

	if !keepAuthenticated {
		c.pinOK = false
	}
}

// ClearPINOK drops only the PIN-OK flag.
func (c *Cache) ClearPINOK() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pinOK = false
}

// SetPINOK marks the session as having passed PIN verification.
func (c *Cache) SetPINOK() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pinOK = true
}

// Authenticated reports whether the PIN has been verified since the
// last clear.
func (c *Cache) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.pinOK
}

func (c *Cache) zeroLocked() {
	for i := range c.seed {
		c.seed[i] = 0
	}

	c.hasSeed = false

	c.rootNode.Zero()
	c.hasRootNode = false

	c.u2fRoot.Zero()
	c.hasU2FRoot = false

	c.passphrase = ""
}

// State summarizes the cache for status reporting (spec.md's
// supplemented session_get_state()).
type State struct {
	Authenticated bool
	HasSeed       bool
	HasRootNode   bool
}

// GetState reports the cache's current contents without exposing any
// secret.
func (c *Cache) GetState() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Authenticated: c.pinOK,
		HasSeed:       c.hasSeed,
		HasRootNode:   c.hasRootNode,
	}
}
