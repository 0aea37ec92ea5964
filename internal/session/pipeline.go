package session

import (
	"github.com/ironvault/storecore/internal/cryptoutil"
	"github.com/ironvault/storecore/internal/storecore"
)

// pbkdf2Iterations matches the BIP-39 standard iteration count.
const pbkdf2Iterations = 2048

// progressSlices is the number of yield() calls GetSeed makes while
// deriving: coarse enough that USB polling (or, here, the caller's
// progress bar) stays responsive without dominating the derivation
// with callback overhead.
const progressSlices = 8

// ProgressFunc reports derivation progress in [0,1]. Implementations
// that drive a real USB endpoint use this hook to service control
// transfers between PBKDF2 chunks instead of stalling the bus for the
// whole ~2048-iteration derivation (the "usbTiny" bracket of the
// original firmware).
type ProgressFunc func(fraction float32)

// GetSeed returns the BIP-39 seed for the device's current mnemonic
// and the given passphrase, computing and caching it on first use. A
// cached seed is only reused when the passphrase matches; otherwise
// the cache is dropped and recomputed, since the seed is a function of
// both.
func (c *Cache) GetSeed(core *storecore.Core, passphrase string, progress ProgressFunc) ([]byte, error) {
	c.mu.Lock()
	if c.hasSeed && c.passphrase == passphrase {
		out := make([]byte, len(c.seed))
		copy(out, c.seed[:])
		c.mu.Unlock()

		return out, nil
	}
	c.mu.Unlock()

	mnemonic, err := core.Mnemonic()
	if err != nil {
		return nil, err
	}

	seed := cryptoutil.SlicedPBKDF2(
		[]byte(mnemonic),
		append([]byte("mnemonic"), passphrase...),
		pbkdf2Iterations,
		pbkdf2Iterations/progressSlices,
		func(f float32) {
			if progress != nil {
				progress(f)
			}
		},
	)

	c.mu.Lock()
	c.seed = seed
	c.hasSeed = true
	c.passphrase = passphrase
	out := make([]byte, len(c.seed))
	copy(out, c.seed[:])
	c.mu.Unlock()

	return out, nil
}

// nodeKDFSalt is the fixed PBKDF2 salt get_root_node uses to derive
// the key/IV that wraps an imported node's chain code and private key
// under the cached passphrase (spec.md §4.4).
const nodeKDFSalt = "TREZORHD"

// GetRootNode returns the root HD node for curve, deriving (and
// caching) it from the cached seed - unless the device holds an
// imported node (Core.HasNode) for CurveSECP256K1, in which case the
// stored node is loaded directly and, when passphrase protection is
// on and passphrase is non-empty, AES-256-CBC-decrypted under a
// PBKDF2-HMAC-SHA512(passphrase, "TREZORHD") key/IV (spec.md §4.4
// get_root_node).
func (c *Cache) GetRootNode(core *storecore.Core, curve storecore.CurveName, passphrase string, progress ProgressFunc) (storecore.HDNode, error) {
	c.mu.Lock()
	if c.hasRootNode && c.rootNodeCurve == curve && c.passphrase == passphrase {
		node := c.rootNode
		c.mu.Unlock()

		return node, nil
	}
	c.mu.Unlock()

	if curve == storecore.CurveSECP256K1 && core.HasNode() {
		node, err := c.loadImportedNode(core, passphrase, progress)
		if err != nil {
			return storecore.HDNode{}, err
		}

		c.mu.Lock()
		c.rootNode = node
		c.rootNodeCurve = curve
		c.hasRootNode = true
		c.passphrase = passphrase
		c.mu.Unlock()

		return node, nil
	}

	seed, err := c.GetSeed(core, passphrase, progress)
	if err != nil {
		return storecore.HDNode{}, err
	}
	defer zero(seed)

	var master cryptoutil.Node

	if curve == storecore.CurveNIST256P1 {
		master, err = cryptoutil.MasterNodeNIST256P1(seed)
	} else {
		master, err = cryptoutil.MasterNodeSECP256K1(seed)
	}

	if err != nil {
		return storecore.HDNode{}, err
	}

	node := storecore.HDNode{
		Depth:         master.Depth,
		Fingerprint:   master.Fingerprint,
		ChildNum:      master.ChildNum,
		HasPrivateKey: true,
	}
	copy(node.ChainCode[:], master.ChainCode[:])
	copy(node.PrivateKey[:], master.PrivateKey[:])
	master.Zero()

	c.mu.Lock()
	c.rootNode = node
	c.rootNodeCurve = curve
	c.hasRootNode = true
	c.mu.Unlock()

	return node, nil
}

// loadImportedNode implements the has_node branch of get_root_node:
// load the stored node as-is, decrypting it in place when passphrase
// protection is on and the caller supplied a non-empty passphrase.
func (c *Cache) loadImportedNode(core *storecore.Core, passphrase string, progress ProgressFunc) (storecore.HDNode, error) {
	node, err := core.Node()
	if err != nil {
		return storecore.HDNode{}, err
	}

	if !core.PassphraseProtection() || passphrase == "" {
		return node, nil
	}

	out := cryptoutil.SlicedPBKDF2(
		[]byte(passphrase),
		[]byte(nodeKDFSalt),
		pbkdf2Iterations,
		pbkdf2Iterations/progressSlices,
		func(f float32) {
			if progress != nil {
				progress(f)
			}
		},
	)

	var key [32]byte
	var iv [16]byte
	copy(key[:], out[:32])
	copy(iv[:], out[32:48])

	if err := cryptoutil.DecryptCBCInPlace(key, iv, node.ChainCode[:]); err != nil {
		return storecore.HDNode{}, err
	}

	if err := cryptoutil.DecryptCBCInPlace(key, iv, node.PrivateKey[:]); err != nil {
		return storecore.HDNode{}, err
	}

	return node, nil
}

// GetRootPublicKey derives (and caches) the root node's compressed
// secp256k1 public key, for display purposes only; it never returns
// the private key.
func (c *Cache) GetRootPublicKey(core *storecore.Core, passphrase string, progress ProgressFunc) ([]byte, error) {
	node, err := c.GetRootNode(core, storecore.CurveSECP256K1, passphrase, progress)
	if err != nil {
		return nil, err
	}

	return cryptoutil.PublicKeySECP256K1(cryptoutil.Node{PrivateKey: node.PrivateKey}), nil
}

// GetU2FRoot returns the device's fixed U2F root node, reading it
// straight from the committed record rather than deriving it (the
// commit path already computed and stored it - spec.md §4.6).
func (c *Cache) GetU2FRoot(core *storecore.Core) (storecore.HDNode, error) {
	c.mu.Lock()
	if c.hasU2FRoot {
		node := c.u2fRoot
		c.mu.Unlock()

		return node, nil
	}
	c.mu.Unlock()

	node, err := core.U2FRoot()
	if err != nil {
		return storecore.HDNode{}, err
	}

	c.mu.Lock()
	c.u2fRoot = node
	c.hasU2FRoot = true
	c.mu.Unlock()

	return node, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
