package cryptoutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tyler-smith/go-bip32"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for the BIP-32 fingerprint construction
)

// Node is a curve-agnostic BIP-0032 node: a chain code plus a private
// key. Core converts this into storecore.HDNode;
// cryptoutil never imports storecore, to keep the dependency one-way.
type Node struct {
	Depth       uint32
	Fingerprint uint32
	ChildNum    uint32
	ChainCode   [32]byte
	PrivateKey  [32]byte
}

// Zero overwrites the node's key material.
func (n *Node) Zero() {
	if n == nil {
		return
	}

	for i := range n.ChainCode {
		n.ChainCode[i] = 0
	}

	for i := range n.PrivateKey {
		n.PrivateKey[i] = 0
	}
}

// ErrUnsupportedCurve reports a curve this package cannot derive on.
var ErrUnsupportedCurve = errors.New("cryptoutil: unsupported curve")

// MasterNodeSECP256K1 derives the BIP-32 master node for secp256k1
// from a BIP-39 seed, via tyler-smith/go-bip32 (the pack's own
// secp256k1 HD-wallet library).
func MasterNodeSECP256K1(seed []byte) (Node, error) {
	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return Node{}, err
	}

	return nodeFromBIP32(key), nil
}

// DeriveChildSECP256K1 derives parent's child at index (hardened when
// index has the top bit set, per BIP-32).
func DeriveChildSECP256K1(parent Node, index uint32) (Node, error) {
	parentKey := &bip32.Key{
		Key:         append([]byte(nil), parent.PrivateKey[:]...),
		ChainCode:   append([]byte(nil), parent.ChainCode[:]...),
		Depth:       byte(parent.Depth),
		ChildNumber: u32Bytes(parent.ChildNum),
		FingerPrint: u32Bytes(parent.Fingerprint)[:4],
		IsPrivate:   true,
	}

	child, err := parentKey.NewChildKey(index)
	if err != nil {
		return Node{}, err
	}

	return nodeFromBIP32(child), nil
}

func nodeFromBIP32(k *bip32.Key) Node {
	var n Node

	n.Depth = uint32(k.Depth)
	n.ChildNum = index32(k.ChildNumber)
	n.Fingerprint = index32(k.FingerPrint)
	copy(n.ChainCode[:], k.ChainCode)
	copy(n.PrivateKey[:], k.Key)

	return n
}

// PublicKeySECP256K1 returns the 33-byte compressed public key for a
// secp256k1 node's private key, via the pack's own btcec/v2 curve
// implementation (the library tyler-smith/go-bip32 itself builds on).
func PublicKeySECP256K1(n Node) []byte {
	_, pub := btcec.PrivKeyFromBytes(n.PrivateKey[:])

	return pub.SerializeCompressed()
}

func index32(b []byte) uint32 {
	var v uint32

	for _, c := range b {
		v = v<<8 | uint32(c)
	}

	return v
}

func u32Bytes(v uint32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

// MasterNodeNIST256P1 derives a BIP-32-style master node against
// P-256. No library in the dependency pack implements BIP-32 for this
// curve, so the CKD arithmetic is performed directly against
// crypto/elliptic and crypto/ecdsa (stdlib), following the same
// HMAC-SHA512 construction tyler-smith/go-bip32 uses for secp256k1;
// see DESIGN.md for why this one piece falls back to the standard
// library.
func MasterNodeNIST256P1(seed []byte) (Node, error) {
	mac := hmac.New(sha512.New, []byte("Nist256p1 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)

	var n Node

	copy(n.PrivateKey[:], sum[:32])
	copy(n.ChainCode[:], sum[32:])

	return n, nil
}

// DeriveChildNIST256P1 derives parent's child at index on P-256.
func DeriveChildNIST256P1(parent Node, index uint32) (Node, error) {
	curve := elliptic.P256()

	var data []byte

	if index >= 0x80000000 {
		data = append(data, 0x00)
		data = append(data, parent.PrivateKey[:]...)
	} else {
		pub, err := publicKeyNIST256P1(parent.PrivateKey)
		if err != nil {
			return Node{}, err
		}

		data = append(data, pub...)
	}

	data = append(data, u32Bytes(index)...)

	mac := hmac.New(sha512.New, parent.ChainCode[:])
	mac.Write(data)
	sum := mac.Sum(nil)

	il := new(big.Int).SetBytes(sum[:32])
	parentKey := new(big.Int).SetBytes(parent.PrivateKey[:])

	child := new(big.Int).Add(il, parentKey)
	child.Mod(child, curve.Params().N)

	if il.Cmp(curve.Params().N) >= 0 || child.Sign() == 0 {
		return Node{}, errors.New("cryptoutil: invalid child derivation, retry with next index")
	}

	var n Node

	parentPub, err := publicKeyNIST256P1(parent.PrivateKey)
	if err != nil {
		return Node{}, err
	}

	n.Depth = parent.Depth + 1
	n.ChildNum = index
	n.Fingerprint = fingerprint(parentPub)
	copy(n.ChainCode[:], sum[32:])

	childBytes := child.FillBytes(make([]byte, 32))
	copy(n.PrivateKey[:], childBytes)

	return n, nil
}

func publicKeyNIST256P1(priv [32]byte) ([]byte, error) {
	curve := elliptic.P256()
	x, y := curve.ScalarBaseMult(priv[:])

	key := ecdsa.PublicKey{Curve: curve, X: x, Y: y}

	return elliptic.MarshalCompressed(curve, key.X, key.Y), nil
}

// fingerprint computes the standard BIP-32 parent fingerprint,
// RIPEMD160(SHA256(compressed pubkey))[:4], as a big-endian uint32.
func fingerprint(compressedPub []byte) uint32 {
	sha := sha256.Sum256(compressedPub)

	ripe := ripemd160.New()
	ripe.Write(sha[:])
	digest := ripe.Sum(nil)

	return uint32(digest[0])<<24 | uint32(digest[1])<<16 | uint32(digest[2])<<8 | uint32(digest[3])
}
