package core

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// EntityType classifies the first byte of a NodeId. Ranges are grouped so
// that a node's visibility class (global / internal / transient) can be
// read directly off the tag byte without a lookup table.
type EntityType byte

const (
	EntityGlobalPackage EntityType = 0x00 + iota
	EntityGlobalComponent
	EntityGlobalFungibleResource
	EntityGlobalNonFungibleResource
	EntityGlobalAccount
)

const (
	EntityInternalVault EntityType = 0x40 + iota
	EntityInternalKeyValueStore
	EntityInternalComponent
)

const (
	EntityTransientBucket EntityType = 0x80 + iota
	EntityTransientProof
	EntityTransientWorktop
	EntityTransientAuthZone
)

// IsGlobal reports whether the tag marks a globally addressable node, safe
// to embed in any persisted substate.
func (e EntityType) IsGlobal() bool { return e < 0x40 }

// IsInternal reports whether the tag marks a node only embeddable in
// substates owned by its current parent.
func (e EntityType) IsInternal() bool { return e >= 0x40 && e < 0x80 }

// IsTransient reports whether the tag marks a node that may never be
// persisted to the substate database.
func (e EntityType) IsTransient() bool { return e >= 0x80 }

// NodeIdLength is the fixed byte length of every NodeId: one entity-type
// tag byte followed by a 26-byte hash-derived identifier.
const NodeIdLength = 27

// NodeId addresses any node in the universe of addressable objects.
type NodeId [NodeIdLength]byte

// EntityType returns the node's entity-type tag.
func (n NodeId) EntityType() EntityType { return EntityType(n[0]) }

// Hex returns the full hexadecimal representation of the node id.
func (n NodeId) Hex() string {
	return "0x" + hex.EncodeToString(n[:])
}

// Short returns a shortened hex form (first 4 + last 4 hex chars), used in
// log fields where the full id would be noise.
func (n NodeId) Short() string {
	full := hex.EncodeToString(n[:])
	if len(full) <= 8 {
		return full
	}
	return fmt.Sprintf("%s..%s", full[:4], full[len(full)-4:])
}

// IsZero reports whether n is the zero-value NodeId.
func (n NodeId) IsZero() bool { return n == NodeId{} }

// Address is a 20-byte account/component-style identifier retained for
// wire-compatible hashing with go-ethereum's common.Address conventions; as
// a package address it is hashed together with the blueprint name and salt
// by NewGlobalNodeId.
type Address [20]byte

// AddressZero is the sentinel zero-value address.
var AddressZero = Address{}

// Hex returns the full hexadecimal representation of the address.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Short returns a shortened hex form (first 4 + last 4 hex chars).
func (a Address) Short() string {
	full := hex.EncodeToString(a[:])
	if len(full) <= 8 {
		return full
	}
	return fmt.Sprintf("%s..%s", full[:4], full[len(full)-4:])
}

// NewGlobalNodeId derives a deterministic global NodeId from a package
// address, blueprint name and caller-supplied salt, per spec: "for
// globalized objects, derived from package+blueprint+supplied-salt".
func NewGlobalNodeId(entity EntityType, packageAddr Address, blueprint string, salt []byte) NodeId {
	if !entity.IsGlobal() {
		panic("core: NewGlobalNodeId requires a global entity type")
	}
	buf := make([]byte, 0, len(packageAddr)+len(blueprint)+len(salt))
	buf = append(buf, packageAddr[:]...)
	buf = append(buf, blueprint...)
	buf = append(buf, salt...)
	digest := crypto.Keccak256(buf)

	var id NodeId
	id[0] = byte(entity)
	copy(id[1:], digest[:NodeIdLength-1])
	return id
}

// NewInternalNodeId derives a deterministic internal (or transient) NodeId
// from a transaction digest and a per-transaction monotonic counter, per
// spec: "for internal objects, derived from the creating transaction's
// digest and a per-transaction counter."
func NewInternalNodeId(entity EntityType, txDigest [32]byte, counter uint32) NodeId {
	if entity.IsGlobal() {
		panic("core: NewInternalNodeId requires a non-global entity type")
	}
	buf := make([]byte, 0, 36)
	buf = append(buf, txDigest[:]...)
	buf = append(buf, byte(counter>>24), byte(counter>>16), byte(counter>>8), byte(counter))
	digest := crypto.Keccak256(buf)

	var id NodeId
	id[0] = byte(entity)
	copy(id[1:], digest[:NodeIdLength-1])
	return id
}
