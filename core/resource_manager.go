package core

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
)

// Partition numbers used by the resource-model blueprints. Real packages
// would allocate these per blueprint schema; the core ships one fixed
// layout for the built-in fungible/non-fungible resource managers, vault,
// bucket and proof, matching the "fixed-field partition" shape of spec.md
// §3.
const (
	PartitionResourceMeta PartitionNum = 0
	PartitionVaultMeta    PartitionNum = 0
	PartitionNonFungibles PartitionNum = 1
)

const (
	sortKeyDivisibility = "divisibility"
	sortKeyTotalSupply  = "total_supply"
	sortKeyMintCap      = "mint_cap"
	sortKeyRecallRule   = "recall_respects_freeze"
	sortKeyBalance      = "balance"
	sortKeyFreezeFlags  = "freeze_flags"
	sortKeyResourceRef  = "resource"
)

// maxDivisibility matches the 0-18 range named in spec.md §4.5.
const maxDivisibility = 18

// FungibleResourceManager governs one fungible resource's supply: minting
// (subject to divisibility and an optional mint cap) and burning. Balances
// themselves live in Vault/Bucket nodes, not here; the manager only tracks
// aggregate total supply, mirroring the original BaseToken/Factory split
// between a resource's identity and its per-holder balances.
type FungibleResourceManager struct {
	Address         NodeId
	Divisibility    uint8
	MintCap         *Decimal // nil means only the engine-wide 2^160-subunit cap applies
	RecallRespectsWithdrawFreeze bool

	// MintRule and BurnRule gate Mint/Burn against the proofs visible in a
	// caller-supplied AuthZone, per spec.md §4.5's role-gated resource
	// operations. The zero value (AccessRule{}) means "unconfigured": Mint
	// and Burn accept any caller, matching every resource created before
	// this field existed.
	MintRule AccessRule
	BurnRule AccessRule
}

// NewFungibleResourceManager stages the initial substates for a new
// fungible resource and returns a handle to it.
func NewFungibleResourceManager(tr *Track, addr NodeId, divisibility uint8, mintCap *Decimal, recallRespectsFreeze bool) (*FungibleResourceManager, error) {
	if divisibility > maxDivisibility {
		return nil, &ApplicationError{Op: "NewFungibleResourceManager", Err: fmt.Errorf("divisibility %d exceeds maximum %d", divisibility, maxDivisibility)}
	}
	tr.MarkNew(addr, PartitionResourceMeta, SortKey(sortKeyDivisibility), []byte{divisibility})
	tr.MarkNew(addr, PartitionResourceMeta, SortKey(sortKeyTotalSupply), Encode(DecimalFromInt64(0).ToValue()))
	if mintCap != nil {
		tr.MarkNew(addr, PartitionResourceMeta, SortKey(sortKeyMintCap), Encode(mintCap.ToValue()))
	}
	recallByte := byte(0)
	if recallRespectsFreeze {
		recallByte = 1
	}
	tr.MarkNew(addr, PartitionResourceMeta, SortKey(sortKeyRecallRule), []byte{recallByte})

	return &FungibleResourceManager{
		Address: addr, Divisibility: divisibility, MintCap: mintCap,
		RecallRespectsWithdrawFreeze: recallRespectsFreeze,
	}, nil
}

// totalSupply reads the current total supply substate, going through
// Track so a mint staged earlier in the same transaction is visible.
func totalSupply(tr *Track, addr NodeId) (Decimal, error) {
	handle, _, _, err := tr.OpenSubstate(addr, PartitionResourceMeta, SortKey(sortKeyTotalSupply), 0)
	if err != nil {
		return Decimal{}, err
	}
	defer tr.CloseSubstate(handle)
	raw, _, err := tr.ReadSubstate(handle)
	if err != nil {
		return Decimal{}, err
	}
	if raw == nil {
		return DecimalFromInt64(0), nil
	}
	v, _, err := Decode(raw)
	if err != nil {
		return Decimal{}, err
	}
	return NewDecimal(new(big.Int).SetBytes(v.Custom.Payload)), nil
}

// TotalSupply returns the resource's current total supply.
func (rm *FungibleResourceManager) TotalSupply(tr *Track) (Decimal, error) {
	return totalSupply(tr, rm.Address)
}

// assertRoleAuthorized checks zone against rule, treating the zero-value
// AccessRule (a manager field nobody configured) as unrestricted so that
// resources created without role-gating keep working with a nil zone.
func assertRoleAuthorized(op string, zone *AuthZone, rule AccessRule) error {
	if rule == (AccessRule{}) {
		return nil
	}
	if zone == nil {
		return &ApplicationError{Op: op, Err: fmt.Errorf("access rule configured but no auth zone supplied")}
	}
	return zone.AssertAccessRule(rule)
}

// Mint increases total supply by amount (respecting divisibility and any
// mint cap) and returns a fresh Bucket holding the minted amount. zone is
// checked against rm.MintRule when one is configured; pass nil when the
// resource has no mint role gating.
func (rm *FungibleResourceManager) Mint(tr *Track, zone *AuthZone, amount Decimal) (*Bucket, error) {
	if err := assertRoleAuthorized("Mint", zone, rm.MintRule); err != nil {
		return nil, err
	}
	if amount.IsNegative() || amount.IsZero() {
		return nil, &ApplicationError{Op: "Mint", Err: fmt.Errorf("mint amount must be positive")}
	}
	if !fitsDivisibility(amount, rm.Divisibility) {
		return nil, &ApplicationError{Op: "Mint", Err: fmt.Errorf("amount exceeds resource divisibility %d", rm.Divisibility)}
	}

	handle, raw, _, err := tr.OpenSubstate(rm.Address, PartitionResourceMeta, SortKey(sortKeyTotalSupply), LockMutable)
	if err != nil {
		return nil, err
	}
	defer tr.CloseSubstate(handle)

	var current Decimal
	if raw != nil {
		v, _, err := Decode(raw)
		if err != nil {
			return nil, &SystemError{Op: "Mint", Err: err}
		}
		current = NewDecimal(new(big.Int).SetBytes(v.Custom.Payload))
	} else {
		current = DecimalFromInt64(0)
	}
	next := current.Add(amount)
	if rm.MintCap != nil && next.Cmp(*rm.MintCap) > 0 {
		return nil, &ApplicationError{Op: "Mint", Err: fmt.Errorf("mint would exceed cap %s", rm.MintCap.String())}
	}
	if next.Subunits().Cmp(new(big.Int).Lsh(big.NewInt(1), 160)) > 0 {
		return nil, &ApplicationError{Op: "Mint", Err: fmt.Errorf("mint would exceed the 2^160-subunit supply cap")}
	}
	if err := tr.WriteSubstate(handle, Encode(next.ToValue())); err != nil {
		return nil, err
	}

	log.WithFields(map[string]interface{}{"resource": rm.Address.Short(), "amount": amount.String()}).Debug("resource: minted")
	return newFungibleBucket(rm.Address, amount), nil
}

// Burn decreases total supply by the amount held in bucket and consumes
// it. zone is checked against rm.BurnRule when one is configured; pass nil
// when the resource has no burn role gating.
func (rm *FungibleResourceManager) Burn(tr *Track, zone *AuthZone, bucket *Bucket) error {
	if err := assertRoleAuthorized("Burn", zone, rm.BurnRule); err != nil {
		return err
	}
	if bucket.Resource != rm.Address {
		return &ApplicationError{Op: "Burn", Err: fmt.Errorf("bucket resource mismatch")}
	}
	handle, raw, _, err := tr.OpenSubstate(rm.Address, PartitionResourceMeta, SortKey(sortKeyTotalSupply), LockMutable)
	if err != nil {
		return err
	}
	defer tr.CloseSubstate(handle)

	v, _, err := Decode(raw)
	if err != nil {
		return &SystemError{Op: "Burn", Err: err}
	}
	current := NewDecimal(new(big.Int).SetBytes(v.Custom.Payload))
	next := current.Sub(bucket.Amount)
	if next.IsNegative() {
		return &ApplicationError{Op: "Burn", Err: fmt.Errorf("burn would underflow total supply")}
	}
	if err := tr.WriteSubstate(handle, Encode(next.ToValue())); err != nil {
		return err
	}
	bucket.Amount = DecimalFromInt64(0)
	bucket.consumed = true
	return nil
}

// fitsDivisibility reports whether amount has no precision beyond the
// resource's divisibility, i.e. its subunits are a multiple of
// 10^(18-divisibility).
func fitsDivisibility(amount Decimal, divisibility uint8) bool {
	if divisibility >= 18 {
		return true
	}
	step := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-divisibility)), nil)
	rem := new(big.Int).Mod(amount.Subunits(), step)
	return rem.Sign() == 0
}

// NonFungibleId is the identifier of one non-fungible unit: integer,
// bytes, string or RUID-keyed, per spec.md §3.
type NonFungibleId struct {
	Kind string // "integer" | "bytes" | "string" | "ruid"
	Raw  []byte
}

// ruidByteLength matches the original source's 16-byte random unique id.
const ruidByteLength = 16

// NewRUID derives a random unique non-fungible id from the transaction
// digest and a per-mint counter, per spec.md §3/§9: "a random unique id
// generated from the transaction digest." Determinism requires this to be
// a function of transaction inputs rather than a wall-clock/host RNG, so
// it is grounded on the same keccak(digest || counter) construction
// NewInternalNodeId uses for internal node ids.
func NewRUID(txDigest [32]byte, counter uint32) NonFungibleId {
	buf := make([]byte, 0, 36)
	buf = append(buf, txDigest[:]...)
	buf = append(buf, byte(counter>>24), byte(counter>>16), byte(counter>>8), byte(counter))
	digest := crypto.Keccak256(buf)
	return NonFungibleId{Kind: "ruid", Raw: append([]byte(nil), digest[:ruidByteLength]...)}
}

// NonFungibleResourceManager governs a set of distinct non-fungible ids and
// their immutable/mutable data.
type NonFungibleResourceManager struct {
	Address NodeId
	IdKind  string

	// MintRule gates MintNonFungible the same way FungibleResourceManager's
	// MintRule does; the zero value leaves minting unrestricted.
	MintRule AccessRule
}

// NewNonFungibleResourceManager stages the initial substates for a new
// non-fungible resource.
func NewNonFungibleResourceManager(tr *Track, addr NodeId, idKind string) *NonFungibleResourceManager {
	tr.MarkNew(addr, PartitionResourceMeta, SortKey(sortKeyDivisibility), []byte{0})
	return &NonFungibleResourceManager{Address: addr, IdKind: idKind}
}

// MintNonFungible mints a single new non-fungible unit with the given
// immutable data payload and returns a Bucket holding it. zone is checked
// against rm.MintRule when one is configured; pass nil otherwise.
func (rm *NonFungibleResourceManager) MintNonFungible(tr *Track, zone *AuthZone, id NonFungibleId, data []byte) (*Bucket, error) {
	if err := assertRoleAuthorized("MintNonFungible", zone, rm.MintRule); err != nil {
		return nil, err
	}
	key := SortKey(id.Raw)
	handle, _, exists, err := tr.OpenSubstate(rm.Address, PartitionNonFungibles, key, LockMutable)
	if err != nil {
		return nil, err
	}
	defer tr.CloseSubstate(handle)
	if exists {
		return nil, &ApplicationError{Op: "MintNonFungible", Err: fmt.Errorf("non-fungible id already minted")}
	}
	if err := tr.WriteSubstate(handle, data); err != nil {
		return nil, err
	}
	return newNonFungibleBucket(rm.Address, []NonFungibleId{id}), nil
}
