package core

import (
	"fmt"
	"math/big"
)

func bigFromBytes(b []byte) *big.Int { return new(big.Int).SetBytes(b) }

// VaultFreezeFlags is a bitmask of independently toggleable restrictions on
// a vault, matching the original source's bitmask (not three separate
// booleans) — see SPEC_FULL.md §3.1.
type VaultFreezeFlags uint8

const (
	FreezeWithdraw VaultFreezeFlags = 1 << iota
	FreezeDeposit
	FreezeBurn
)

const sortKeyRecallBadge = "recall_badge_resource"

// Vault is a persistent, long-lived resource container owned by a
// component, addressed by its own internal NodeId. Grounded on the
// original account-balance CRUD pattern, generalized to a lock-aware,
// freeze-flag-respecting container that stores either a fungible balance
// or a set of non-fungible local ids, per spec.md §3/§4.5.
type Vault struct {
	id       NodeId
	Resource NodeId
}

// NewVault stages a new, empty fungible vault for the given resource. The
// vault has no recall badge requirement: any caller can Recall from it.
func NewVault(tr *Track, id NodeId, resource NodeId) *Vault {
	tr.MarkNew(id, PartitionVaultMeta, SortKey(sortKeyResourceRef), resource[:])
	tr.MarkNew(id, PartitionVaultMeta, SortKey(sortKeyBalance), Encode(DecimalFromInt64(0).ToValue()))
	tr.MarkNew(id, PartitionVaultMeta, SortKey(sortKeyFreezeFlags), []byte{0})
	tr.MarkNew(id, PartitionVaultMeta, SortKey(sortKeyRecallBadge), nil)
	return &Vault{id: id, Resource: resource}
}

// NewVaultWithRecallBadge stages a new, empty fungible vault whose Recall
// requires the caller's AuthZone to carry a proof of badgeResource, per
// spec.md §4.5's role-gated recall and scenario S5.
func NewVaultWithRecallBadge(tr *Track, id NodeId, resource NodeId, badgeResource NodeId) *Vault {
	v := NewVault(tr, id, resource)
	handle, _, _, _ := tr.OpenSubstate(id, PartitionVaultMeta, SortKey(sortKeyRecallBadge), LockMutable)
	tr.WriteSubstate(handle, badgeResource[:])
	tr.CloseSubstate(handle)
	return v
}

// NewNonFungibleVault stages a new, empty non-fungible vault for the given
// resource. Its held ids are individual substates under
// PartitionNonFungibles rather than a single aggregate value, so that
// TakeNonFungibles and DepositNonFungibles only ever touch the ids they
// actually move.
func NewNonFungibleVault(tr *Track, id NodeId, resource NodeId) *Vault {
	tr.MarkNew(id, PartitionVaultMeta, SortKey(sortKeyResourceRef), resource[:])
	tr.MarkNew(id, PartitionVaultMeta, SortKey(sortKeyFreezeFlags), []byte{0})
	tr.MarkNew(id, PartitionVaultMeta, SortKey(sortKeyRecallBadge), nil)
	return &Vault{id: id, Resource: resource}
}

// LoadVault resolves a Vault handle from an already-staged vault node,
// reading its resource reference substate, for instructions (Recall,
// Deposit) that address a vault by NodeId alone. This goes through
// Track's staged map like every other vault read, so a vault created
// earlier in the same transaction is visible here too.
func LoadVault(tr *Track, id NodeId) (*Vault, error) {
	handle, _, _, err := tr.OpenSubstate(id, PartitionVaultMeta, SortKey(sortKeyResourceRef), 0)
	if err != nil {
		return nil, err
	}
	defer tr.CloseSubstate(handle)
	raw, _, err := tr.ReadSubstate(handle)
	if err != nil {
		return nil, err
	}
	var resource NodeId
	copy(resource[:], raw)
	return &Vault{id: id, Resource: resource}, nil
}

func (v *Vault) balanceDecimal(tr *Track, handle LockHandle) (Decimal, error) {
	raw, _, err := tr.ReadSubstate(handle)
	if err != nil {
		return Decimal{}, err
	}
	if raw == nil {
		return DecimalFromInt64(0), nil
	}
	val, _, err := Decode(raw)
	if err != nil {
		return Decimal{}, &SystemError{Op: "Vault.balance", Err: err}
	}
	return NewDecimal(bigFromBytes(val.Custom.Payload)), nil
}

// Balance returns the vault's current fungible balance.
func (v *Vault) Balance(tr *Track) (Decimal, error) {
	handle, _, _, err := tr.OpenSubstate(v.id, PartitionVaultMeta, SortKey(sortKeyBalance), 0)
	if err != nil {
		return Decimal{}, err
	}
	defer tr.CloseSubstate(handle)
	return v.balanceDecimal(tr, handle)
}

func (v *Vault) freezeFlags(tr *Track) (VaultFreezeFlags, error) {
	handle, _, _, err := tr.OpenSubstate(v.id, PartitionVaultMeta, SortKey(sortKeyFreezeFlags), 0)
	if err != nil {
		return 0, err
	}
	defer tr.CloseSubstate(handle)
	raw, _, err := tr.ReadSubstate(handle)
	if err != nil {
		return 0, err
	}
	if len(raw) == 0 {
		return 0, nil
	}
	return VaultFreezeFlags(raw[0]), nil
}

// SetFreezeFlags replaces the vault's freeze bitmask.
func (v *Vault) SetFreezeFlags(tr *Track, flags VaultFreezeFlags) error {
	handle, _, _, err := tr.OpenSubstate(v.id, PartitionVaultMeta, SortKey(sortKeyFreezeFlags), LockMutable)
	if err != nil {
		return err
	}
	defer tr.CloseSubstate(handle)
	return tr.WriteSubstate(handle, []byte{byte(flags)})
}

// Deposit moves a bucket's fungible resources into the vault, consuming
// the bucket.
func (v *Vault) Deposit(tr *Track, bucket *Bucket) error {
	if bucket.Resource != v.Resource {
		return &ApplicationError{Op: "Deposit", Err: errResourceMismatch}
	}
	flags, err := v.freezeFlags(tr)
	if err != nil {
		return err
	}
	if flags&FreezeDeposit != 0 {
		return &ApplicationError{Op: "Deposit", Err: fmt.Errorf("vault deposits are frozen")}
	}

	handle, _, _, err := tr.OpenSubstate(v.id, PartitionVaultMeta, SortKey(sortKeyBalance), LockMutable)
	if err != nil {
		return err
	}
	defer tr.CloseSubstate(handle)

	current, err := v.balanceDecimal(tr, handle)
	if err != nil {
		return err
	}
	next := current.Add(bucket.Amount)
	if err := tr.WriteSubstate(handle, Encode(next.ToValue())); err != nil {
		return err
	}
	bucket.Amount = DecimalFromInt64(0)
	bucket.consumed = true
	return nil
}

// DepositNonFungibles moves a bucket's non-fungible ids into the vault,
// consuming the bucket.
func (v *Vault) DepositNonFungibles(tr *Track, bucket *Bucket) error {
	if bucket.Resource != v.Resource {
		return &ApplicationError{Op: "DepositNonFungibles", Err: errResourceMismatch}
	}
	flags, err := v.freezeFlags(tr)
	if err != nil {
		return err
	}
	if flags&FreezeDeposit != 0 {
		return &ApplicationError{Op: "DepositNonFungibles", Err: fmt.Errorf("vault deposits are frozen")}
	}

	for _, id := range bucket.NonFungibleIds {
		handle, _, _, err := tr.OpenSubstate(v.id, PartitionNonFungibles, SortKey(id.Raw), LockMutable)
		if err != nil {
			return err
		}
		err = tr.WriteSubstate(handle, []byte(id.Kind))
		tr.CloseSubstate(handle)
		if err != nil {
			return err
		}
	}
	bucket.NonFungibleIds = nil
	bucket.consumed = true
	return nil
}

// Withdraw removes amount from the vault into a freshly created bucket.
func (v *Vault) Withdraw(tr *Track, amount Decimal) (*Bucket, error) {
	flags, err := v.freezeFlags(tr)
	if err != nil {
		return nil, err
	}
	if flags&FreezeWithdraw != 0 {
		return nil, &ApplicationError{Op: "Withdraw", Err: fmt.Errorf("vault withdrawals are frozen")}
	}
	return v.withdrawUnconditional(tr, amount)
}

// TakeNonFungibles removes the named ids from the vault into a freshly
// created non-fungible bucket, per spec.md §3's take_non_fungibles.
func (v *Vault) TakeNonFungibles(tr *Track, ids []NonFungibleId) (*Bucket, error) {
	flags, err := v.freezeFlags(tr)
	if err != nil {
		return nil, err
	}
	if flags&FreezeWithdraw != 0 {
		return nil, &ApplicationError{Op: "TakeNonFungibles", Err: fmt.Errorf("vault withdrawals are frozen")}
	}
	for _, id := range ids {
		handle, _, exists, err := tr.OpenSubstate(v.id, PartitionNonFungibles, SortKey(id.Raw), LockMutable)
		if err != nil {
			return nil, err
		}
		if !exists {
			tr.CloseSubstate(handle)
			return nil, &ApplicationError{Op: "TakeNonFungibles", Err: fmt.Errorf("non-fungible id %x not present in vault", id.Raw)}
		}
		err = tr.DeleteSubstate(handle)
		tr.CloseSubstate(handle)
		if err != nil {
			return nil, err
		}
	}
	return newNonFungibleBucket(v.Resource, ids), nil
}

// CreateProofOfIds builds a non-fungible proof backed by the named ids
// without removing them from the vault, per spec.md §3's
// create_proof_of_ids.
func (v *Vault) CreateProofOfIds(tr *Track, ids []NonFungibleId) (*Proof, error) {
	for _, id := range ids {
		handle, _, exists, err := tr.OpenSubstate(v.id, PartitionNonFungibles, SortKey(id.Raw), 0)
		if err != nil {
			return nil, err
		}
		tr.CloseSubstate(handle)
		if !exists {
			return nil, &ApplicationError{Op: "CreateProofOfIds", Err: fmt.Errorf("non-fungible id %x not present in vault", id.Raw)}
		}
	}
	return NewNonFungibleProof(v.Resource, v.id, ids), nil
}

// Recall forcibly withdraws amount from the vault, bypassing the
// withdraw-freeze flag unless respectWithdrawFreeze is set — see
// DESIGN.md's Open Question 2 decision. Unlike Withdraw, Recall is
// role-gated: if the vault was created with a recall badge requirement,
// zone must carry a proof of that badge resource (spec.md §4.5, scenario
// S5).
func (v *Vault) Recall(tr *Track, zone *AuthZone, amount Decimal, respectWithdrawFreeze bool) (*Bucket, error) {
	if err := v.assertRecallAuthorized(tr, zone); err != nil {
		return nil, err
	}
	if respectWithdrawFreeze {
		flags, err := v.freezeFlags(tr)
		if err != nil {
			return nil, err
		}
		if flags&FreezeWithdraw != 0 {
			return nil, &ApplicationError{Op: "Recall", Err: fmt.Errorf("vault withdrawals are frozen")}
		}
	}
	return v.withdrawUnconditional(tr, amount)
}

// RecallNonFungibles is Recall's non-fungible-vault counterpart.
func (v *Vault) RecallNonFungibles(tr *Track, zone *AuthZone, ids []NonFungibleId, respectWithdrawFreeze bool) (*Bucket, error) {
	if err := v.assertRecallAuthorized(tr, zone); err != nil {
		return nil, err
	}
	if respectWithdrawFreeze {
		flags, err := v.freezeFlags(tr)
		if err != nil {
			return nil, err
		}
		if flags&FreezeWithdraw != 0 {
			return nil, &ApplicationError{Op: "RecallNonFungibles", Err: fmt.Errorf("vault withdrawals are frozen")}
		}
	}
	for _, id := range ids {
		handle, _, exists, err := tr.OpenSubstate(v.id, PartitionNonFungibles, SortKey(id.Raw), LockMutable)
		if err != nil {
			return nil, err
		}
		if !exists {
			tr.CloseSubstate(handle)
			return nil, &ApplicationError{Op: "RecallNonFungibles", Err: fmt.Errorf("non-fungible id %x not present in vault", id.Raw)}
		}
		err = tr.DeleteSubstate(handle)
		tr.CloseSubstate(handle)
		if err != nil {
			return nil, err
		}
	}
	return newNonFungibleBucket(v.Resource, ids), nil
}

// assertRecallAuthorized checks zone against the vault's configured recall
// badge, if any. A vault with no badge requirement (the default from
// NewVault/NewNonFungibleVault) admits any caller.
func (v *Vault) assertRecallAuthorized(tr *Track, zone *AuthZone) error {
	handle, _, _, err := tr.OpenSubstate(v.id, PartitionVaultMeta, SortKey(sortKeyRecallBadge), 0)
	if err != nil {
		return err
	}
	defer tr.CloseSubstate(handle)
	raw, _, err := tr.ReadSubstate(handle)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	var badge NodeId
	copy(badge[:], raw)
	rule := RequireResourceRule(badge, DecimalFromInt64(0))
	if zone == nil {
		return &ApplicationError{Op: "Recall", Err: fmt.Errorf("recall badge %s required but no auth zone supplied", badge.Short())}
	}
	return zone.AssertAccessRule(rule)
}

func (v *Vault) withdrawUnconditional(tr *Track, amount Decimal) (*Bucket, error) {
	handle, _, _, err := tr.OpenSubstate(v.id, PartitionVaultMeta, SortKey(sortKeyBalance), LockMutable)
	if err != nil {
		return nil, err
	}
	defer tr.CloseSubstate(handle)

	current, err := v.balanceDecimal(tr, handle)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(current) > 0 {
		return nil, &ApplicationError{Op: "Withdraw", Err: errInsufficientBalance}
	}
	next := current.Sub(amount)
	if err := tr.WriteSubstate(handle, Encode(next.ToValue())); err != nil {
		return nil, err
	}
	return newFungibleBucket(v.Resource, amount), nil
}
