package core

import (
	"math/big"
	"testing"
)

func newTestResource(t *testing.T, tr *Track, salt string) *FungibleResourceManager {
	t.Helper()
	addr := NewGlobalNodeId(EntityGlobalFungibleResource, AddressZero, "test_resource", []byte(salt))
	cap := DecimalFromInt64(1_000_000)
	rm, err := NewFungibleResourceManager(tr, addr, 18, &cap, false)
	if err != nil {
		t.Fatalf("NewFungibleResourceManager: %v", err)
	}
	return rm
}

func TestFungibleMintBurnRoundTrip(t *testing.T) {
	db := NewMemSubstateDB()
	tr := NewTrack(db)
	rm := newTestResource(t, tr, "mint-burn")

	bucket, err := rm.Mint(tr, nil, DecimalFromInt64(100))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if bucket.Amount.Cmp(DecimalFromInt64(100)) != 0 {
		t.Fatalf("expected bucket amount 100, got %s", bucket.Amount)
	}
	if err := rm.Burn(tr, nil, bucket); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if !bucket.IsEmpty() {
		t.Fatalf("expected bucket to be empty after burn")
	}
}

func TestFungibleMintRespectsCap(t *testing.T) {
	db := NewMemSubstateDB()
	tr := NewTrack(db)
	rm := newTestResource(t, tr, "mint-cap")

	if _, err := rm.Mint(tr, nil, DecimalFromInt64(1_000_000)); err != nil {
		t.Fatalf("mint to cap: %v", err)
	}
	if _, err := rm.Mint(tr, nil, DecimalFromInt64(1)); err == nil {
		t.Fatalf("expected mint beyond cap to fail")
	}
}

// TestFungibleMintRejectsFinerThanDivisibility mirrors the S6 scenario: a
// fungible resource created with divisibility 2 must reject an amount with
// more than two fractional digits.
func TestFungibleMintRejectsFinerThanDivisibility(t *testing.T) {
	db := NewMemSubstateDB()
	tr := NewTrack(db)
	addr := NewGlobalNodeId(EntityGlobalFungibleResource, AddressZero, "div2", []byte("s"))
	cap := DecimalFromInt64(1_000_000)
	rm, err := NewFungibleResourceManager(tr, addr, 2, &cap, false)
	if err != nil {
		t.Fatalf("NewFungibleResourceManager: %v", err)
	}

	step := new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil) // 18 - divisibility(2) - 1
	amount := NewDecimal(step) // 0.001, one digit finer than divisibility 2 allows
	if _, err := rm.Mint(tr, nil, amount); err == nil {
		t.Fatalf("expected mint of 0.001 against divisibility 2 to fail")
	}

	if _, err := rm.Mint(tr, nil, DecimalFromInt64(1).RoundDown(2)); err != nil {
		t.Fatalf("expected mint of a divisibility-2-aligned amount to succeed: %v", err)
	}
}

func TestVaultDepositWithdraw(t *testing.T) {
	db := NewMemSubstateDB()
	tr := NewTrack(db)
	rm := newTestResource(t, tr, "vault")

	vaultID := NewInternalNodeId(EntityInternalVault, [32]byte{1}, 1)
	vault := NewVault(tr, vaultID, rm.Address)

	bucket, err := rm.Mint(tr, nil, DecimalFromInt64(50))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := vault.Deposit(tr, bucket); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	bal, err := vault.Balance(tr)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Cmp(DecimalFromInt64(50)) != 0 {
		t.Fatalf("expected balance 50, got %s", bal)
	}

	withdrawn, err := vault.Withdraw(tr, DecimalFromInt64(20))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if withdrawn.Amount.Cmp(DecimalFromInt64(20)) != 0 {
		t.Fatalf("expected withdrawn 20, got %s", withdrawn.Amount)
	}
	bal, _ = vault.Balance(tr)
	if bal.Cmp(DecimalFromInt64(30)) != 0 {
		t.Fatalf("expected remaining balance 30, got %s", bal)
	}
}

func TestVaultFreezeWithdraw(t *testing.T) {
	db := NewMemSubstateDB()
	tr := NewTrack(db)
	rm := newTestResource(t, tr, "freeze")
	vaultID := NewInternalNodeId(EntityInternalVault, [32]byte{2}, 1)
	vault := NewVault(tr, vaultID, rm.Address)

	bucket, _ := rm.Mint(tr, nil, DecimalFromInt64(10))
	if err := vault.Deposit(tr, bucket); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := vault.SetFreezeFlags(tr, FreezeWithdraw); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	if _, err := vault.Withdraw(tr, DecimalFromInt64(1)); err == nil {
		t.Fatalf("expected withdraw to fail while frozen")
	}
	// Recall without respecting the freeze still succeeds (default policy).
	if _, err := vault.Recall(tr, nil, DecimalFromInt64(1), false); err != nil {
		t.Fatalf("recall without respecting freeze: %v", err)
	}
	// Recall respecting the freeze fails.
	if _, err := vault.Recall(tr, nil, DecimalFromInt64(1), true); err == nil {
		t.Fatalf("expected recall respecting freeze to fail")
	}
}

func TestWorktopMustEndEmpty(t *testing.T) {
	db := NewMemSubstateDB()
	tr := NewTrack(db)
	rm := newTestResource(t, tr, "worktop")

	wt := NewWorktop()
	bucket, _ := rm.Mint(tr, nil, DecimalFromInt64(5))
	wt.Put(bucket)

	if err := wt.AssertEmpty(); err == nil {
		t.Fatalf("expected non-empty worktop to fail AssertEmpty")
	}
	taken, err := wt.TakeAll(rm.Address)
	if err != nil {
		t.Fatalf("take all: %v", err)
	}
	if taken.Amount.Cmp(DecimalFromInt64(5)) != 0 {
		t.Fatalf("expected taken amount 5, got %s", taken.Amount)
	}
	if err := wt.AssertEmpty(); err != nil {
		t.Fatalf("expected empty worktop after TakeAll, got %v", err)
	}
}

func TestProofComposePreservesEvidenceOrder(t *testing.T) {
	resource := NewGlobalNodeId(EntityGlobalFungibleResource, AddressZero, "proof_test", []byte("r"))
	containerA := NewInternalNodeId(EntityInternalVault, [32]byte{3}, 1)
	containerB := NewInternalNodeId(EntityInternalVault, [32]byte{3}, 2)

	p1 := NewFungibleProof(resource, containerA, DecimalFromInt64(10))
	p2 := NewFungibleProof(resource, containerB, DecimalFromInt64(5))
	if err := p1.Compose(p2); err != nil {
		t.Fatalf("compose: %v", err)
	}
	if p1.Amount().Cmp(DecimalFromInt64(15)) != 0 {
		t.Fatalf("expected combined amount 15, got %s", p1.Amount())
	}
	if p1.evidence[0].container != containerA || p1.evidence[1].container != containerB {
		t.Fatalf("expected evidence in caller-supplied append order")
	}
}

func TestMintNonFungibleRejectsDuplicateId(t *testing.T) {
	db := NewMemSubstateDB()
	tr := NewTrack(db)
	addr := NewGlobalNodeId(EntityGlobalNonFungibleResource, AddressZero, "nf_dup", []byte("s"))
	rm := NewNonFungibleResourceManager(tr, addr, "integer")

	id := NonFungibleId{Kind: "integer", Raw: []byte{1}}
	if _, err := rm.MintNonFungible(tr, nil, id, []byte("data")); err != nil {
		t.Fatalf("first mint: %v", err)
	}
	// Same transaction, same Track: the duplicate check must see the
	// staged-but-uncommitted first mint rather than falling through to an
	// empty underlying substate database.
	if _, err := rm.MintNonFungible(tr, nil, id, []byte("data2")); err == nil {
		t.Fatalf("expected second mint of the same id within one transaction to fail")
	}
}

func TestMintNonFungibleRoleGated(t *testing.T) {
	db := NewMemSubstateDB()
	tr := NewTrack(db)
	addr := NewGlobalNodeId(EntityGlobalNonFungibleResource, AddressZero, "nf_gated", []byte("s"))
	rm := NewNonFungibleResourceManager(tr, addr, "integer")

	badge := NewGlobalNodeId(EntityGlobalFungibleResource, AddressZero, "mint_badge", []byte("s"))
	rm.MintRule = RequireResourceRule(badge, DecimalFromInt64(1))

	id := NonFungibleId{Kind: "integer", Raw: []byte{1}}
	if _, err := rm.MintNonFungible(tr, nil, id, nil); err == nil {
		t.Fatalf("expected mint without a badge proof to fail")
	}

	zone := NewAuthZone()
	badgeContainer := NewInternalNodeId(EntityInternalVault, [32]byte{9}, 1)
	zone.Push(NewFungibleProof(badge, badgeContainer, DecimalFromInt64(1)))
	if _, err := rm.MintNonFungible(tr, zone, id, nil); err != nil {
		t.Fatalf("expected mint with a valid badge proof to succeed: %v", err)
	}
}

func TestFungibleMintRoleGated(t *testing.T) {
	db := NewMemSubstateDB()
	tr := NewTrack(db)
	addr := NewGlobalNodeId(EntityGlobalFungibleResource, AddressZero, "mint_gated", []byte("s"))
	cap := DecimalFromInt64(1_000_000)
	rm, err := NewFungibleResourceManager(tr, addr, 18, &cap, false)
	if err != nil {
		t.Fatalf("NewFungibleResourceManager: %v", err)
	}
	badge := NewGlobalNodeId(EntityGlobalFungibleResource, AddressZero, "mint_badge2", []byte("s"))
	rm.MintRule = RequireResourceRule(badge, DecimalFromInt64(1))

	if _, err := rm.Mint(tr, nil, DecimalFromInt64(10)); err == nil {
		t.Fatalf("expected mint without an auth zone to fail when a mint rule is configured")
	}

	zone := NewAuthZone()
	badgeContainer := NewInternalNodeId(EntityInternalVault, [32]byte{10}, 1)
	zone.Push(NewFungibleProof(badge, badgeContainer, DecimalFromInt64(1)))
	if _, err := rm.Mint(tr, zone, DecimalFromInt64(10)); err != nil {
		t.Fatalf("expected mint with a valid badge proof to succeed: %v", err)
	}
}

func TestNonFungibleVaultDepositTakeAndProof(t *testing.T) {
	db := NewMemSubstateDB()
	tr := NewTrack(db)
	addr := NewGlobalNodeId(EntityGlobalNonFungibleResource, AddressZero, "nf_vault", []byte("s"))
	rm := NewNonFungibleResourceManager(tr, addr, "integer")

	idA := NonFungibleId{Kind: "integer", Raw: []byte{1}}
	idB := NonFungibleId{Kind: "integer", Raw: []byte{2}}
	bucketA, err := rm.MintNonFungible(tr, nil, idA, nil)
	if err != nil {
		t.Fatalf("mint a: %v", err)
	}
	bucketB, err := rm.MintNonFungible(tr, nil, idB, nil)
	if err != nil {
		t.Fatalf("mint b: %v", err)
	}
	if err := bucketA.Put(bucketB); err != nil {
		t.Fatalf("put: %v", err)
	}

	vaultID := NewInternalNodeId(EntityInternalVault, [32]byte{11}, 1)
	vault := NewNonFungibleVault(tr, vaultID, rm.Address)
	if err := vault.DepositNonFungibles(tr, bucketA); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	proof, err := vault.CreateProofOfIds(tr, []NonFungibleId{idA})
	if err != nil {
		t.Fatalf("create proof of ids: %v", err)
	}
	if len(proof.NonFungibleIds()) != 1 || proof.NonFungibleIds()[0].Raw[0] != 1 {
		t.Fatalf("expected proof to certify id a, got %+v", proof.NonFungibleIds())
	}

	taken, err := vault.TakeNonFungibles(tr, []NonFungibleId{idA, idB})
	if err != nil {
		t.Fatalf("take non fungibles: %v", err)
	}
	if len(taken.NonFungibleIds) != 2 {
		t.Fatalf("expected both ids taken, got %+v", taken.NonFungibleIds)
	}
	if _, err := vault.TakeNonFungibles(tr, []NonFungibleId{idA}); err == nil {
		t.Fatalf("expected taking an already-removed id to fail")
	}
}

func TestVaultRecallRequiresBadgeProof(t *testing.T) {
	db := NewMemSubstateDB()
	tr := NewTrack(db)
	rm := newTestResource(t, tr, "recall-badge")
	badge := NewGlobalNodeId(EntityGlobalFungibleResource, AddressZero, "recall_badge", []byte("s"))

	vaultID := NewInternalNodeId(EntityInternalVault, [32]byte{12}, 1)
	vault := NewVaultWithRecallBadge(tr, vaultID, rm.Address, badge)

	bucket, _ := rm.Mint(tr, nil, DecimalFromInt64(10))
	if err := vault.Deposit(tr, bucket); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := vault.Recall(tr, nil, DecimalFromInt64(1), false); err == nil {
		t.Fatalf("expected recall without a badge proof to fail")
	}

	zone := NewAuthZone()
	badgeContainer := NewInternalNodeId(EntityInternalVault, [32]byte{13}, 1)
	zone.Push(NewFungibleProof(badge, badgeContainer, DecimalFromInt64(1)))
	if _, err := vault.Recall(tr, zone, DecimalFromInt64(1), false); err != nil {
		t.Fatalf("expected recall with a valid badge proof to succeed: %v", err)
	}
}

func TestNewRUIDDeterministicAndUnique(t *testing.T) {
	digest := [32]byte{7}
	a := NewRUID(digest, 0)
	b := NewRUID(digest, 0)
	if string(a.Raw) != string(b.Raw) {
		t.Fatalf("expected NewRUID to be deterministic for the same digest/counter")
	}
	c := NewRUID(digest, 1)
	if string(a.Raw) == string(c.Raw) {
		t.Fatalf("expected different counters to produce different RUIDs")
	}
	if len(a.Raw) != ruidByteLength {
		t.Fatalf("expected RUID of length %d, got %d", ruidByteLength, len(a.Raw))
	}
	if a.Kind != "ruid" {
		t.Fatalf("expected RUID kind %q, got %q", "ruid", a.Kind)
	}
}

func TestAuthZoneAssertAccessRule(t *testing.T) {
	resource := NewGlobalNodeId(EntityGlobalFungibleResource, AddressZero, "authzone_test", []byte("r"))
	container := NewInternalNodeId(EntityInternalVault, [32]byte{4}, 1)
	zone := NewAuthZone()

	rule := RequireResourceRule(resource, DecimalFromInt64(10))
	if err := zone.AssertAccessRule(rule); err == nil {
		t.Fatalf("expected rule to fail with no proofs present")
	}

	zone.Push(NewFungibleProof(resource, container, DecimalFromInt64(10)))
	if err := zone.AssertAccessRule(rule); err != nil {
		t.Fatalf("expected rule to pass: %v", err)
	}
}
