package core

import "testing"

func TestEntityTypeVisibilityRanges(t *testing.T) {
	if !EntityGlobalFungibleResource.IsGlobal() {
		t.Fatalf("expected global resource entity type to be global")
	}
	if !EntityInternalVault.IsInternal() {
		t.Fatalf("expected vault entity type to be internal")
	}
	if !EntityTransientBucket.IsTransient() {
		t.Fatalf("expected bucket entity type to be transient")
	}
	if EntityInternalVault.IsGlobal() || EntityTransientProof.IsInternal() || EntityGlobalAccount.IsTransient() {
		t.Fatalf("entity type ranges must not overlap")
	}
}

func TestNewGlobalNodeIdIsDeterministic(t *testing.T) {
	a := NewGlobalNodeId(EntityGlobalFungibleResource, AddressZero, "token", []byte("salt"))
	b := NewGlobalNodeId(EntityGlobalFungibleResource, AddressZero, "token", []byte("salt"))
	if a != b {
		t.Fatalf("expected identical inputs to derive the same NodeId")
	}
	if a.EntityType() != EntityGlobalFungibleResource {
		t.Fatalf("expected derived NodeId to carry its entity type tag")
	}

	c := NewGlobalNodeId(EntityGlobalFungibleResource, AddressZero, "token", []byte("different-salt"))
	if a == c {
		t.Fatalf("expected different salts to derive different NodeIds")
	}
}

func TestNewGlobalNodeIdRejectsNonGlobalEntity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for a non-global entity type")
		}
	}()
	NewGlobalNodeId(EntityInternalVault, AddressZero, "bad", nil)
}

func TestNewInternalNodeIdCounterChangesId(t *testing.T) {
	digest := [32]byte{9}
	a := NewInternalNodeId(EntityInternalVault, digest, 0)
	b := NewInternalNodeId(EntityInternalVault, digest, 1)
	if a == b {
		t.Fatalf("expected different counters to derive different NodeIds")
	}
	if a.EntityType() != EntityInternalVault || !a.EntityType().IsInternal() {
		t.Fatalf("expected internal entity type to round-trip")
	}
}
