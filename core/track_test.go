package core

import "testing"

func TestTrackWriteAndFinalize(t *testing.T) {
	db := NewMemSubstateDB()
	node := NewGlobalNodeId(EntityGlobalComponent, AddressZero, "track_test", []byte("a"))

	tr := NewTrack(db)
	handle, _, exists, err := tr.OpenSubstate(node, 0, SortKey("f"), LockMutable)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if exists {
		t.Fatalf("expected substate to not exist yet")
	}
	if err := tr.WriteSubstate(handle, []byte("v1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := tr.CloseSubstate(handle); err != nil {
		t.Fatalf("close: %v", err)
	}

	updates := tr.Finalize()
	if err := db.Commit(updates); err != nil {
		t.Fatalf("commit: %v", err)
	}

	got, ok, err := db.Get(node, 0, SortKey("f"))
	if err != nil || !ok {
		t.Fatalf("expected committed value, ok=%v err=%v", ok, err)
	}
	if string(got) != "v1" {
		t.Fatalf("got %q want v1", got)
	}
}

func TestTrackRevertNonForceChanges(t *testing.T) {
	db := NewMemSubstateDB()
	node := NewGlobalNodeId(EntityGlobalComponent, AddressZero, "track_test", []byte("b"))

	tr := NewTrack(db)
	feeHandle, _, _, err := tr.OpenSubstate(node, 0, SortKey("fee"), LockMutable|LockForceWrite)
	if err != nil {
		t.Fatalf("open fee: %v", err)
	}
	if err := tr.WriteSubstate(feeHandle, []byte("charged")); err != nil {
		t.Fatalf("write fee: %v", err)
	}

	normalHandle, _, _, err := tr.OpenSubstate(node, 0, SortKey("balance"), LockMutable)
	if err != nil {
		t.Fatalf("open balance: %v", err)
	}
	if err := tr.WriteSubstate(normalHandle, []byte("should-not-persist")); err != nil {
		t.Fatalf("write balance: %v", err)
	}

	tr.RevertNonForceChanges()
	updates := tr.Finalize()
	if err := db.Commit(updates); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if _, ok, _ := db.Get(node, 0, SortKey("balance")); ok {
		t.Fatalf("expected non-force write to be reverted")
	}
	got, ok, _ := db.Get(node, 0, SortKey("fee"))
	if !ok || string(got) != "charged" {
		t.Fatalf("expected force write to survive revert, got %q ok=%v", got, ok)
	}
}

func TestTrackMutableLockConflict(t *testing.T) {
	db := NewMemSubstateDB()
	node := NewGlobalNodeId(EntityGlobalComponent, AddressZero, "track_test", []byte("c"))
	tr := NewTrack(db)

	if _, _, _, err := tr.OpenSubstate(node, 0, SortKey("f"), LockMutable); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, _, _, err := tr.OpenSubstate(node, 0, SortKey("f"), LockMutable); err == nil {
		t.Fatalf("expected second mutable lock to conflict")
	}
}

// TestTrackReadConflictsWithOutstandingMutableLock covers spec.md §8
// property 5: a substate with an outstanding MUTABLE lock cannot be read
// by any other path either, not just locked mutably again.
func TestTrackReadConflictsWithOutstandingMutableLock(t *testing.T) {
	db := NewMemSubstateDB()
	node := NewGlobalNodeId(EntityGlobalComponent, AddressZero, "track_test", []byte("d"))
	tr := NewTrack(db)

	if _, _, _, err := tr.OpenSubstate(node, 0, SortKey("f"), LockMutable); err != nil {
		t.Fatalf("mutable open: %v", err)
	}
	if _, _, _, err := tr.OpenSubstate(node, 0, SortKey("f"), 0); err == nil {
		t.Fatalf("expected a read-only open to conflict with the outstanding mutable lock")
	}
}
