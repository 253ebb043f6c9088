package core

import "testing"

func TestHashTreeDeterministic(t *testing.T) {
	db := NewMemSubstateDB()
	node := NewGlobalNodeId(EntityGlobalComponent, AddressZero, "hashtree_test", []byte("a"))

	updates := NewDatabaseUpdates()
	updates.Set(node, 0, SortKey("k1"), []byte("v1"))
	updates.Set(node, 0, SortKey("k2"), []byte("v2"))
	if err := db.Commit(updates); err != nil {
		t.Fatalf("commit: %v", err)
	}

	t1 := NewHashTree()
	if _, err := t1.Update(db, updates); err != nil {
		t.Fatalf("update 1: %v", err)
	}
	root1 := t1.NodeRoot()

	t2 := NewHashTree()
	if _, err := t2.Update(db, updates); err != nil {
		t.Fatalf("update 2: %v", err)
	}
	root2 := t2.NodeRoot()

	if root1 != root2 {
		t.Fatalf("expected deterministic root, got %x vs %x", root1, root2)
	}
	if root1 == (radixZero) {
		t.Fatalf("expected non-zero root after commit")
	}
}

func TestHashTreeReportsStaleOnSecondUpdate(t *testing.T) {
	db := NewMemSubstateDB()
	node := NewGlobalNodeId(EntityGlobalComponent, AddressZero, "hashtree_test", []byte("b"))
	tree := NewHashTree()

	first := NewDatabaseUpdates()
	first.Set(node, 0, SortKey("k"), []byte("v1"))
	if err := db.Commit(first); err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	if stale, err := tree.Update(db, first); err != nil || len(stale) != 0 {
		t.Fatalf("expected no stale parts on first update, got %+v err=%v", stale, err)
	}

	second := NewDatabaseUpdates()
	second.Set(node, 0, SortKey("k"), []byte("v2"))
	if err := db.Commit(second); err != nil {
		t.Fatalf("commit 2: %v", err)
	}
	stale, err := tree.Update(db, second)
	if err != nil {
		t.Fatalf("update 2: %v", err)
	}
	if len(stale) == 0 {
		t.Fatalf("expected stale parts after overwriting an existing leaf")
	}
}
