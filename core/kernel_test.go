package core

import (
	"errors"
	"testing"
)

func newTestKernel(t *testing.T) (*Kernel, *Track) {
	t.Helper()
	db := NewMemSubstateDB()
	tr := NewTrack(db)
	meter := NewCostUnitMeter(1_000_000)
	k := NewKernel(tr, [32]byte{9}, 8, meter)
	return k, tr
}

func TestKernelPushPopFrame(t *testing.T) {
	k, _ := newTestKernel(t)
	if k.CallDepth() != 0 {
		t.Fatalf("expected root depth 0, got %d", k.CallDepth())
	}

	obj := k.NewObject("test_blueprint", map[SortKey][]byte{"field": []byte("v")})

	callee, err := k.PushFrame(Actor{Blueprint: "test_blueprint", Method: "do_thing"}, CallFrameUpdate{NodesToMove: []NodeId{obj}})
	if err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	if !callee.owned[obj] {
		t.Fatalf("expected callee to own moved node")
	}
	if k.CallDepth() != 1 {
		t.Fatalf("expected depth 1 after push, got %d", k.CallDepth())
	}

	if err := k.PopFrame(CallFrameUpdate{NodesToMove: []NodeId{obj}}); err != nil {
		t.Fatalf("PopFrame: %v", err)
	}
	if k.CallDepth() != 0 {
		t.Fatalf("expected depth 0 after pop, got %d", k.CallDepth())
	}
	if !k.current().owned[obj] {
		t.Fatalf("expected node returned to root frame ownership")
	}
}

func TestKernelMaxCallDepthExceeded(t *testing.T) {
	k, _ := newTestKernel(t)
	k.maxDepth = 2

	for i := 0; i < 2; i++ {
		if _, err := k.PushFrame(Actor{Blueprint: "recur"}, CallFrameUpdate{}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if _, err := k.PushFrame(Actor{Blueprint: "recur"}, CallFrameUpdate{}); err == nil {
		t.Fatalf("expected max call depth error")
	}
}

func TestKernelCannotPopRootFrame(t *testing.T) {
	k, _ := newTestKernel(t)
	if err := k.PopFrame(CallFrameUpdate{}); err == nil {
		t.Fatalf("expected error popping root frame")
	}
}

func TestKernelGlobalizeMakesNodeVisibleEverywhere(t *testing.T) {
	k, _ := newTestKernel(t)
	obj := k.NewObject("test_blueprint", nil)
	if err := k.Globalize(obj); err != nil {
		t.Fatalf("Globalize: %v", err)
	}
	if _, err := k.PushFrame(Actor{Blueprint: "other"}, CallFrameUpdate{}); err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	if vis, ok := k.current().Visibility(obj, k.globals); !ok || vis != VisGlobal {
		t.Fatalf("expected globalized node visible as VisGlobal in unrelated frame, got %v/%v", vis, ok)
	}
}

func TestKernelRecordOwnedReferenceRejectsCycle(t *testing.T) {
	k, _ := newTestKernel(t)
	a := k.NewObject("a", nil)
	b := k.NewObject("b", nil)

	if err := k.RecordOwnedReference(a, b); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	if err := k.RecordOwnedReference(b, a); err == nil {
		t.Fatalf("expected b->a to be rejected as a cycle")
	}
}

// TestKernelPopFrameAbortsOnUnreturnedOwnedNode covers spec.md §4.6 step
// 7: a frame that returns while still owning a node it never moved back
// or dropped must abort teardown with CantDropNodeInStore rather than
// silently leaking the node.
func TestKernelPopFrameAbortsOnUnreturnedOwnedNode(t *testing.T) {
	k, _ := newTestKernel(t)
	obj := k.NewObject("test_blueprint", map[SortKey][]byte{"field": []byte("v")})

	if _, err := k.PushFrame(Actor{Blueprint: "test_blueprint"}, CallFrameUpdate{NodesToMove: []NodeId{obj}}); err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	err := k.PopFrame(CallFrameUpdate{})
	if err == nil {
		t.Fatalf("expected PopFrame to abort on an unreturned owned node")
	}
	var notInStore *CantDropNodeInStore
	if !errors.As(err, &notInStore) {
		t.Fatalf("expected a *CantDropNodeInStore error, got %T: %v", err, err)
	}
}

func TestKernelPopFrameRejectsOpenLocks(t *testing.T) {
	k, tr := newTestKernel(t)
	obj := k.NewObject("test_blueprint", map[SortKey][]byte{"field": []byte("v")})
	_ = tr

	if _, err := k.PushFrame(Actor{Blueprint: "test_blueprint"}, CallFrameUpdate{NodesToMove: []NodeId{obj}}); err != nil {
		t.Fatalf("PushFrame: %v", err)
	}
	if _, _, _, err := k.OpenField(obj, "field", LockMutable); err != nil {
		t.Fatalf("OpenField: %v", err)
	}
	if err := k.PopFrame(CallFrameUpdate{NodesToMove: []NodeId{obj}}); err == nil {
		t.Fatalf("expected PopFrame to reject a frame with an open lock")
	}
}
