package core

// NodeVisibility classifies how a node is visible to a call frame, as
// required to decide which operations the frame may perform on it.
type NodeVisibility int

const (
	// VisFrameOwned nodes were created by, or moved into, this frame; the
	// frame may mutate, globalize or drop them.
	VisFrameOwned NodeVisibility = iota
	// VisBorrowed nodes are visible read/write but owned by an ancestor
	// frame (or the frame that called into this one); they may not be
	// globalized or dropped here.
	VisBorrowed
	// VisGlobal nodes are reachable from any frame in the transaction.
	VisGlobal
	// VisTransient nodes (buckets, proofs, worktop, auth zone) are scoped
	// to the transaction root and never persisted.
	VisTransient
)

// Actor identifies which blueprint function a call frame is executing.
type Actor struct {
	Package   NodeId
	Blueprint string
	Method    string
}

// CallFrameUpdate computes which nodes move ownership across a call/return
// boundary and which are merely copied as borrowed references, the two
// halves of the call/return protocol (spec.md §4.6).
type CallFrameUpdate struct {
	NodesToMove    []NodeId
	NodeRefsToCopy []NodeId
}

// CallFrame is one entry in the kernel's frame stack.
type CallFrame struct {
	depth    int
	actor    Actor
	owned    map[NodeId]bool
	borrowed map[NodeId]bool
	locks    map[LockHandle]bool
}

func newCallFrame(depth int, actor Actor) *CallFrame {
	return &CallFrame{
		depth: depth, actor: actor,
		owned: map[NodeId]bool{}, borrowed: map[NodeId]bool{}, locks: map[LockHandle]bool{},
	}
}

// Visibility reports how node is visible to this frame, given the set of
// nodes already globalized in the transaction.
func (f *CallFrame) Visibility(node NodeId, globals map[NodeId]bool) (NodeVisibility, bool) {
	if node.EntityType().IsGlobal() || globals[node] {
		return VisGlobal, true
	}
	if f.owned[node] {
		return VisFrameOwned, true
	}
	if f.borrowed[node] {
		return VisBorrowed, true
	}
	if node.EntityType().IsTransient() {
		return VisTransient, false // transient nodes still need explicit move/borrow to be visible
	}
	return 0, false
}
