package core

import "fmt"

// Kernel drives the call-frame stack above a Track, enforcing the
// visibility, ownership, locking and cycle-freedom invariants of the
// object model (spec.md §4.6). Grounded on the original sandbox registry's
// process-wide table (generalized here to a per-transaction frame stack)
// and the VMContext/GasMeter pairing (generalized to a call frame carrying
// its own lock-handle set and sharing one cost-unit meter).
type Kernel struct {
	track    *Track
	frames   []*CallFrame
	maxDepth int
	meter    *CostUnitMeter

	globals   map[NodeId]bool
	ownerOf   map[NodeId]NodeId // owned-reference parent, for cycle detection
	txDigest  [32]byte
	objCount  uint32
}

// NewKernel starts a fresh kernel for one transaction, with an initial root
// frame belonging to the transaction processor itself.
func NewKernel(tr *Track, txDigest [32]byte, maxDepth int, meter *CostUnitMeter) *Kernel {
	k := &Kernel{
		track: tr, maxDepth: maxDepth, meter: meter,
		globals: map[NodeId]bool{}, ownerOf: map[NodeId]NodeId{}, txDigest: txDigest,
	}
	k.frames = []*CallFrame{newCallFrame(0, Actor{Blueprint: "transaction_processor"})}
	return k
}

func (k *Kernel) current() *CallFrame { return k.frames[len(k.frames)-1] }

// CallDepth returns the current frame-stack depth (root frame is depth 0).
func (k *Kernel) CallDepth() int { return len(k.frames) - 1 }

// PushFrame enters a new call frame for actor, moving the nodes named in
// update.NodesToMove out of the caller's ownership and into the callee's,
// and making update.NodeRefsToCopy visible to the callee as borrowed
// references. Returns KernelError{MaxCallDepthExceeded} if the resulting
// depth would exceed maxDepth.
func (k *Kernel) PushFrame(actor Actor, update CallFrameUpdate) (*CallFrame, error) {
	if len(k.frames) > k.maxDepth {
		return nil, &KernelError{Op: "PushFrame", Err: fmt.Errorf("max call depth %d exceeded", k.maxDepth)}
	}
	caller := k.current()
	callee := newCallFrame(caller.depth+1, actor)

	for _, node := range update.NodesToMove {
		if !caller.owned[node] {
			return nil, &OwnNotFound{Op: "PushFrame", Node: node}
		}
		delete(caller.owned, node)
		callee.owned[node] = true
	}
	for _, node := range update.NodeRefsToCopy {
		if _, visible := caller.Visibility(node, k.globals); !visible {
			return nil, &KernelError{Op: "PushFrame", Err: fmt.Errorf("node %s not visible to caller, cannot copy ref", node.Short())}
		}
		callee.borrowed[node] = true
	}

	k.frames = append(k.frames, callee)
	log.WithFields(map[string]interface{}{"blueprint": actor.Blueprint, "method": actor.Method, "depth": callee.depth}).Debug("kernel: frame pushed")
	return callee, nil
}

// PopFrame returns from the current frame to its caller. Any node still
// owned by the returning frame moves back to the caller per
// returnUpdate.NodesToMove; the returning frame must hold no open locks.
func (k *Kernel) PopFrame(returnUpdate CallFrameUpdate) error {
	if len(k.frames) <= 1 {
		return &KernelError{Op: "PopFrame", Err: fmt.Errorf("cannot pop the root frame")}
	}
	callee := k.current()
	if len(callee.locks) != 0 {
		return &KernelError{Op: "PopFrame", Err: fmt.Errorf("frame has %d open locks at return", len(callee.locks))}
	}
	caller := k.frames[len(k.frames)-2]

	for _, node := range returnUpdate.NodesToMove {
		if !callee.owned[node] {
			return &OwnNotFound{Op: "PopFrame", Node: node}
		}
		delete(callee.owned, node)
		caller.owned[node] = true
	}
	// Any node the callee still owns and did not explicitly return or drop
	// would become unreachable inside the staged store, so teardown aborts
	// rather than leaking it silently.
	for node := range callee.owned {
		return &CantDropNodeInStore{Op: "PopFrame", Node: node}
	}

	k.frames = k.frames[:len(k.frames)-1]
	log.WithField("depth", callee.depth).Debug("kernel: frame popped")
	return nil
}

// NewObject allocates a fresh internal node owned by the current frame and
// stages its initial field substates in Track.
func (k *Kernel) NewObject(blueprint string, fields map[SortKey][]byte) NodeId {
	k.objCount++
	id := NewInternalNodeId(EntityInternalComponent, k.txDigest, k.objCount)
	for sk, v := range fields {
		k.track.MarkNew(id, PartitionResourceMeta, sk, v)
	}
	k.current().owned[id] = true
	return id
}

// AllocateTransient mints a fresh transient NodeId (a bucket, proof,
// worktop or auth-zone node) owned by the current frame, the transient
// counterpart to NewObject: transient nodes never reach Track, but still
// need a real NodeId so CallFrameUpdate can move or borrow them across a
// call boundary like any other owned node.
func (k *Kernel) AllocateTransient(entity EntityType) NodeId {
	k.objCount++
	id := NewInternalNodeId(entity, k.txDigest, k.objCount)
	k.current().owned[id] = true
	return id
}

// Globalize promotes an owned node to a globally addressable one. Once
// global, the node is visible from every frame for the rest of the
// transaction and can never be un-globalized.
func (k *Kernel) Globalize(node NodeId) error {
	frame := k.current()
	if !frame.owned[node] {
		return &KernelError{Op: "Globalize", Err: fmt.Errorf("node %s not owned by current frame", node.Short())}
	}
	delete(frame.owned, node)
	k.globals[node] = true
	return nil
}

// DropNode releases an owned node. It fails while any substate of the node
// is still locked in Track; children the node may own are not inspected.
func (k *Kernel) DropNode(node NodeId) error {
	frame := k.current()
	if !frame.owned[node] {
		return &OwnNotFound{Op: "DropNode", Node: node}
	}
	k.track.mu.Lock()
	for _, l := range k.track.locks {
		if l.key.Node == node {
			k.track.mu.Unlock()
			return &KernelError{Op: "DropNode", Err: fmt.Errorf("node %s has an outstanding substate lock", node.Short())}
		}
	}
	k.track.mu.Unlock()
	delete(frame.owned, node)
	delete(k.ownerOf, node)
	return nil
}

// RecordOwnedReference registers that parent's substates now embed a
// reference to child as an owned sub-object, and rejects the write if it
// would create a reference cycle (spec.md §8 invariant: "no cycles").
func (k *Kernel) RecordOwnedReference(parent, child NodeId) error {
	if parent == child {
		return &KernelError{Op: "RecordOwnedReference", Err: fmt.Errorf("node cannot own itself")}
	}
	// Walk parent's existing ownership chain looking for child; if found,
	// child already (transitively) owns parent, so linking parent -> child
	// would close a cycle.
	for cur, ok := k.ownerOf[parent]; ok; cur, ok = k.ownerOf[cur] {
		if cur == child {
			return &KernelError{Op: "RecordOwnedReference", Err: fmt.Errorf("would create ownership cycle")}
		}
	}
	k.ownerOf[child] = parent
	return nil
}

// OpenField is the kernel-mediated substate open used by the host syscall
// surface's actor_open_field: it resolves the field against the current
// frame's actor and records the resulting lock against the frame so
// PopFrame can refuse to return while locks remain open.
func (k *Kernel) OpenField(node NodeId, field SortKey, flags LockFlags) (LockHandle, []byte, bool, error) {
	frame := k.current()
	if _, ok := frame.Visibility(node, k.globals); !ok {
		return 0, nil, false, &KernelError{Op: "OpenField", Err: fmt.Errorf("node %s not visible to current frame", node.Short())}
	}
	handle, value, exists, err := k.track.OpenSubstate(node, PartitionResourceMeta, field, flags)
	if err != nil {
		return 0, nil, false, err
	}
	frame.locks[handle] = true
	return handle, value, exists, nil
}

// CloseField closes a lock previously opened via OpenField.
func (k *Kernel) CloseField(handle LockHandle) error {
	frame := k.current()
	if !frame.locks[handle] {
		return &KernelError{Op: "CloseField", Err: fmt.Errorf("handle %d not open in current frame", handle)}
	}
	if err := k.track.CloseSubstate(handle); err != nil {
		return err
	}
	delete(frame.locks, handle)
	return nil
}
