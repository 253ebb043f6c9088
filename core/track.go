package core

import (
	"fmt"
	"sync"
)

// LockFlags controls how an OpenSubstate call is allowed to use, and what
// happens to, the substate it locks.
type LockFlags uint8

const (
	// LockMutable permits WriteSubstate on the handle; without it the lock
	// is read-only.
	LockMutable LockFlags = 1 << iota
	// LockUnmodifiedBase asserts the caller expects the substate to still
	// equal its value at transaction start; Track verifies this on open.
	LockUnmodifiedBase
	// LockForceWrite marks writes through this handle as surviving
	// RevertNonForceChanges, used for fee-payment bookkeeping that must
	// persist even if the rest of the transaction aborts.
	LockForceWrite
)

// LockHandle identifies one outstanding OpenSubstate call.
type LockHandle uint32

type trackedSubstate struct {
	key SubstateKey

	value  []byte
	exists bool

	isNew          bool
	forceWritten   bool
	forceValue     []byte // last value written through a LockForceWrite handle
	originalValue  []byte
	originalExists bool
}

type openLock struct {
	handle LockHandle
	key    SubstateKey
	flags  LockFlags
}

// Track is the per-transaction copy-on-write staging layer sitting above a
// SubstateDatabase: every read goes through Track first so that a single
// transaction sees its own uncommitted writes, and nothing reaches the
// database until Finalize succeeds.
type Track struct {
	mu sync.Mutex

	db     SubstateDatabase
	staged map[SubstateKey]*trackedSubstate

	locks    map[LockHandle]*openLock
	nextLock uint32

	// mutableHeld tracks which substates currently have an outstanding
	// mutable lock, to enforce "at most one writer at a time" per substate.
	mutableHeld map[SubstateKey]LockHandle
}

// NewTrack opens a new per-transaction Track over the given substate
// database.
func NewTrack(db SubstateDatabase) *Track {
	return &Track{
		db:          db,
		staged:      map[SubstateKey]*trackedSubstate{},
		locks:       map[LockHandle]*openLock{},
		mutableHeld: map[SubstateKey]LockHandle{},
	}
}

// OpenSubstate acquires a lock on (node, partition, key) and returns its
// current value (staged-or-base) and whether it exists.
func (t *Track) OpenSubstate(node NodeId, partition PartitionNum, key SortKey, flags LockFlags) (LockHandle, []byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	skey := newSubstateKey(node, partition, key)

	// An outstanding mutable lock excludes every other open against the
	// same substate, not just another mutable one: a substate with a
	// MUTABLE lock held cannot be read by any other path either.
	if existing, held := t.mutableHeld[skey]; held {
		return 0, nil, false, &KernelError{Op: "OpenSubstate", Err: fmt.Errorf("substate already mutably locked by handle %d", existing)}
	}

	ts, ok := t.staged[skey]
	if !ok {
		value, exists, err := t.db.Get(node, partition, key)
		if err != nil {
			return 0, nil, false, &SystemError{Op: "OpenSubstate", Err: err}
		}
		ts = &trackedSubstate{key: skey, value: value, exists: exists, originalValue: value, originalExists: exists}
		t.staged[skey] = ts
	}

	if flags&LockUnmodifiedBase != 0 {
		if !bytesEqual(ts.value, ts.originalValue) || ts.exists != ts.originalExists {
			return 0, nil, false, &KernelError{Op: "OpenSubstate", Err: fmt.Errorf("unmodified-base lock violated for %x", node[:4])}
		}
	}

	t.nextLock++
	handle := LockHandle(t.nextLock)
	t.locks[handle] = &openLock{handle: handle, key: skey, flags: flags}
	if flags&LockMutable != 0 {
		t.mutableHeld[skey] = handle
	}

	out := make([]byte, len(ts.value))
	copy(out, ts.value)
	return handle, out, ts.exists, nil
}

// ReadSubstate returns the current staged value for an open handle.
func (t *Track) ReadSubstate(handle LockHandle) ([]byte, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[handle]
	if !ok {
		return nil, false, &KernelError{Op: "ReadSubstate", Err: fmt.Errorf("unknown lock handle %d", handle)}
	}
	ts := t.staged[lock.key]
	out := make([]byte, len(ts.value))
	copy(out, ts.value)
	return out, ts.exists, nil
}

// WriteSubstate stages a new value for a mutably-locked handle.
func (t *Track) WriteSubstate(handle LockHandle, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[handle]
	if !ok {
		return &KernelError{Op: "WriteSubstate", Err: fmt.Errorf("unknown lock handle %d", handle)}
	}
	if lock.flags&LockMutable == 0 {
		return &KernelError{Op: "WriteSubstate", Err: fmt.Errorf("handle %d is not mutable", handle)}
	}
	ts := t.staged[lock.key]
	ts.value = append([]byte(nil), value...)
	ts.exists = true
	if lock.flags&LockForceWrite != 0 {
		ts.forceWritten = true
		ts.forceValue = append([]byte(nil), value...)
	}
	return nil
}

// MarkNew stages a brand-new substate (e.g. a freshly created object's
// initial fields) without requiring a prior OpenSubstate call.
func (t *Track) MarkNew(node NodeId, partition PartitionNum, key SortKey, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	skey := newSubstateKey(node, partition, key)
	t.staged[skey] = &trackedSubstate{
		key: skey, value: append([]byte(nil), value...), exists: true, isNew: true,
	}
}

// DeleteSubstate stages the removal of a mutably-locked substate.
func (t *Track) DeleteSubstate(handle LockHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[handle]
	if !ok {
		return &KernelError{Op: "DeleteSubstate", Err: fmt.Errorf("unknown lock handle %d", handle)}
	}
	if lock.flags&LockMutable == 0 {
		return &KernelError{Op: "DeleteSubstate", Err: fmt.Errorf("handle %d is not mutable", handle)}
	}
	ts := t.staged[lock.key]
	ts.value = nil
	ts.exists = false
	return nil
}

// CloseSubstate releases a lock handle. Releasing does not discard staged
// writes; only Finalize (commit) or RevertNonForceChanges (abort) do.
func (t *Track) CloseSubstate(handle LockHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[handle]
	if !ok {
		return &KernelError{Op: "CloseSubstate", Err: fmt.Errorf("unknown lock handle %d", handle)}
	}
	delete(t.locks, handle)
	if lock.flags&LockMutable != 0 && t.mutableHeld[lock.key] == handle {
		delete(t.mutableHeld, lock.key)
	}
	return nil
}

// StateUpdates is the finalized, DatabaseUpdates-shaped batch a successful
// transaction produces for the substate database and the hash tree.
type StateUpdates = DatabaseUpdates

// Finalize converts every staged change into a StateUpdates batch ready for
// SubstateDatabase.Commit, without itself touching the database.
func (t *Track) Finalize() StateUpdates {
	t.mu.Lock()
	defer t.mu.Unlock()

	updates := NewDatabaseUpdates()
	for key, ts := range t.staged {
		if ts.isNew || !bytesEqual(ts.value, ts.originalValue) || ts.exists != ts.originalExists {
			if ts.exists {
				updates.Set(key.Node, key.Partition, SortKey(key.Sort), ts.value)
			} else if ts.originalExists {
				updates.Delete(key.Node, key.Partition, SortKey(key.Sort))
			}
		}
	}
	return updates
}

// RevertNonForceChanges discards every staged write except those made
// through a LockForceWrite handle, so that fee-payment bookkeeping (which
// must be charged even when the rest of the transaction aborts) survives
// an OutOfCostUnits or runtime failure.
func (t *Track) RevertNonForceChanges() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, ts := range t.staged {
		if ts.forceWritten {
			ts.value = ts.forceValue
			ts.exists = true
			continue
		}
		delete(t.staged, key)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
