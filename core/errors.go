package core

import "fmt"

// Error taxonomy. Execution defaults to aborting the whole transaction on
// any error; only operations explicitly documented as fallible catch and
// inspect these types instead of letting them propagate to the manifest
// executor.

// KernelError reports a violation of the kernel/call-frame invariants:
// dangling references, cycles, exceeding the call-depth limit, locking a
// substate that is not visible to the current frame, and similar failures
// that indicate the caller (or a buggy blueprint) broke the object model.
type KernelError struct {
	Op  string
	Err error
}

func (e *KernelError) Error() string { return fmt.Sprintf("kernel: %s: %v", e.Op, e.Err) }
func (e *KernelError) Unwrap() error { return e.Err }

// SystemError reports a failure in engine-level bookkeeping below the
// blueprint layer: substate DB I/O, hash-tree construction, track
// finalization.
type SystemError struct {
	Op  string
	Err error
}

func (e *SystemError) Error() string { return fmt.Sprintf("system: %s: %v", e.Op, e.Err) }
func (e *SystemError) Unwrap() error { return e.Err }

// ApplicationError reports a blueprint-level business-logic failure:
// insufficient balance, divisibility violation, mint-cap exceeded, access
// rule denied. These are the only errors a blueprint author should expect
// to handle.
type ApplicationError struct {
	Op  string
	Err error
}

func (e *ApplicationError) Error() string { return fmt.Sprintf("application: %s: %v", e.Op, e.Err) }
func (e *ApplicationError) Unwrap() error { return e.Err }

// SystemModuleError reports a failure in a cross-cutting module attached to
// a node (e.g. royalty, access-rules, metadata) rather than the node's own
// blueprint logic.
type SystemModuleError struct {
	Module string
	Op     string
	Err    error
}

func (e *SystemModuleError) Error() string {
	return fmt.Sprintf("module[%s]: %s: %v", e.Module, e.Op, e.Err)
}
func (e *SystemModuleError) Unwrap() error { return e.Err }

// CantDropNodeInStore reports that a call frame returned to its caller
// while still owning a node it never explicitly moved back or dropped,
// per spec.md §4.6 step 7: frame teardown cannot leave an owned node
// stranded in the staged substate store, so it aborts the transaction
// instead of silently discarding the reference.
type CantDropNodeInStore struct {
	Op   string
	Node NodeId
}

func (e *CantDropNodeInStore) Error() string {
	return fmt.Sprintf("kernel: %s: node %s still owned at frame teardown, cannot drop to store", e.Op, e.Node.Short())
}

// OwnNotFound reports that an operation expected a node to be present in
// the current call frame's ownership set, but it was not.
type OwnNotFound struct {
	Op   string
	Node NodeId
}

func (e *OwnNotFound) Error() string {
	return fmt.Sprintf("kernel: %s: node %s not found among current frame's owned nodes", e.Op, e.Node.Short())
}

// IsCatchable reports whether err represents a failure a fallible operation
// is permitted to recover from (ApplicationError / SystemModuleError)
// rather than one that must abort the whole transaction (KernelError /
// SystemError).
func IsCatchable(err error) bool {
	switch err.(type) {
	case *ApplicationError, *SystemModuleError:
		return true
	default:
		return false
	}
}

// wrap mirrors pkg/utils.Wrap's nil-safe contextual wrapping, kept local to
// core so this package does not need to import pkg/utils for a one-liner.
func wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
