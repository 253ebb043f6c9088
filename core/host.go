package core

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/wasmerio/wasmer-go/wasmer"
)

// PartitionKVEntries is the fixed partition number key_value_store entries
// are staged under, alongside PartitionResourceMeta/PartitionNonFungibles in
// resource_manager.go's fixed partition layout.
const PartitionKVEntries PartitionNum = 2

// BufferTable holds variable-length syscall results waiting to be claimed by
// the guest via consume_buffer(id). Ids are allocated with google/uuid
// rather than a counter: buffer lifetime is purely a guest-memory-copy
// bookkeeping detail, never part of any persisted or hashed state, so it is
// exactly the kind of identifier allowed to be non-deterministic (spec.md §5
// restricts determinism to state, not these ephemeral handles).
type BufferTable struct {
	buffers map[uuid.UUID][]byte
}

// NewBufferTable returns an empty buffer table.
func NewBufferTable() *BufferTable { return &BufferTable{buffers: map[uuid.UUID][]byte{}} }

// Alloc stores data under a fresh buffer id for the guest to claim later.
func (t *BufferTable) Alloc(data []byte) uuid.UUID {
	id := uuid.New()
	t.buffers[id] = data
	return id
}

// Consume removes and returns the buffer for id, reporting whether it was
// still present (a guest may only consume a buffer once).
func (t *BufferTable) Consume(id uuid.UUID) ([]byte, bool) {
	data, ok := t.buffers[id]
	delete(t.buffers, id)
	return data, ok
}

// Clear frees every buffer still outstanding, called at frame return so an
// unclaimed buffer never leaks past the syscall that produced it.
func (t *BufferTable) Clear() { t.buffers = map[uuid.UUID][]byte{} }

// HostContext is the per-call-frame binding between the blueprint host
// syscall ABI of spec.md §4.8 and this engine's Kernel/Track/AuthZone. One
// HostContext is created per WASM instantiation; mem is attached once the
// guest module's exported memory is known, mirroring the teacher's own
// hostCtx/registerHost split between construction and memory attachment.
type HostContext struct {
	ex      *Executor
	buffers *BufferTable
	mem     *wasmer.Memory
}

// NewHostContext binds a fresh syscall surface to the executor driving the
// current transaction.
func NewHostContext(ex *Executor) *HostContext {
	return &HostContext{ex: ex, buffers: NewBufferTable()}
}

// ActorOpenField implements actor_open_field(module, field_index, flags).
func (h *HostContext) ActorOpenField(node NodeId, field SortKey, flags LockFlags) (LockHandle, error) {
	if err := h.ex.meter.Charge(1, "actor_open_field"); err != nil {
		return 0, err
	}
	handle, _, _, err := h.ex.kernel.OpenField(node, field, flags)
	return handle, err
}

// FieldLockRead implements field_lock_read(handle).
func (h *HostContext) FieldLockRead(handle LockHandle) ([]byte, error) {
	if err := h.ex.meter.Charge(1, "field_lock_read"); err != nil {
		return nil, err
	}
	data, _, err := h.ex.track.ReadSubstate(handle)
	return data, err
}

// FieldLockWrite implements field_lock_write(handle, bytes).
func (h *HostContext) FieldLockWrite(handle LockHandle, value []byte) error {
	if err := h.ex.meter.Charge(1, "field_lock_write"); err != nil {
		return err
	}
	return h.ex.track.WriteSubstate(handle, value)
}

// FieldLockRelease implements field_lock_release(handle).
func (h *HostContext) FieldLockRelease(handle LockHandle) error {
	return h.ex.kernel.CloseField(handle)
}

// KeyValueStoreNew implements key_value_store_new(schema).
func (h *HostContext) KeyValueStoreNew(schema []byte) NodeId {
	return h.ex.kernel.NewObject("key_value_store", map[SortKey][]byte{"schema": schema})
}

// KeyValueStoreOpenEntry implements key_value_store_open_entry(node, key, flags).
func (h *HostContext) KeyValueStoreOpenEntry(node NodeId, key []byte, flags LockFlags) (LockHandle, error) {
	if err := h.ex.meter.Charge(1, "key_value_store_open_entry"); err != nil {
		return 0, err
	}
	handle, _, _, err := h.ex.track.OpenSubstate(node, PartitionKVEntries, SortKey(key), flags)
	return handle, err
}

// KeyValueEntryGet implements key_value_entry_get(handle).
func (h *HostContext) KeyValueEntryGet(handle LockHandle) ([]byte, error) {
	data, _, err := h.ex.track.ReadSubstate(handle)
	return data, err
}

// KeyValueEntrySet implements key_value_entry_set(handle, bytes).
func (h *HostContext) KeyValueEntrySet(handle LockHandle, value []byte) error {
	return h.ex.track.WriteSubstate(handle, value)
}

// KeyValueEntryRemove implements key_value_entry_remove(handle).
func (h *HostContext) KeyValueEntryRemove(handle LockHandle) error {
	return h.ex.track.DeleteSubstate(handle)
}

// KeyValueEntryRelease implements key_value_entry_release(handle).
func (h *HostContext) KeyValueEntryRelease(handle LockHandle) error {
	return h.ex.track.CloseSubstate(handle)
}

// NewObject implements new_object(blueprint, fields).
func (h *HostContext) NewObject(blueprint string, fields map[SortKey][]byte) NodeId {
	return h.ex.kernel.NewObject(blueprint, fields)
}

// Globalize implements globalize(modules, reservation). The reservation
// argument of the wire ABI is not modeled here: this engine derives a
// node's global address deterministically from package+blueprint+salt
// rather than pre-reserving an arbitrary one, so globalize simply promotes
// the already-derived internal NodeId and returns it as the global address.
func (h *HostContext) Globalize(node NodeId) (NodeId, error) {
	if err := h.ex.kernel.Globalize(node); err != nil {
		return NodeId{}, err
	}
	return node, nil
}

// DropObject implements drop_object(node).
func (h *HostContext) DropObject(node NodeId) error {
	return h.ex.kernel.DropNode(node)
}

// CallMethod implements call_method(receiver, direct_access, module, ident, args).
// The guest's own dispatch into the invoked blueprint body runs inside the
// WASM sandbox, out of scope here; this call only performs the call-frame
// transition, cost-unit charge, and returns the buffer id holding whatever
// result bytes the kernel-level call produced.
func (h *HostContext) CallMethod(receiver NodeId, module, ident string, argsBuf []byte) (uuid.UUID, error) {
	if err := h.ex.meter.Charge(10, "call_method"); err != nil {
		return uuid.UUID{}, err
	}
	if _, err := h.ex.kernel.PushFrame(Actor{Blueprint: module, Method: ident}, CallFrameUpdate{}); err != nil {
		return uuid.UUID{}, err
	}
	if err := h.ex.kernel.PopFrame(CallFrameUpdate{}); err != nil {
		return uuid.UUID{}, err
	}
	return h.buffers.Alloc(nil), nil
}

// CallFunction implements call_function(package, blueprint, ident, args).
func (h *HostContext) CallFunction(pkg NodeId, blueprint, ident string, argsBuf []byte) (uuid.UUID, error) {
	if err := h.ex.meter.Charge(10, "call_function"); err != nil {
		return uuid.UUID{}, err
	}
	if _, err := h.ex.kernel.PushFrame(Actor{Package: pkg, Blueprint: blueprint, Method: ident}, CallFrameUpdate{}); err != nil {
		return uuid.UUID{}, err
	}
	if err := h.ex.kernel.PopFrame(CallFrameUpdate{}); err != nil {
		return uuid.UUID{}, err
	}
	return h.buffers.Alloc(nil), nil
}

// EmitEvent implements emit_event(name, bytes).
func (h *HostContext) EmitEvent(name string, payload []byte) {
	h.ex.events = append(h.ex.events, Event{Emitter: h.currentActorNode(), Name: name, Payload: payload})
}

// EmitLog implements emit_log(level, msg).
func (h *HostContext) EmitLog(level, msg string) {
	h.ex.logs = append(h.ex.logs, LogEntry{Level: level, Msg: msg})
}

// Panic implements panic(msg): an unconditional, unrecoverable abort of the
// transaction currently executing.
func (h *HostContext) Panic(msg string) error {
	return &KernelError{Op: "Panic", Err: fmt.Errorf("%s", msg)}
}

// AssertAccessRule implements assert_access_rule(rule).
func (h *HostContext) AssertAccessRule(rule AccessRule) error {
	return h.ex.authZone.AssertAccessRule(rule)
}

// ConsumeWasmExecutionUnits implements consume_wasm_execution_units(n),
// called by the guest's own metering trampoline roughly every N wasm
// instructions (spec.md §5's cancellation mechanism #1).
func (h *HostContext) ConsumeWasmExecutionUnits(n int64) error {
	return h.ex.meter.Charge(n, "consume_wasm_execution_units")
}

// GetAuthZone implements get_auth_zone: returns the transaction-scoped auth
// zone every frame shares.
func (h *HostContext) GetAuthZone() *AuthZone { return h.ex.authZone }

// currentActorNode resolves the package node of the currently executing
// actor, used as an event's emitter when no more specific node applies.
func (h *HostContext) currentActorNode() NodeId {
	return h.ex.kernel.current().actor.Package
}

// ConsumeBuffer implements consume_buffer(id): copies a previously
// allocated buffer into the guest's linear memory at ptr and frees it.
func (h *HostContext) ConsumeBuffer(id uuid.UUID, ptr int32) (int32, error) {
	data, ok := h.buffers.Consume(id)
	if !ok {
		return 0, fmt.Errorf("core: unknown or already-consumed buffer %s", id)
	}
	if h.mem == nil {
		return 0, fmt.Errorf("core: guest memory not yet attached")
	}
	copy(h.mem.Data()[ptr:], data)
	return int32(len(data)), nil
}

// BuildImportObject registers three syscalls as Wasmer host imports under
// the "env" namespace: emit_event, emit_log and consume_wasm_execution_units.
// The other HostContext syscalls (field locks, new_object, globalize,
// drop_object, ...) are not registered as imports. Grounded on the
// teacher's registerHost wiring in its own Wasmer-backed VM.
func BuildImportObject(store *wasmer.Store, h *HostContext) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	read := func(ptr, ln int32) []byte {
		buf := h.mem.Data()[ptr : ptr+ln]
		out := make([]byte, ln)
		copy(out, buf)
		return out
	}

	emitEvent := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(
				wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32),
				wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32),
			),
			wasmer.NewValueTypes(),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			namePtr, nameLen, dataPtr, dataLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
			name := string(read(namePtr, nameLen))
			payload := read(dataPtr, dataLen)
			h.EmitEvent(name, payload)
			return []wasmer.Value{}, nil
		},
	)

	emitLog := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(
				wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32),
				wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32),
			),
			wasmer.NewValueTypes(),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			levelPtr, levelLen, msgPtr, msgLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
			h.EmitLog(string(read(levelPtr, levelLen)), string(read(msgPtr, msgLen)))
			return []wasmer.Value{}, nil
		},
	)

	consumeWasmUnits := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I64)),
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32)),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if err := h.ConsumeWasmExecutionUnits(args[0].I64()); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	imports.Register("env", map[string]wasmer.IntoExtern{
		"emit_event":                   emitEvent,
		"emit_log":                     emitLog,
		"consume_wasm_execution_units": consumeWasmUnits,
	})

	return imports
}
