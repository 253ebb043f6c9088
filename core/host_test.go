package core

import "testing"

func newTestHostContext(t *testing.T) *HostContext {
	t.Helper()
	ex, _, _ := newTestExecutor(t)
	return NewHostContext(ex)
}

func TestBufferTableAllocConsumeOnce(t *testing.T) {
	bt := NewBufferTable()
	id := bt.Alloc([]byte("hello"))

	data, ok := bt.Consume(id)
	if !ok || string(data) != "hello" {
		t.Fatalf("expected to consume buffer contents, got %q ok=%v", data, ok)
	}
	if _, ok := bt.Consume(id); ok {
		t.Fatalf("expected second consume of the same buffer to fail")
	}
}

func TestHostContextNewObjectAndGlobalize(t *testing.T) {
	h := newTestHostContext(t)
	obj := h.NewObject("test_blueprint", map[SortKey][]byte{"field": []byte("v")})

	addr, err := h.Globalize(obj)
	if err != nil {
		t.Fatalf("Globalize: %v", err)
	}
	if addr != obj {
		t.Fatalf("expected globalize to return the same node id as its address")
	}
}

func TestHostContextFieldLockRoundTrip(t *testing.T) {
	h := newTestHostContext(t)
	obj := h.NewObject("test_blueprint", map[SortKey][]byte{"field": []byte("v1")})

	handle, err := h.ActorOpenField(obj, "field", LockMutable)
	if err != nil {
		t.Fatalf("ActorOpenField: %v", err)
	}
	if err := h.FieldLockWrite(handle, []byte("v2")); err != nil {
		t.Fatalf("FieldLockWrite: %v", err)
	}
	data, err := h.FieldLockRead(handle)
	if err != nil {
		t.Fatalf("FieldLockRead: %v", err)
	}
	if string(data) != "v2" {
		t.Fatalf("expected updated field value v2, got %q", data)
	}
	if err := h.FieldLockRelease(handle); err != nil {
		t.Fatalf("FieldLockRelease: %v", err)
	}
}

func TestHostContextEmitEventAndLog(t *testing.T) {
	h := newTestHostContext(t)
	h.EmitEvent("TestEvent", []byte("payload"))
	h.EmitLog("info", "hello from blueprint")

	if len(h.ex.events) != 1 || h.ex.events[0].Name != "TestEvent" {
		t.Fatalf("expected one TestEvent to be recorded")
	}
	if len(h.ex.logs) != 1 || h.ex.logs[0].Msg != "hello from blueprint" {
		t.Fatalf("expected one log entry to be recorded")
	}
}

func TestHostContextConsumeWasmExecutionUnitsRespectsBudget(t *testing.T) {
	h := newTestHostContext(t)
	h.ex.meter = NewCostUnitMeter(10)

	if err := h.ConsumeWasmExecutionUnits(5); err != nil {
		t.Fatalf("expected charge within budget to succeed: %v", err)
	}
	if err := h.ConsumeWasmExecutionUnits(10); err == nil {
		t.Fatalf("expected charge exceeding budget to fail")
	}
}

func TestHostContextKeyValueStoreEntryLifecycle(t *testing.T) {
	h := newTestHostContext(t)
	kv := h.KeyValueStoreNew([]byte("schema-v1"))

	handle, err := h.KeyValueStoreOpenEntry(kv, []byte("k1"), LockMutable)
	if err != nil {
		t.Fatalf("KeyValueStoreOpenEntry: %v", err)
	}
	if err := h.KeyValueEntrySet(handle, []byte("v1")); err != nil {
		t.Fatalf("KeyValueEntrySet: %v", err)
	}
	data, err := h.KeyValueEntryGet(handle)
	if err != nil {
		t.Fatalf("KeyValueEntryGet: %v", err)
	}
	if string(data) != "v1" {
		t.Fatalf("expected v1, got %q", data)
	}
	if err := h.KeyValueEntryRelease(handle); err != nil {
		t.Fatalf("KeyValueEntryRelease: %v", err)
	}
}
