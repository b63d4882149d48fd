package adapter

import (
	"sync"

	e "github.com/lumenlang/dap-adapter/error"
)

// epochTable is the append-only, monotonic-id table behind both frame
// references and variable references (spec §3). It is reset wholesale
// on every pause, which is what makes stale lookups cheap to detect:
// a lookup just compares the caller's epoch against the table's
// current one before ever touching the slot slice, mirroring the
// teacher's ReferenceUtil but keyed by epoch instead of by a
// marshaled struct string, and generic so the same machinery backs
// both frame and variable references.
type epochTable[T any] struct {
	mu    sync.Mutex
	epoch int64
	slots []T
}

func newEpochTable[T any]() *epochTable[T] {
	return &epochTable[T]{slots: make([]T, 1)} // slot 0 is never issued
}

// Reset bumps the epoch and discards every previously issued
// reference. Returns the new epoch.
func (t *epochTable[T]) Reset() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.epoch++
	t.slots = t.slots[:1]
	return t.epoch
}

func (t *epochTable[T]) CurrentEpoch() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.epoch
}

// Put appends value and returns the (epoch, slot) pair to hand back to
// the caller as part of a VarRef/frame ref.
func (t *epochTable[T]) Put(value T) (epoch int64, slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots = append(t.slots, value)
	return t.epoch, len(t.slots) - 1
}

// Get returns the value stored at slot, failing with StaleReference if
// epoch doesn't match the table's current epoch (spec §8 invariant 1).
func (t *epochTable[T]) Get(epoch int64, slot int) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var zero T
	if epoch != t.epoch {
		return zero, e.New(e.StaleReference, "reference belongs to a prior pause epoch")
	}
	if slot <= 0 || slot >= len(t.slots) {
		return zero, e.New(e.StaleReference, "reference not found")
	}
	return t.slots[slot], nil
}

// VarTable stores every Value handed out as a variables-request child
// expansion, a watch result, or an evaluate result, keyed by VarRef.
type VarTable struct {
	table *epochTable[Value]
}

func NewVarTable() *VarTable {
	return &VarTable{table: newEpochTable[Value]()}
}

func (v *VarTable) Reset() int64        { return v.table.Reset() }
func (v *VarTable) CurrentEpoch() int64 { return v.table.CurrentEpoch() }

// Issue records value under the given scope/frame and returns its VarRef.
func (v *VarTable) Issue(frameDepth int, scope VariableScope, value Value) VarRef {
	epoch, slot := v.table.Put(value)
	return VarRef{Epoch: epoch, FrameDepth: frameDepth, Scope: scope, Slot: slot}
}

// Resolve looks up the Value behind ref, failing cleanly on an epoch mismatch.
func (v *VarTable) Resolve(ref VarRef) (Value, error) {
	return v.table.Get(ref.Epoch, ref.Slot)
}

// FrameTable stores the dense StackFrame snapshot for the current pause.
type FrameTable struct {
	table *epochTable[StackFrame]
}

func NewFrameTable() *FrameTable {
	return &FrameTable{table: newEpochTable[StackFrame]()}
}

func (f *FrameTable) Reset() int64        { return f.table.Reset() }
func (f *FrameTable) CurrentEpoch() int64 { return f.table.CurrentEpoch() }

func (f *FrameTable) Issue(frame StackFrame) StackFrame {
	epoch, slot := f.table.Put(frame)
	frame.Ref = slot
	frame.Epoch = epoch
	return frame
}

func (f *FrameTable) Resolve(ref int, epoch int64) (StackFrame, error) {
	return f.table.Get(epoch, ref)
}
