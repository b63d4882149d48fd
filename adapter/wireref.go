package adapter

import "sync"

// frameWireEpochUnit bounds how many frames one pause epoch can issue
// before the epoch/slot packing below would collide; the real limit
// (StackTraceLimit) is always far smaller.
const frameWireEpochUnit = 1_000_000

// encodeFrameWireID packs a frame's (epoch, slot) into the single int
// DAP's frameId wire field allows, so a frameId from a prior pause
// epoch is distinguishable from a same-numbered one in the current
// epoch (spec §3 "frame references are valid only within the current
// pause epoch").
func encodeFrameWireID(epoch int64, slot int) int {
	return int(epoch)*frameWireEpochUnit + slot
}

func decodeFrameWireID(id int) (epoch int64, slot int) {
	return int64(id / frameWireEpochUnit), id % frameWireEpochUnit
}

// varRefRegistry maps a flat DAP variablesReference integer to the
// VarRef it stands for. A VarRef already carries everything Resolve
// needs (epoch, slot) plus Scope/FrameDepth for setVariable routing,
// but DAP only gives the front-end a single integer to hand back, so
// this is the session-level table that recovers the rest — the same
// role the teacher's ReferenceUtil played for its own int-keyed
// variable handles, just keyed by VarRef instead of a marshaled
// struct string.
type varRefRegistry struct {
	mu      sync.Mutex
	epoch   int64
	nextID  int
	entries map[int]VarRef
}

func newVarRefRegistry() *varRefRegistry {
	return &varRefRegistry{entries: map[int]VarRef{}, nextID: 1}
}

// resetForEpoch discards every registered reference; called in lockstep
// with FrameTable/VarTable.Reset() on every transition into Stopped.
// nextID keeps counting across epochs, so a wire id handed out in a
// prior pause never names a current reference and lookup misses it.
func (r *varRefRegistry) resetForEpoch(epoch int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch = epoch
	r.entries = map[int]VarRef{}
}

// register mints a new wire id for ref. Callers register only compound
// values; a scalar's variablesReference stays 0 without a call here.
func (r *varRefRegistry) register(ref VarRef) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.entries[id] = ref
	return id
}

func (r *varRefRegistry) lookup(id int) (VarRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.entries[id]
	return ref, ok
}
