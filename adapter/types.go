// Package adapter is the execution-control engine: the hook-driven
// state machine, breakpoint store, stepping logic, frame/variable
// model and evaluator that sit between a DAP front-end and an
// embedded Lumen (gopher-lua) interpreter. It never touches a socket
// or a byte of JSON directly — that is the caller's Network
// collaborator; adapter consumes and produces plain Go values.
package adapter

import (
	"github.com/lumenlang/dap-adapter/constants"
)

// SourceKey is the canonical normalized identifier of a source file
// or synthetic chunk (spec §3 "Source identity").
type SourceKey string

// Source describes one debuggable chunk of Lumen code.
type Source struct {
	Key SourceKey
	// Path is the on-disk, front-end-facing path. Empty for sources
	// with no file backing.
	Path string
	// Name is a display name; for a labelled synthetic chunk this is
	// the label, for an unnamed one the "<source:N>" form.
	Name string
	// Reference is a positive, stable id used by the front-end to
	// fetch a synthetic source's text via the `source` request. Zero
	// means the source has on-disk backing and no reference is needed.
	Reference int
}

// HasReference reports whether this source must be fetched by id
// rather than read from disk.
func (s Source) HasReference() bool {
	return s.Reference != 0
}

// Breakpoint is one entry in the BreakpointStore (spec §3 "Breakpoint").
type Breakpoint struct {
	Source       SourceKey
	Line         int
	Condition    string
	HitCondition string
	LogMessage   string

	// Verified and VerifiedLine are filled in by BreakpointStore.Set
	// after consulting the interpreter facade's executable line table.
	Verified     bool
	VerifiedLine int

	// hitCount is the running count of condition-true hits, used to
	// evaluate HitCondition. Not exported: callers never set it directly.
	hitCount int
}

// StackFrame is one entry in a paused StackModel snapshot (spec §3 "Stack frame").
type StackFrame struct {
	// Ref is the dense frame reference assigned when the snapshot was built.
	// Valid only for the pause epoch that produced it.
	Ref   int
	Depth int
	Source
	Line     int
	Name     string
	Epoch    int64
	MoreFrames bool // true on the synthetic "more frames available" sentinel
}

// Scope describes one DAP `scopes` entry bound to a frame.
type Scope struct {
	Name      constants.ScopeName
	Reference int
	Expensive bool
}

// Value is the adapter's interpreter-agnostic view of a Lumen value:
// enough to render a DAP Variable and, for compound values, to expand
// children lazily. The concrete facade implementation fills this in
// from *lua.LValue.
type Value struct {
	TypeName string
	Display  string // formatted for display, e.g. "table: 0x...", "42", `"hi"`
	// Identity is the interpreter value's pointer identity, opaque to
	// the adapter. Cycle detection (spec §4.4/§9) does not read it: the
	// facade's Expand closure keeps its own visited set.
	Identity  uintptr
	Compound  bool
	Len       int // number of children, when known without expanding
	Expand    func() ([]NamedValue, error)
	SetByName func(name string, newValue string) error
}

// NamedValue pairs a child's name/index with its Value, used while
// expanding a compound Value.
type NamedValue struct {
	Name  string
	Value Value
}

// VariableScope enumerates the binding spaces a VarRef can point into
// (spec §3 "Variable reference").
type VariableScope int

const (
	ScopeLocalVar VariableScope = iota
	ScopeUpvalueVar
	ScopeGlobalVar
	ScopeRegistryVar
	ScopeWatchVar
	ScopeEvaluatedVar
)

// VarRef is the tagged handle `(epoch, frame_depth, scope, path)` from
// spec §3. path is opaque: it's whatever the VarTable needs to re-walk
// into a compound value on next access (here, just the table slot).
type VarRef struct {
	Epoch      int64
	FrameDepth int
	Scope      VariableScope
	Slot       int
}

// StepContext is live only while Session is in StepPending (spec §3).
type StepContext struct {
	Kind         constants.StepKind
	AnchorDepth  int
	AnchorInterp InterpHandle
}
