package adapter

import "github.com/lumenlang/dap-adapter/constants"

// InterpHandle identifies one running interpreter instance (one
// *lua.LState in the concrete facade — the main state or a coroutine).
// It is compared by equality only; the adapter never dereferences it.
type InterpHandle interface {
	// ID is a short stable label for logging, e.g. "main" or "coro:3".
	ID() string
}

// Event is the tuple HookEngine receives on every interpreter event (spec §4.6).
type Event struct {
	Interp InterpHandle
	Kind   constants.EventKind
	Line   int
	// Err is set when Kind == EventError.
	Err error
	// Category classifies an EventError against spec §9's exception
	// filter bitmap. The facade sets it explicitly at the point the
	// error is raised, since only it knows which of its own raise sites
	// fired (see lua_facade's raiseCategorizedError); zero means
	// unclassified.
	Category constants.ExceptionFilter
}

// FrameInfo is what current_frame_info(depth) returns (spec §6).
type FrameInfo struct {
	Source Source
	Line   int
	Name   string
}

// Callable is a compiled, not-yet-invoked expression (spec §6 compile/call).
type Callable interface {
	// Interp is the interpreter this callable must be run against.
	Interp() InterpHandle
}

// Binding is one name bound into a compiled expression's environment.
type Binding struct {
	Name  string
	Value Value
}

// InterpreterFacade is the small surface the adapter core requires
// from whatever embeds the interpreter (spec §6). It is implemented
// by adapter/lua_facade for Lumen/gopher-lua; the core only calls
// through this interface so it never imports gopher-lua directly.
type InterpreterFacade interface {
	// Attach installs the per-event callback; Detach removes it.
	// The facade must hold the callback by a non-owning weak
	// reference in spirit — it calls back into whatever Session
	// passed to Attach without assuming Session outlives the facade.
	Attach(handler func(Event)) error
	Detach() error

	// SetEventMask requests which event kinds fire. Passing 0 disarms
	// everything, satisfying the HookEngine hot-path contract (spec §4.6).
	SetEventMask(mask EventMask) error

	CurrentFrameInfo(interp InterpHandle, depth int) (FrameInfo, error)
	FrameDepth(interp InterpHandle) (int, error)

	FrameLocals(interp InterpHandle, depth int) ([]Binding, error)
	FrameUpvalues(interp InterpHandle, depth int) ([]Binding, error)
	Globals(interp InterpHandle) ([]Binding, error)
	Registry(interp InterpHandle) ([]Binding, error)

	// Compile parses expression as an anonymous top-level callable
	// bound against the given frame's locals/upvalues. Interpreter
	// events are disarmed for the duration of Call to prevent
	// recursive pauses (spec §4.4).
	Compile(interp InterpHandle, expression string, bindings []Binding) (Callable, error)
	Call(c Callable) (Value, error)

	// ExecutableLines is optional: a nil return (not an error) tells
	// BreakpointStore to trust breakpoints as-given (spec §4.2, §6).
	ExecutableLines(source Source) ([]int, error)

	// SetLocal/SetUpvalue back the `setVariable` request.
	SetLocal(interp InterpHandle, depth int, name string, value string) error
	SetUpvalue(interp InterpHandle, depth int, name string, value string) error

	// MainInterp is the top-level interpreter instance, used to seed
	// Session before any frame exists.
	MainInterp() InterpHandle

	// SourceText returns the text of a synthetic (reference-id-backed)
	// source, for the DAP `source` request (spec §3's "reference id").
	SourceText(reference int) (string, error)
}

// EventMask is a bitmask of constants.EventKind requested from SetEventMask.
type EventMask uint8

const (
	MaskCall EventMask = 1 << iota
	MaskReturn
	MaskLine
	MaskError
)

func MaskFor(kinds ...constants.EventKind) EventMask {
	var m EventMask
	for _, k := range kinds {
		switch k {
		case constants.EventCall:
			m |= MaskCall
		case constants.EventReturn:
			m |= MaskReturn
		case constants.EventLine:
			m |= MaskLine
		case constants.EventError:
			m |= MaskError
		}
	}
	return m
}
