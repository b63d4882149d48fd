package lua_facade

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/lumenlang/dap-adapter/adapter"
	"github.com/lumenlang/dap-adapter/constants"
)

// Attach installs Facade's hook callback as Lua's debug.sethook
// handler. It fires for every call/return/line event regardless of
// mask; SetEventMask narrows which events the callback actually
// forwards, rather than reinstalling the hook, so toggling the mask
// never touches the interpreter's own call stack.
func (f *Facade) Attach(handler func(adapter.Event)) error {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()

	hookFn := f.L.NewFunction(f.onHook)
	_, err := f.callDebugFn("sethook", hookFn, lua.LString("crl"), lua.LNumber(0))
	return err
}

// Detach removes the hook and clears the handler.
func (f *Facade) Detach() error {
	f.mu.Lock()
	f.handler = nil
	f.mu.Unlock()
	_, err := f.callDebugFn("sethook")
	return err
}

// SetEventMask implements adapter.InterpreterFacade.
func (f *Facade) SetEventMask(mask adapter.EventMask) error {
	f.mu.Lock()
	f.mask = mask
	f.mu.Unlock()
	return nil
}

func (f *Facade) armedFor(kind constants.EventKind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mask&adapter.MaskFor(kind) != 0
}

// onHook is the Go function registered as the Lua debug hook. It runs
// synchronously on the interpreter's own goroutine: when it calls into
// the session's handler and that handler decides to stop, the call
// underneath this function (Session.idleLoop) blocks the interpreter
// right here until a resume request arrives on another goroutine.
func (f *Facade) onHook(L *lua.LState) int {
	event := L.CheckString(1)

	var kind constants.EventKind
	line := 0
	switch event {
	case "call", "tail call":
		kind = constants.EventCall
	case "return":
		kind = constants.EventReturn
	case "line":
		kind = constants.EventLine
		line = L.CheckInt(2)
	default:
		return 0
	}

	if !f.armedFor(kind) {
		return 0
	}

	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler == nil {
		return 0
	}

	handler(adapter.Event{Interp: f.main, Kind: kind, Line: line})
	return 0
}

// raiseError is called from Run when the top-level chunk returns an
// error, since gopher-lua's debug hook has no "error" event of its own
// (spec §4.6 only gets call, return, line events from the VM; error
// reporting is layered on top by whoever drives Run). Run's CallByParam
// runs with Protect: true as the one and only boundary between here and
// the script, so an error only ever reaches this point when nothing
// inside the script caught it with its own pcall/xpcall first — by
// construction this is always the Uncaught category, never
// UserUnhandled (see pcalltrap.go for the two categories a script-level
// catch can produce instead).
func (f *Facade) raiseError(err error) {
	f.raiseCategorizedError(err, constants.ExceptionUncaught)
}

// raiseCategorizedError is the shared raise path behind raiseError and
// pcalltrap.go's wrapped pcall/xpcall: it forwards an EventError with an
// explicit category rather than letting HookEngine guess one.
func (f *Facade) raiseCategorizedError(err error, category constants.ExceptionFilter) {
	f.mu.Lock()
	handler := f.handler
	armed := f.mask&adapter.MaskFor(constants.EventError) != 0
	f.mu.Unlock()
	if handler == nil || !armed {
		return
	}
	handler(adapter.Event{Interp: f.main, Kind: constants.EventError, Err: err, Category: category})
}
