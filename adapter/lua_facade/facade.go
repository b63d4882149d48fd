// Package lua_facade implements adapter.InterpreterFacade against
// gopher-lua. It is the only package in this module that imports
// github.com/yuin/gopher-lua directly; everything upstream of it talks
// to the adapter's interpreter-agnostic types.
package lua_facade

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/lumenlang/dap-adapter/adapter"
)

// interp wraps an *lua.LState as an adapter.InterpHandle. Lumen has no
// coroutines in scope for this adapter, so every session has exactly
// one interp, the main LState.
type interp struct {
	id string
	L  *lua.LState
}

func (i *interp) ID() string { return i.id }

// Facade is the gopher-lua-backed InterpreterFacade. It owns the
// single LState this debug session runs, the standard `debug` library
// table gopher-lua implements (lua.OpenDebug, the same library
// dshills-keystorm's sandbox opens under its "unsafe" capability), and
// the bookkeeping the adapter core needs layered on top of it:
// reference-id and by-name source text for chunks loaded through
// LoadMain, and the hook callback wiring.
type Facade struct {
	mu sync.Mutex

	L        *lua.LState
	debugTbl *lua.LTable
	main     *interp
	loaded   *lua.LFunction

	handler  func(adapter.Event)
	mask     adapter.EventMask
	outputFn func(string)

	// byRef/byName both point at the same registered source text: byRef
	// backs the `source` request's reference-id lookup, byName backs
	// ExecutableLines' lookup by chunk name/Source.Key.
	byRef   map[int]string
	byName  map[string]string
	nextRef int
}

// New creates a Facade around a freshly opened LState with the
// standard libraries plus debug (required for sethook/getinfo-based
// stepping) loaded.
func New() *Facade {
	L := lua.NewState()
	lua.OpenDebug(L)

	f := &Facade{
		L:       L,
		byRef:   map[int]string{},
		byName:  map[string]string{},
		nextRef: 1,
	}
	f.debugTbl = L.GetGlobal("debug").(*lua.LTable)
	f.main = &interp{id: "main", L: L}
	f.installConsole()
	f.installPcallTrap()
	return f
}

// LoadMain compiles and queues src as the program this session will
// run once Attach + configurationDone have armed the hooks. The
// actual run happens on Run, called from the server's own goroutine so
// the LState's blocking hook callback (Session.idleLoop, running
// underneath it) never shares a goroutine with request handling.
func (f *Facade) LoadMain(chunkName, src string) (*lua.LFunction, error) {
	fn, err := f.L.LoadString(src)
	if err != nil {
		return nil, err
	}
	f.registerSource(chunkName, src)
	return fn, nil
}

// Run invokes fn (as returned by LoadMain) to completion. It is meant
// to be called on its own goroutine: execution blocks inside whatever
// hook callback is paused in Session.idleLoop for as long as the
// session stays Stopped.
func (f *Facade) Run(fn *lua.LFunction) error {
	err := f.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
	if err != nil {
		f.raiseError(err)
	}
	return err
}

// Load compiles and stores src as the program this session will run
// once Run is asked to start it. It exists alongside LoadMain so a
// caller outside this package (the root server, wiring Session's
// configurationDone to program start) never has to import gopher-lua
// itself just to hold onto the compiled chunk.
func (f *Facade) Load(chunkName, src string) error {
	fn, err := f.LoadMain(chunkName, src)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.loaded = fn
	f.mu.Unlock()
	return nil
}

// RunLoaded runs whatever Load last compiled. Meant to be called on
// its own goroutine, same as Run.
func (f *Facade) RunLoaded() error {
	f.mu.Lock()
	fn := f.loaded
	f.mu.Unlock()
	if fn == nil {
		return fmt.Errorf("no program loaded")
	}
	return f.Run(fn)
}

func (f *Facade) registerSource(name, text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := f.nextRef
	f.nextRef++
	f.byRef[ref] = text
	f.byName[name] = text
	return ref
}

// MainInterp implements adapter.InterpreterFacade.
func (f *Facade) MainInterp() adapter.InterpHandle { return f.main }

// SourceText implements adapter.InterpreterFacade.
func (f *Facade) SourceText(reference int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.byRef[reference]
	if !ok {
		return "", fmt.Errorf("no source registered for reference %d", reference)
	}
	return text, nil
}

// textByName looks up a registered chunk's source by the name it was
// loaded under, for ExecutableLines' on-disk-free lookup path.
func (f *Facade) textByName(name string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.byName[name]
	return text, ok
}

// callDebugFn calls debug.<name>(args...) and returns every value it
// pushed, the same way the Lua-level debug library is normally driven
// from Go in a gopher-lua host.
func (f *Facade) callDebugFn(name string, args ...lua.LValue) ([]lua.LValue, error) {
	fn := f.L.GetField(f.debugTbl, name)
	if fn == lua.LNil {
		return nil, fmt.Errorf("debug.%s is not available", name)
	}
	top := f.L.GetTop()
	f.L.Push(fn)
	for _, a := range args {
		f.L.Push(a)
	}
	if err := f.L.PCall(len(args), lua.MultRet, nil); err != nil {
		return nil, err
	}
	n := f.L.GetTop() - top
	out := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		out[i] = f.L.Get(top + i + 1)
	}
	f.L.Pop(n)
	return out, nil
}

func asInterp(h adapter.InterpHandle) *interp {
	if i, ok := h.(*interp); ok {
		return i
	}
	return nil
}
