package lua_facade

import (
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// installConsole overrides print and io.write so program output is
// captured and forwarded to whatever OnOutput handler the root server
// registers, instead of going to this process's own stdout. This is
// the facade's stand-in for the teacher's PTY-backed child process
// output stream (see the dropped creack/pty dependency in DESIGN.md):
// Lumen runs in-process, there is no child to allocate a PTY for, and
// gopher-lua gives a clean override point at the same two call sites a
// Lumen script would otherwise use.
func (f *Facade) installConsole() {
	f.L.SetGlobal("print", f.L.NewFunction(f.luaPrint))

	ioTbl, ok := f.L.GetGlobal("io").(*lua.LTable)
	if !ok {
		return
	}
	f.L.SetField(ioTbl, "write", f.L.NewFunction(f.luaWrite))
}

func (f *Facade) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	f.writeOutput(strings.Join(parts, "\t") + "\n")
	return 0
}

func (f *Facade) luaWrite(L *lua.LState) int {
	n := L.GetTop()
	for i := 1; i <= n; i++ {
		f.writeOutput(L.ToStringMeta(L.Get(i)).String())
	}
	L.Push(L.Get(1))
	return 1
}

// OnOutput registers the callback the root server wires into an
// `output` DAP event with category "stdout" (spec §3). It is not part
// of adapter.InterpreterFacade since output forwarding is orthogonal
// to execution control; the root server holds the concrete *Facade
// alongside the adapter.Session it drives and wires both independently.
func (f *Facade) OnOutput(fn func(string)) {
	f.mu.Lock()
	f.outputFn = fn
	f.mu.Unlock()
}

func (f *Facade) writeOutput(s string) {
	f.mu.Lock()
	fn := f.outputFn
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
