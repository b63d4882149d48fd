package lua_facade

import (
	"errors"

	lua "github.com/yuin/gopher-lua"

	"github.com/lumenlang/dap-adapter/constants"
)

// installPcallTrap overrides pcall and xpcall so a script-level catch
// becomes a real, observable EventError instead of leaving "caught" and
// "user-unhandled" permanently unreachable: raiseError only ever fires
// for an error that escaped the whole program (see hooks.go), so
// without this override there is nothing for those two filters to ever
// match. pcall's ordinary catch classifies as Caught; xpcall's catch
// classifies as UserUnhandled, since installing a message handler is
// the idiom surrounding tooling uses to observe an error the script
// itself is about to recover from anyway.
func (f *Facade) installPcallTrap() {
	f.L.SetGlobal("pcall", f.L.NewFunction(f.trapPcall(f.L.GetGlobal("pcall"), constants.ExceptionCaught)))
	f.L.SetGlobal("xpcall", f.L.NewFunction(f.trapPcall(f.L.GetGlobal("xpcall"), constants.ExceptionUserUnhandled)))
}

// trapPcall wraps orig (the real pcall or xpcall) so it still runs
// exactly as gopher-lua implements it, then inspects the first result
// for the protected call's own ok/fail boolean and raises category for
// a failure before returning the results untouched.
func (f *Facade) trapPcall(orig lua.LValue, category constants.ExceptionFilter) func(*lua.LState) int {
	return func(L *lua.LState) int {
		n := L.GetTop()
		L.Push(orig)
		for i := 1; i <= n; i++ {
			L.Push(L.Get(i))
		}
		L.Call(n, lua.MultRet)
		ret := L.GetTop() - n

		if ret > 0 && L.Get(n+1) == lua.LFalse {
			msg := "error"
			if ret > 1 {
				msg = L.ToStringMeta(L.Get(n + 2)).String()
			}
			f.raiseCategorizedError(errors.New(msg), category)
		}
		return ret
	}
}
