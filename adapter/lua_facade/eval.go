package lua_facade

import (
	"fmt"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/lumenlang/dap-adapter/adapter"
)

// callable is the gopher-lua-backed adapter.Callable: a compiled
// top-level function already wrapped with the binding values it was
// compiled against (spec §4.4's "bound against the given frame's
// locals/upvalues").
type callable struct {
	interp *interp
	fn     *lua.LFunction
}

func (c *callable) Interp() adapter.InterpHandle { return c.interp }

// Compile implements adapter.InterpreterFacade. It wraps expression in
// a `local name = ...; return <expr>` preamble binding every supplied
// name, then compiles it with LoadString; a syntax error surfaces as
// the compile error Evaluator.Evaluate reports as EvalCompileError.
func (f *Facade) Compile(h adapter.InterpHandle, expression string, bindings []adapter.Binding) (adapter.Callable, error) {
	i := asInterp(h)
	if i == nil {
		i = f.main
	}

	preamble := ""
	args := make([]lua.LValue, 0, len(bindings))
	names := make([]string, 0, len(bindings))
	for _, b := range bindings {
		names = append(names, b.Name)
		args = append(args, f.valueToLua(b.Value))
	}
	if len(names) > 0 {
		preamble = "local " + joinComma(names) + " = ...\n"
	}
	chunk := preamble + "return " + expression

	fn, err := f.L.LoadString(chunk)
	if err != nil {
		return nil, err
	}
	return &callable{interp: i, fn: wrapWithArgs(f.L, fn, args)}, nil
}

// wrapWithArgs closes over args so Call can invoke the compiled
// function with exactly the binding values Compile captured, without
// the adapter.Callable interface needing to carry arguments itself.
func wrapWithArgs(L *lua.LState, fn *lua.LFunction, args []lua.LValue) *lua.LFunction {
	return L.NewFunction(func(L *lua.LState) int {
		L.Push(fn)
		for _, a := range args {
			L.Push(a)
		}
		L.Call(len(args), 1)
		return 1
	})
}

// Call implements adapter.InterpreterFacade. Interpreter events are
// masked out for the duration to prevent the evaluated expression from
// recursively triggering a pause (spec §4.4).
func (f *Facade) Call(c adapter.Callable) (adapter.Value, error) {
	lc, ok := c.(*callable)
	if !ok {
		return adapter.Value{}, fmt.Errorf("callable not produced by this facade")
	}

	f.mu.Lock()
	savedMask := f.mask
	f.mask = 0
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.mask = savedMask
		f.mu.Unlock()
	}()

	top := f.L.GetTop()
	f.L.Push(lc.fn)
	if err := f.L.PCall(0, 1, nil); err != nil {
		return adapter.Value{}, err
	}
	if f.L.GetTop() <= top {
		return adapter.Value{}, nil
	}
	v := f.L.Get(-1)
	f.L.Pop(1)
	return f.toValue(v), nil
}

func joinComma(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

// valueToLua rebuilds a lua.LValue from an adapter.Value's display
// form for re-injection as a compiled callable's binding. Scalars
// round-trip exactly; a compound value (table, function) binds as its
// display string rather than the live object, since adapter.Value is
// deliberately interpreter-agnostic and carries no channel back to the
// concrete *lua.LTable/*lua.LFunction it was built from. Evaluating an
// expression that expects to mutate a bound table in place is a known
// limitation, not something spec §4.4 requires.
func (f *Facade) valueToLua(v adapter.Value) lua.LValue {
	switch v.TypeName {
	case "nil":
		return lua.LNil
	case "boolean":
		return lua.LBool(v.Display == "true")
	case "number":
		var n float64
		fmt.Sscanf(v.Display, "%g", &n)
		return lua.LNumber(n)
	case "string":
		s, err := strconv.Unquote(v.Display)
		if err != nil {
			s = v.Display
		}
		return lua.LString(s)
	default:
		return lua.LString(v.Display)
	}
}
