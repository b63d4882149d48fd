package lua_facade

import (
	"fmt"
	"reflect"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/lumenlang/dap-adapter/adapter"
)

// CurrentFrameInfo implements adapter.InterpreterFacade, driven by the
// standard debug library's getinfo, the same Lua-level call
// debug.sethook's own callback would use to describe a frame.
func (f *Facade) CurrentFrameInfo(h adapter.InterpHandle, depth int) (adapter.FrameInfo, error) {
	// debug.getinfo's level counts from the function calling getinfo
	// itself; +1 accounts for the Go callDebugFn frame, +1 more for the
	// hook function gopher-lua pushes while it is running.
	vals, err := f.callDebugFn("getinfo", lua.LNumber(depth+2), lua.LString("Sln"))
	if err != nil || len(vals) == 0 {
		return adapter.FrameInfo{}, fmt.Errorf("no frame at depth %d", depth)
	}
	tbl, ok := vals[0].(*lua.LTable)
	if !ok {
		return adapter.FrameInfo{}, fmt.Errorf("no frame at depth %d", depth)
	}
	source := f.L.GetField(tbl, "source").String()
	line := int(lua.LVAsNumber(f.L.GetField(tbl, "currentline")))
	name := f.L.GetField(tbl, "name").String()
	if name == "" {
		name = "?"
	}
	return adapter.FrameInfo{
		Source: adapter.Source{Key: adapter.SourceKey(source), Path: source, Name: name},
		Line:   line,
		Name:   name,
	}, nil
}

// FrameDepth implements adapter.InterpreterFacade by walking getinfo
// levels until one comes back empty.
func (f *Facade) FrameDepth(h adapter.InterpHandle) (int, error) {
	depth := 0
	for {
		vals, err := f.callDebugFn("getinfo", lua.LNumber(depth+2), lua.LString("S"))
		if err != nil || len(vals) == 0 || vals[0] == lua.LNil {
			return depth, nil
		}
		depth++
		if depth > 10_000 {
			return depth, fmt.Errorf("frame walk did not terminate")
		}
	}
}

// FrameLocals implements adapter.InterpreterFacade using
// debug.getlocal, which gopher-lua's debug library exposes exactly as
// PUC-Lua's: repeated calls with increasing index until it returns nil.
func (f *Facade) FrameLocals(h adapter.InterpHandle, depth int) ([]adapter.Binding, error) {
	var out []adapter.Binding
	for i := 1; ; i++ {
		vals, err := f.callDebugFn("getlocal", lua.LNumber(depth+2), lua.LNumber(i))
		if err != nil || len(vals) == 0 || vals[0] == lua.LNil {
			return out, nil
		}
		name := vals[0].String()
		var v lua.LValue = lua.LNil
		if len(vals) > 1 {
			v = vals[1]
		}
		out = append(out, adapter.Binding{Name: name, Value: f.toValue(v)})
	}
}

// FrameUpvalues implements adapter.InterpreterFacade by reading the
// function object at depth via getinfo("f") and walking its upvalues.
func (f *Facade) FrameUpvalues(h adapter.InterpHandle, depth int) ([]adapter.Binding, error) {
	vals, err := f.callDebugFn("getinfo", lua.LNumber(depth+2), lua.LString("f"))
	if err != nil || len(vals) == 0 {
		return nil, nil
	}
	tbl, ok := vals[0].(*lua.LTable)
	if !ok {
		return nil, nil
	}
	fnVal := f.L.GetField(tbl, "func")
	fn, ok := fnVal.(*lua.LFunction)
	if !ok {
		return nil, nil
	}
	var out []adapter.Binding
	for i := 1; ; i++ {
		name, v := f.L.GetUpvalue(fn, i)
		if name == "" {
			break
		}
		out = append(out, adapter.Binding{Name: name, Value: f.toValue(v)})
	}
	return out, nil
}

// Globals implements adapter.InterpreterFacade.
func (f *Facade) Globals(h adapter.InterpHandle) ([]adapter.Binding, error) {
	globals := f.L.Get(lua.GlobalsIndex).(*lua.LTable)
	var out []adapter.Binding
	globals.ForEach(func(k, v lua.LValue) {
		out = append(out, adapter.Binding{Name: k.String(), Value: f.toValue(v)})
	})
	return out, nil
}

// Registry implements adapter.InterpreterFacade, exposing the
// debug library's own registry table (debug.getregistry()) for
// advanced inspection — a rarely used scope, but one the DAP scopes
// model reserves room for (spec §3).
func (f *Facade) Registry(h adapter.InterpHandle) ([]adapter.Binding, error) {
	vals, err := f.callDebugFn("getregistry")
	if err != nil || len(vals) == 0 {
		return nil, nil
	}
	tbl, ok := vals[0].(*lua.LTable)
	if !ok {
		return nil, nil
	}
	var out []adapter.Binding
	tbl.ForEach(func(k, v lua.LValue) {
		out = append(out, adapter.Binding{Name: k.String(), Value: f.toValue(v)})
	})
	return out, nil
}

// SetLocal implements adapter.InterpreterFacade via debug.setlocal,
// scanning getlocal's index space for a matching name first since DAP
// addresses locals by name, not by slot index.
func (f *Facade) SetLocal(h adapter.InterpHandle, depth int, name string, value string) error {
	for i := 1; ; i++ {
		vals, err := f.callDebugFn("getlocal", lua.LNumber(depth+2), lua.LNumber(i))
		if err != nil || len(vals) == 0 || vals[0] == lua.LNil {
			return fmt.Errorf("no local named %q in this frame", name)
		}
		if vals[0].String() == name {
			lv, err := f.parseLiteral(value)
			if err != nil {
				return err
			}
			_, err = f.callDebugFn("setlocal", lua.LNumber(depth+2), lua.LNumber(i), lv)
			return err
		}
	}
}

// SetUpvalue implements adapter.InterpreterFacade.
func (f *Facade) SetUpvalue(h adapter.InterpHandle, depth int, name string, value string) error {
	vals, err := f.callDebugFn("getinfo", lua.LNumber(depth+2), lua.LString("f"))
	if err != nil || len(vals) == 0 {
		return fmt.Errorf("no frame at depth %d", depth)
	}
	tbl, ok := vals[0].(*lua.LTable)
	if !ok {
		return fmt.Errorf("no frame at depth %d", depth)
	}
	fn, ok := f.L.GetField(tbl, "func").(*lua.LFunction)
	if !ok {
		return fmt.Errorf("no frame at depth %d", depth)
	}
	for i := 1; ; i++ {
		n, _ := f.L.GetUpvalue(fn, i)
		if n == "" {
			return fmt.Errorf("no upvalue named %q in this frame", name)
		}
		if n == name {
			lv, err := f.parseLiteral(value)
			if err != nil {
				return err
			}
			f.L.SetUpvalue(fn, i, lv)
			return nil
		}
	}
}

// parseLiteral accepts the small literal grammar `setVariable` needs:
// numbers, booleans, nil, and double-quoted strings; anything else is
// passed through as a bare Lua expression compiled on the fly.
func (f *Facade) parseLiteral(value string) (lua.LValue, error) {
	switch value {
	case "nil":
		return lua.LNil, nil
	case "true":
		return lua.LTrue, nil
	case "false":
		return lua.LFalse, nil
	}
	if n, err := strconv.ParseFloat(value, 64); err == nil {
		return lua.LNumber(n), nil
	}
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		return lua.LString(value[1 : len(value)-1]), nil
	}
	fn, err := f.L.LoadString("return " + value)
	if err != nil {
		return nil, err
	}
	f.L.Push(fn)
	if err := f.L.PCall(0, 1, nil); err != nil {
		return nil, err
	}
	v := f.L.Get(-1)
	f.L.Pop(1)
	return v, nil
}

// toValue renders a raw lua.LValue into the adapter's interpreter-
// agnostic Value, wiring Expand for tables and SetByName for table
// fields (locals/upvalues are set through SetLocal/SetUpvalue instead,
// never through Value.SetByName).
func (f *Facade) toValue(v lua.LValue) adapter.Value {
	switch tv := v.(type) {
	case *lua.LNilType:
		return adapter.Value{TypeName: "nil", Display: "nil"}
	case lua.LBool:
		return adapter.Value{TypeName: "boolean", Display: tv.String()}
	case lua.LNumber:
		return adapter.Value{TypeName: "number", Display: tv.String()}
	case lua.LString:
		return adapter.Value{TypeName: "string", Display: strconv.Quote(string(tv))}
	case *lua.LFunction:
		return adapter.Value{TypeName: "function", Display: fmt.Sprintf("function: %p", tv)}
	case *lua.LUserData:
		return adapter.Value{TypeName: "userdata", Display: fmt.Sprintf("userdata: %p", tv)}
	case *lua.LTable:
		return f.tableValue(tv)
	default:
		return adapter.Value{TypeName: v.Type().String(), Display: v.String()}
	}
}

// tableValue builds a compound Value for a Lua table, cycle-safe: the
// per-expansion closure below carries its own visited set keyed by
// table pointer identity, so a self-referential table's children stop
// recursing into themselves instead of hanging the `variables` request
// (spec §4.4/§9's circular-reference note).
func (f *Facade) tableValue(tbl *lua.LTable) adapter.Value {
	identity := reflect.ValueOf(tbl).Pointer()
	return adapter.Value{
		TypeName: "table",
		Display:  fmt.Sprintf("table: 0x%x", identity),
		Identity: identity,
		Compound: true,
		Len:      tbl.Len(),
		Expand:   func() ([]adapter.NamedValue, error) { return f.expandTable(tbl, map[uintptr]bool{identity: true}) },
		SetByName: func(name string, newValue string) error {
			lv, err := f.parseLiteral(newValue)
			if err != nil {
				return err
			}
			f.L.SetField(tbl, name, lv)
			return nil
		},
	}
}

func (f *Facade) expandTable(tbl *lua.LTable, visited map[uintptr]bool) ([]adapter.NamedValue, error) {
	var out []adapter.NamedValue
	tbl.ForEach(func(k, v lua.LValue) {
		child := f.toValue(v)
		if t, ok := v.(*lua.LTable); ok {
			id := reflect.ValueOf(t).Pointer()
			if visited[id] {
				child = adapter.Value{TypeName: "table", Display: fmt.Sprintf("table: 0x%x (circular)", id)}
			}
		}
		out = append(out, adapter.NamedValue{Name: k.String(), Value: child})
	})
	return out, nil
}
