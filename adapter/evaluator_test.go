package adapter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenlang/dap-adapter/constants"
)

type evalFakeCallable struct{ expr string }

func (evalFakeCallable) Interp() InterpHandle { return fakeInterp{"main"} }

type evalFakeFacade struct {
	fakeFacade
	locals, upvalues, globals []Binding
	compileErr                error
	callErr                   error
	result                    Value
}

func (f *evalFakeFacade) FrameLocals(InterpHandle, int) ([]Binding, error)   { return f.locals, nil }
func (f *evalFakeFacade) FrameUpvalues(InterpHandle, int) ([]Binding, error) { return f.upvalues, nil }
func (f *evalFakeFacade) Globals(InterpHandle) ([]Binding, error)            { return f.globals, nil }
func (f *evalFakeFacade) Compile(_ InterpHandle, expr string, _ []Binding) (Callable, error) {
	if f.compileErr != nil {
		return nil, f.compileErr
	}
	return evalFakeCallable{expr}, nil
}
func (f *evalFakeFacade) Call(Callable) (Value, error) {
	if f.callErr != nil {
		return Value{}, f.callErr
	}
	return f.result, nil
}

func TestEvaluateScalarHasNoRef(t *testing.T) {
	facade := &evalFakeFacade{result: Value{TypeName: "number", Display: "42"}}
	ev := NewEvaluator(facade, NewVarTable())

	res, err := ev.Evaluate(fakeInterp{"main"}, 0, "6*7", constants.EvalRepl)
	require.NoError(t, err)
	require.Equal(t, "42", res.Display)
	require.False(t, res.HasRef)
}

func TestEvaluateCompoundIssuesRef(t *testing.T) {
	facade := &evalFakeFacade{result: Value{TypeName: "table", Display: "table: 0x1", Compound: true}}
	ev := NewEvaluator(facade, NewVarTable())

	res, err := ev.Evaluate(fakeInterp{"main"}, 0, "t", constants.EvalRepl)
	require.NoError(t, err)
	require.True(t, res.HasRef)
	require.Equal(t, ev.varTable.CurrentEpoch(), res.Ref.Epoch)
}

func TestEvaluateCompileErrorIsReported(t *testing.T) {
	facade := &evalFakeFacade{compileErr: errors.New("unexpected symbol")}
	ev := NewEvaluator(facade, NewVarTable())

	_, err := ev.Evaluate(fakeInterp{"main"}, 0, "1+", constants.EvalRepl)
	require.Error(t, err)
}

func TestEvaluateRuntimeErrorIsReported(t *testing.T) {
	facade := &evalFakeFacade{callErr: errors.New("attempt to call a nil value")}
	ev := NewEvaluator(facade, NewVarTable())

	_, err := ev.Evaluate(fakeInterp{"main"}, 0, "nope()", constants.EvalRepl)
	require.Error(t, err)
}

func TestEvaluateHoverTruncatesLongDisplay(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	facade := &evalFakeFacade{result: Value{TypeName: "string", Display: string(long)}}
	ev := NewEvaluator(facade, NewVarTable())

	res, err := ev.Evaluate(fakeInterp{"main"}, 0, "s", constants.EvalHover)
	require.NoError(t, err)
	require.Less(t, len(res.Display), 500)
}

func TestExpandChildrenWalksCompoundValue(t *testing.T) {
	vt := NewVarTable()
	ref := vt.Issue(0, ScopeEvaluatedVar, Value{
		Compound: true,
		Expand: func() ([]NamedValue, error) {
			return []NamedValue{{Name: "x", Value: Value{TypeName: "number", Display: "1"}}}, nil
		},
	})
	ev := NewEvaluator(&evalFakeFacade{}, vt)

	children, err := ev.ExpandChildren(ref)
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, "x", children[0].Name)
}

func TestSetVariableRoutesByScope(t *testing.T) {
	facade := &evalFakeFacade{}
	ev := NewEvaluator(facade, NewVarTable())
	err := ev.SetVariable(fakeInterp{"main"}, VarRef{Scope: ScopeLocalVar, FrameDepth: 0}, "x", "5")
	require.NoError(t, err)
}
