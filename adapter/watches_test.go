package adapter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type watchFakeFacade struct {
	fakeFacade
	byExpr map[string]Value
	errFor map[string]error
}

func (f *watchFakeFacade) Compile(_ InterpHandle, expr string, _ []Binding) (Callable, error) {
	if err, ok := f.errFor[expr]; ok {
		return nil, err
	}
	return evalFakeCallable{expr}, nil
}

func (f *watchFakeFacade) Call(c Callable) (Value, error) {
	expr := c.(evalFakeCallable).expr
	return f.byExpr[expr], nil
}

func TestWatchesAddRemove(t *testing.T) {
	w := NewWatches()
	id1 := w.Add("a")
	id2 := w.Add("b")
	require.Len(t, w.All(), 2)

	require.True(t, w.Remove(id1))
	require.False(t, w.Remove(id1), "removing twice should be a no-op")
	require.Len(t, w.All(), 1)
	require.Equal(t, id2, w.All()[0].ID)
}

func TestRefreshIsolatesFailures(t *testing.T) {
	w := NewWatches()
	w.Add("ok")
	w.Add("bad")
	facade := &watchFakeFacade{
		byExpr: map[string]Value{"ok": {TypeName: "number", Display: "1"}},
		errFor: map[string]error{"bad": errors.New("no such global")},
	}
	ev := NewEvaluator(facade, NewVarTable())

	results := Refresh(w, ev, fakeInterp{"main"}, 0, 1)
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.Equal(t, "1", results[0].Display)
	require.Error(t, results[1].Err)
}

func TestEvaluateWatchCachesWithinAnEpoch(t *testing.T) {
	facade := &watchFakeFacade{byExpr: map[string]Value{"x": {TypeName: "number", Display: "1"}}}
	ev := NewEvaluator(facade, NewVarTable())

	first, err := ev.EvaluateWatch(fakeInterp{"main"}, 0, 7, "x")
	require.NoError(t, err)
	require.Equal(t, "1", first.Display)

	facade.byExpr["x"] = Value{TypeName: "number", Display: "2"}
	second, err := ev.EvaluateWatch(fakeInterp{"main"}, 0, 7, "x")
	require.NoError(t, err)
	require.Equal(t, "1", second.Display, "same expression/frame/epoch must hit the cache")

	third, err := ev.EvaluateWatch(fakeInterp{"main"}, 0, 8, "x")
	require.NoError(t, err)
	require.Equal(t, "2", third.Display, "a new epoch must bypass the stale cache entry")
}
