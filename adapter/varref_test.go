package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarTableStaleAfterReset(t *testing.T) {
	vt := NewVarTable()
	ref := vt.Issue(0, ScopeLocalVar, Value{Display: "1"})

	_, err := vt.Resolve(ref)
	require.NoError(t, err)

	vt.Reset()
	_, err = vt.Resolve(ref)
	require.Error(t, err)
}

func TestFrameTableEpochAdvances(t *testing.T) {
	ft := NewFrameTable()
	f1 := ft.Issue(StackFrame{Depth: 0, Line: 3})
	require.Equal(t, 1, f1.Ref)

	_, err := ft.Resolve(f1.Ref, f1.Epoch)
	require.NoError(t, err)

	ft.Reset()
	_, err = ft.Resolve(f1.Ref, f1.Epoch)
	require.Error(t, err, "frame refs from a prior epoch must be stale")

	f2 := ft.Issue(StackFrame{Depth: 0, Line: 5})
	require.Equal(t, 1, f2.Ref, "slot numbering restarts after Reset")
	require.NotEqual(t, f1.Epoch, f2.Epoch)
}
