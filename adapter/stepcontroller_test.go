package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenlang/dap-adapter/constants"
)

func TestStepInStopsAtAnyDepth(t *testing.T) {
	sc := NewStepController()
	main := fakeInterp{"main"}
	sc.Arm(constants.StepIn, 2, main)

	require.True(t, sc.ShouldStop(main, 3))
	require.True(t, sc.ShouldStop(main, 0))
}

func TestStepOverStopsAtOrAboveAnchor(t *testing.T) {
	sc := NewStepController()
	main := fakeInterp{"main"}
	sc.Arm(constants.StepOver, 2, main)

	require.False(t, sc.ShouldStop(main, 3), "deeper call must not stop a step-over")
	require.True(t, sc.ShouldStop(main, 2))
	require.True(t, sc.ShouldStop(main, 1))
}

func TestStepOutStopsBelowAnchor(t *testing.T) {
	sc := NewStepController()
	main := fakeInterp{"main"}
	sc.Arm(constants.StepOut, 2, main)

	require.False(t, sc.ShouldStop(main, 2))
	require.True(t, sc.ShouldStop(main, 1))
}

func TestStepDoesNotCrossInterpreters(t *testing.T) {
	sc := NewStepController()
	main := fakeInterp{"main"}
	other := fakeInterp{"coro:1"}
	sc.Arm(constants.StepIn, 0, main)

	require.False(t, sc.ShouldStop(other, 0), "a step armed on one interpreter must not fire for events from another")
}

func TestClearDisarms(t *testing.T) {
	sc := NewStepController()
	main := fakeInterp{"main"}
	sc.Arm(constants.StepIn, 0, main)
	require.True(t, sc.Active())
	sc.Clear()
	require.False(t, sc.Active())
	require.False(t, sc.ShouldStop(main, 0))
}
