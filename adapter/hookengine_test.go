package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenlang/dap-adapter/constants"
)

type hookFakeFacade struct {
	fakeFacade
	depth    int
	condVals map[string]Value
}

func (f *hookFakeFacade) FrameDepth(InterpHandle) (int, error) { return f.depth, nil }
func (f *hookFakeFacade) Compile(_ InterpHandle, expr string, _ []Binding) (Callable, error) {
	return evalFakeCallable{expr}, nil
}
func (f *hookFakeFacade) Call(c Callable) (Value, error) {
	expr := c.(evalFakeCallable).expr
	return f.condVals[expr], nil
}

func newHookEngine(facade *hookFakeFacade) (*HookEngine, *BreakpointStore, *StepController) {
	bps := NewBreakpointStore()
	steps := NewStepController()
	ev := NewEvaluator(facade, NewVarTable())
	return NewHookEngine(bps, steps, ev, facade), bps, steps
}

func TestHookEngineFastPathWhenIdle(t *testing.T) {
	facade := &hookFakeFacade{}
	h, _, _ := newHookEngine(facade)

	d, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventLine, Line: 5}, "a.lum", false)
	require.NoError(t, err)
	require.False(t, d.Stop)
}

func TestHookEngineStopsOnUnconditionalBreakpoint(t *testing.T) {
	facade := &hookFakeFacade{}
	h, bps, _ := newHookEngine(facade)
	_, err := bps.Set(Source{Key: "a.lum"}, []*Breakpoint{{Line: 5}}, nil)
	require.NoError(t, err)

	d, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventLine, Line: 5}, "a.lum", false)
	require.NoError(t, err)
	require.True(t, d.Stop)
	require.Equal(t, constants.StoppedBreakpoint, d.Reason)
}

func TestHookEngineHonorsFalseCondition(t *testing.T) {
	facade := &hookFakeFacade{condVals: map[string]Value{"i==5": {Display: "false"}}}
	h, bps, _ := newHookEngine(facade)
	_, err := bps.Set(Source{Key: "a.lum"}, []*Breakpoint{{Line: 5, Condition: "i==5"}}, nil)
	require.NoError(t, err)

	d, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventLine, Line: 5}, "a.lum", false)
	require.NoError(t, err)
	require.False(t, d.Stop)
}

func TestHookEngineStopsOnTrueCondition(t *testing.T) {
	facade := &hookFakeFacade{condVals: map[string]Value{"i==5": {Display: "true"}}}
	h, bps, _ := newHookEngine(facade)
	_, err := bps.Set(Source{Key: "a.lum"}, []*Breakpoint{{Line: 5, Condition: "i==5"}}, nil)
	require.NoError(t, err)

	d, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventLine, Line: 5}, "a.lum", false)
	require.NoError(t, err)
	require.True(t, d.Stop)
}

func TestHookEngineLogBreakpointNeverStops(t *testing.T) {
	facade := &hookFakeFacade{condVals: map[string]Value{"x": {Display: "7"}}}
	h, bps, _ := newHookEngine(facade)
	_, err := bps.Set(Source{Key: "a.lum"}, []*Breakpoint{{Line: 5, LogMessage: "x is {x}"}}, nil)
	require.NoError(t, err)

	d, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventLine, Line: 5}, "a.lum", false)
	require.NoError(t, err)
	require.False(t, d.Stop)
	require.True(t, d.HasLogOutput)
	require.Equal(t, "x is 7", d.LogOutput)
}

func TestHookEngineStepOverStopsAtAnchorDepth(t *testing.T) {
	facade := &hookFakeFacade{depth: 1}
	h, _, steps := newHookEngine(facade)
	main := fakeInterp{"main"}
	steps.Arm(constants.StepOver, 1, main)

	d, err := h.Handle(Event{Interp: main, Kind: constants.EventLine, Line: 9}, "a.lum", false)
	require.NoError(t, err)
	require.True(t, d.Stop)
	require.Equal(t, constants.StoppedStep, d.Reason)
	require.False(t, steps.Active(), "a satisfied step must disarm")
}

func TestHookEngineBreakpointWinsOverPendingStep(t *testing.T) {
	facade := &hookFakeFacade{depth: 5} // deep enough that the step-over would not fire
	h, bps, steps := newHookEngine(facade)
	_, err := bps.Set(Source{Key: "a.lum"}, []*Breakpoint{{Line: 5}}, nil)
	require.NoError(t, err)
	steps.Arm(constants.StepOver, 1, fakeInterp{"main"})

	d, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventLine, Line: 5}, "a.lum", false)
	require.NoError(t, err)
	require.True(t, d.Stop)
	require.Equal(t, constants.StoppedBreakpoint, d.Reason)
}

func TestHookEngineSkipSuppressesBreakpoint(t *testing.T) {
	facade := &hookFakeFacade{}
	h, bps, _ := newHookEngine(facade)
	_, err := bps.Set(Source{Key: "a.lum"}, []*Breakpoint{{Line: 5}}, nil)
	require.NoError(t, err)

	d, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventLine, Line: 5}, "a.lum", true)
	require.NoError(t, err)
	require.False(t, d.Stop, "a skip-files match must suppress even a hit breakpoint")
}

func TestHookEngineSkipLeavesStepArmed(t *testing.T) {
	facade := &hookFakeFacade{depth: 1}
	h, _, steps := newHookEngine(facade)
	main := fakeInterp{"main"}
	steps.Arm(constants.StepOver, 1, main)

	d, err := h.Handle(Event{Interp: main, Kind: constants.EventLine, Line: 9}, "a.lum", true)
	require.NoError(t, err)
	require.False(t, d.Stop)
	require.True(t, steps.Active(), "a skipped line must not consume a pending step")
}

func TestHookEnginePauseRequestStopsAtNextLine(t *testing.T) {
	facade := &hookFakeFacade{}
	h, _, _ := newHookEngine(facade)
	h.RequestPause()

	d, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventLine, Line: 1}, "a.lum", false)
	require.NoError(t, err)
	require.True(t, d.Stop)
	require.Equal(t, constants.StoppedPause, d.Reason)

	d2, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventLine, Line: 2}, "a.lum", false)
	require.NoError(t, err)
	require.False(t, d2.Stop, "pause is one-shot")
}

func TestHookEngineExceptionFilter(t *testing.T) {
	facade := &hookFakeFacade{}
	h, _, _ := newHookEngine(facade)
	h.SetExceptionFilters(constants.ExceptionUncaught)

	d, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventError, Category: constants.ExceptionUncaught}, "a.lum", false)
	require.NoError(t, err)
	require.True(t, d.Stop)
	require.Equal(t, constants.StoppedException, d.Reason)
}

func TestHookEngineExceptionFilterNotArmedDoesNotStop(t *testing.T) {
	facade := &hookFakeFacade{}
	h, _, _ := newHookEngine(facade)

	d, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventError, Category: constants.ExceptionUncaught}, "a.lum", false)
	require.NoError(t, err)
	require.False(t, d.Stop)
}

func TestHookEngineExceptionCategoriesAreIndependentlyFilterable(t *testing.T) {
	facade := &hookFakeFacade{}
	h, _, _ := newHookEngine(facade)
	h.SetExceptionFilters(constants.ExceptionCaught)

	uncaught, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventError, Category: constants.ExceptionUncaught}, "a.lum", false)
	require.NoError(t, err)
	require.False(t, uncaught.Stop, "only caught is armed, an uncaught-classified event must not match it")

	caught, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventError, Category: constants.ExceptionCaught}, "a.lum", false)
	require.NoError(t, err)
	require.True(t, caught.Stop)
	require.Equal(t, constants.StoppedException, caught.Reason)

	userUnhandled, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventError, Category: constants.ExceptionUserUnhandled}, "a.lum", false)
	require.NoError(t, err)
	require.False(t, userUnhandled.Stop)
}

func TestHookEngineUnclassifiedExceptionDefaultsToUncaught(t *testing.T) {
	facade := &hookFakeFacade{}
	h, _, _ := newHookEngine(facade)
	h.SetExceptionFilters(constants.ExceptionUncaught)

	d, err := h.Handle(Event{Interp: fakeInterp{"main"}, Kind: constants.EventError}, "a.lum", false)
	require.NoError(t, err)
	require.True(t, d.Stop, "a hand-built event with no Category should default to Uncaught")
}
