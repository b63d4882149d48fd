package adapter

import (
	"sync"

	"github.com/lumenlang/dap-adapter/constants"
)

// StepController tracks the single in-flight step request across call
// depth transitions (spec §4.5). It is modeled as a tagged variant —
// either "no step pending" (ctx == nil) or a fully specified
// StepContext — rather than a loose flag-plus-integer pair, so an
// invalid combination (e.g. a depth with no kind) is unrepresentable,
// per spec §9's design note. This generalizes the stepDepth/stepMode
// pair used by the retrieved goja Debugger (StepOver/StepInto/StepOut
// each stash a stepDepth alongside a stepMode) into one struct.
type StepController struct {
	mu  sync.Mutex
	ctx *StepContext
}

func NewStepController() *StepController {
	return &StepController{}
}

// Arm records a new step request, replacing any previous one.
func (s *StepController) Arm(kind constants.StepKind, anchorDepth int, anchorInterp InterpHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = &StepContext{Kind: kind, AnchorDepth: anchorDepth, AnchorInterp: anchorInterp}
}

// Clear disarms any pending step, e.g. on continue or after a step stop.
func (s *StepController) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = nil
}

// Active reports whether a step is currently pending.
func (s *StepController) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

// Snapshot returns a copy of the current step context, if any.
func (s *StepController) Snapshot() (StepContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return StepContext{}, false
	}
	return *s.ctx, true
}

// ShouldStop decides, for a Line or Return event at currentDepth on interp,
// whether the pending step is satisfied (spec §4.5's decision table).
// Events from an interpreter other than the step's anchor behave as
// Running — ShouldStop returns false without consuming the step.
func (s *StepController) ShouldStop(interp InterpHandle, currentDepth int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return false
	}
	if s.ctx.AnchorInterp != nil && interp != s.ctx.AnchorInterp {
		return false
	}
	switch s.ctx.Kind {
	case constants.StepIn:
		return true
	case constants.StepOver:
		return currentDepth <= s.ctx.AnchorDepth
	case constants.StepOut:
		return currentDepth < s.ctx.AnchorDepth
	default:
		return false
	}
}
