package adapter

import (
	"strings"
	"sync/atomic"

	"github.com/lumenlang/dap-adapter/constants"
)

// Decision is what HookEngine hands back to the caller (Session) for
// one interpreter event: either "keep running" (the zero value) or a
// reason to enter Stopped, plus an optional log-message side effect
// that never stops anything.
type Decision struct {
	Stop   bool
	Reason constants.StoppedReason

	// LogOutput is set when a log-message breakpoint fired; the caller
	// emits it as an `output` event and Stop is always false for these.
	LogOutput    string
	HasLogOutput bool
}

// HookEngine is the per-event decision engine (spec §4.6). Its hot
// path — the common case where nothing is armed — must cost a handful
// of boolean reads: no heap allocation, and the only locks touched are
// the cheap, uncontended RWMutex reads already inside HasAny/Active,
// never HookEngine's own bookkeeping.
type HookEngine struct {
	breakpoints *BreakpointStore
	steps       *StepController
	evaluator   *Evaluator
	facade      InterpreterFacade

	exceptionMask atomic.Uint32 // constants.ExceptionFilter, widened for atomic.Uint32
	pausePending  atomic.Bool
}

func NewHookEngine(bps *BreakpointStore, steps *StepController, ev *Evaluator, facade InterpreterFacade) *HookEngine {
	return &HookEngine{breakpoints: bps, steps: steps, evaluator: ev, facade: facade}
}

// SetExceptionFilters replaces the armed exception-filter bitmap
// (spec §9's bitmap note: decisions are a single mask-AND).
func (h *HookEngine) SetExceptionFilters(mask constants.ExceptionFilter) {
	h.exceptionMask.Store(uint32(mask))
}

// RequestPause arms a one-shot flag that stops at the next Line event
// with reason=pause (spec §5 "Cancellation").
func (h *HookEngine) RequestPause() {
	h.pausePending.Store(true)
}

// armed reports whether anything requires the slow path at all.
func (h *HookEngine) armed() bool {
	return h.breakpoints.HasAny() || h.steps.Active() || h.exceptionMask.Load() != 0 || h.pausePending.Load()
}

// Handle decides what to do with one interpreter event. interp/line
// come straight off the facade callback; currentDepth is looked up
// from the facade only once armed() says there's a reason to, so the
// idle case never calls into the interpreter at all. skip is true when
// the caller's PathConvert matched the event's source against a
// configured skip-files glob (spec §4.1); it only affects the Line
// case, where breakpoints and step stops are decided.
func (h *HookEngine) Handle(event Event, source SourceKey, skip bool) (Decision, error) {
	if !h.armed() {
		return Decision{}, nil
	}

	switch event.Kind {
	case constants.EventCall, constants.EventReturn:
		// Depth accounting for Call/Return is derived on demand from
		// facade.FrameDepth when a Line event needs it (see below);
		// Call/Return themselves never stop anything per the decision
		// table, but a Return can satisfy a pending step-over/step-out,
		// so StepController is given a chance to reevaluate here too.
		return h.handleDepthEvent(event)
	case constants.EventLine:
		return h.handleLine(event, source, skip)
	case constants.EventError:
		return h.handleError(event)
	default:
		return Decision{}, nil
	}
}

func (h *HookEngine) handleDepthEvent(event Event) (Decision, error) {
	if event.Kind != constants.EventReturn || !h.steps.Active() {
		return Decision{}, nil
	}
	depth, err := h.facade.FrameDepth(event.Interp)
	if err != nil {
		return Decision{}, err
	}
	if h.steps.ShouldStop(event.Interp, depth) {
		h.steps.Clear()
		return Decision{Stop: true, Reason: constants.StoppedStep}, nil
	}
	return Decision{}, nil
}

func (h *HookEngine) handleLine(event Event, source SourceKey, skip bool) (Decision, error) {
	if h.pausePending.CompareAndSwap(true, false) {
		return Decision{Stop: true, Reason: constants.StoppedPause}, nil
	}

	// A skip-files match (spec §4.1) makes this line invisible to both
	// breakpoints and the active step: running through it never stops,
	// and a pending step-over/step-out stays armed past it rather than
	// being satisfied here.
	if skip {
		return Decision{}, nil
	}

	if bp, ok := h.breakpoints.Query(source, event.Line); ok {
		stop, logOutput, hasLog, err := h.evaluateBreakpoint(event, bp)
		if err != nil {
			return Decision{}, err
		}
		if hasLog {
			return Decision{LogOutput: logOutput, HasLogOutput: true}, nil
		}
		if stop {
			return Decision{Stop: true, Reason: constants.StoppedBreakpoint}, nil
		}
	}

	if h.steps.Active() {
		depth, err := h.facade.FrameDepth(event.Interp)
		if err != nil {
			return Decision{}, err
		}
		if h.steps.ShouldStop(event.Interp, depth) {
			h.steps.Clear()
			return Decision{Stop: true, Reason: constants.StoppedStep}, nil
		}
	}

	return Decision{}, nil
}

// evaluateBreakpoint runs bp's condition (if any), records a hit when
// the condition holds, and formats a log message instead of stopping
// when bp carries one. Breakpoint wins over a pending step at the same
// line per spec §4.5's tie-break.
func (h *HookEngine) evaluateBreakpoint(event Event, bp *Breakpoint) (stop bool, logOutput string, hasLog bool, err error) {
	if bp.Condition != "" {
		res, evalErr := h.evaluator.EvaluateGlobal(event.Interp, bp.Condition)
		if evalErr != nil {
			// A broken condition expression never silently stops the
			// program; treat it as condition-false and keep running.
			return false, "", false, nil
		}
		if res.Display == "" || res.Display == "false" || res.Display == "nil" {
			return false, "", false, nil
		}
	}

	if !bp.RecordHit() {
		return false, "", false, nil
	}

	if bp.LogMessage != "" {
		formatted, fmtErr := formatLogMessage(h.evaluator, event.Interp, bp.LogMessage)
		if fmtErr != nil {
			return false, "", false, fmtErr
		}
		return false, formatted, true, nil
	}

	return true, "", false, nil
}

func (h *HookEngine) handleError(event Event) (Decision, error) {
	mask := constants.ExceptionFilter(h.exceptionMask.Load())
	if mask == 0 {
		return Decision{}, nil
	}
	category := classifyError(event)
	if mask&category == 0 {
		return Decision{}, nil
	}
	return Decision{Stop: true, Reason: constants.StoppedException}, nil
}

// classifyError reads the category the facade already assigned at the
// point it raised the error (spec §9's bitmap note, supplemented per
// SPEC_FULL.md's "exception/error filters with categories"). A
// zero Category — only possible from a hand-built Event, never a real
// raise site — defaults to Uncaught, the filter a front-end arms by
// default (server.go's capability advertisement).
func classifyError(event Event) constants.ExceptionFilter {
	if event.Category != 0 {
		return event.Category
	}
	return constants.ExceptionUncaught
}

// formatLogMessage expands `{expr}` placeholders in template against
// interp's current frame, per SPEC_FULL.md's log-message supplement.
func formatLogMessage(ev *Evaluator, interp InterpHandle, template string) (string, error) {
	var out []byte
	i := 0
	for i < len(template) {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			out = append(out, template[i:]...)
			break
		}
		out = append(out, template[i:i+open]...)
		rest := template[i+open+1:]
		shut := strings.IndexByte(rest, '}')
		if shut < 0 {
			out = append(out, template[i+open:]...)
			break
		}
		expr := rest[:shut]
		res, err := ev.Evaluate(interp, 0, expr, constants.EvalRepl)
		if err != nil {
			out = append(out, "<error>"...)
		} else {
			out = append(out, res.Display...)
		}
		i = i + open + 1 + shut + 1
	}
	return string(out), nil
}
