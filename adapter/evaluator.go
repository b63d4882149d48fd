package adapter

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/lumenlang/dap-adapter/constants"
	e "github.com/lumenlang/dap-adapter/error"
	"github.com/lumenlang/dap-adapter/utils"
)

// watchCacheSize bounds the "small LRU" spec §4.4 asks Watches to keep:
// enough for a front-end's visible watch list across one pause without
// ever growing unbounded. Only watch-context evaluations are cached.
const watchCacheSize = 128

// watchCacheKey is the (expression, frame, epoch) tuple spec §4.4
// names: frame is the evaluated frame's depth (stable for the life of
// a pause epoch; -1 for "no frame"), and epoch is the session's pause
// epoch, so a cached entry is never reused across a resume/stop cycle.
type watchCacheKey struct {
	expression string
	frame      int
	epoch      int64
}

type cachedEval struct {
	result EvalResult
	err    error
}

// EvalResult is what Evaluate returns: enough to build both an
// `evaluate` response and, when the result is compound, a variables
// reference for later expansion.
type EvalResult struct {
	Display  string
	TypeName string
	Ref      VarRef
	HasRef   bool
}

// DefaultEvalTimeout bounds how long Evaluate waits for a Call to
// return before giving up on the caller's behalf (spec §4.4/§5). The
// underlying Lumen call is not forcibly interrupted — this only stops
// the adapter from blocking a request indefinitely.
const DefaultEvalTimeout = 3 * time.Second

// Evaluator runs user expressions and reads locals/upvalues/globals in
// a paused frame (spec §4.4). It never transitions session state: a
// compile or runtime failure is returned to the caller as a
// structured error, never turned into a stop.
type Evaluator struct {
	facade   InterpreterFacade
	varTable *VarTable
	timeout  time.Duration
	cache    *lru.Cache
}

func NewEvaluator(facade InterpreterFacade, varTable *VarTable) *Evaluator {
	cache, _ := lru.New(watchCacheSize) // watchCacheSize > 0, so this never errors
	return &Evaluator{facade: facade, varTable: varTable, timeout: DefaultEvalTimeout, cache: cache}
}

// EvaluateWatch is Evaluate, but consults the (expression, frame,
// epoch)-keyed LRU first (spec §4.4), so a front-end re-requesting the
// same watch after every step does not pay for a fresh compile+call
// when neither the expression nor the pause it ran against changed.
func (ev *Evaluator) EvaluateWatch(interp InterpHandle, frameDepth int, epoch int64, expression string) (EvalResult, error) {
	key := watchCacheKey{expression: expression, frame: frameDepth, epoch: epoch}
	if v, ok := ev.cache.Get(key); ok {
		c := v.(cachedEval)
		return c.result, c.err
	}
	result, err := ev.Evaluate(interp, frameDepth, expression, constants.EvalWatch)
	ev.cache.Add(key, cachedEval{result: result, err: err})
	return result, err
}

// Evaluate compiles and runs expression against frame's bindings.
// evalCtx only affects display formatting (Hover truncates; Clipboard
// and Repl do not).
func (ev *Evaluator) Evaluate(interp InterpHandle, frameDepth int, expression string, evalCtx constants.EvalContext) (EvalResult, error) {
	bindings, err := ev.collectBindings(interp, frameDepth)
	if err != nil {
		return EvalResult{}, err
	}

	callable, err := ev.facade.Compile(interp, expression, bindings)
	if err != nil {
		return EvalResult{}, e.Newf(e.EvalCompileError, "%v", err)
	}

	value, err := ev.callWithTimeout(callable)
	if err != nil {
		return EvalResult{}, e.Newf(e.EvalRuntimeError, "%v", err)
	}

	return ev.toResult(frameDepth, value, evalCtx, ScopeEvaluatedVar)
}

// EvaluateGlobal evaluates expression with no frame context (e.g. a
// breakpoint condition, or an evaluate request that names no frame),
// frameDepth -1 meaning "no frame".
func (ev *Evaluator) EvaluateGlobal(interp InterpHandle, expression string) (EvalResult, error) {
	globals, err := ev.facade.Globals(interp)
	if err != nil {
		return EvalResult{}, e.Newf(e.ProtocolError, "globals: %v", err)
	}
	callable, err := ev.facade.Compile(interp, expression, globals)
	if err != nil {
		return EvalResult{}, e.Newf(e.EvalCompileError, "%v", err)
	}
	value, err := ev.callWithTimeout(callable)
	if err != nil {
		return EvalResult{}, e.Newf(e.EvalRuntimeError, "%v", err)
	}
	return ev.toResult(-1, value, constants.EvalRepl, ScopeEvaluatedVar)
}

func (ev *Evaluator) collectBindings(interp InterpHandle, frameDepth int) ([]Binding, error) {
	locals, err := ev.facade.FrameLocals(interp, frameDepth)
	if err != nil {
		return nil, e.Newf(e.ProtocolError, "frame locals: %v", err)
	}
	upvalues, err := ev.facade.FrameUpvalues(interp, frameDepth)
	if err != nil {
		return nil, e.Newf(e.ProtocolError, "frame upvalues: %v", err)
	}
	// Locals shadow upvalues of the same name; last write wins when
	// merged into the compiled callable's environment.
	merged := make([]Binding, 0, len(locals)+len(upvalues))
	merged = append(merged, upvalues...)
	merged = append(merged, locals...)
	return merged, nil
}

// callWithTimeout runs c.Call in the facade, giving up the wait (not
// the underlying interpreter call) after ev.timeout, timed by a
// utils.TimeoutManager.
func (ev *Evaluator) callWithTimeout(c Callable) (Value, error) {
	type outcome struct {
		val Value
		err error
	}
	done := make(chan outcome, 1)
	timedOut := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tm := utils.NewTimeoutManager()
	tm.Start(ctx, ev.timeout, func() { close(timedOut) })

	go func() {
		v, err := ev.facade.Call(c)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		tm.Cancel()
		return o.val, o.err
	case <-timedOut:
		return Value{}, e.New(e.EvalRuntimeError, "evaluation timed out")
	}
}

func (ev *Evaluator) toResult(frameDepth int, value Value, evalCtx constants.EvalContext, scope VariableScope) (EvalResult, error) {
	display := value.Display
	if evalCtx == constants.EvalHover && len(display) > 256 {
		display = display[:256] + "..."
	}
	res := EvalResult{Display: display, TypeName: value.TypeName}
	if value.Compound {
		res.Ref = ev.varTable.Issue(frameDepth, scope, value)
		res.HasRef = true
	}
	return res, nil
}

// ExpandChildren returns the immediate children of the Value behind
// ref (spec §4.4's lazy expansion); it issues no VarRefs itself, the
// caller allocates one for every compound child it hands out.
// Circular structures are safe because each child is a fresh Value
// describing a, possibly repeated, Lumen object, expanded one level
// per call: the facade's Expand closure (not this method) walks the
// value's children and carries the per-call visited set that marks a
// table containing itself as circular instead of expanding it again.
func (ev *Evaluator) ExpandChildren(ref VarRef) ([]NamedValue, error) {
	value, err := ev.varTable.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if value.Expand == nil {
		return nil, nil
	}
	children, err := value.Expand()
	if err != nil {
		return nil, e.Newf(e.EvalRuntimeError, "expand: %v", err)
	}
	return children, nil
}

// SetVariable writes newValue into the binding (local or upvalue)
// named by ref's owning scope.
func (ev *Evaluator) SetVariable(interp InterpHandle, ref VarRef, name string, newValue string) error {
	switch ref.Scope {
	case ScopeLocalVar:
		if err := ev.facade.SetLocal(interp, ref.FrameDepth, name, newValue); err != nil {
			return e.Newf(e.EvalCompileError, "%v", err)
		}
		return nil
	case ScopeUpvalueVar:
		if err := ev.facade.SetUpvalue(interp, ref.FrameDepth, name, newValue); err != nil {
			return e.Newf(e.EvalCompileError, "%v", err)
		}
		return nil
	default:
		value, err := ev.varTable.Resolve(ref)
		if err != nil {
			return err
		}
		if value.SetByName == nil {
			return e.New(e.NotSupported, "this scope does not support setVariable")
		}
		if err := value.SetByName(name, newValue); err != nil {
			return e.Newf(e.EvalCompileError, "%v", err)
		}
		return nil
	}
}
