package adapter

import (
	"github.com/lumenlang/dap-adapter/constants"
	e "github.com/lumenlang/dap-adapter/error"
)

// Request argument types, decoded by the Network collaborator from
// the DAP request's raw arguments before calling Session.HandleRequest
// (spec §6's request shapes, made interpreter-agnostic here).
type (
	SetBreakpointsArgs struct {
		Source      Source
		Breakpoints []*Breakpoint
	}
	SetExceptionBreakpointsArgs struct {
		Filters []string
	}
	EvaluateArgs struct {
		Expression string
		Context    constants.EvalContext
	}
	VariablesArgs struct {
		Reference int
	}
	SetVariableArgs struct {
		Reference int
		Name      string
		Value     string
	}
	SourceArgs struct {
		Reference int
	}
	AddWatchArgs struct {
		Expression string
	}
	RemoveWatchArgs struct {
		ID int
	}
)

// Response body types returned in HandlerResult.Body.
type (
	Thread struct {
		ID   int
		Name string
	}
	ThreadsResponse struct {
		Threads []Thread
	}
	FrameDTO struct {
		ID         int
		Name       string
		Line       int
		Source     Source
		MoreFrames bool
	}
	StackTraceResponse struct {
		Frames      []FrameDTO
		TotalFrames int
	}
	ScopeDTO struct {
		Name               constants.ScopeName
		VariablesReference int
		Expensive          bool
	}
	ScopesResponse struct {
		Scopes []ScopeDTO
	}
	VariableDTO struct {
		Name               string
		Value              string
		Type               string
		VariablesReference int
	}
	VariablesResponse struct {
		Variables []VariableDTO
	}
	EvaluateResponse struct {
		Result             string
		Type               string
		VariablesReference int
	}
	SourceResponse struct {
		Content string
	}
	AddWatchResponse struct {
		ID    int
		Token string
	}
	RemoveWatchResponse struct {
		Removed bool
	}
	WatchResultDTO struct {
		ID         int
		Token      string
		Expression string
		Result     string
		Type       string
		Error      string
	}
	EvaluateWatchesResponse struct {
		Results []WatchResultDTO
	}
	// BreakpointEventBody is the body of a `breakpoint` event (spec §6).
	// BreakpointStore.Set replaces a source's whole breakpoint set
	// wholesale rather than diffing against the previous one, so every
	// resolved breakpoint is reported with the same reason.
	BreakpointEventBody struct {
		Reason     constants.BreakpointChangeReason
		Breakpoint *Breakpoint
	}
)

// buildDispatcher registers every handler into the Main/Hook tables
// spec §4.7 describes.
func (s *Session) buildDispatcher() *Dispatcher {
	main := map[string]Handler{
		"initialize":              s.handleInitialize,
		"attach":                  s.handleAttach,
		"launch":                  s.handleAttach,
		"configurationDone":       s.handleConfigurationDone,
		"setBreakpoints":          s.handleSetBreakpoints,
		"setExceptionBreakpoints": s.handleSetExceptionBreakpoints,
		"disconnect":              s.handleDisconnect,
		"pause":                   s.handlePause,
		"threads":                 s.handleThreads,
		"addWatch":                s.handleAddWatch,
		"removeWatch":             s.handleRemoveWatch,
	}
	hookOnly := map[string]Handler{
		"stackTrace":      s.handleStackTrace,
		"scopes":          s.handleScopes,
		"variables":       s.handleVariables,
		"setVariable":     s.handleSetVariable,
		"source":          s.handleSource,
		"evaluate":        s.handleEvaluate,
		"continue":        s.handleContinue,
		"next":            s.handleNext,
		"stepIn":          s.handleStepIn,
		"stepOut":         s.handleStepOut,
		"evaluateWatches": s.handleEvaluateWatches,
	}
	return NewDispatcher(main, hookOnly)
}

func (s *Session) handleInitialize(ctx RequestContext) (HandlerResult, error) {
	if !s.state.Is(constants.Birth) {
		return HandlerResult{}, e.New(e.StateError, "initialize must be the first request")
	}
	capabilities := map[string]bool{
		"supportsConditionalBreakpoints":  true,
		"supportsHitConditionalBreakpoints": true,
		"supportsLogPoints":                true,
		"supportsSetVariable":              true,
		"supportsExceptionFilterOptions":   true,
	}
	return HandlerResult{Body: capabilities, Transition: constants.Initialized, HasTransition: true}, nil
}

func (s *Session) handleAttach(ctx RequestContext) (HandlerResult, error) {
	if !s.state.Is(constants.Initialized) {
		return HandlerResult{}, e.New(e.StateError, "attach/launch requires initialize first")
	}
	cfg, ok := ctx.Args.(Config)
	if !ok {
		return HandlerResult{}, e.BadField("arguments", "expected decoded launch configuration")
	}
	s.cfg = cfg
	s.pathConvert = NewPathConvert(cfg.SourceMaps, cfg.SkipFiles)
	return HandlerResult{Transition: constants.Initialized, HasTransition: true}, nil
}

func (s *Session) handleConfigurationDone(ctx RequestContext) (HandlerResult, error) {
	if !s.state.Is(constants.Initialized) {
		return HandlerResult{}, e.New(e.StateError, "configurationDone requires an attached session")
	}
	s.entryArmed = s.cfg.StopOnEntry
	return HandlerResult{Transition: constants.Running, HasTransition: true}, nil
}

// handleSetBreakpoints resolves the incoming set and emits one
// `breakpoint` event per resolved breakpoint before returning, per
// spec §5's worked ordering example ("a setBreakpoints that verifies
// lines emits breakpoint events first, then the response"). Session
// still holds s.mu here, which is safe: emitEvent never takes it.
func (s *Session) handleSetBreakpoints(ctx RequestContext) (HandlerResult, error) {
	args, ok := ctx.Args.(SetBreakpointsArgs)
	if !ok {
		return HandlerResult{}, e.BadField("arguments", "expected setBreakpoints arguments")
	}
	resolved, err := s.breakpoints.Set(args.Source, args.Breakpoints, s.facade.ExecutableLines)
	if err != nil {
		return HandlerResult{}, err
	}
	for _, bp := range resolved {
		s.emitEvent("breakpoint", BreakpointEventBody{Reason: constants.BreakpointChanged, Breakpoint: bp})
	}
	return HandlerResult{Body: resolved}, nil
}

func (s *Session) handleSetExceptionBreakpoints(ctx RequestContext) (HandlerResult, error) {
	args, ok := ctx.Args.(SetExceptionBreakpointsArgs)
	if !ok {
		return HandlerResult{}, e.BadField("arguments", "expected setExceptionBreakpoints arguments")
	}
	s.cfg.ExceptionFilter = args.Filters
	s.hooks.SetExceptionFilters(s.cfg.ExceptionMask())
	return HandlerResult{}, nil
}

func (s *Session) handlePause(ctx RequestContext) (HandlerResult, error) {
	s.hooks.RequestPause()
	return HandlerResult{}, nil
}

func (s *Session) handleThreads(ctx RequestContext) (HandlerResult, error) {
	return HandlerResult{Body: ThreadsResponse{Threads: []Thread{{ID: mainThreadID, Name: "main"}}}}, nil
}

func (s *Session) handleDisconnect(ctx RequestContext) (HandlerResult, error) {
	_ = s.facade.Detach()
	return HandlerResult{Transition: constants.Terminated, HasTransition: true}, nil
}

// handleAddWatch registers a watch expression (spec §4.4's Watches
// component). Front-ends re-evaluate it on demand via evaluateWatches
// rather than Session pushing updates on every stop.
func (s *Session) handleAddWatch(ctx RequestContext) (HandlerResult, error) {
	args, ok := ctx.Args.(AddWatchArgs)
	if !ok {
		return HandlerResult{}, e.BadField("arguments", "expected addWatch arguments")
	}
	id := s.watches.Add(args.Expression)
	token := ""
	for _, ent := range s.watches.All() {
		if ent.ID == id {
			token = ent.Token
			break
		}
	}
	return HandlerResult{Body: AddWatchResponse{ID: id, Token: token}}, nil
}

func (s *Session) handleRemoveWatch(ctx RequestContext) (HandlerResult, error) {
	args, ok := ctx.Args.(RemoveWatchArgs)
	if !ok {
		return HandlerResult{}, e.BadField("arguments", "expected removeWatch arguments")
	}
	return HandlerResult{Body: RemoveWatchResponse{Removed: s.watches.Remove(args.ID)}}, nil
}

// handleEvaluateWatches refreshes every registered watch against the
// selected frame (or the paused interpreter's innermost frame, depth
// 0, when no frame is selected), one failing watch never blocking the
// others.
func (s *Session) handleEvaluateWatches(ctx RequestContext) (HandlerResult, error) {
	depth := 0
	if ctx.HasFrame {
		depth = ctx.Frame.Depth
	}
	results := Refresh(s.watches, s.evaluator, s.currentInterp(), depth, s.pauseEpoch)
	out := make([]WatchResultDTO, len(results))
	for i, r := range results {
		dto := WatchResultDTO{ID: r.ID, Token: r.Token, Expression: r.Expression, Result: r.Display, Type: r.TypeName}
		if r.Err != nil {
			dto.Error = r.Err.Error()
		}
		out[i] = dto
	}
	return HandlerResult{Body: EvaluateWatchesResponse{Results: out}}, nil
}

func (s *Session) handleStackTrace(ctx RequestContext) (HandlerResult, error) {
	if s.stack == nil {
		return HandlerResult{}, e.New(e.StateError, "no stack to walk")
	}
	frames, err := s.stack.Build(s.facade, s.pathConvert, s.frameTable, s.cfg.StackTraceLimit)
	if err != nil {
		return HandlerResult{}, err
	}
	out := make([]FrameDTO, len(frames))
	for i, f := range frames {
		out[i] = FrameDTO{
			ID:         encodeFrameWireID(f.Epoch, f.Ref),
			Name:       f.Name,
			Line:       f.Line,
			Source:     f.Source,
			MoreFrames: f.MoreFrames,
		}
	}
	return HandlerResult{Body: StackTraceResponse{Frames: out, TotalFrames: s.stack.TotalFrames()}}, nil
}

func (s *Session) handleScopes(ctx RequestContext) (HandlerResult, error) {
	if !ctx.HasFrame {
		return HandlerResult{}, e.BadField("frameId", "unknown or stale frame")
	}
	interp := s.stack.interp
	depth := ctx.Frame.Depth

	buckets := []struct {
		name  constants.ScopeName
		scope VariableScope
		fetch func() ([]Binding, error)
	}{
		{constants.ScopeLocal, ScopeLocalVar, func() ([]Binding, error) { return s.facade.FrameLocals(interp, depth) }},
		{constants.ScopeUpvalue, ScopeUpvalueVar, func() ([]Binding, error) { return s.facade.FrameUpvalues(interp, depth) }},
		{constants.ScopeGlobal, ScopeGlobalVar, func() ([]Binding, error) { return s.facade.Globals(interp) }},
		{constants.ScopeRegistry, ScopeRegistryVar, func() ([]Binding, error) { return s.facade.Registry(interp) }},
	}

	scopes := make([]ScopeDTO, 0, len(buckets))
	for _, b := range buckets {
		fetch := b.fetch
		value := Value{
			Compound: true,
			Expand: func() ([]NamedValue, error) {
				bindings, err := fetch()
				if err != nil {
					return nil, err
				}
				out := make([]NamedValue, len(bindings))
				for i, bd := range bindings {
					out[i] = NamedValue{Name: bd.Name, Value: bd.Value}
				}
				return out, nil
			},
		}
		ref := s.varTable.Issue(depth, b.scope, value)
		wireID := s.refs.register(ref)
		scopes = append(scopes, ScopeDTO{Name: b.name, VariablesReference: wireID, Expensive: b.scope == ScopeGlobalVar})
	}
	return HandlerResult{Body: ScopesResponse{Scopes: scopes}}, nil
}

func (s *Session) handleVariables(ctx RequestContext) (HandlerResult, error) {
	args, ok := ctx.Args.(VariablesArgs)
	if !ok {
		return HandlerResult{}, e.BadField("arguments", "expected variables arguments")
	}
	ref, ok := s.refs.lookup(args.Reference)
	if !ok {
		return HandlerResult{}, e.New(e.StaleReference, "variablesReference belongs to a prior pause")
	}
	children, err := s.evaluator.ExpandChildren(ref)
	if err != nil {
		return HandlerResult{}, err
	}
	out := make([]VariableDTO, len(children))
	for i, child := range children {
		dto := VariableDTO{Name: child.Name, Value: child.Value.Display, Type: child.Value.TypeName}
		if child.Value.Compound {
			childRef := s.varTable.Issue(ref.FrameDepth, ref.Scope, child.Value)
			dto.VariablesReference = s.refs.register(childRef)
		}
		out[i] = dto
	}
	return HandlerResult{Body: VariablesResponse{Variables: out}}, nil
}

func (s *Session) handleSetVariable(ctx RequestContext) (HandlerResult, error) {
	args, ok := ctx.Args.(SetVariableArgs)
	if !ok {
		return HandlerResult{}, e.BadField("arguments", "expected setVariable arguments")
	}
	ref, ok := s.refs.lookup(args.Reference)
	if !ok {
		return HandlerResult{}, e.New(e.StaleReference, "variablesReference belongs to a prior pause")
	}
	if err := s.evaluator.SetVariable(s.stack.interp, ref, args.Name, args.Value); err != nil {
		return HandlerResult{}, err
	}
	return HandlerResult{Body: VariableDTO{Name: args.Name, Value: args.Value}}, nil
}

func (s *Session) handleSource(ctx RequestContext) (HandlerResult, error) {
	args, ok := ctx.Args.(SourceArgs)
	if !ok {
		return HandlerResult{}, e.BadField("arguments", "expected source arguments")
	}
	text, err := s.facade.SourceText(args.Reference)
	if err != nil {
		return HandlerResult{}, e.Newf(e.ProtocolError, "%v", err)
	}
	return HandlerResult{Body: SourceResponse{Content: text}}, nil
}

func (s *Session) handleEvaluate(ctx RequestContext) (HandlerResult, error) {
	args, ok := ctx.Args.(EvaluateArgs)
	if !ok {
		return HandlerResult{}, e.BadField("arguments", "expected evaluate arguments")
	}

	var res EvalResult
	var err error
	switch {
	case ctx.HasFrame && args.Context == constants.EvalWatch:
		// A "watch" evaluate is the front-end re-requesting the same
		// expression after every step; route it through the cache
		// instead of recompiling it fresh each time (spec §4.4).
		res, err = s.evaluator.EvaluateWatch(s.stack.interp, ctx.Frame.Depth, s.pauseEpoch, args.Expression)
	case ctx.HasFrame:
		res, err = s.evaluator.Evaluate(s.stack.interp, ctx.Frame.Depth, args.Expression, args.Context)
	default:
		res, err = s.evaluator.EvaluateGlobal(s.mainInterp, args.Expression)
	}
	if err != nil {
		return HandlerResult{}, err
	}

	resp := EvaluateResponse{Result: res.Display, Type: res.TypeName}
	if res.HasRef {
		resp.VariablesReference = s.refs.register(res.Ref)
	}
	return HandlerResult{Body: resp}, nil
}

func (s *Session) currentInterp() InterpHandle {
	if s.stack != nil {
		return s.stack.interp
	}
	return s.mainInterp
}

func (s *Session) armStep(kind constants.StepKind) (HandlerResult, error) {
	interp := s.currentInterp()
	depth, err := s.facade.FrameDepth(interp)
	if err != nil {
		return HandlerResult{}, e.Newf(e.ProtocolError, "frame depth: %v", err)
	}
	s.steps.Arm(kind, depth, interp)
	return HandlerResult{Transition: constants.StepPending, HasTransition: true}, nil
}

func (s *Session) handleContinue(ctx RequestContext) (HandlerResult, error) {
	s.steps.Clear()
	return HandlerResult{Transition: constants.Running, HasTransition: true}, nil
}

func (s *Session) handleNext(ctx RequestContext) (HandlerResult, error) {
	return s.armStep(constants.StepOver)
}

func (s *Session) handleStepIn(ctx RequestContext) (HandlerResult, error) {
	return s.armStep(constants.StepIn)
}

func (s *Session) handleStepOut(ctx RequestContext) (HandlerResult, error) {
	return s.armStep(constants.StepOut)
}
