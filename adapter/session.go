package adapter

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lumenlang/dap-adapter/constants"
	e "github.com/lumenlang/dap-adapter/error"
	"github.com/lumenlang/dap-adapter/utils"
)

// idleLoopTick is the "coarse upper bound (default 10ms)" spec §5 asks
// for: the idle loop wakes on this cadence even with no resume, so a
// future redirect pump or output flush has somewhere to run.
const idleLoopTick = 10 * time.Millisecond

// OutboundKind tags what an Envelope carries.
type OutboundKind int

const (
	OutboundResponse OutboundKind = iota
	OutboundEvent
)

// Envelope is one seq-numbered outbound message (spec §5's ordering
// guarantees: seq is strictly increasing across both responses and
// events, serialized through one channel). The Network collaborator
// turns this into a DAP wire message; Session never touches JSON.
type Envelope struct {
	Seq     int64
	Kind    OutboundKind
	Command string // echoed request command, for a response
	Name    string // event name, for an event
	Body    interface{}
	Err     *e.Coded // set on a failed response
}

// EmitFunc delivers one outbound envelope.
type EmitFunc func(Envelope)

// PendingEvent is an event HandleRequest has decided to emit but has
// deferred to its caller, for the one case where spec ordering puts the
// response ahead of the event instead of the other way around (spec
// §4.8's "replies, then emits 'initialized'"). FlushPendingEvents sends
// these once the caller has queued its reply.
type PendingEvent struct {
	Name string
	Body interface{}
}

const mainThreadID = 1

// Session is the top-level state machine (spec §3, §4.8, §4.9). It
// runs in Async mode (spec §5): a single coarse lock serializes every
// access to mutable session state, generalizing the teacher's
// StatusManager-guarded single flag to the whole session.
type Session struct {
	mu sync.Mutex

	state *utils.StateManager
	cfg   Config

	pathConvert *PathConvert
	breakpoints *BreakpointStore
	steps       *StepController
	hooks       *HookEngine
	varTable    *VarTable
	frameTable  *FrameTable
	evaluator   *Evaluator
	watches     *Watches
	dispatcher  *Dispatcher

	facade     InterpreterFacade
	mainInterp InterpHandle

	stack      *StackModel
	pauseEpoch int64
	refs       *varRefRegistry

	seq        atomic.Int64
	emit       EmitFunc
	entryArmed bool
	resumeCh   chan struct{}
}

// NewSession wires every component together the way spec §4's control
// flow paragraph describes: the interpreter fires events into
// HookEngine; a Stop decision builds a StackModel and parks the
// session until a request resumes it.
func NewSession(facade InterpreterFacade, emit EmitFunc) *Session {
	s := &Session{
		state:       utils.NewStateManager(),
		pathConvert: NewPathConvert(nil, nil),
		breakpoints: NewBreakpointStore(),
		steps:       NewStepController(),
		varTable:    NewVarTable(),
		frameTable:  NewFrameTable(),
		facade:      facade,
		mainInterp:  facade.MainInterp(),
		refs:        newVarRefRegistry(),
		emit:        emit,
		resumeCh:    make(chan struct{}, 1),
		cfg:         Config{StackTraceLimit: DefaultStackTraceLimit},
	}
	s.evaluator = NewEvaluator(facade, s.varTable)
	s.watches = NewWatches()
	s.hooks = NewHookEngine(s.breakpoints, s.steps, s.evaluator, facade)
	s.dispatcher = s.buildDispatcher()
	return s
}

// State reports the current top-level state (for tests and the
// Network collaborator's capability gating).
func (s *Session) State() constants.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Get()
}

func (s *Session) nextSeq() int64 {
	return s.seq.Add(1)
}

// NextSeq draws from the same seq counter Envelope events use, so the
// Network collaborator can number its own wire-level responses from
// the identical sequence space (spec §5's single strictly-increasing
// seq across both responses and events).
func (s *Session) NextSeq() int64 {
	return s.nextSeq()
}

// ResolveSourceKey normalizes a front-end-facing path into the
// SourceKey PathConvert would also produce for it internally, so the
// Network collaborator can build a setBreakpoints/source request's
// Source.Key consistently with what interpreter events resolve to
// (spec §4.1).
func (s *Session) ResolveSourceKey(path string) SourceKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pathConvert.ClientToServer(path)
}

func (s *Session) emitEvent(name string, body interface{}) {
	logrus.WithField("event", name).Debug("session: emitting event")
	if s.emit == nil {
		return
	}
	s.emit(Envelope{Seq: s.nextSeq(), Kind: OutboundEvent, Name: name, Body: body})
}

// EmitOutput forwards captured program output (a Lumen `print`/
// `io.write` call) as a DAP `output` event with category "stdout". The
// facade's console redirect calls this directly; it bypasses HookEngine
// since raw program output is never a control-flow decision.
func (s *Session) EmitOutput(text string) {
	s.emitEvent("output", map[string]string{"category": "stdout", "output": text})
}

// HandleRequest is the single entry point the Network collaborator
// calls for every inbound DAP request. It builds the frame context for
// Stopped-only commands, dispatches, and applies any transition. For
// attach/launch it does NOT emit `initialized` itself: spec §4.8
// requires the reply to go out first ("replies, then emits
// 'initialized'"), and the reply itself is only built by the caller
// after this returns — so the event is handed back as a pending event
// instead, for the caller to flush via FlushPendingEvents once its
// response is queued.
func (s *Session) HandleRequest(command string, args interface{}, frameID int) (interface{}, []PendingEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logrus.WithField("command", command).Debug("session: handling request")

	ctx := RequestContext{Command: command, Args: args, Session: s}
	if frameID != 0 {
		if frame, err := s.resolveFrameLocked(frameID); err == nil {
			ctx.Frame = frame
			ctx.HasFrame = true
		}
	}

	result, err := s.dispatcher.Dispatch(ctx, s.state.Get())
	if err != nil {
		logrus.WithField("command", command).WithError(err).Warn("session: request failed")
		return nil, nil, err
	}

	var pending []PendingEvent
	if command == "attach" || command == "launch" {
		pending = append(pending, PendingEvent{Name: "initialized"})
	}
	if result.HasTransition {
		s.applyTransitionLocked(result.Transition)
	}
	return result.Body, pending, nil
}

// FlushPendingEvents emits every event HandleRequest deferred. The
// caller must only call this after its own response for that request
// has already been queued, so the wire order matches spec §4.8.
func (s *Session) FlushPendingEvents(pending []PendingEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pending {
		s.emitEvent(p.Name, p.Body)
	}
}

// applyTransitionLocked moves state and, when the new state leaves
// Stopped, wakes idleLoop. Caller holds s.mu.
func (s *Session) applyTransitionLocked(next constants.SessionState) {
	was := s.state.Get()
	s.state.Set(next)
	if was == constants.Stopped && next != constants.Stopped {
		select {
		case s.resumeCh <- struct{}{}:
		default:
		}
	}
}

// OnInterpreterEvent is the hook callback installed via facade.Attach.
// It runs on the interpreter's own goroutine; the coarse lock
// serializes it against concurrent request handling (spec §5 Async
// mode). A Terminated session no-ops (spec §4.9's teardown rule).
func (s *Session) OnInterpreterEvent(event Event) {
	s.mu.Lock()
	if s.state.Is(constants.Terminated) {
		s.mu.Unlock()
		return
	}

	if s.entryArmed && event.Kind == constants.EventLine {
		s.entryArmed = false
		s.enterStoppedLocked(event.Interp, constants.StoppedEntry)
		s.mu.Unlock()
		s.idleLoop()
		return
	}

	source, skip := s.sourceForLocked(event)
	decision, err := s.hooks.Handle(event, source, skip)
	if err != nil {
		logrus.WithError(err).Warn("session: hook decision failed")
		s.mu.Unlock()
		return
	}
	if decision.HasLogOutput {
		s.mu.Unlock()
		s.emitEvent("output", map[string]string{"category": "console", "output": decision.LogOutput + "\n"})
		return
	}
	if !decision.Stop {
		s.mu.Unlock()
		return
	}

	s.enterStoppedLocked(event.Interp, decision.Reason)
	s.mu.Unlock()
	s.idleLoop()
}

// sourceForLocked resolves the innermost frame's source key for a
// breakpoint lookup, plus whether that source matches a configured
// skip-files glob (spec §4.1). HookEngine itself never resolves the
// event's source (it calls the facade only for FrameDepth) — that
// lookup lives here so the hot path's "armed()==false" branch never
// pays for it.
func (s *Session) sourceForLocked(event Event) (SourceKey, bool) {
	if !s.hooks.armed() {
		return "", false
	}
	info, err := s.facade.CurrentFrameInfo(event.Interp, 0)
	if err != nil {
		return "", false
	}
	resolved := s.pathConvert.ResolveSource(info.Source.Path)
	key := info.Source.Key
	if key == "" {
		key = resolved.Key
	}
	return key, s.pathConvert.ShouldSkip(resolved.Path)
}

// enterStoppedLocked increments the pause epoch, resets the
// frame/variable tables and wire-ref registry for it, and emits
// `stopped` (spec §4.6, §4.9's ordering guarantee that `stopped`
// precedes any response referencing that epoch's references). Caller
// holds s.mu.
func (s *Session) enterStoppedLocked(interp InterpHandle, reason constants.StoppedReason) {
	s.pauseEpoch = s.frameTable.Reset()
	s.varTable.Reset()
	s.refs.resetForEpoch(s.pauseEpoch)
	s.stack = NewStackModel(interp, s.pauseEpoch)
	s.state.Set(constants.Stopped)
	s.emitEvent("stopped", map[string]interface{}{
		"reason":            string(reason),
		"threadId":          mainThreadID,
		"allThreadsStopped": true,
	})
}

// idleLoop blocks the interpreter thread while Stopped, per spec
// §4.6's "blocks the interpreter thread on the idle loop" and §5's
// "Suspension points": the interpreter thread suspends only here. In
// this in-process embedding, the Go call stack underneath idleLoop
// *is* gopher-lua's own hook invocation — not returning is what keeps
// Lumen paused. Requests land concurrently through HandleRequest
// (called from the Network goroutine), which takes s.mu independently;
// idleLoop just waits for a resume signal on the cadence spec §5 asks
// for, never spinning.
func (s *Session) idleLoop() {
	for {
		s.mu.Lock()
		stopped := s.state.Is(constants.Stopped)
		s.mu.Unlock()
		if !stopped {
			return
		}
		select {
		case <-s.resumeCh:
		case <-time.After(idleLoopTick):
		}
	}
}

func (s *Session) resolveFrameLocked(wireFrameID int) (StackFrame, error) {
	epoch, slot := decodeFrameWireID(wireFrameID)
	return s.frameTable.Resolve(slot, epoch)
}
