package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/google/go-dap"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/lumenlang/dap-adapter/adapter"
	"github.com/lumenlang/dap-adapter/adapter/lua_facade"
	"github.com/lumenlang/dap-adapter/constants"
	e "github.com/lumenlang/dap-adapter/error"
	"github.com/lumenlang/dap-adapter/utils/gosync"
)

// DebugSession binds one client connection to its own adapter.Session
// and the lua_facade.Facade backing it (one Lumen interpreter per
// connection). It mirrors the teacher's own DebugSession: a single
// goroutine decoding requests off the connection, a single goroutine
// draining sendQueue, so writes to the wire are never interleaved.
type DebugSession struct {
	conn net.Conn
	rw   *bufio.ReadWriter

	facade  *lua_facade.Facade
	session *adapter.Session

	lumenFile   string
	stopOnEntry bool

	sendQueue chan dap.Message
	sendWg    sync.WaitGroup
}

func newDebugSession(conn net.Conn, lumenFile string, stopOnEntry bool) *DebugSession {
	d := &DebugSession{
		conn:        conn,
		rw:          bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		facade:      lua_facade.New(),
		lumenFile:   lumenFile,
		stopOnEntry: stopOnEntry,
		sendQueue:   make(chan dap.Message),
	}
	d.session = adapter.NewSession(d.facade, d.emit)
	d.facade.OnOutput(d.session.EmitOutput)

	d.sendWg.Add(1)
	go d.sendFromQueue()
	return d
}

// emit turns a Session event Envelope into a go-dap wire event and
// queues it for the single writer goroutine. Session's seq counter
// (shared with every response this DebugSession builds, see nextSeq)
// already satisfies spec §5's single strictly-increasing seq.
func (d *DebugSession) emit(env adapter.Envelope) {
	if env.Kind != adapter.OutboundEvent {
		return
	}
	d.sendQueue <- d.newDAPEvent(env.Seq, env.Name, env.Body)
}

func (d *DebugSession) nextSeq() int {
	return int(d.session.NextSeq())
}

func (d *DebugSession) sendFromQueue() {
	defer d.sendWg.Done()
	for msg := range d.sendQueue {
		if err := dap.WriteProtocolMessage(d.rw.Writer, msg); err != nil {
			logrus.WithError(err).Warn("server: failed writing message")
			continue
		}
		if err := d.rw.Flush(); err != nil {
			logrus.WithError(err).Warn("server: failed flushing connection")
		}
	}
}

// handleConnection reads and dispatches requests from one client until
// the connection closes, then waits for the writer goroutine to drain.
func handleConnection(conn net.Conn, lumenFile string, stopOnEntry bool) {
	d := newDebugSession(conn, lumenFile, stopOnEntry)
	logrus.WithField("remote", conn.RemoteAddr()).Info("server: client connected")

	for {
		request, err := dap.ReadProtocolMessage(d.rw.Reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// A message this adapter's go-dap version can't decode (e.g.
			// an unrecognized custom command) is dropped, not fatal -
			// only a genuine connection error ends the session.
			var netErr net.Error
			if errors.As(err, &netErr) || errors.Is(err, net.ErrClosed) {
				logrus.WithError(err).Warn("server: connection error")
				break
			}
			logrus.WithError(err).Warn("server: dropping undecodable message")
			continue
		}
		d.dispatchRequest(request)
	}

	logrus.WithField("remote", conn.RemoteAddr()).Info("server: client disconnected")
	_ = d.facade.Detach()
	close(d.sendQueue)
	d.sendWg.Wait()
	_ = conn.Close()
}

func (d *DebugSession) dispatchRequest(request dap.Message) {
	switch req := request.(type) {
	case *dap.InitializeRequest:
		d.onInitializeRequest(req)
	case *dap.LaunchRequest:
		d.onAttachRequest(&req.Request, req.Arguments)
	case *dap.AttachRequest:
		d.onAttachRequest(&req.Request, req.Arguments)
	case *dap.ConfigurationDoneRequest:
		d.onConfigurationDoneRequest(req)
	case *dap.SetBreakpointsRequest:
		d.onSetBreakpointsRequest(req)
	case *dap.SetExceptionBreakpointsRequest:
		d.onSetExceptionBreakpointsRequest(req)
	case *dap.ThreadsRequest:
		d.onThreadsRequest(req)
	case *dap.StackTraceRequest:
		d.onStackTraceRequest(req)
	case *dap.ScopesRequest:
		d.onScopesRequest(req)
	case *dap.VariablesRequest:
		d.onVariablesRequest(req)
	case *dap.SetVariableRequest:
		d.onSetVariableRequest(req)
	case *dap.SourceRequest:
		d.onSourceRequest(req)
	case *dap.EvaluateRequest:
		d.onEvaluateRequest(req)
	case *dap.ContinueRequest:
		d.onContinueRequest(req)
	case *dap.NextRequest:
		d.onNextRequest(req)
	case *dap.StepInRequest:
		d.onStepInRequest(req)
	case *dap.StepOutRequest:
		d.onStepOutRequest(req)
	case *dap.PauseRequest:
		d.onPauseRequest(req)
	case *dap.DisconnectRequest:
		d.onDisconnectRequest(req)
	default:
		if baseReq, ok := request.(*dap.Request); ok {
			d.sendError(*baseReq, e.Newf(e.NotSupported, "%s is not yet supported", baseReq.Command))
			return
		}
		logrus.WithField("type", fmt.Sprintf("%T", request)).Warn("server: unsupported message type")
	}
}

func (d *DebugSession) send(message dap.Message) {
	d.sendQueue <- message
}

func (d *DebugSession) sendError(request dap.Request, err error) {
	coded := e.AsCoded(err)
	resp := &dap.ErrorResponse{}
	resp.Response = *d.newResponse(request.Seq, request.Command)
	resp.Success = false
	resp.Message = coded.Message
	resp.Body.Error = &dap.ErrorMessage{
		Id:     coded.Code,
		Format: coded.Error(),
	}
	d.send(resp)
}

func (d *DebugSession) newResponse(requestSeq int, command string) *dap.Response {
	return &dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Seq: d.nextSeq(), Type: "response"},
		Command:         command,
		RequestSeq:      requestSeq,
		Success:         true,
	}
}

// newDAPEvent maps one of Session's emitted event names onto the
// corresponding typed go-dap event. Session emits "initialized",
// "stopped", "output" and "breakpoint" (adapter/session.go,
// adapter/handlers.go); anything else falls back to the bare Event
// envelope.
func (d *DebugSession) newDAPEvent(seq int64, name string, body interface{}) dap.Message {
	base := dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Seq: int(seq), Type: "event"},
		Event:           name,
	}
	switch name {
	case "initialized":
		return &dap.InitializedEvent{Event: base}
	case "stopped":
		b, _ := body.(map[string]interface{})
		ev := &dap.StoppedEvent{Event: base}
		ev.Body.Reason, _ = b["reason"].(string)
		ev.Body.ThreadId, _ = b["threadId"].(int)
		ev.Body.AllThreadsStopped, _ = b["allThreadsStopped"].(bool)
		return ev
	case "output":
		b, _ := body.(map[string]string)
		ev := &dap.OutputEvent{Event: base}
		ev.Body.Category = b["category"]
		ev.Body.Output = b["output"]
		return ev
	case "breakpoint":
		b, _ := body.(adapter.BreakpointEventBody)
		ev := &dap.BreakpointEvent{Event: base}
		ev.Body.Reason = string(b.Reason)
		if b.Breakpoint != nil {
			ev.Body.Breakpoint = dap.Breakpoint{
				Verified: b.Breakpoint.Verified,
				Line:     b.Breakpoint.VerifiedLine,
			}
		}
		return ev
	case "terminated":
		return &dap.TerminatedEvent{Event: base}
	default:
		return &base
	}
}

func (d *DebugSession) onInitializeRequest(request *dap.InitializeRequest) {
	response := &dap.InitializeResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	response.Body.SupportsConfigurationDoneRequest = true
	response.Body.SupportsConditionalBreakpoints = true
	response.Body.SupportsHitConditionalBreakpoints = true
	response.Body.SupportsLogPoints = true
	response.Body.SupportsSetVariable = true
	response.Body.SupportsEvaluateForHovers = true
	response.Body.SupportsExceptionOptions = true
	response.Body.SupportsDelayedStackTraceLoading = false
	response.Body.SupportsLoadedSourcesRequest = false
	response.Body.SupportTerminateDebuggee = true
	response.Body.ExceptionBreakpointFilters = []dap.ExceptionBreakpointsFilter{
		{Filter: "caught", Label: "Caught Errors"},
		{Filter: "uncaught", Label: "Uncaught Errors", Default: true},
		{Filter: "user-unhandled", Label: "User-Unhandled Errors"},
	}
	d.send(response)

	if _, _, err := d.session.HandleRequest("initialize", nil, 0); err != nil {
		logrus.WithError(err).Warn("server: initialize rejected")
	}
}

// onAttachRequest handles both attach and launch (the adapter treats
// them identically, spec §4.1): decode the launch config, load the
// Lumen program text, wire the facade's hook callback, and hand the
// decoded Config to Session.handleAttach.
func (d *DebugSession) onAttachRequest(request *dap.Request, raw json.RawMessage) {
	cfg, err := adapter.ParseConfig(raw)
	if err != nil {
		d.sendError(*request, err)
		return
	}

	program := gjson.GetBytes(raw, "program").String()
	if program == "" {
		program = d.lumenFile
	}
	if program == "" {
		d.sendError(*request, e.New(e.ProtocolError, "no program path given (launch 'program' field or -lumenFile)"))
		return
	}
	src, readErr := os.ReadFile(program)
	if readErr != nil {
		d.sendError(*request, e.Newf(e.ProtocolError, "reading %s: %v", program, readErr))
		return
	}
	if err := d.facade.Load(program, string(src)); err != nil {
		d.sendError(*request, e.Newf(e.EvalCompileError, "compiling %s: %v", program, err))
		return
	}

	if d.stopOnEntry {
		cfg.StopOnEntry = true
	}

	if err := d.facade.Attach(d.session.OnInterpreterEvent); err != nil {
		d.sendError(*request, err)
		return
	}
	if err := d.facade.SetEventMask(adapter.MaskFor(
		constants.EventCall, constants.EventReturn, constants.EventLine, constants.EventError,
	)); err != nil {
		d.sendError(*request, err)
		return
	}

	_, pending, err := d.session.HandleRequest(request.Command, cfg, 0)
	if err != nil {
		d.sendError(*request, err)
		return
	}

	response := &dap.Response{}
	*response = *d.newResponse(request.Seq, request.Command)
	d.send(response)

	// The reply above must hit the wire before `initialized` (spec §4.8);
	// HandleRequest deferred it to exactly this point for that reason.
	d.session.FlushPendingEvents(pending)
}

func (d *DebugSession) onConfigurationDoneRequest(request *dap.ConfigurationDoneRequest) {
	if _, _, err := d.session.HandleRequest("configurationDone", nil, 0); err != nil {
		d.sendError(request.Request, err)
		return
	}
	response := &dap.ConfigurationDoneResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	d.send(response)

	gosync.Go(context.Background(), func(context.Context) {
		if err := d.facade.RunLoaded(); err != nil {
			logrus.WithError(err).Info("server: program ended with an error")
		}
		d.send(d.newDAPEvent(d.session.NextSeq(), "terminated", nil))
	})
}

func (d *DebugSession) onSetBreakpointsRequest(request *dap.SetBreakpointsRequest) {
	source := adapter.Source{
		Key:  d.session.ResolveSourceKey(request.Arguments.Source.Path),
		Path: request.Arguments.Source.Path,
		Name: request.Arguments.Source.Name,
	}
	incoming := make([]*adapter.Breakpoint, len(request.Arguments.Breakpoints))
	for i, bp := range request.Arguments.Breakpoints {
		incoming[i] = &adapter.Breakpoint{
			Line:         bp.Line,
			Condition:    bp.Condition,
			HitCondition: bp.HitCondition,
			LogMessage:   bp.LogMessage,
		}
	}

	body, _, err := d.session.HandleRequest("setBreakpoints", adapter.SetBreakpointsArgs{
		Source:      source,
		Breakpoints: incoming,
	}, 0)
	if err != nil {
		d.sendError(request.Request, err)
		return
	}
	resolved := body.([]*adapter.Breakpoint)

	response := &dap.SetBreakpointsResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	response.Body.Breakpoints = make([]dap.Breakpoint, len(resolved))
	for i, bp := range resolved {
		response.Body.Breakpoints[i] = dap.Breakpoint{
			Verified: bp.Verified,
			Line:     bp.VerifiedLine,
		}
	}
	d.send(response)
}

func (d *DebugSession) onSetExceptionBreakpointsRequest(request *dap.SetExceptionBreakpointsRequest) {
	_, _, err := d.session.HandleRequest("setExceptionBreakpoints", adapter.SetExceptionBreakpointsArgs{
		Filters: request.Arguments.Filters,
	}, 0)
	if err != nil {
		d.sendError(request.Request, err)
		return
	}
	response := &dap.SetExceptionBreakpointsResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onThreadsRequest(request *dap.ThreadsRequest) {
	body, _, err := d.session.HandleRequest("threads", nil, 0)
	if err != nil {
		d.sendError(request.Request, err)
		return
	}
	threads := body.(adapter.ThreadsResponse)
	response := &dap.ThreadsResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	response.Body.Threads = make([]dap.Thread, len(threads.Threads))
	for i, t := range threads.Threads {
		response.Body.Threads[i] = dap.Thread{Id: t.ID, Name: t.Name}
	}
	d.send(response)
}

func (d *DebugSession) onStackTraceRequest(request *dap.StackTraceRequest) {
	body, _, err := d.session.HandleRequest("stackTrace", nil, 0)
	if err != nil {
		d.sendError(request.Request, err)
		return
	}
	trace := body.(adapter.StackTraceResponse)
	response := &dap.StackTraceResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	response.Body.TotalFrames = trace.TotalFrames
	response.Body.StackFrames = make([]dap.StackFrame, len(trace.Frames))
	for i, f := range trace.Frames {
		response.Body.StackFrames[i] = dap.StackFrame{
			Id:   f.ID,
			Name: f.Name,
			Line: f.Line,
			Source: &dap.Source{
				Name:            f.Source.Name,
				Path:            f.Source.Path,
				SourceReference: f.Source.Reference,
			},
		}
	}
	d.send(response)
}

func (d *DebugSession) onScopesRequest(request *dap.ScopesRequest) {
	body, _, err := d.session.HandleRequest("scopes", nil, request.Arguments.FrameId)
	if err != nil {
		d.sendError(request.Request, err)
		return
	}
	scopes := body.(adapter.ScopesResponse)
	response := &dap.ScopesResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	response.Body.Scopes = make([]dap.Scope, len(scopes.Scopes))
	for i, s := range scopes.Scopes {
		response.Body.Scopes[i] = dap.Scope{
			Name:               string(s.Name),
			VariablesReference: s.VariablesReference,
			Expensive:          s.Expensive,
		}
	}
	d.send(response)
}

func (d *DebugSession) onVariablesRequest(request *dap.VariablesRequest) {
	body, _, err := d.session.HandleRequest("variables", adapter.VariablesArgs{
		Reference: request.Arguments.VariablesReference,
	}, 0)
	if err != nil {
		d.sendError(request.Request, err)
		return
	}
	vars := body.(adapter.VariablesResponse)
	response := &dap.VariablesResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	response.Body.Variables = make([]dap.Variable, len(vars.Variables))
	for i, v := range vars.Variables {
		response.Body.Variables[i] = dap.Variable{
			Name:               v.Name,
			Value:              v.Value,
			Type:               v.Type,
			VariablesReference: v.VariablesReference,
		}
	}
	d.send(response)
}

func (d *DebugSession) onSetVariableRequest(request *dap.SetVariableRequest) {
	_, _, err := d.session.HandleRequest("setVariable", adapter.SetVariableArgs{
		Reference: request.Arguments.VariablesReference,
		Name:      request.Arguments.Name,
		Value:     request.Arguments.Value,
	}, 0)
	if err != nil {
		d.sendError(request.Request, err)
		return
	}
	response := &dap.SetVariableResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	response.Body.Value = request.Arguments.Value
	d.send(response)
}

func (d *DebugSession) onSourceRequest(request *dap.SourceRequest) {
	ref := request.Arguments.SourceReference
	if ref == 0 && request.Arguments.Source != nil {
		ref = request.Arguments.Source.SourceReference
	}
	if ref == 0 && request.Arguments.Source != nil && request.Arguments.Source.Path != "" {
		data, err := os.ReadFile(request.Arguments.Source.Path)
		if err != nil {
			d.sendError(request.Request, e.Newf(e.ProtocolError, "reading %s: %v", request.Arguments.Source.Path, err))
			return
		}
		response := &dap.SourceResponse{}
		response.Response = *d.newResponse(request.Seq, request.Command)
		response.Body.Content = string(data)
		d.send(response)
		return
	}

	body, _, err := d.session.HandleRequest("source", adapter.SourceArgs{Reference: ref}, 0)
	if err != nil {
		d.sendError(request.Request, err)
		return
	}
	src := body.(adapter.SourceResponse)
	response := &dap.SourceResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	response.Body.Content = src.Content
	d.send(response)
}

// onEvaluateRequest handles the standard `evaluate` request, plus a
// small REPL convention for the addWatch/removeWatch/evaluateWatches
// extension (spec §4.4's Watches component): DAP has no request of
// its own for them, so a "watch add/remove/list ..." expression typed
// into a REPL context is routed to Session's matching command instead
// of being evaluated as Lumen code, the same way lldb-vscode and
// debugpy repurpose their own `evaluate` request for adapter-internal
// meta-commands.
func (d *DebugSession) onEvaluateRequest(request *dap.EvaluateRequest) {
	evalCtx := constants.EvalContext(request.Arguments.Context)
	if evalCtx == constants.EvalRepl {
		if result, handled := d.handleWatchCommand(request.Arguments.Expression); handled {
			response := &dap.EvaluateResponse{}
			response.Response = *d.newResponse(request.Seq, request.Command)
			response.Body.Result = result
			d.send(response)
			return
		}
	}

	body, _, err := d.session.HandleRequest("evaluate", adapter.EvaluateArgs{
		Expression: request.Arguments.Expression,
		Context:    evalCtx,
	}, request.Arguments.FrameId)
	if err != nil {
		d.sendError(request.Request, err)
		return
	}
	res := body.(adapter.EvaluateResponse)
	response := &dap.EvaluateResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	response.Body.Result = res.Result
	response.Body.Type = res.Type
	response.Body.VariablesReference = res.VariablesReference
	d.send(response)
}

// handleWatchCommand recognizes "watch add <expr>", "watch remove
// <id>" and "watch list", returning the rendered result and whether
// expression matched one of these forms at all.
func (d *DebugSession) handleWatchCommand(expression string) (string, bool) {
	const prefix = "watch "
	if expression != "watch list" && !strings.HasPrefix(expression, prefix) {
		return "", false
	}

	switch {
	case expression == "watch list":
		body, _, err := d.session.HandleRequest("evaluateWatches", nil, 0)
		if err != nil {
			return err.Error(), true
		}
		results := body.(adapter.EvaluateWatchesResponse).Results
		var sb strings.Builder
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(&sb, "#%d %s = <error: %s>\n", r.ID, r.Expression, r.Error)
				continue
			}
			fmt.Fprintf(&sb, "#%d %s = %s (%s)\n", r.ID, r.Expression, r.Result, r.Type)
		}
		return sb.String(), true

	case strings.HasPrefix(expression, "watch add "):
		expr := strings.TrimPrefix(expression, "watch add ")
		body, _, err := d.session.HandleRequest("addWatch", adapter.AddWatchArgs{Expression: expr}, 0)
		if err != nil {
			return err.Error(), true
		}
		added := body.(adapter.AddWatchResponse)
		return fmt.Sprintf("watch #%d added (token %s)", added.ID, added.Token), true

	case strings.HasPrefix(expression, "watch remove "):
		idStr := strings.TrimPrefix(expression, "watch remove ")
		id, convErr := strconv.Atoi(strings.TrimSpace(idStr))
		if convErr != nil {
			return fmt.Sprintf("invalid watch id %q", idStr), true
		}
		body, _, err := d.session.HandleRequest("removeWatch", adapter.RemoveWatchArgs{ID: id}, 0)
		if err != nil {
			return err.Error(), true
		}
		if body.(adapter.RemoveWatchResponse).Removed {
			return fmt.Sprintf("watch #%d removed", id), true
		}
		return fmt.Sprintf("no such watch #%d", id), true
	}
	return "", false
}

func (d *DebugSession) onContinueRequest(request *dap.ContinueRequest) {
	if _, _, err := d.session.HandleRequest("continue", nil, 0); err != nil {
		d.sendError(request.Request, err)
		return
	}
	response := &dap.ContinueResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	response.Body.AllThreadsContinued = true
	d.send(response)
}

func (d *DebugSession) onNextRequest(request *dap.NextRequest) {
	if _, _, err := d.session.HandleRequest("next", nil, 0); err != nil {
		d.sendError(request.Request, err)
		return
	}
	response := &dap.NextResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onStepInRequest(request *dap.StepInRequest) {
	if _, _, err := d.session.HandleRequest("stepIn", nil, 0); err != nil {
		d.sendError(request.Request, err)
		return
	}
	response := &dap.StepInResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onStepOutRequest(request *dap.StepOutRequest) {
	if _, _, err := d.session.HandleRequest("stepOut", nil, 0); err != nil {
		d.sendError(request.Request, err)
		return
	}
	response := &dap.StepOutResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onPauseRequest(request *dap.PauseRequest) {
	if _, _, err := d.session.HandleRequest("pause", nil, 0); err != nil {
		d.sendError(request.Request, err)
		return
	}
	response := &dap.PauseResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	d.send(response)
}

func (d *DebugSession) onDisconnectRequest(request *dap.DisconnectRequest) {
	if _, _, err := d.session.HandleRequest("disconnect", nil, 0); err != nil {
		logrus.WithError(err).Warn("server: disconnect handler failed")
	}
	response := &dap.DisconnectResponse{}
	response.Response = *d.newResponse(request.Seq, request.Command)
	d.send(response)
}

