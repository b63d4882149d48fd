package adapter

import (
	"github.com/lumenlang/dap-adapter/constants"
	e "github.com/lumenlang/dap-adapter/error"
)

// RequestContext is everything a Handler needs: the decoded request
// body (left to the caller to type-assert, since this package never
// imports go-dap) plus the paused frame context when one exists.
type RequestContext struct {
	Command string
	Args    interface{}
	Session *Session

	// Frame is the currently-selected frame for a Stopped-only command
	// like evaluate/scopes/variables; valid only when HasFrame is true
	// (a request with no frameId, e.g. a watch evaluated against
	// globals, has none).
	Frame    StackFrame
	HasFrame bool
}

// HandlerResult is a Handler's output: a response body plus, when the
// handler causes a state change, the transition Session must apply
// after producing the response (spec §4.7 "producing
// (response, optional_state_transition)").
type HandlerResult struct {
	Body          interface{}
	Transition    constants.SessionState
	HasTransition bool
}

// Handler is a pure function of (request, session, frame context)
// producing (response, optional transition); it never touches the
// Network collaborator directly.
type Handler func(ctx RequestContext) (HandlerResult, error)

// Dispatcher holds the two command tables from spec §4.7: the Main
// table (valid any time the session isn't Stopped) and the Hook table
// (the Main table's commands plus the paused-only ones). The two maps
// are supplied separately; Dispatch consults the Main table first, so
// a command present in both always runs its Main handler.
type Dispatcher struct {
	mainTable map[string]Handler
	hookOnly  map[string]Handler
}

// NewDispatcher builds the dispatch tables. main holds handlers valid
// while Running (and, per spec, also while Stopped — the Hook table is
// a superset); hookOnly holds the handlers that additionally become
// available once Stopped.
func NewDispatcher(main map[string]Handler, hookOnly map[string]Handler) *Dispatcher {
	return &Dispatcher{mainTable: main, hookOnly: hookOnly}
}

// Dispatch routes command to its handler given state. Unknown commands
// return NotSupported; a command only valid while Stopped requested
// while Running returns StateError.
func (d *Dispatcher) Dispatch(ctx RequestContext, state constants.SessionState) (HandlerResult, error) {
	if h, ok := d.mainTable[ctx.Command]; ok {
		return h(ctx)
	}
	if h, ok := d.hookOnly[ctx.Command]; ok {
		if state != constants.Stopped {
			return HandlerResult{}, e.Newf(e.StateError, "%s requires a paused session", ctx.Command)
		}
		return h(ctx)
	}
	return HandlerResult{}, e.Newf(e.NotSupported, "unsupported command %q", ctx.Command)
}

// Commands every command name this Dispatcher knows about, for the
// `threads`-adjacent capability negotiation a front-end may ask for.
func (d *Dispatcher) Commands() []string {
	out := make([]string, 0, len(d.mainTable)+len(d.hookOnly))
	for name := range d.mainTable {
		out = append(out, name)
	}
	for name := range d.hookOnly {
		out = append(out, name)
	}
	return out
}
