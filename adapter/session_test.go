package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumenlang/dap-adapter/constants"
)

// sessionFacade is a fakeFacade specialized for OnInterpreterEvent
// scenarios: CurrentFrameInfo always answers depth 0 with a fixed
// source/line, and FrameDepth is overridable per test.
type sessionFacade struct {
	fakeFacade
	source SourceKey
	line   int
	depth  int
}

func (f *sessionFacade) CurrentFrameInfo(_ InterpHandle, depth int) (FrameInfo, error) {
	return FrameInfo{Source: Source{Key: f.source}, Line: f.line, Name: "main"}, nil
}

func (f *sessionFacade) FrameDepth(InterpHandle) (int, error) { return f.depth, nil }

func newSessionFacade() *sessionFacade {
	return &sessionFacade{source: "/p/a.lum", line: 5, depth: 1}
}

// collectEvents drains emitted envelopes into a channel so a test can
// wait for a specific one (e.g. "stopped") without racing idleLoop.
func collectEvents(buf int) (EmitFunc, chan Envelope) {
	ch := make(chan Envelope, buf)
	return func(env Envelope) { ch <- env }, ch
}

func waitForEvent(t *testing.T, ch chan Envelope, name string) Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-ch:
			if env.Kind == OutboundEvent && env.Name == name {
				return env
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", name)
		}
	}
}

func TestSessionLifecycleHappyPath(t *testing.T) {
	facade := newSessionFacade()
	emit, events := collectEvents(8)
	s := NewSession(facade, emit)
	require.Equal(t, constants.Birth, s.State())

	_, _, err := s.HandleRequest("initialize", nil, 0)
	require.NoError(t, err)
	require.Equal(t, constants.Initialized, s.State())

	_, pending, err := s.HandleRequest("attach", Config{StackTraceLimit: DefaultStackTraceLimit}, 0)
	require.NoError(t, err)
	require.Equal(t, constants.Initialized, s.State())
	s.FlushPendingEvents(pending)
	waitForEvent(t, events, "initialized")

	_, _, err = s.HandleRequest("configurationDone", nil, 0)
	require.NoError(t, err)
	require.Equal(t, constants.Running, s.State())
}

func TestSessionRejectsOutOfOrderRequest(t *testing.T) {
	facade := newSessionFacade()
	s := NewSession(facade, nil)

	_, _, err := s.HandleRequest("configurationDone", nil, 0)
	require.Error(t, err)
	require.Equal(t, constants.Birth, s.State())
}

func TestSessionBreakpointStopAndContinue(t *testing.T) {
	facade := newSessionFacade()
	emit, events := collectEvents(8)
	s := NewSession(facade, emit)

	_, _, err := s.HandleRequest("initialize", nil, 0)
	require.NoError(t, err)
	_, pending, err := s.HandleRequest("attach", Config{StackTraceLimit: DefaultStackTraceLimit}, 0)
	require.NoError(t, err)
	s.FlushPendingEvents(pending)
	waitForEvent(t, events, "initialized")
	_, _, err = s.HandleRequest("configurationDone", nil, 0)
	require.NoError(t, err)

	_, _, err = s.HandleRequest("setBreakpoints", SetBreakpointsArgs{
		Source:      Source{Key: facade.source},
		Breakpoints: []*Breakpoint{{Line: facade.line}},
	}, 0)
	require.NoError(t, err)
	waitForEvent(t, events, "breakpoint")

	done := make(chan struct{})
	go func() {
		s.OnInterpreterEvent(Event{Interp: fakeInterp{"main"}, Kind: constants.EventLine, Line: facade.line})
		close(done)
	}()

	waitForEvent(t, events, "stopped")
	require.Equal(t, constants.Stopped, s.State())

	_, _, err = s.HandleRequest("continue", nil, 0)
	require.NoError(t, err)
	require.Equal(t, constants.Running, s.State())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnInterpreterEvent never returned after continue")
	}
}

func TestSessionStaleReferenceAfterResume(t *testing.T) {
	facade := newSessionFacade()
	emit, events := collectEvents(8)
	s := NewSession(facade, emit)

	_, _, _ = s.HandleRequest("initialize", nil, 0)
	_, pending, _ := s.HandleRequest("attach", Config{StackTraceLimit: DefaultStackTraceLimit}, 0)
	s.FlushPendingEvents(pending)
	waitForEvent(t, events, "initialized")
	_, _, _ = s.HandleRequest("configurationDone", nil, 0)
	_, _, _ = s.HandleRequest("setBreakpoints", SetBreakpointsArgs{
		Source:      Source{Key: facade.source},
		Breakpoints: []*Breakpoint{{Line: facade.line}},
	}, 0)
	waitForEvent(t, events, "breakpoint")

	done := make(chan struct{})
	go func() {
		s.OnInterpreterEvent(Event{Interp: fakeInterp{"main"}, Kind: constants.EventLine, Line: facade.line})
		close(done)
	}()
	waitForEvent(t, events, "stopped")

	stResp, _, err := s.HandleRequest("stackTrace", nil, 0)
	require.NoError(t, err)
	trace := stResp.(StackTraceResponse)
	require.NotEmpty(t, trace.Frames)
	staleFrameID := trace.Frames[0].ID

	_, _, err = s.HandleRequest("continue", nil, 0)
	require.NoError(t, err)
	<-done

	// A second stop bumps the pause epoch; the frame id captured above
	// belongs to the epoch that just ended.
	done2 := make(chan struct{})
	go func() {
		s.OnInterpreterEvent(Event{Interp: fakeInterp{"main"}, Kind: constants.EventLine, Line: facade.line})
		close(done2)
	}()
	waitForEvent(t, events, "stopped")

	_, _, err = s.HandleRequest("scopes", nil, staleFrameID)
	require.Error(t, err, "a frameId from a prior pause epoch must not resolve")

	_, _, err = s.HandleRequest("continue", nil, 0)
	require.NoError(t, err)
	<-done2
}

func TestSessionStopOnEntry(t *testing.T) {
	facade := newSessionFacade()
	emit, events := collectEvents(8)
	s := NewSession(facade, emit)

	_, _, _ = s.HandleRequest("initialize", nil, 0)
	_, pending, _ := s.HandleRequest("attach", Config{StopOnEntry: true, StackTraceLimit: DefaultStackTraceLimit}, 0)
	s.FlushPendingEvents(pending)
	waitForEvent(t, events, "initialized")
	_, _, err := s.HandleRequest("configurationDone", nil, 0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		s.OnInterpreterEvent(Event{Interp: fakeInterp{"main"}, Kind: constants.EventLine, Line: facade.line})
		close(done)
	}()

	env := waitForEvent(t, events, "stopped")
	body := env.Body.(map[string]interface{})
	require.Equal(t, string(constants.StoppedEntry), body["reason"])

	_, _, err = s.HandleRequest("continue", nil, 0)
	require.NoError(t, err)
	<-done
}

func TestSessionDisconnectTerminates(t *testing.T) {
	facade := newSessionFacade()
	s := NewSession(facade, nil)
	_, _, _ = s.HandleRequest("initialize", nil, 0)

	_, _, err := s.HandleRequest("disconnect", nil, 0)
	require.NoError(t, err)
	require.Equal(t, constants.Terminated, s.State())
}
