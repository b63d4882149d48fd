package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumenlang/dap-adapter/constants"
	e "github.com/lumenlang/dap-adapter/error"
)

func echoHandler(ctx RequestContext) (HandlerResult, error) {
	return HandlerResult{Body: ctx.Command}, nil
}

func newTestDispatcher() *Dispatcher {
	main := map[string]Handler{"pause": echoHandler}
	hookOnly := map[string]Handler{"stackTrace": echoHandler}
	return NewDispatcher(main, hookOnly)
}

func TestDispatcherMainCommandAnyState(t *testing.T) {
	d := newTestDispatcher()
	res, err := d.Dispatch(RequestContext{Command: "pause"}, constants.Running)
	require.NoError(t, err)
	require.Equal(t, "pause", res.Body)

	res, err = d.Dispatch(RequestContext{Command: "pause"}, constants.Stopped)
	require.NoError(t, err)
	require.Equal(t, "pause", res.Body)
}

func TestDispatcherHookOnlyRequiresStopped(t *testing.T) {
	d := newTestDispatcher()
	_, err := d.Dispatch(RequestContext{Command: "stackTrace"}, constants.Running)
	require.Error(t, err)
	require.Equal(t, e.StateError, e.AsCoded(err).Kind)

	res, err := d.Dispatch(RequestContext{Command: "stackTrace"}, constants.Stopped)
	require.NoError(t, err)
	require.Equal(t, "stackTrace", res.Body)
}

func TestDispatcherUnknownCommand(t *testing.T) {
	d := newTestDispatcher()
	_, err := d.Dispatch(RequestContext{Command: "bogus"}, constants.Running)
	require.Error(t, err)
	require.Equal(t, e.NotSupported, e.AsCoded(err).Kind)
}

func TestDispatcherCommandsListsBoth(t *testing.T) {
	d := newTestDispatcher()
	require.ElementsMatch(t, []string{"pause", "stackTrace"}, d.Commands())
}
