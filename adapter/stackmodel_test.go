package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeInterp struct{ id string }

func (f fakeInterp) ID() string { return f.id }

type fakeFacade struct {
	frames []FrameInfo
}

func (f *fakeFacade) Attach(func(Event)) error                  { return nil }
func (f *fakeFacade) Detach() error                              { return nil }
func (f *fakeFacade) SetEventMask(EventMask) error                { return nil }
func (f *fakeFacade) CurrentFrameInfo(_ InterpHandle, depth int) (FrameInfo, error) {
	return f.frames[depth], nil
}
func (f *fakeFacade) FrameDepth(InterpHandle) (int, error) { return len(f.frames), nil }
func (f *fakeFacade) FrameLocals(InterpHandle, int) ([]Binding, error)    { return nil, nil }
func (f *fakeFacade) FrameUpvalues(InterpHandle, int) ([]Binding, error)  { return nil, nil }
func (f *fakeFacade) Globals(InterpHandle) ([]Binding, error)             { return nil, nil }
func (f *fakeFacade) Registry(InterpHandle) ([]Binding, error)            { return nil, nil }
func (f *fakeFacade) Compile(InterpHandle, string, []Binding) (Callable, error) {
	return nil, nil
}
func (f *fakeFacade) Call(Callable) (Value, error)                   { return Value{}, nil }
func (f *fakeFacade) ExecutableLines(Source) ([]int, error)           { return nil, nil }
func (f *fakeFacade) SetLocal(InterpHandle, int, string, string) error   { return nil }
func (f *fakeFacade) SetUpvalue(InterpHandle, int, string, string) error { return nil }
func (f *fakeFacade) MainInterp() InterpHandle                        { return fakeInterp{"main"} }
func (f *fakeFacade) SourceText(int) (string, error)                  { return "", nil }

func TestStackModelBuildAndCache(t *testing.T) {
	facade := &fakeFacade{frames: []FrameInfo{
		{Source: Source{Key: "/p/a.lum"}, Line: 3, Name: "foo"},
		{Source: Source{Key: "/p/a.lum"}, Line: 10, Name: "main"},
	}}
	pc := NewPathConvert(nil, nil)
	ft := NewFrameTable()
	model := NewStackModel(fakeInterp{"main"}, ft.CurrentEpoch())

	frames, err := model.Build(facade, pc, ft, 0)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	require.Equal(t, 0, frames[0].Depth)
	require.Equal(t, 3, frames[0].Line)

	again, err := model.Build(facade, pc, ft, 0)
	require.NoError(t, err)
	require.Equal(t, frames[0].Ref, again[0].Ref, "Build must be idempotent within an epoch")
}

func TestStackModelTruncatesWithSentinel(t *testing.T) {
	facade := &fakeFacade{frames: []FrameInfo{
		{Line: 1}, {Line: 2}, {Line: 3},
	}}
	pc := NewPathConvert(nil, nil)
	ft := NewFrameTable()
	model := NewStackModel(fakeInterp{"main"}, ft.CurrentEpoch())

	frames, err := model.Build(facade, pc, ft, 2)
	require.NoError(t, err)
	require.Len(t, frames, 3) // 2 real + 1 sentinel
	require.True(t, frames[2].MoreFrames)
	require.Equal(t, 3, model.TotalFrames())
}
