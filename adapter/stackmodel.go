package adapter

import (
	"sync"

	e "github.com/lumenlang/dap-adapter/error"
)

// StackModel is the snapshot of paused frames for one pause epoch
// (spec §4.3). It is built lazily on the first `stackTrace` request
// and then cached: two successive stackTrace calls in the same epoch
// must return identical frame ids (spec §8 testable property / S6).
type StackModel struct {
	mu      sync.Mutex
	built   bool
	frames  []StackFrame
	total   int // frames actually walked, before the limit sentinel
	interp  InterpHandle
	epoch   int64
}

// NewStackModel creates an empty, unbuilt model bound to interp/epoch.
// Build must be called before Frames returns anything useful.
func NewStackModel(interp InterpHandle, epoch int64) *StackModel {
	return &StackModel{interp: interp, epoch: epoch}
}

// Build walks the interpreter's call stack outward from depth 0,
// resolving each frame's source through pathConvert and assigning a
// dense frame reference through frameTable. Frames past limit are
// elided with a trailing MoreFrames sentinel (limit <= 0 means
// unlimited).
func (m *StackModel) Build(facade InterpreterFacade, pathConvert *PathConvert, frameTable *FrameTable, limit int) ([]StackFrame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.built {
		return m.frames, nil
	}

	depthCount, err := facade.FrameDepth(m.interp)
	if err != nil {
		return nil, e.Newf(e.ProtocolError, "frame depth: %v", err)
	}

	walk := depthCount
	truncated := false
	if limit > 0 && walk > limit {
		walk = limit
		truncated = true
	}

	frames := make([]StackFrame, 0, walk+1)
	for depth := 0; depth < walk; depth++ {
		info, err := facade.CurrentFrameInfo(m.interp, depth)
		if err != nil {
			return nil, e.Newf(e.ProtocolError, "frame info at depth %d: %v", depth, err)
		}
		src := info.Source
		if src.Key == "" {
			src = pathConvert.ResolveSource(info.Source.Path)
		}
		frame := StackFrame{
			Depth:  depth,
			Source: src,
			Line:   info.Line,
			Name:   info.Name,
		}
		frames = append(frames, frameTable.Issue(frame))
	}
	if truncated {
		frames = append(frames, frameTable.Issue(StackFrame{
			Depth:      walk,
			MoreFrames: true,
		}))
	}

	m.frames = frames
	m.total = depthCount
	m.built = true
	return m.frames, nil
}

// TotalFrames is the true frame count, ignoring the limit (for the
// DAP StackTraceResponse.totalFrames field).
func (m *StackModel) TotalFrames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// FrameByDepth finds a built frame by call depth, used by the
// Evaluator to bind locals/upvalues against a frameId.
func (m *StackModel) FrameByDepth(depth int) (StackFrame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.frames {
		if f.Depth == depth && !f.MoreFrames {
			return f, true
		}
	}
	return StackFrame{}, false
}
