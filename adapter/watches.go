package adapter

import (
	"sync"

	"github.com/lumenlang/dap-adapter/utils"
)

// WatchExpr is one user-registered watch expression (spec §4.4's
// "Watches" component): an expression re-evaluated against the
// current pause on demand rather than automatically on every stop,
// matching the front-end's own pull model for the `evaluate` request
// with context "watch". Token is an opaque id a front-end can persist
// across a reconnect without assuming the small-integer ID space
// stays stable session to session.
type WatchExpr struct {
	ID         int
	Token      string
	Expression string
}

// Watches is the small ordered set of expressions a front-end has
// asked to keep re-evaluating. It holds no evaluated values itself —
// WatchResult comes from Evaluator.EvaluateWatch on every Refresh,
// which consults its own (expression, frame, epoch) LRU (spec §4.4)
// so repeated refreshes against an unchanged pause are cache hits, and
// a watch that goes stale (e.g. references a local that fell out of
// scope) fails independently of every other watch.
type Watches struct {
	mu      sync.Mutex
	nextID  int
	entries []WatchExpr
}

func NewWatches() *Watches {
	return &Watches{nextID: 1}
}

// Add registers expression and returns its stable id.
func (w *Watches) Add(expression string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.entries = append(w.entries, WatchExpr{ID: id, Token: utils.GetUUID(), Expression: expression})
	return id
}

// Remove drops a watch by id. Reports whether it existed.
func (w *Watches) Remove(id int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, ent := range w.entries {
		if ent.ID == id {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			return true
		}
	}
	return false
}

// All returns a snapshot of the registered watches, in insertion order.
func (w *Watches) All() []WatchExpr {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]WatchExpr, len(w.entries))
	copy(out, w.entries)
	return out
}

// WatchResult is one watch's outcome after a Refresh.
type WatchResult struct {
	WatchExpr
	EvalResult
	Err error
}

// Refresh re-evaluates every registered watch against interp/frameDepth
// for the given pause epoch, one at a time through Evaluator's cache; a
// failing watch does not stop the others from running.
func Refresh(w *Watches, ev *Evaluator, interp InterpHandle, frameDepth int, epoch int64) []WatchResult {
	entries := w.All()
	results := make([]WatchResult, len(entries))
	for i, ent := range entries {
		res, err := ev.EvaluateWatch(interp, frameDepth, epoch, ent.Expression)
		results[i] = WatchResult{WatchExpr: ent, EvalResult: res, Err: err}
	}
	return results
}
