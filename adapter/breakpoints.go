package adapter

import (
	"strconv"
	"strings"
	"sync"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"

	e "github.com/lumenlang/dap-adapter/error"
)

// BreakpointStore holds the per-source breakpoint sets (spec §4.2).
// Each source's breakpoints live in a red-black tree keyed by line
// number, giving the hot path an O(log n), allocation-free lookup
// (gods' Get does not allocate). Set's verification pass does not use
// the tree: it snaps an unverified line to the nearest following
// executable one with a linear scan of the facade's line list.
type BreakpointStore struct {
	mu    sync.RWMutex
	lines map[SourceKey]*redblacktree.Tree
	count int
}

// executableLineLookup resolves the executable lines for a source, or
// nil if the facade can't report them (spec §4.2/§6: "breakpoints are
// trusted as-given").
type executableLineLookup func(Source) ([]int, error)

func NewBreakpointStore() *BreakpointStore {
	return &BreakpointStore{
		lines: map[SourceKey]*redblacktree.Tree{},
	}
}

// HasAny reports whether any source has at least one breakpoint. It is
// read under RLock and does no allocation, satisfying HookEngine's
// hot-path contract (spec §4.6 testable property 4).
func (b *BreakpointStore) HasAny() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count > 0
}

// Query looks up the breakpoint at (source, line), if any. Hot path:
// no allocation, a single tree descent.
func (b *BreakpointStore) Query(source SourceKey, line int) (*Breakpoint, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tree, ok := b.lines[source]
	if !ok {
		return nil, false
	}
	v, ok := tree.Get(line)
	if !ok {
		return nil, false
	}
	return v.(*Breakpoint), true
}

// Set atomically replaces all breakpoints for source, verifying each
// against resolve's executable-line table when one is available.
// Returns the (possibly snapped) breakpoints in input order.
func (b *BreakpointStore) Set(source Source, incoming []*Breakpoint, resolve executableLineLookup) ([]*Breakpoint, error) {
	var exec []int
	if resolve != nil {
		lines, err := resolve(source)
		if err != nil {
			return nil, e.Newf(e.ProtocolError, "executable lines lookup failed: %v", err)
		}
		exec = lines
	}

	tree := redblacktree.NewWith(utils.IntComparator)
	out := make([]*Breakpoint, len(incoming))
	for i, bp := range incoming {
		if bp.HitCondition != "" {
			if _, err := ParseHitCondition(bp.HitCondition); err != nil {
				return nil, err
			}
		}
		bp.Source = source.Key
		line := bp.Line
		if exec != nil && !containsInt(exec, line) {
			if snapped, ok := ceiling(exec, line); ok {
				bp.VerifiedLine = snapped
				bp.Verified = true
			} else {
				bp.VerifiedLine = line
				bp.Verified = false
			}
		} else {
			bp.VerifiedLine = line
			bp.Verified = true
		}
		tree.Put(bp.VerifiedLine, bp)
		out[i] = bp
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if old, ok := b.lines[source.Key]; ok {
		b.count -= old.Size()
	}
	if tree.Size() > 0 {
		b.lines[source.Key] = tree
	} else {
		delete(b.lines, source.Key)
	}
	b.count += tree.Size()
	return out, nil
}

// All returns every breakpoint for source, sorted by line.
func (b *BreakpointStore) All(source SourceKey) []*Breakpoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tree, ok := b.lines[source]
	if !ok {
		return nil
	}
	values := tree.Values()
	out := make([]*Breakpoint, len(values))
	for i, v := range values {
		out[i] = v.(*Breakpoint)
	}
	return out
}

// RecordHit increments the hit counter for a breakpoint and evaluates
// the hit-condition grammar from spec §4.2/§9: bare integer == N,
// `>N`, `==N`, `%N==0`. Unknown grammar is a ProtocolError raised at
// set-time by ParseHitCondition, not here.
func (bp *Breakpoint) RecordHit() bool {
	bp.hitCount++
	if bp.HitCondition == "" {
		return true
	}
	cond, err := ParseHitCondition(bp.HitCondition)
	if err != nil {
		return true // grammar was already rejected by Set; unreachable in practice
	}
	return cond.Satisfied(bp.hitCount)
}

// HitCount exposes the running counter, e.g. for tests.
func (bp *Breakpoint) HitCount() int { return bp.hitCount }

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// ceiling returns the smallest value in xs that is >= v.
func ceiling(xs []int, v int) (int, bool) {
	best := 0
	found := false
	for _, x := range xs {
		if x >= v && (!found || x < best) {
			best, found = x, true
		}
	}
	return best, found
}

// HitConditionOp is the comparison operator in a hit-condition expression.
type HitConditionOp int

const (
	HitOpEquals HitConditionOp = iota
	HitOpGreater
	HitOpModZero
)

// HitCondition is a parsed hit-condition expression (spec §4.2, §9).
type HitCondition struct {
	Op HitConditionOp
	N  int
}

func (h HitCondition) Satisfied(count int) bool {
	switch h.Op {
	case HitOpGreater:
		return count > h.N
	case HitOpModZero:
		return h.N != 0 && count%h.N == 0
	default:
		return count == h.N
	}
}

// ParseHitCondition accepts, at minimum, an integer literal, `>N`,
// `==N`, and `%N==0`; anything else is a ProtocolError (spec §9 open
// question, resolved here by documenting exactly this grammar).
func ParseHitCondition(expr string) (HitCondition, error) {
	s := strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(s, ">"):
		n, err := atoi(s[1:])
		if err != nil {
			return HitCondition{}, e.BadField("hitCondition", "expected >N")
		}
		return HitCondition{Op: HitOpGreater, N: n}, nil
	case strings.HasPrefix(s, "=="):
		n, err := atoi(s[2:])
		if err != nil {
			return HitCondition{}, e.BadField("hitCondition", "expected ==N")
		}
		return HitCondition{Op: HitOpEquals, N: n}, nil
	case strings.HasSuffix(s, "==0") && strings.HasPrefix(s, "%"):
		n, err := atoi(strings.TrimSuffix(s[1:], "==0"))
		if err != nil {
			return HitCondition{}, e.BadField("hitCondition", "expected %N==0")
		}
		return HitCondition{Op: HitOpModZero, N: n}, nil
	default:
		n, err := atoi(s)
		if err != nil {
			return HitCondition{}, e.BadField("hitCondition", "unsupported hit-condition grammar")
		}
		return HitCondition{Op: HitOpEquals, N: n}, nil
	}
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, e.New(e.ProtocolError, "not an integer")
	}
	return n, nil
}
