package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBreakpointStoreSetAndQuery(t *testing.T) {
	store := NewBreakpointStore()
	src := Source{Key: "/p/a.lum"}
	out, err := store.Set(src, []*Breakpoint{{Line: 3}}, nil)
	require.NoError(t, err)
	require.True(t, out[0].Verified)
	require.True(t, store.HasAny())

	bp, ok := store.Query(src.Key, 3)
	require.True(t, ok)
	require.Equal(t, 3, bp.Line)
}

func TestBreakpointStoreReplaceIsAtomic(t *testing.T) {
	store := NewBreakpointStore()
	src := Source{Key: "/p/a.lum"}
	_, err := store.Set(src, []*Breakpoint{{Line: 3}, {Line: 10}}, nil)
	require.NoError(t, err)

	_, err = store.Set(src, []*Breakpoint{{Line: 5}}, nil)
	require.NoError(t, err)

	_, ok := store.Query(src.Key, 3)
	require.False(t, ok, "old breakpoints must be gone after a replacing Set")
	_, ok = store.Query(src.Key, 5)
	require.True(t, ok)
}

func TestBreakpointStoreSnapsToExecutableLine(t *testing.T) {
	store := NewBreakpointStore()
	src := Source{Key: "/p/a.lum"}
	resolve := func(Source) ([]int, error) { return []int{1, 4, 8}, nil }

	out, err := store.Set(src, []*Breakpoint{{Line: 3}}, resolve)
	require.NoError(t, err)
	require.True(t, out[0].Verified)
	require.Equal(t, 4, out[0].VerifiedLine)

	_, ok := store.Query(src.Key, 4)
	require.True(t, ok)
}

func TestBreakpointStoreUnverifiedPastLastExecutableLine(t *testing.T) {
	store := NewBreakpointStore()
	src := Source{Key: "/p/a.lum"}
	resolve := func(Source) ([]int, error) { return []int{1, 4}, nil }

	out, err := store.Set(src, []*Breakpoint{{Line: 100}}, resolve)
	require.NoError(t, err)
	require.False(t, out[0].Verified)
}

func TestHasAnyFalseWhenEmpty(t *testing.T) {
	store := NewBreakpointStore()
	require.False(t, store.HasAny())
	_, err := store.Set(Source{Key: "/p/a.lum"}, nil, nil)
	require.NoError(t, err)
	require.False(t, store.HasAny())
}

func TestParseHitCondition(t *testing.T) {
	cases := []struct {
		expr  string
		count int
		want  bool
	}{
		{"5", 5, true},
		{"5", 4, false},
		{">5", 6, true},
		{">5", 5, false},
		{"==3", 3, true},
		{"%2==0", 4, true},
		{"%2==0", 3, false},
	}
	for _, c := range cases {
		cond, err := ParseHitCondition(c.expr)
		require.NoError(t, err, c.expr)
		require.Equal(t, c.want, cond.Satisfied(c.count), c.expr)
	}
}

func TestParseHitConditionRejectsUnknownGrammar(t *testing.T) {
	_, err := ParseHitCondition("i == 5")
	require.Error(t, err)
}

func TestRecordHitHonorsHitCondition(t *testing.T) {
	bp := &Breakpoint{HitCondition: "==3"}
	require.False(t, bp.RecordHit())
	require.False(t, bp.RecordHit())
	require.True(t, bp.RecordHit())
	require.False(t, bp.RecordHit())
}
