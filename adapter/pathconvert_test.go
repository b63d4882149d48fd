package adapter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathConvertRoundTrip(t *testing.T) {
	pc := NewPathConvert([][2]string{{"/proj", "/build"}}, nil)
	pc.caseFold = false

	clientPath := "/proj/a.lum"
	key := pc.ClientToServer(clientPath)
	require.Equal(t, SourceKey("/build/a.lum"), key)

	back := pc.ServerToClient("/build/a.lum")
	require.Equal(t, clientPath, back)

	require.Equal(t, key, pc.ClientToServer(back))
}

func TestPathConvertNormalizesSlashesAndDots(t *testing.T) {
	pc := NewPathConvert(nil, nil)
	pc.caseFold = false
	key := pc.ClientToServer(`/proj\sub\..\a.lum`)
	require.Equal(t, SourceKey("/proj/a.lum"), key)
}

func TestPathConvertCaseFold(t *testing.T) {
	pc := NewPathConvert(nil, nil)
	pc.caseFold = true
	require.Equal(t, pc.ClientToServer("/Proj/A.lum"), pc.ClientToServer("/proj/a.lum"))
}

func TestResolveSourceSyntheticChunk(t *testing.T) {
	pc := NewPathConvert(nil, nil)
	src := pc.ResolveSource("=stdin")
	require.True(t, src.HasReference())
	require.Equal(t, "stdin", src.Name)

	again := pc.ResolveSource("=stdin")
	require.Equal(t, src.Reference, again.Reference, "re-deriving the same chunk name must yield the same reference id")
}

func TestResolveSourceAnonymousChunk(t *testing.T) {
	pc := NewPathConvert(nil, nil)
	src := pc.ResolveSource("")
	require.True(t, src.HasReference())
	require.Contains(t, src.Name, "<source:")
}

func TestShouldSkip(t *testing.T) {
	pc := NewPathConvert(nil, []string{"/vendor/*"})
	require.True(t, pc.ShouldSkip("/vendor/lib.lum"))
	require.False(t, pc.ShouldSkip("/proj/a.lum"))
}
