package adapter

import (
	"fmt"
	"path"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lumenlang/dap-adapter/utils"
)

// sourceMapRule is one `(from_prefix -> to_prefix)` entry (spec §4.1).
type sourceMapRule struct {
	from string
	to   string
}

// PathConvert normalizes and maps between front-end source paths and
// interpreter chunk names. It is the adapter's only place that knows
// about case-insensitive filesystems, source-map prefixes and
// skip-files globs.
type PathConvert struct {
	mu         sync.RWMutex
	rules      []sourceMapRule
	skipGlobs  []string
	caseFold   bool // true on case-insensitive platforms

	// tag disambiguates this PathConvert's synthetic source names from
	// another instance's in the same process (e.g. two DebugSessions
	// sharing a log stream), since the numeric Reference space below is
	// only unique per instance.
	tag string

	nextSourceRef int64
	// synthRef caches the reference id assigned to a synthetic chunk
	// name, so re-deriving the same name yields the same id (round-trip law).
	synthRef map[string]int
}

// NewPathConvert builds a PathConvert. caseFold should be true on
// Windows/macOS-default filesystems; Linux defaults to false.
func NewPathConvert(rules [][2]string, skipFiles []string) *PathConvert {
	pc := &PathConvert{
		caseFold:      runtime.GOOS == "windows" || runtime.GOOS == "darwin",
		skipGlobs:     skipFiles,
		tag:           utils.GetUUID()[:8],
		synthRef:      map[string]int{},
		nextSourceRef: 1,
	}
	for _, r := range rules {
		pc.rules = append(pc.rules, sourceMapRule{from: r[0], to: r[1]})
	}
	return pc
}

// ServerToClient maps an interpreter chunk name to a front-end path,
// applying the first matching rule in reverse.
func (p *PathConvert) ServerToClient(chunkName string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, r := range p.rules {
		if strings.HasPrefix(chunkName, r.to) {
			return r.from + strings.TrimPrefix(chunkName, r.to)
		}
	}
	return chunkName
}

// ClientToServer normalizes a front-end path into a SourceKey,
// applying the first matching forward rule.
func (p *PathConvert) ClientToServer(clientPath string) SourceKey {
	p.mu.RLock()
	rules := p.rules
	p.mu.RUnlock()

	mapped := clientPath
	for _, r := range rules {
		if strings.HasPrefix(clientPath, r.from) {
			mapped = r.to + strings.TrimPrefix(clientPath, r.from)
			break
		}
	}
	return SourceKey(p.normalize(mapped))
}

// normalize expands . / .., folds backslashes to forward slashes,
// lowercases on case-insensitive platforms and drops a trailing slash.
func (p *PathConvert) normalize(raw string) string {
	s := strings.ReplaceAll(raw, "\\", "/")
	s = path.Clean(s)
	s = strings.TrimSuffix(s, "/")
	if p.caseFold {
		s = strings.ToLower(s)
	}
	return s
}

// ResolveSource classifies a raw interpreter chunk name into a Source,
// per spec §3's "Source identity": the `=`/`@` prefix is stripped; a
// `=` name is a chunk label, not a path, and gets a synthetic source,
// while an `@` name and any unprefixed name are treated as paths and
// mapped and normalized. A chunk with no name at all gets a stable
// synthetic "<source:N>" name.
func (p *PathConvert) ResolveSource(chunkName string) Source {
	switch {
	case chunkName == "":
		return p.syntheticSource("")
	case strings.HasPrefix(chunkName, "="), strings.HasPrefix(chunkName, "@"):
		stripped := chunkName[1:]
		if strings.HasPrefix(chunkName, "@") {
			clientPath := p.ServerToClient(stripped)
			return Source{
				Key:  p.ClientToServer(clientPath),
				Path: clientPath,
				Name: path.Base(clientPath),
			}
		}
		return p.syntheticSource(stripped)
	default:
		clientPath := p.ServerToClient(chunkName)
		return Source{
			Key:  p.ClientToServer(clientPath),
			Path: clientPath,
			Name: path.Base(clientPath),
		}
	}
}

// syntheticSource assigns (or reuses) a stable reference id for a
// chunk with no on-disk backing.
func (p *PathConvert) syntheticSource(label string) Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := "=" + label
	ref, ok := p.synthRef[key]
	if !ok {
		ref = int(atomic.AddInt64(&p.nextSourceRef, 1))
		p.synthRef[key] = ref
	}
	name := label
	if name == "" {
		name = fmt.Sprintf("<source:%d>", ref)
	}
	return Source{
		Key:       SourceKey(fmt.Sprintf("<source:%s:%d>", p.tag, ref)),
		Name:      name,
		Reference: ref,
	}
}

// ShouldSkip reports whether path matches a configured skip-files glob.
func (p *PathConvert) ShouldSkip(clientPath string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, g := range p.skipGlobs {
		if ok, _ := path.Match(g, clientPath); ok {
			return true
		}
	}
	return false
}
