package adapter

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/lumenlang/dap-adapter/constants"
	e "github.com/lumenlang/dap-adapter/error"
	"github.com/lumenlang/dap-adapter/utils"
)

// Config is the decoded attach/launch configuration (SPEC_FULL.md §2).
// It is deliberately a plain struct decoded with encoding/json for the
// fields the adapter actually models; gjson is reserved for the one
// spot below where a front-end's launch blob may carry extra fields
// this struct never needs to know about.
type Config struct {
	SourceMaps      [][2]string `json:"-"`
	SkipFiles       []string    `json:"skipFiles"`
	StopOnEntry     bool        `json:"stopOnEntry"`
	ConsoleCoding   string      `json:"consoleCoding"`
	StackTraceLimit int         `json:"stackTraceLimit"`
	ExceptionFilter []string    `json:"exceptionFilters"`
}

// DefaultStackTraceLimit replaces a zero or absent stackTraceLimit in
// ParseConfig, so an omitted limit means 200 frames, not the
// "limit <= 0 means unlimited" of StackModel.Build.
const DefaultStackTraceLimit = 200

// ParseConfig decodes raw against Config's known fields with
// encoding/json, then uses gjson to tolerantly pull out sourceMaps —
// an array of {from, to} pairs some front-ends nest under different
// key names (`sourceMapPathOverrides` in one client, `sourceMaps` in
// another) alongside fields this struct never models.
func ParseConfig(raw json.RawMessage) (Config, error) {
	var cfg Config
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Config{}, e.BadField("launch config", "malformed JSON")
		}
	}
	if cfg.StackTraceLimit == 0 {
		cfg.StackTraceLimit = DefaultStackTraceLimit
	}

	result := gjson.ParseBytes(raw)
	maps := firstPresent(result, "sourceMaps", "sourceMapPathOverrides")
	if maps.Exists() {
		maps.ForEach(func(_, pair gjson.Result) bool {
			from := pair.Get("from").String()
			to := pair.Get("to").String()
			if from == "" {
				// {"/build/*": "/src/*"}-style single-key object, the
				// VS Code sourceMapPathOverrides shape.
				pair.ForEach(func(k, v gjson.Result) bool {
					cfg.SourceMaps = append(cfg.SourceMaps, [2]string{k.String(), v.String()})
					return true
				})
				return true
			}
			cfg.SourceMaps = append(cfg.SourceMaps, [2]string{from, to})
			return true
		})
	}
	return cfg, nil
}

func firstPresent(result gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := result.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// ExceptionMask converts cfg's filter names into the bitmap HookEngine
// consults on every Error event (spec §9's bitmap note). The filter
// list is deduplicated through a set before the mask-OR, the same way
// the teacher's List2set backs other dedup-then-scan spots.
func (cfg Config) ExceptionMask() constants.ExceptionFilter {
	set := utils.List2set(cfg.ExceptionFilter)
	var mask constants.ExceptionFilter
	for name, bit := range constants.FilterName {
		if set.Contains(name) {
			mask |= bit
		}
	}
	return mask
}
