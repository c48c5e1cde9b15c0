// Package annotation implements the Annotation Processor (C1): a total
// parser from raw machine.Annotation records into typed configuration.
// Parsing never aborts on a malformed shape — on any mismatch the
// annotation's declared default is returned and a warning is logged, in the
// same tolerant-decode-with-defaults style as pkg/config/koanf_loader.go.
package annotation

import (
	"log/slog"

	"github.com/mitchellh/mapstructure"

	"github.com/christopherdebeer/dygram/pkg/machine"
)

// aliasTable maps every recognised name, including aliases, to its
// canonical annotation key.
var aliasTable = map[string]string{
	"barrier": "barrier",
	"wait":    "barrier",
	"sync":    "barrier",
	"join":    "barrier",
	"merge":   "barrier",

	"async":    "async",
	"spawn":    "async",
	"parallel": "async",
	"fork":     "async",

	"meta": "meta",

	"strict":     "strict",
	"StrictMode": "strict",

	"reflect":   "reflect",
	"recheck":   "reflect",
	"doublecheck": "reflect",
}

// Canonicalize maps a recognised annotation name (including any alias) to
// its canonical form. The second return value is false for unrecognised
// names, which callers should simply ignore rather than treat as an error.
func Canonicalize(name string) (string, bool) {
	canon, ok := aliasTable[name]
	return canon, ok
}

// BarrierConfig is the typed form of a `barrier` (`wait`/`sync`/`join`/
// `merge`) annotation on an edge segment.
type BarrierConfig struct {
	ID    string `mapstructure:"id"`
	Merge bool   `mapstructure:"merge"`
}

// AsyncConfig is the typed form of an `async` (`spawn`/`parallel`/`fork`)
// annotation on an edge segment.
type AsyncConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MaxPaths     int    `mapstructure:"maxPaths"`
	Priority     int    `mapstructure:"priority"`
	CopyContext  bool   `mapstructure:"copyContext"`
	Name         string `mapstructure:"name"`
}

// MetaConfig is the typed form of a `meta` annotation on a machine or node.
type MetaConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Scope    string `mapstructure:"scope"`
	ReadOnly bool   `mapstructure:"readonly"`
	Persist  bool   `mapstructure:"persist"`
}

// StrictConfig is the typed form of a `strict` (`StrictMode`) annotation on
// a machine.
type StrictConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ReflectConfig is the typed form of a `reflect` (`recheck`/`doublecheck`)
// annotation on a task node: an extra internal turn asking the model to
// re-check its chosen transition against the node's declared guards before
// the Execution Runtime commits to it.
type ReflectConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// DefaultBarrierConfig returns the declared default for a bare `@barrier`
// marker with no id: id "default", merge false unless the alias used was
// join/merge (tracked separately by callers via the matched alias name).
func DefaultBarrierConfig() BarrierConfig {
	return BarrierConfig{ID: "default", Merge: false}
}

// DefaultAsyncConfig returns the declared default for a bare `@async`
// marker: enabled, copy-context, no priority bias.
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{Enabled: true, CopyContext: true}
}

// DefaultMetaConfig returns the declared default for a bare `@meta` marker.
func DefaultMetaConfig() MetaConfig {
	return MetaConfig{Enabled: true}
}

// DefaultStrictConfig returns the declared default for a bare `@strict`
// marker.
func DefaultStrictConfig() StrictConfig {
	return StrictConfig{Enabled: true}
}

// DefaultReflectConfig returns the declared default for a bare `@reflect`
// marker.
func DefaultReflectConfig() ReflectConfig {
	return ReflectConfig{Enabled: true}
}

// Process parses a matching recognised annotation from annotations into the
// typed record indicated by def's type, falling back to def on any decode
// error. log may be nil, in which case warnings are discarded.
//
// Process applies no alias-sensitive defaults of its own; callers such as
// BarrierFor adjust def for the matched alias before calling it.
func Process[T any](a machine.Annotation, def T, log *slog.Logger) T {
	result := def

	decoderCfg := &mapstructure.DecoderConfig{
		Result:           &result,
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(decoderCfg)
	if err != nil {
		warn(log, a.Name, err)
		return def
	}

	input := map[string]interface{}{}
	for k, v := range a.Attributes {
		input[k] = v
	}
	if a.Value != nil {
		input["value"] = a.Value
	}

	if err := decoder.Decode(input); err != nil {
		warn(log, a.Name, err)
		return def
	}
	return result
}

func warn(log *slog.Logger, name string, err error) {
	if log == nil {
		return
	}
	log.Warn("annotation: falling back to declared default", "annotation", name, "error", err)
}

// BarrierFor resolves the BarrierConfig for a recognised "barrier" alias,
// applying the join/merge-implies-merge rule before decoding explicit
// attributes over it.
func BarrierFor(a machine.Annotation, log *slog.Logger) BarrierConfig {
	def := DefaultBarrierConfig()
	if a.Name == "join" || a.Name == "merge" {
		def.Merge = true
	}
	if s, ok := a.Value.(string); ok && s != "" {
		def.ID = s
	}
	return Process(a, def, log)
}

// AsyncFor resolves the AsyncConfig for a recognised "async" alias. A bare
// `@async("false")` value disables it.
func AsyncFor(a machine.Annotation, log *slog.Logger) AsyncConfig {
	def := DefaultAsyncConfig()
	if s, ok := a.Value.(string); ok && s == "false" {
		def.Enabled = false
	}
	return Process(a, def, log)
}

// MetaFor resolves the MetaConfig for a recognised "meta" annotation.
func MetaFor(a machine.Annotation, log *slog.Logger) MetaConfig {
	def := DefaultMetaConfig()
	if s, ok := a.Value.(string); ok && s == "false" {
		def.Enabled = false
	}
	return Process(a, def, log)
}

// StrictFor resolves the StrictConfig for a recognised "strict" annotation.
func StrictFor(a machine.Annotation, log *slog.Logger) StrictConfig {
	def := DefaultStrictConfig()
	if s, ok := a.Value.(string); ok && s == "false" {
		def.Enabled = false
	}
	return Process(a, def, log)
}

// ReflectFor resolves the ReflectConfig for a recognised "reflect"
// annotation. A bare `@reflect("false")` value disables it.
func ReflectFor(a machine.Annotation, log *slog.Logger) ReflectConfig {
	def := DefaultReflectConfig()
	if s, ok := a.Value.(string); ok && s == "false" {
		def.Enabled = false
	}
	return Process(a, def, log)
}
