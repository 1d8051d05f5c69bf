// Package lang holds the read-only registry of programming language
// toolchains: how to compile and run a submission for each language id,
// plus per-language resource headroom.
package lang

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownLanguage is returned when a submission declares a language id
// that the registry does not know about. It is a client error, not a
// system fault.
var ErrUnknownLanguage = errors.New("unknown language id")

// Placeholders substituted into command templates.
const (
	PlaceholderSrc = "{src}" // path of the submitted source file
	PlaceholderExe = "{exe}" // path of the compiled artifact
)

// Language describes one toolchain entry. CompileCmd is nil for
// interpreted languages.
//
// MemOffsetKiB and MemMultiplier give managed runtimes headroom above the
// submission's nominal memory limit: the effective sandbox limit is
// nominal*MemMultiplier + MemOffsetKiB. Both are explicit per entry so a
// JVM getting 2x+256MiB is visible in the table, not hidden in a global
// constant.
type Language struct {
	ID       string `toml:"id"`
	Name     string `toml:"name"`
	SrcFname string `toml:"src_fname"`

	CompileCmd []string `toml:"compile_cmd"`
	ExeFname   string   `toml:"exe_fname"`
	RunCmd     []string `toml:"run_cmd"`

	// Compilation is capped independently of the submission's run-time
	// limit. Zero means DefaultCompileCPU.
	CompileCPUMillis int64 `toml:"compile_cpu_millis"`

	MemOffsetKiB  int64   `toml:"mem_offset_kib"`
	MemMultiplier float64 `toml:"mem_multiplier"`

	// Some runtimes need more than one process/thread (JVM, CPython with
	// threads). Zero means DefaultProcLimit.
	ProcLimit int `toml:"proc_limit"`

	Env []string `toml:"env"`
}

const (
	DefaultCompileCPU = 20 * time.Second
	DefaultProcLimit  = 1
)

// Compiled reports whether this language has a compile step.
func (l Language) Compiled() bool { return len(l.CompileCmd) > 0 }

// CompileLimit returns the CPU ceiling for the compile step.
func (l Language) CompileLimit() time.Duration {
	if l.CompileCPUMillis > 0 {
		return time.Duration(l.CompileCPUMillis) * time.Millisecond
	}
	return DefaultCompileCPU
}

// EffectiveMemKiB applies the language's headroom to a nominal limit.
func (l Language) EffectiveMemKiB(nominalKiB int64) int64 {
	mult := l.MemMultiplier
	if mult == 0 {
		mult = 1
	}
	return int64(float64(nominalKiB)*mult) + l.MemOffsetKiB
}

// Procs returns the process-count limit for running this language.
func (l Language) Procs() int {
	if l.ProcLimit > 0 {
		return l.ProcLimit
	}
	return DefaultProcLimit
}

// Render substitutes source and artifact paths into an argv template.
func Render(tmpl []string, src, exe string) []string {
	out := make([]string, len(tmpl))
	for i, a := range tmpl {
		a = strings.ReplaceAll(a, PlaceholderSrc, src)
		a = strings.ReplaceAll(a, PlaceholderExe, exe)
		out[i] = a
	}
	return out
}

// Registry maps language ids to toolchain entries. It is populated once at
// startup and read-only afterwards; there is no mutation API.
type Registry struct {
	byID map[string]Language
}

// NewRegistry builds a registry from the given entries. Later entries with
// a duplicate id override earlier ones, so overrides can be layered on top
// of the built-in table.
func NewRegistry(entries []Language) (*Registry, error) {
	byID := make(map[string]Language, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("language entry %q has empty id", e.Name)
		}
		if e.SrcFname == "" || len(e.RunCmd) == 0 {
			return nil, fmt.Errorf("language %q needs src_fname and run_cmd", e.ID)
		}
		if e.Compiled() && e.ExeFname == "" {
			return nil, fmt.Errorf("language %q has compile_cmd but no exe_fname", e.ID)
		}
		byID[e.ID] = e
	}
	return &Registry{byID: byID}, nil
}

// Lookup resolves a language id. Unknown ids wrap ErrUnknownLanguage.
func (r *Registry) Lookup(id string) (Language, error) {
	l, ok := r.byID[id]
	if !ok {
		return Language{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, id)
	}
	return l, nil
}

// IDs returns all registered language ids.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	return ids
}
