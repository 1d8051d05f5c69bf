// Package sandbox adapts logical execution requests onto the REST protocol
// of an external go-judge compatible execution engine. It is the only
// component that talks to the engine, and it owns the global ceiling on
// concurrent in-flight calls.
package sandbox

import (
	"errors"
	"time"
)

// ErrUnavailable marks transport-level failures talking to the engine:
// connection refused, malformed response, guard timeout. It is an
// infrastructure fault, never attributable to the judged program.
var ErrUnavailable = errors.New("sandbox unavailable")

// errRejected marks a request the engine refused outright (4xx). Retrying
// the same request can only fail again, so the retry loop gives up on it.
var errRejected = errors.New("engine rejected request")

// Status is the normalized outcome of one sandboxed execution.
type Status int

const (
	StatusInvalid Status = iota
	StatusOK
	StatusTimeLimitExceeded
	StatusMemoryLimitExceeded
	StatusOutputLimitExceeded
	StatusNonzeroExit
	StatusSignalled
	StatusInternalError
)

var statusNames = []string{
	"invalid",
	"ok",
	"time limit exceeded",
	"memory limit exceeded",
	"output limit exceeded",
	"nonzero exit",
	"signalled",
	"sandbox internal error",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return statusNames[0]
	}
	return statusNames[s]
}

// ExecRequest describes one program execution. Constructed fresh per call,
// never shared.
type ExecRequest struct {
	Args  []string
	Env   []string
	Stdin []byte

	// CopyIn places inline files into the working directory before the
	// run; CopyInCached references files previously cached in the engine.
	CopyIn       map[string][]byte
	CopyInCached map[string]string

	// CopyOutCached asks the engine to keep the named produced files and
	// return ids for them (compiled artifacts).
	CopyOutCached []string

	CPULimit  time.Duration
	WallLimit time.Duration
	MemKiB    int64
	Procs     int

	// Byte caps on captured output. The engine truncates at the cap; the
	// judge never buffers unbounded output.
	StdoutMax int64
	StderrMax int64
}

// ExecResult is the normalized result of one execution. Immutable once
// returned.
type ExecResult struct {
	Status   Status
	ExitCode int
	Signal   int

	CPUTime  time.Duration
	WallTime time.Duration
	MemKiB   int64

	Stdout []byte
	Stderr []byte
	// Truncated is set when either stream hit its byte cap.
	Truncated bool

	// CachedFiles maps CopyOutCached names to engine file ids.
	CachedFiles map[string]string
}
