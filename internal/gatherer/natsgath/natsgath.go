// Package natsgath streams judging progress over NATS so frontends can
// show live status. One subject per submission; payloads are
// snappy-compressed JSON.
package natsgath

import (
	"encoding/json"
	"log/slog"

	"github.com/klauspost/compress/snappy"
	"github.com/nats-io/nats.go"

	"github.com/arbiter-oj/arbiter/internal/judge"
	"github.com/arbiter-oj/arbiter/internal/sandbox"
)

const subjectPrefix = "judge.progress."

// Message types.
const (
	MsgStartJob      = "job_start"
	MsgStartCompile  = "compile_start"
	MsgFinishCompile = "compile_finish"
	MsgReachTest     = "test_reach"
	MsgIgnoreTest    = "test_ignore"
	MsgFinishTest    = "test_finish"
	MsgCompileError  = "compile_error"
	MsgInternalError = "internal_error"
	MsgFinishJob     = "job_finish"
)

type header struct {
	SubmissionID string `json:"submission_id"`
	MsgType      string `json:"msg_type"`
}

type runData struct {
	Stdout   string `json:"out,omitempty"`
	Stderr   string `json:"err,omitempty"`
	ExitCode int    `json:"exit"`

	CPUMillis  int64 `json:"cpu_ms"`
	WallMillis int64 `json:"wall_ms"`
	MemKiB     int64 `json:"mem_kib"`
}

type testMsg struct {
	header
	TestID  int64    `json:"test_id"`
	Verdict string   `json:"verdict,omitempty"`
	Run     *runData `json:"run,omitempty"`
	Check   *runData `json:"check,omitempty"`
}

type errMsg struct {
	header
	Message string `json:"message"`
}

type finishMsg struct {
	header
	Verdict      string `json:"verdict"`
	MaxCPUMillis int64  `json:"max_cpu_ms"`
	MaxMemKiB    int64  `json:"max_mem_kib"`
}

type compileMsg struct {
	header
	Run *runData `json:"run,omitempty"`
}

// Gatherer publishes one submission's progress. Not safe for concurrent
// submissions; create one per pipeline run.
type Gatherer struct {
	nc           *nats.Conn
	submissionID string
	logger       *slog.Logger
}

func New(nc *nats.Conn, submissionID string, logger *slog.Logger) *Gatherer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gatherer{
		nc:           nc,
		submissionID: submissionID,
		logger:       logger.With("component", "natsgath"),
	}
}

func (g *Gatherer) send(msg any) {
	marshalled, err := json.Marshal(msg)
	if err != nil {
		g.logger.Error("failed to marshal progress message", "err", err)
		return
	}
	compressed := snappy.Encode(nil, marshalled)
	if err := g.nc.Publish(subjectPrefix+g.submissionID, compressed); err != nil {
		g.logger.Warn("failed to publish progress", "err", err)
	}
}

func (g *Gatherer) head(t string) header {
	return header{SubmissionID: g.submissionID, MsgType: t}
}

func mapRun(res *sandbox.ExecResult) *runData {
	if res == nil {
		return nil
	}
	return &runData{
		Stdout:     trimToRect(string(res.Stdout), maxHeight, maxWidth),
		Stderr:     trimToRect(string(res.Stderr), maxHeight, maxWidth),
		ExitCode:   res.ExitCode,
		CPUMillis:  res.CPUTime.Milliseconds(),
		WallMillis: res.WallTime.Milliseconds(),
		MemKiB:     res.MemKiB,
	}
}

func (g *Gatherer) StartJob(string) {
	g.send(g.head(MsgStartJob))
}

func (g *Gatherer) StartCompile() {
	g.send(g.head(MsgStartCompile))
}

func (g *Gatherer) FinishCompile(data *sandbox.ExecResult) {
	g.send(compileMsg{header: g.head(MsgFinishCompile), Run: mapRun(data)})
}

func (g *Gatherer) ReachTest(testID int64) {
	g.send(testMsg{header: g.head(MsgReachTest), TestID: testID})
}

func (g *Gatherer) IgnoreTest(testID int64) {
	g.send(testMsg{header: g.head(MsgIgnoreTest), TestID: testID})
}

func (g *Gatherer) FinishTest(cv judge.CaseVerdict) {
	g.send(testMsg{
		header:  g.head(MsgFinishTest),
		TestID:  cv.TestID,
		Verdict: string(cv.Verdict),
		Run:     mapRun(cv.Run),
		Check:   mapRun(cv.Check),
	})
}

func (g *Gatherer) CompileError(msg string) {
	g.send(errMsg{header: g.head(MsgCompileError), Message: msg})
}

func (g *Gatherer) InternalError(msg string) {
	g.send(errMsg{header: g.head(MsgInternalError), Message: msg})
}

func (g *Gatherer) FinishNoError(v *judge.SubmissionVerdict) {
	g.send(finishMsg{
		header:       g.head(MsgFinishJob),
		Verdict:      string(v.Verdict),
		MaxCPUMillis: v.MaxCPUMillis,
		MaxMemKiB:    v.MaxMemKiB,
	})
}
