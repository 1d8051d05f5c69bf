// Package termgath prints judging progress to the terminal. Used by the
// local `judged test` mode.
package termgath

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/arbiter-oj/arbiter/internal/judge"
	"github.com/arbiter-oj/arbiter/internal/sandbox"
)

var (
	okColor   = color.New(color.FgGreen)
	badColor  = color.New(color.FgRed)
	infoColor = color.New(color.FgCyan)
)

type Gatherer struct {
	startedAt time.Time
}

func New() *Gatherer { return &Gatherer{} }

func (g *Gatherer) StartJob(submissionID string) {
	g.startedAt = time.Now()
	infoColor.Printf("== judging %s ==\n", submissionID)
}

func (g *Gatherer) StartCompile() {
	fmt.Println("-- compiling --")
}

func (g *Gatherer) FinishCompile(data *sandbox.ExecResult) {
	if data == nil {
		return
	}
	fmt.Printf("-- compiled: exit=%d cpu=%dms mem=%dKiB --\n",
		data.ExitCode, data.CPUTime.Milliseconds(), data.MemKiB)
}

func (g *Gatherer) ReachTest(testID int64) {
	fmt.Printf("-> test %d\n", testID)
}

func (g *Gatherer) IgnoreTest(testID int64) {
	fmt.Printf("   test %d ignored\n", testID)
}

func (g *Gatherer) FinishTest(cv judge.CaseVerdict) {
	line := fmt.Sprintf("<- test %d: %s", cv.TestID, cv.Verdict)
	if cv.Run != nil {
		line += fmt.Sprintf(" (cpu=%dms mem=%dKiB)",
			cv.Run.CPUTime.Milliseconds(), cv.Run.MemKiB)
	}
	if cv.Verdict == judge.VerdictAccepted {
		okColor.Println(line)
	} else {
		badColor.Println(line)
	}
}

func (g *Gatherer) CompileError(msg string) {
	badColor.Println("== compile error ==")
	fmt.Println(msg)
}

func (g *Gatherer) InternalError(msg string) {
	badColor.Printf("== internal error: %s ==\n", msg)
}

func (g *Gatherer) FinishNoError(v *judge.SubmissionVerdict) {
	dur := time.Since(g.startedAt).Round(time.Millisecond)
	if v.Verdict == judge.VerdictAccepted {
		okColor.Printf("== %s in %s (max cpu=%dms mem=%dKiB) ==\n",
			v.Verdict, dur, v.MaxCPUMillis, v.MaxMemKiB)
	} else {
		badColor.Printf("== %s in %s ==\n", v.Verdict, dur)
	}
}
