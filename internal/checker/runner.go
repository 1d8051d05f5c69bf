package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/arbiter-oj/arbiter/internal/sandbox"
)

// Outcome is a comparison verdict.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeWrongAnswer
	// OutcomeCheckerError means the checker itself misbehaved: operators
	// must be able to tell "checker is broken" from "answer is wrong".
	OutcomeCheckerError
)

// Testlib exit codes. 0 is accepted, 1 wrong answer; testlib's
// presentation error (2) counts against the answer. Everything else,
// including _fail (3), is checker breakage.
const (
	exitAccepted          = 0
	exitWrongAnswer       = 1
	exitPresentationError = 2
)

const (
	checkerCPULimit  = 15 * time.Second
	checkerMemKiB    = 512 << 10
	checkerOutputMax = 64 << 10
)

// Runner answers "is this output correct" for one test case.
type Runner struct {
	exec sandbox.Runner
}

func NewRunner(exec sandbox.Runner) *Runner {
	return &Runner{exec: exec}
}

// Check compares a candidate output against the expected answer.
//
// With no checker binary (binID == ""), the default Compare comparator
// decides and no sandbox call is made. Otherwise the checker is run as
// `checker input output answer` (testlib convention) and its exit code is
// the verdict signal. The returned ExecResult is nil for the default
// comparator. An error is returned only for infrastructure faults.
func (r *Runner) Check(ctx context.Context, binID string, input, output, answer []byte) (Outcome, *sandbox.ExecResult, error) {
	if binID == "" {
		if Compare(output, answer) {
			return OutcomeAccepted, nil, nil
		}
		return OutcomeWrongAnswer, nil, nil
	}

	res, err := r.exec.Execute(ctx, sandbox.ExecRequest{
		Args: []string{checkerBinFname, "input.txt", "output.txt", "answer.txt"},
		CopyIn: map[string][]byte{
			"input.txt":  input,
			"output.txt": output,
			"answer.txt": answer,
		},
		CopyInCached: map[string]string{checkerBinFname: binID},
		CPULimit:     checkerCPULimit,
		MemKiB:       checkerMemKiB,
		Procs:        1,
		StdoutMax:    checkerOutputMax,
		StderrMax:    checkerOutputMax,
	})
	if err != nil {
		return OutcomeCheckerError, nil, fmt.Errorf("failed to run checker: %w", err)
	}

	switch res.Status {
	case sandbox.StatusOK:
		return OutcomeAccepted, res, nil
	case sandbox.StatusNonzeroExit:
		switch res.ExitCode {
		case exitWrongAnswer, exitPresentationError:
			return OutcomeWrongAnswer, res, nil
		default:
			return OutcomeCheckerError, res, nil
		}
	default:
		// The checker crashed, timed out or the engine refused it.
		return OutcomeCheckerError, res, nil
	}
}
