package judge

import "github.com/arbiter-oj/arbiter/internal/sandbox"

// Verdict is the categorical judgment of a test case or a submission.
type Verdict string

const (
	VerdictAccepted            Verdict = "AC"
	VerdictWrongAnswer         Verdict = "WA"
	VerdictTimeLimitExceeded   Verdict = "TLE"
	VerdictMemoryLimitExceeded Verdict = "MLE"
	VerdictRuntimeError        Verdict = "RE"
	VerdictOutputLimitExceeded Verdict = "OLE"
	VerdictCheckerError        Verdict = "CF"
	VerdictCompileError        Verdict = "CE"
)

// severity orders verdicts for all-cases mode aggregation. Higher is worse.
var severity = map[Verdict]int{
	VerdictAccepted:            0,
	VerdictCheckerError:        1,
	VerdictOutputLimitExceeded: 2,
	VerdictWrongAnswer:         3,
	VerdictTimeLimitExceeded:   4,
	VerdictMemoryLimitExceeded: 5,
	VerdictRuntimeError:        6,
	VerdictCompileError:        7,
}

// MoreSevere reports whether a outranks b.
func MoreSevere(a, b Verdict) bool { return severity[a] > severity[b] }

// CaseVerdict is the judgment of a single test case, in submission order,
// together with the executions that produced it.
type CaseVerdict struct {
	TestID  int64
	Verdict Verdict
	Run     *sandbox.ExecResult
	Check   *sandbox.ExecResult
}

// SubmissionVerdict is the terminal artifact of one judged submission.
type SubmissionVerdict struct {
	SubmissionID string
	Verdict      Verdict
	Cases        []CaseVerdict

	// Compiler diagnostics, present when the language has a compile step.
	CompileOutput string
	Compile       *sandbox.ExecResult

	// Maxima across executed cases.
	MaxCPUMillis int64
	MaxMemKiB    int64
}
