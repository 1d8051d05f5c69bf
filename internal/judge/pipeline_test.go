package judge_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiter-oj/arbiter/internal/checker"
	"github.com/arbiter-oj/arbiter/internal/judge"
	"github.com/arbiter-oj/arbiter/internal/lang"
	"github.com/arbiter-oj/arbiter/internal/sandbox"
)

// routeEngine dispatches Execute calls to a per-test handler and records
// every request so tests can count compile vs run steps.
type routeEngine struct {
	mu      sync.Mutex
	handle  func(sandbox.ExecRequest) (*sandbox.ExecResult, error)
	calls   []sandbox.ExecRequest
	removed []string
}

func (e *routeEngine) Execute(_ context.Context, req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req)
	e.mu.Unlock()
	return e.handle(req)
}

func (e *routeEngine) RemoveFile(_ context.Context, id string) error {
	e.mu.Lock()
	e.removed = append(e.removed, id)
	e.mu.Unlock()
	return nil
}

// isCompile reports whether a request is a compile step (it caches an
// artifact out of the sandbox).
func isCompile(req sandbox.ExecRequest) bool {
	return len(req.CopyOutCached) > 0
}

func (e *routeEngine) runCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if !isCompile(c) {
			n++
		}
	}
	return n
}

// spyGatherer records which progress events fired.
type spyGatherer struct {
	judge.NopGatherer
	finished []judge.CaseVerdict
	ignored  []int64
	compiles int
}

func (g *spyGatherer) StartCompile()                   { g.compiles++ }
func (g *spyGatherer) FinishTest(cv judge.CaseVerdict) { g.finished = append(g.finished, cv) }
func (g *spyGatherer) IgnoreTest(id int64)             { g.ignored = append(g.ignored, id) }

func newPipeline(t *testing.T, eng sandbox.Runner) *judge.Pipeline {
	t.Helper()
	reg, err := lang.NewRegistry(lang.Defaults())
	require.NoError(t, err)
	comp := checker.NewCompiler(eng, "", nil)
	return judge.NewPipeline(reg, eng, checker.NewRunner(eng), comp, nil)
}

func baseSubmission(tests ...judge.TestCase) judge.Submission {
	return judge.Submission{
		ID:        "sub-1",
		Source:    "print(input())",
		LangID:    "python3",
		CPUMillis: 2000,
		MemKiB:    256 << 10,
		Tests:     tests,
	}
}

func tc(id int64, in, ans string) judge.TestCase {
	return judge.TestCase{ID: id, Input: []byte(in), Answer: []byte(ans)}
}

func echoEngine() *routeEngine {
	e := &routeEngine{}
	e.handle = func(req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
		return &sandbox.ExecResult{
			Status: sandbox.StatusOK,
			Stdout: req.Stdin,
		}, nil
	}
	return e
}

func TestJudgeAccepted(t *testing.T) {
	eng := echoEngine()
	p := newPipeline(t, eng)

	v, err := p.Judge(context.Background(), baseSubmission(
		tc(1, "1\n", "1\n"),
		tc(2, "2\n", "2\n"),
	), nil)
	require.NoError(t, err)
	require.Equal(t, judge.VerdictAccepted, v.Verdict)
	require.Len(t, v.Cases, 2)
	// interpreted language: ships source, never compiles
	require.Equal(t, 2, len(eng.calls))
	for _, c := range eng.calls {
		require.False(t, isCompile(c))
		require.Contains(t, c.CopyIn, "main.py")
	}
}

func TestCompileErrorRunsNoTests(t *testing.T) {
	eng := &routeEngine{}
	eng.handle = func(req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
		require.True(t, isCompile(req), "only the compile step may reach the sandbox")
		return &sandbox.ExecResult{
			Status:   sandbox.StatusNonzeroExit,
			ExitCode: 1,
			Stderr:   []byte("main.cpp:3: error: expected ';'"),
		}, nil
	}
	p := newPipeline(t, eng)

	sub := baseSubmission(tc(1, "1\n", "1\n"), tc(2, "2\n", "2\n"))
	sub.LangID = "cpp17"
	sub.Source = "int main( {}"

	gath := &spyGatherer{}
	v, err := p.Judge(context.Background(), sub, gath)
	require.NoError(t, err)
	require.Equal(t, judge.VerdictCompileError, v.Verdict)
	require.Contains(t, v.CompileOutput, "expected ';'")
	require.Empty(t, v.Cases)
	require.Equal(t, 0, eng.runCalls())
	require.Equal(t, 1, gath.compiles)
}

func TestShortCircuitStopsAtFirstFailure(t *testing.T) {
	eng := &routeEngine{}
	eng.handle = func(req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
		out := req.Stdin
		if string(req.Stdin) == "2\n" {
			out = []byte("wrong\n")
		}
		return &sandbox.ExecResult{Status: sandbox.StatusOK, Stdout: out}, nil
	}
	p := newPipeline(t, eng)

	gath := &spyGatherer{}
	v, err := p.Judge(context.Background(), baseSubmission(
		tc(1, "1\n", "1\n"),
		tc(2, "2\n", "2\n"),
		tc(3, "3\n", "3\n"),
		tc(4, "4\n", "4\n"),
	), gath)
	require.NoError(t, err)
	require.Equal(t, judge.VerdictWrongAnswer, v.Verdict)
	require.Len(t, v.Cases, 2, "judging stops at the first failing case")
	require.Equal(t, []int64{3, 4}, gath.ignored)
	require.Equal(t, 2, eng.runCalls())
}

func TestJudgeAllReportsMostSevere(t *testing.T) {
	eng := &routeEngine{}
	eng.handle = func(req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
		switch string(req.Stdin) {
		case "2\n":
			return &sandbox.ExecResult{Status: sandbox.StatusOK, Stdout: []byte("wrong\n")}, nil
		case "3\n":
			return &sandbox.ExecResult{Status: sandbox.StatusTimeLimitExceeded}, nil
		default:
			return &sandbox.ExecResult{Status: sandbox.StatusOK, Stdout: req.Stdin}, nil
		}
	}
	p := newPipeline(t, eng)

	sub := baseSubmission(
		tc(1, "1\n", "1\n"),
		tc(2, "2\n", "2\n"),
		tc(3, "3\n", "3\n"),
		tc(4, "4\n", "4\n"),
	)
	sub.JudgeAll = true

	gath := &spyGatherer{}
	v, err := p.Judge(context.Background(), sub, gath)
	require.NoError(t, err)
	require.Len(t, v.Cases, 4, "judge-all runs every case")
	require.Empty(t, gath.ignored)
	require.Equal(t, judge.VerdictTimeLimitExceeded, v.Verdict,
		"time limit outranks wrong answer in the aggregate")
}

func TestVerdictMaxima(t *testing.T) {
	eng := &routeEngine{}
	times := map[string]time.Duration{"1\n": 120 * time.Millisecond, "2\n": 480 * time.Millisecond}
	mems := map[string]int64{"1\n": 10 << 10, "2\n": 50 << 10}
	eng.handle = func(req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
		return &sandbox.ExecResult{
			Status:  sandbox.StatusOK,
			Stdout:  req.Stdin,
			CPUTime: times[string(req.Stdin)],
			MemKiB:  mems[string(req.Stdin)],
		}, nil
	}
	p := newPipeline(t, eng)

	v, err := p.Judge(context.Background(), baseSubmission(
		tc(1, "1\n", "1\n"),
		tc(2, "2\n", "2\n"),
	), nil)
	require.NoError(t, err)
	require.Equal(t, int64(480), v.MaxCPUMillis)
	require.Equal(t, int64(50<<10), v.MaxMemKiB)
}

func TestCheckerDecidesOverComparator(t *testing.T) {
	eng := &routeEngine{}
	eng.handle = func(req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
		switch {
		case isCompile(req):
			return &sandbox.ExecResult{
				Status:      sandbox.StatusOK,
				CachedFiles: map[string]string{"checker": "CHK1"},
			}, nil
		case req.Args[0] == "checker":
			// accepts anything, even output the comparator would reject
			return &sandbox.ExecResult{Status: sandbox.StatusOK}, nil
		default:
			return &sandbox.ExecResult{Status: sandbox.StatusOK, Stdout: []byte("0.5000001\n")}, nil
		}
	}
	p := newPipeline(t, eng)

	sub := baseSubmission(tc(1, "1 2\n", "0.5\n"))
	sub.Checker = "#include \"testlib.h\"\nint main() { /* eps compare */ }"

	v, err := p.Judge(context.Background(), sub, nil)
	require.NoError(t, err)
	require.Equal(t, judge.VerdictAccepted, v.Verdict)
}

func TestRuntimeErrorVerdict(t *testing.T) {
	eng := &routeEngine{}
	eng.handle = func(sandbox.ExecRequest) (*sandbox.ExecResult, error) {
		return &sandbox.ExecResult{Status: sandbox.StatusSignalled, Signal: 11}, nil
	}
	p := newPipeline(t, eng)

	v, err := p.Judge(context.Background(), baseSubmission(tc(1, "1\n", "1\n")), nil)
	require.NoError(t, err)
	require.Equal(t, judge.VerdictRuntimeError, v.Verdict)
}

func TestEngineFaultIsNotAVerdict(t *testing.T) {
	eng := &routeEngine{}
	eng.handle = func(sandbox.ExecRequest) (*sandbox.ExecResult, error) {
		return nil, sandbox.ErrUnavailable
	}
	p := newPipeline(t, eng)

	_, err := p.Judge(context.Background(), baseSubmission(tc(1, "1\n", "1\n")), nil)
	require.ErrorIs(t, err, sandbox.ErrUnavailable)
}

func TestUnknownLanguageRejectedBeforeSandbox(t *testing.T) {
	eng := echoEngine()
	p := newPipeline(t, eng)

	sub := baseSubmission(tc(1, "1\n", "1\n"))
	sub.LangID = "cobol"
	_, err := p.Judge(context.Background(), sub, nil)
	require.ErrorIs(t, err, lang.ErrUnknownLanguage)
	require.Empty(t, eng.calls)
}

func TestInvalidSubmissionRejected(t *testing.T) {
	eng := echoEngine()
	p := newPipeline(t, eng)

	sub := baseSubmission()
	_, err := p.Judge(context.Background(), sub, nil)
	require.ErrorIs(t, err, judge.ErrInvalidSubmission)
	require.Empty(t, eng.calls)
}

func TestExpiredDeadlineIsJudgeTimeout(t *testing.T) {
	eng := echoEngine()
	p := newPipeline(t, eng)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err := p.Judge(ctx, baseSubmission(tc(1, "1\n", "1\n")), nil)
	require.ErrorIs(t, err, judge.ErrJudgeTimeout)
}

func TestShutdownCancelIsNotJudgeTimeout(t *testing.T) {
	eng := echoEngine()
	p := newPipeline(t, eng)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Judge(ctx, baseSubmission(tc(1, "1\n", "1\n")), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, judge.ErrJudgeTimeout)
}

func TestCompiledArtifactRemovedAfterJudging(t *testing.T) {
	eng := &routeEngine{}
	eng.handle = func(req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
		if isCompile(req) {
			return &sandbox.ExecResult{
				Status:      sandbox.StatusOK,
				CachedFiles: map[string]string{"main": "EXE1"},
			}, nil
		}
		require.Equal(t, map[string]string{"main": "EXE1"}, req.CopyInCached)
		return &sandbox.ExecResult{Status: sandbox.StatusOK, Stdout: req.Stdin}, nil
	}
	p := newPipeline(t, eng)

	sub := baseSubmission(tc(1, "1\n", "1\n"))
	sub.LangID = "cpp17"
	sub.Source = "int main() {}"

	v, err := p.Judge(context.Background(), sub, nil)
	require.NoError(t, err)
	require.Equal(t, judge.VerdictAccepted, v.Verdict)
	require.Equal(t, []string{"EXE1"}, eng.removed)
}

func TestJudgingIsIdempotent(t *testing.T) {
	eng := &routeEngine{}
	eng.handle = func(req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
		out := req.Stdin
		if string(req.Stdin) == "2\n" {
			out = []byte("wrong\n")
		}
		return &sandbox.ExecResult{
			Status:  sandbox.StatusOK,
			Stdout:  out,
			CPUTime: 100 * time.Millisecond,
			MemKiB:  8 << 10,
		}, nil
	}
	p := newPipeline(t, eng)

	sub := baseSubmission(tc(1, "1\n", "1\n"), tc(2, "2\n", "2\n"), tc(3, "3\n", "3\n"))
	first, err := p.Judge(context.Background(), sub, nil)
	require.NoError(t, err)
	second, err := p.Judge(context.Background(), sub, nil)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestPerCaseLimitOverrides(t *testing.T) {
	eng := &routeEngine{}
	eng.handle = func(req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
		return &sandbox.ExecResult{Status: sandbox.StatusOK, Stdout: req.Stdin}, nil
	}
	p := newPipeline(t, eng)

	sub := baseSubmission(
		tc(1, "1\n", "1\n"),
		judge.TestCase{ID: 2, Input: []byte("2\n"), Answer: []byte("2\n"), CPUMillis: 5000},
	)
	_, err := p.Judge(context.Background(), sub, nil)
	require.NoError(t, err)

	require.Equal(t, 2*time.Second, eng.calls[0].CPULimit)
	require.Equal(t, 5*time.Second, eng.calls[1].CPULimit)
	require.Equal(t, 10*time.Second, eng.calls[1].WallLimit)
}
