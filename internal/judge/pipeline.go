package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbiter-oj/arbiter/internal/checker"
	"github.com/arbiter-oj/arbiter/internal/lang"
	"github.com/arbiter-oj/arbiter/internal/sandbox"
)

// State of a pipeline. Transitions:
//
//	Queued -> Compiling -> Running -> Checking -> Finalizing -> Done
//
// Compiling is skipped for interpreted languages; Running/Checking loop
// over the test cases in declared order. Any infrastructure fault moves
// the pipeline to Errored from whichever state it is in.
type State int

const (
	StateQueued State = iota
	StateCompiling
	StateRunning
	StateChecking
	StateFinalizing
	StateDone
	StateErrored
)

var stateNames = []string{
	"queued", "compiling", "running", "checking", "finalizing", "done", "errored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

const (
	submissionStdoutMax = 1 << 20
	submissionStderrMax = 64 << 10
	compileDiagMax      = 16 << 10
	compileMemKiB       = 1 << 20
)

// Pipeline judges submissions one at a time. It holds no per-submission
// state between Judge calls; shared dependencies are read-only.
type Pipeline struct {
	reg      *lang.Registry
	exec     sandbox.Runner
	check    *checker.Runner
	checkers *checker.Compiler
	logger   *slog.Logger
}

func NewPipeline(reg *lang.Registry, exec sandbox.Runner, check *checker.Runner, checkers *checker.Compiler, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		reg:      reg,
		exec:     exec,
		check:    check,
		checkers: checkers,
		logger:   logger.With("component", "pipeline"),
	}
}

// run carries the mutable state of one submission being judged.
type run struct {
	sub  Submission
	lng  lang.Language
	gath ResultGatherer

	state     State
	caseIndex int

	exeID     string // engine file id of the compiled artifact
	checkerID string // engine file id of the compiled checker binary

	// result of the case execution currently being checked
	lastRun *sandbox.ExecResult

	cases   []CaseVerdict
	compile *sandbox.ExecResult
	verdict *SubmissionVerdict
	fault   error
}

// Judge drives one submission from Queued to Done and returns its verdict.
//
// Client errors (unknown language, malformed submission) surface before
// any sandbox call. Infrastructure faults are returned as errors wrapping
// sandbox.ErrUnavailable or checker compile failure; they never masquerade
// as contestant verdicts.
func (p *Pipeline) Judge(ctx context.Context, sub Submission, gath ResultGatherer) (*SubmissionVerdict, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	lng, err := p.reg.Lookup(sub.LangID)
	if err != nil {
		return nil, err
	}
	if gath == nil {
		gath = NopGatherer{}
	}

	r := &run{sub: sub, lng: lng, gath: gath, state: StateQueued}
	defer p.cleanup(r)

	gath.StartJob(sub.ID)
	started := time.Now()

	for r.state != StateDone && r.state != StateErrored {
		if err := ctx.Err(); err != nil {
			r.state = StateErrored
			if errors.Is(err, context.DeadlineExceeded) {
				r.fault = fmt.Errorf("%w: %v", ErrJudgeTimeout, err)
			} else {
				// Shutdown cancel, not an orchestrator timeout.
				r.fault = fmt.Errorf("judging aborted: %w", err)
			}
			break
		}
		switch r.state {
		case StateQueued:
			p.enterQueued(ctx, r)
		case StateCompiling:
			p.enterCompiling(ctx, r)
		case StateRunning:
			p.enterRunning(ctx, r)
		case StateChecking:
			p.enterChecking(ctx, r)
		case StateFinalizing:
			p.enterFinalizing(r)
		}
	}

	if r.state == StateErrored {
		gath.InternalError(r.fault.Error())
		p.logger.Error("judging failed", "submission", sub.ID, "err", r.fault)
		return nil, r.fault
	}

	p.logger.Info("judged submission",
		"submission", sub.ID,
		"verdict", r.verdict.Verdict,
		"cases", len(r.verdict.Cases),
		"took", time.Since(started).Round(time.Millisecond))
	if r.verdict.Verdict == VerdictCompileError {
		gath.CompileError(r.verdict.CompileOutput)
	} else {
		gath.FinishNoError(r.verdict)
	}
	return r.verdict, nil
}

// enterQueued compiles the checker if one is supplied, then hands off to
// Compiling or straight to Running for interpreted languages.
func (p *Pipeline) enterQueued(ctx context.Context, r *run) {
	if r.sub.Checker != "" {
		id, err := p.checkers.Executable(ctx, r.sub.Checker)
		if err != nil {
			var ce *checker.ErrCompile
			if errors.As(err, &ce) {
				// A broken checker is a judge fault, not the contestant's.
				r.state = StateErrored
				r.fault = fmt.Errorf("checker error: %w", err)
				return
			}
			r.state = StateErrored
			r.fault = err
			return
		}
		r.checkerID = id
	}
	if r.lng.Compiled() {
		r.state = StateCompiling
	} else {
		r.state = StateRunning
	}
}

func (p *Pipeline) enterCompiling(ctx context.Context, r *run) {
	r.gath.StartCompile()

	res, err := p.exec.Execute(ctx, sandbox.ExecRequest{
		Args:          lang.Render(r.lng.CompileCmd, r.lng.SrcFname, r.lng.ExeFname),
		Env:           r.lng.Env,
		CopyIn:        map[string][]byte{r.lng.SrcFname: []byte(r.sub.Source)},
		CopyOutCached: []string{r.lng.ExeFname},
		CPULimit:      r.lng.CompileLimit(),
		MemKiB:        compileMemKiB,
		Procs:         32,
		StdoutMax:     compileDiagMax,
		StderrMax:     compileDiagMax,
	})
	if err != nil {
		r.state = StateErrored
		r.fault = fmt.Errorf("compile step: %w", err)
		return
	}
	r.compile = res
	r.gath.FinishCompile(res)

	switch res.Status {
	case sandbox.StatusOK:
		id, ok := res.CachedFiles[r.lng.ExeFname]
		if !ok {
			r.state = StateErrored
			r.fault = fmt.Errorf("%w: compile produced no artifact", sandbox.ErrUnavailable)
			return
		}
		r.exeID = id
		r.state = StateRunning
	case sandbox.StatusInternalError:
		r.state = StateErrored
		r.fault = fmt.Errorf("compile step: %w: engine internal error", sandbox.ErrUnavailable)
	default:
		// Nonzero exit, TLE, OLE during compilation are all the
		// submission's compile error. No test case ever runs.
		diag := string(res.Stderr)
		if diag == "" {
			diag = string(res.Stdout)
		}
		r.verdict = &SubmissionVerdict{
			SubmissionID:  r.sub.ID,
			Verdict:       VerdictCompileError,
			CompileOutput: diag,
			Compile:       res,
		}
		r.state = StateDone
	}
}

func (p *Pipeline) enterRunning(ctx context.Context, r *run) {
	if r.caseIndex >= len(r.sub.Tests) {
		r.state = StateFinalizing
		return
	}
	tc := r.sub.Tests[r.caseIndex]
	r.gath.ReachTest(tc.ID)

	cpuMillis := r.sub.CPUMillis
	if tc.CPUMillis > 0 {
		cpuMillis = tc.CPUMillis
	}
	memKiB := r.sub.MemKiB
	if tc.MemKiB > 0 {
		memKiB = tc.MemKiB
	}

	req := sandbox.ExecRequest{
		Args:      lang.Render(r.lng.RunCmd, r.lng.SrcFname, r.lng.ExeFname),
		Env:       r.lng.Env,
		Stdin:     tc.Input,
		CPULimit:  time.Duration(cpuMillis) * time.Millisecond,
		WallLimit: 2 * time.Duration(cpuMillis) * time.Millisecond,
		MemKiB:    r.lng.EffectiveMemKiB(memKiB),
		Procs:     r.lng.Procs(),
		StdoutMax: submissionStdoutMax,
		StderrMax: submissionStderrMax,
	}
	if r.exeID != "" {
		req.CopyInCached = map[string]string{r.lng.ExeFname: r.exeID}
	} else {
		req.CopyIn = map[string][]byte{r.lng.SrcFname: []byte(r.sub.Source)}
	}

	res, err := p.exec.Execute(ctx, req)
	if err != nil {
		r.state = StateErrored
		r.fault = fmt.Errorf("test %d: %w", tc.ID, err)
		return
	}

	switch res.Status {
	case sandbox.StatusOK:
		r.lastRun = res
		r.state = StateChecking
		return
	case sandbox.StatusTimeLimitExceeded:
		p.recordCase(r, CaseVerdict{TestID: tc.ID, Verdict: VerdictTimeLimitExceeded, Run: res})
	case sandbox.StatusMemoryLimitExceeded:
		p.recordCase(r, CaseVerdict{TestID: tc.ID, Verdict: VerdictMemoryLimitExceeded, Run: res})
	case sandbox.StatusOutputLimitExceeded:
		p.recordCase(r, CaseVerdict{TestID: tc.ID, Verdict: VerdictOutputLimitExceeded, Run: res})
	case sandbox.StatusNonzeroExit, sandbox.StatusSignalled:
		p.recordCase(r, CaseVerdict{TestID: tc.ID, Verdict: VerdictRuntimeError, Run: res})
	default:
		r.state = StateErrored
		r.fault = fmt.Errorf("test %d: %w: engine internal error", tc.ID, sandbox.ErrUnavailable)
	}
}

// enterChecking compares the output of the case that just ran.
func (p *Pipeline) enterChecking(ctx context.Context, r *run) {
	tc := r.sub.Tests[r.caseIndex]
	runRes := r.lastRun
	outcome, chkRes, err := p.check.Check(ctx, r.checkerID, tc.Input, runRes.Stdout, tc.Answer)
	if err != nil {
		r.state = StateErrored
		r.fault = fmt.Errorf("test %d: %w", tc.ID, err)
		return
	}

	cv := CaseVerdict{TestID: tc.ID, Run: runRes, Check: chkRes}
	switch outcome {
	case checker.OutcomeAccepted:
		cv.Verdict = VerdictAccepted
	case checker.OutcomeWrongAnswer:
		cv.Verdict = VerdictWrongAnswer
	default:
		cv.Verdict = VerdictCheckerError
	}
	p.recordCase(r, cv)
}

// recordCase stores a case verdict and advances to the next case or to
// Finalizing. Short-circuit mode stops at the first non-accepted case and
// reports the remaining tests as ignored.
func (p *Pipeline) recordCase(r *run, cv CaseVerdict) {
	r.cases = append(r.cases, cv)
	r.gath.FinishTest(cv)
	r.caseIndex++

	if cv.Verdict != VerdictAccepted && !r.sub.JudgeAll {
		for i := r.caseIndex; i < len(r.sub.Tests); i++ {
			r.gath.IgnoreTest(r.sub.Tests[i].ID)
		}
		r.state = StateFinalizing
		return
	}
	r.state = StateRunning
}

func (p *Pipeline) enterFinalizing(r *run) {
	v := &SubmissionVerdict{
		SubmissionID: r.sub.ID,
		Verdict:      VerdictAccepted,
		Cases:        r.cases,
		Compile:      r.compile,
	}
	for _, cv := range r.cases {
		if MoreSevere(cv.Verdict, v.Verdict) {
			v.Verdict = cv.Verdict
		}
		if cv.Run != nil {
			if ms := cv.Run.CPUTime.Milliseconds(); ms > v.MaxCPUMillis {
				v.MaxCPUMillis = ms
			}
			if cv.Run.MemKiB > v.MaxMemKiB {
				v.MaxMemKiB = cv.Run.MemKiB
			}
		}
	}
	if !r.sub.JudgeAll {
		// Short-circuit: the verdict is the first failing case's.
		for _, cv := range r.cases {
			if cv.Verdict != VerdictAccepted {
				v.Verdict = cv.Verdict
				break
			}
		}
	}
	r.verdict = v
	r.state = StateDone
}

// cleanup drops the cached compiled artifact. Checker binaries stay
// cached across submissions. Uses a fresh context so cleanup still runs
// after cancellation.
func (p *Pipeline) cleanup(r *run) {
	if r.exeID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.exec.RemoveFile(ctx, r.exeID); err != nil {
		p.logger.Warn("failed to remove cached artifact", "file_id", r.exeID, "err", err)
	}
}
