package pool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/arbiter-oj/arbiter/internal/checker"
	"github.com/arbiter-oj/arbiter/internal/judge"
	"github.com/arbiter-oj/arbiter/internal/lang"
	"github.com/arbiter-oj/arbiter/internal/pool"
	"github.com/arbiter-oj/arbiter/internal/sandbox"
)

// gateEngine echoes stdin after an optional per-call gate, tracking the
// peak number of concurrent Execute calls.
type gateEngine struct {
	gate func(ctx context.Context) error

	cur  atomic.Int32
	peak atomic.Int32
}

func (e *gateEngine) Execute(ctx context.Context, req sandbox.ExecRequest) (*sandbox.ExecResult, error) {
	cur := e.cur.Add(1)
	defer e.cur.Add(-1)
	for {
		p := e.peak.Load()
		if cur <= p || e.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	if e.gate != nil {
		if err := e.gate(ctx); err != nil {
			return nil, err
		}
	}
	return &sandbox.ExecResult{Status: sandbox.StatusOK, Stdout: req.Stdin}, nil
}

func (e *gateEngine) RemoveFile(context.Context, string) error { return nil }

func newPool(t *testing.T, eng sandbox.Runner, workers int, overall time.Duration) *pool.Pool {
	t.Helper()
	reg, err := lang.NewRegistry(lang.Defaults())
	require.NoError(t, err)
	pipe := judge.NewPipeline(reg, eng, checker.NewRunner(eng), checker.NewCompiler(eng, "", nil), nil)
	return pool.New(pipe, workers, overall, nil)
}

func submission(id string) judge.Submission {
	return judge.Submission{
		ID:        id,
		Source:    "print(input())",
		LangID:    "python3",
		CPUMillis: 1000,
		MemKiB:    64 << 10,
		Tests: []judge.TestCase{
			{ID: 1, Input: []byte("ok\n"), Answer: []byte("ok\n")},
		},
	}
}

func TestWorkerBoundHolds(t *testing.T) {
	eng := &gateEngine{gate: func(ctx context.Context) error {
		select {
		case <-time.After(20 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	p := newPool(t, eng, 2, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := p.Submit(ctx, submission(uuid.NewString()), nil)
			require.NoError(t, err)
			require.Equal(t, judge.VerdictAccepted, v.Verdict)
		}(i)
	}
	wg.Wait()

	require.LessOrEqual(t, eng.peak.Load(), int32(2),
		"no more pipelines run than there are workers")
}

func TestDuplicateSubmissionRejected(t *testing.T) {
	release := make(chan struct{})
	eng := &gateEngine{gate: func(ctx context.Context) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}
	p := newPool(t, eng, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	first := make(chan error, 1)
	go func() {
		_, err := p.Submit(ctx, submission("dup-1"), nil)
		first <- err
	}()

	// wait until the first submission occupies the worker
	require.Eventually(t, func() bool { return eng.cur.Load() == 1 },
		time.Second, 5*time.Millisecond)

	_, err := p.Submit(ctx, submission("dup-1"), nil)
	require.ErrorIs(t, err, pool.ErrDuplicateSubmission)

	close(release)
	require.NoError(t, <-first)

	// once finished the id may be judged again
	_, err = p.Submit(ctx, submission("dup-1"), nil)
	require.NoError(t, err)
}

func TestOverallCeilingBecomesJudgeTimeout(t *testing.T) {
	eng := &gateEngine{gate: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	p := newPool(t, eng, 1, 30*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	_, err := p.Submit(ctx, submission("slow-1"), nil)
	require.ErrorIs(t, err, judge.ErrJudgeTimeout)
}

func TestOverallCeilingCoversQueueWait(t *testing.T) {
	release := make(chan struct{})
	first := true
	eng := &gateEngine{gate: func(context.Context) error {
		// the first submission holds the only worker past the ceiling;
		// later ones run unimpeded
		if first {
			first = false
			<-release
		}
		return nil
	}}
	p := newPool(t, eng, 1, 150*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Submit(ctx, submission("hog-1"), nil)
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return eng.cur.Load() == 1 },
		time.Second, 5*time.Millisecond)

	queuedErr := make(chan error, 1)
	go func() {
		_, err := p.Submit(ctx, submission("queued-1"), nil)
		queuedErr <- err
	}()

	// let the queued submission's ceiling lapse while it is still waiting
	time.Sleep(300 * time.Millisecond)
	close(release)

	require.ErrorIs(t, <-firstErr, judge.ErrJudgeTimeout)
	require.ErrorIs(t, <-queuedErr, judge.ErrJudgeTimeout,
		"queue wait counts against the admission-to-completion ceiling")
}

func TestEmptyIDGetsAssigned(t *testing.T) {
	eng := &gateEngine{}
	p := newPool(t, eng, 1, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	sub := submission("")
	v, err := p.Submit(ctx, sub, nil)
	require.NoError(t, err)
	require.NotEmpty(t, v.SubmissionID)
	require.NoError(t, uuid.Validate(v.SubmissionID))
}
