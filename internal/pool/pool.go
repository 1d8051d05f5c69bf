// Package pool bounds how many submissions are judged at once. Admission
// is FIFO; each admitted submission gets an overall wall-clock ceiling
// covering its whole pipeline.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/arbiter-oj/arbiter/internal/judge"
)

// ErrDuplicateSubmission rejects a submission whose id is already being
// judged. Client error.
var ErrDuplicateSubmission = errors.New("submission already in flight")

// ErrClosed is returned when submitting to a stopped pool.
var ErrClosed = errors.New("pool closed")

const defaultQueueDepth = 1024

type job struct {
	sub  judge.Submission
	gath judge.ResultGatherer
	res  chan result

	// deadline is fixed at admission so queue wait counts against the
	// overall ceiling. Zero when the ceiling is disabled.
	deadline time.Time
}

type result struct {
	verdict *judge.SubmissionVerdict
	err     error
}

// Pool schedules pipelines over a fixed number of workers.
type Pool struct {
	pipeline *judge.Pipeline
	workers  int
	overall  time.Duration
	queue    chan job
	inFlight mapset.Set[string]
	logger   *slog.Logger
}

// New creates a pool with the given worker count and per-submission
// overall ceiling (admission to completion). overall <= 0 disables the
// ceiling.
func New(pipeline *judge.Pipeline, workers int, overall time.Duration, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		pipeline: pipeline,
		workers:  workers,
		overall:  overall,
		queue:    make(chan job, defaultQueueDepth),
		inFlight: mapset.NewSet[string](),
		logger:   logger.With("component", "pool"),
	}
}

// Run serves judging until ctx is cancelled. Blocks.
func (p *Pool) Run(ctx context.Context) {
	done := make(chan struct{})
	for i := 0; i < p.workers; i++ {
		go p.worker(ctx, done)
	}
	<-ctx.Done()
	close(done)
}

func (p *Pool) worker(ctx context.Context, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case j := <-p.queue:
			j.res <- p.judgeOne(ctx, j)
		}
	}
}

func (p *Pool) judgeOne(ctx context.Context, j job) result {
	defer p.inFlight.Remove(j.sub.ID)

	if !j.deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, j.deadline)
		defer cancel()
	}

	v, err := p.pipeline.Judge(ctx, j.sub, j.gath)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", judge.ErrJudgeTimeout, err)
	}
	return result{verdict: v, err: err}
}

// Submit admits one submission and blocks until its verdict is ready. An
// empty submission id gets a fresh uuid at admission. Submissions past
// the worker bound wait in admission order.
func (p *Pool) Submit(ctx context.Context, sub judge.Submission, gath judge.ResultGatherer) (*judge.SubmissionVerdict, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if !p.inFlight.Add(sub.ID) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSubmission, sub.ID)
	}

	j := job{sub: sub, gath: gath, res: make(chan result, 1)}
	if p.overall > 0 {
		j.deadline = time.Now().Add(p.overall)
	}
	select {
	case p.queue <- j:
	case <-ctx.Done():
		p.inFlight.Remove(sub.ID)
		return nil, fmt.Errorf("%w: %v", ErrClosed, ctx.Err())
	}

	select {
	case r := <-j.res:
		return r.verdict, r.err
	case <-ctx.Done():
		// The worker still drains the job; its buffered channel keeps it
		// from blocking on a caller that walked away.
		return nil, ctx.Err()
	}
}
