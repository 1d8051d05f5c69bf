// Package judge drives one submission through compile, per-test execution
// and answer checking, and aggregates the outcome into a verdict.
package judge

import (
	"errors"
	"fmt"
)

// ErrInvalidSubmission marks malformed submissions rejected before any
// sandbox resource is consumed.
var ErrInvalidSubmission = errors.New("invalid submission")

// ErrJudgeTimeout is the infrastructure outcome for a submission whose
// admission-to-completion time exceeded the overall ceiling. Distinct from
// a test case exceeding its own time limit.
var ErrJudgeTimeout = errors.New("judging timed out")

// TestCase is one input/answer pair. Answer may be empty when a checker
// decides correctness. Limits override the submission's when positive.
type TestCase struct {
	ID     int64
	Input  []byte
	Answer []byte

	CPUMillis int64
	MemKiB    int64
}

// Submission is everything needed to judge one piece of submitted code.
// Immutable once admitted.
type Submission struct {
	ID     string
	Source string
	LangID string

	CPUMillis int64
	MemKiB    int64

	Tests []TestCase

	// Checker is testlib checker source; when set, the default comparator
	// is never used.
	Checker string

	// JudgeAll runs every test case instead of stopping at the first
	// non-accepted one; the most severe verdict is reported.
	JudgeAll bool
}

// Validate rejects malformed submissions before they enter a pipeline.
func (s Submission) Validate() error {
	if s.Source == "" {
		return fmt.Errorf("%w: empty source", ErrInvalidSubmission)
	}
	if s.LangID == "" {
		return fmt.Errorf("%w: empty language id", ErrInvalidSubmission)
	}
	if len(s.Tests) == 0 {
		return fmt.Errorf("%w: no test cases", ErrInvalidSubmission)
	}
	if s.CPUMillis <= 0 || s.MemKiB <= 0 {
		return fmt.Errorf("%w: nonpositive resource limits", ErrInvalidSubmission)
	}
	return nil
}
