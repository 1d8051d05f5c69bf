package judge

import "github.com/arbiter-oj/arbiter/internal/sandbox"

// ResultGatherer receives progress events while a submission is judged.
// Implementations stream them to a terminal, a queue, or nowhere.
type ResultGatherer interface {
	StartJob(submissionID string)

	StartCompile()
	FinishCompile(data *sandbox.ExecResult)

	ReachTest(testID int64)
	FinishTest(verdict CaseVerdict)
	IgnoreTest(testID int64)

	CompileError(msg string)
	InternalError(msg string)
	FinishNoError(verdict *SubmissionVerdict)
}

// NopGatherer discards all events.
type NopGatherer struct{}

func (NopGatherer) StartJob(string)                   {}
func (NopGatherer) StartCompile()                     {}
func (NopGatherer) FinishCompile(*sandbox.ExecResult) {}
func (NopGatherer) ReachTest(int64)                   {}
func (NopGatherer) FinishTest(CaseVerdict)            {}
func (NopGatherer) IgnoreTest(int64)                  {}
func (NopGatherer) CompileError(string)               {}
func (NopGatherer) InternalError(string)              {}
func (NopGatherer) FinishNoError(*SubmissionVerdict)  {}
