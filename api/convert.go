package api

import (
	"errors"

	"github.com/arbiter-oj/arbiter/internal/judge"
	"github.com/arbiter-oj/arbiter/internal/lang"
	"github.com/arbiter-oj/arbiter/internal/pool"
)

// ToSubmission maps a wire request onto the judge's submission model.
func ToSubmission(req JudgeRequest) judge.Submission {
	sub := judge.Submission{
		ID:        req.SubmissionID,
		Source:    req.Code,
		LangID:    req.LangID,
		CPUMillis: req.CPUMillis,
		MemKiB:    req.MemoryKiB,
		JudgeAll:  req.JudgeAll,
	}
	if req.Checker != nil {
		sub.Checker = *req.Checker
	}
	for _, t := range req.Tests {
		sub.Tests = append(sub.Tests, judge.TestCase{
			ID:        t.ID,
			Input:     []byte(t.Input),
			Answer:    []byte(t.Answer),
			CPUMillis: t.CPUMillis,
			MemKiB:    t.MemoryKiB,
		})
	}
	return sub
}

// FromVerdict maps a submission verdict onto the wire response.
func FromVerdict(v *judge.SubmissionVerdict) JudgeResponse {
	resp := JudgeResponse{
		SubmissionID:  v.SubmissionID,
		Outcome:       OutcomeJudged,
		Verdict:       string(v.Verdict),
		MaxCPUMillis:  v.MaxCPUMillis,
		MaxMemoryKiB:  v.MaxMemKiB,
		CompileOutput: v.CompileOutput,
	}
	for _, cv := range v.Cases {
		tr := TestResult{TestID: cv.TestID, Verdict: string(cv.Verdict)}
		if cv.Run != nil {
			tr.CPUMillis = cv.Run.CPUTime.Milliseconds()
			tr.WallMillis = cv.Run.WallTime.Milliseconds()
			tr.MemoryKiB = cv.Run.MemKiB
			tr.ExitCode = cv.Run.ExitCode
			tr.ExitSignal = cv.Run.Signal
		}
		if cv.Check != nil {
			tr.Checker = string(cv.Check.Stderr)
		}
		resp.TestResults = append(resp.TestResults, tr)
	}
	return resp
}

// FromError maps a judge failure onto the wire response, separating what
// the caller did wrong from what the judge broke.
func FromError(submissionID string, err error) JudgeResponse {
	outcome := OutcomeInfraError
	if errors.Is(err, lang.ErrUnknownLanguage) ||
		errors.Is(err, judge.ErrInvalidSubmission) ||
		errors.Is(err, pool.ErrDuplicateSubmission) {
		outcome = OutcomeClientError
	}
	return JudgeResponse{
		SubmissionID: submissionID,
		Outcome:      outcome,
		ErrorMessage: err.Error(),
	}
}
