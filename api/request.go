// Package api defines the JSON contract for submitting code to the judge
// and for the aggregate verdict it returns.
package api

// JudgeRequest asks the orchestrator to judge one submission.
type JudgeRequest struct {
	SubmissionID string `json:"submission_id,omitempty"`

	Code   string `json:"code"`
	LangID string `json:"lang_id"`

	CPUMillis int64 `json:"cpu_millis"`
	MemoryKiB int64 `json:"memory_kib"`

	Tests []ReqTest `json:"tests"`

	// Checker is testlib special-judge source. When present, expected
	// answers are advisory: the checker alone decides correctness.
	Checker *string `json:"checker,omitempty"`

	// JudgeAll disables short-circuiting at the first failed test.
	JudgeAll bool `json:"judge_all,omitempty"`

	// ResQueueURL is the SQS queue the response message is sent to when
	// the request arrived over a queue.
	ResQueueURL string `json:"res_queue_url,omitempty"`
}

// ReqTest is one test case. Limits override the submission's when set.
type ReqTest struct {
	ID     int64  `json:"id"`
	Input  string `json:"in"`
	Answer string `json:"ans,omitempty"`

	CPUMillis int64 `json:"cpu_millis,omitempty"`
	MemoryKiB int64 `json:"memory_kib,omitempty"`
}
