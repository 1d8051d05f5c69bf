package api

// Outcome classifies how a judge request terminated.
type Outcome string

const (
	// OutcomeJudged: the submission was judged; Verdict is meaningful.
	OutcomeJudged Outcome = "judged"
	// OutcomeClientError: the request itself was bad (unknown language,
	// malformed submission); nothing was executed.
	OutcomeClientError Outcome = "client_error"
	// OutcomeInfraError: the judging system failed (sandbox unavailable,
	// broken checker, orchestrator timeout). Not the contestant's fault.
	OutcomeInfraError Outcome = "infra_error"
)

// TestResult is the per-case detail of a judged submission.
type TestResult struct {
	TestID  int64  `json:"test_id"`
	Verdict string `json:"verdict"`

	CPUMillis  int64 `json:"cpu_ms"`
	WallMillis int64 `json:"wall_ms"`
	MemoryKiB  int64 `json:"mem_kib"`

	ExitCode   int    `json:"exit_code"`
	ExitSignal int    `json:"exit_signal,omitempty"`
	Checker    string `json:"checker,omitempty"` // checker stderr comment
}

// JudgeResponse is the terminal artifact returned for one request.
type JudgeResponse struct {
	SubmissionID string  `json:"submission_id"`
	Outcome      Outcome `json:"outcome"`

	Verdict      string `json:"verdict,omitempty"`
	MaxCPUMillis int64  `json:"max_cpu_ms,omitempty"`
	MaxMemoryKiB int64  `json:"max_mem_kib,omitempty"`

	CompileOutput string `json:"compile_output,omitempty"`

	TestResults []TestResult `json:"test_results,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
}
