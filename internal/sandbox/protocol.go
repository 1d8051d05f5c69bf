package sandbox

// Wire types for the go-judge REST executor. Only the subset the judge
// needs: single-cmd requests, inline copyIn, cached copyOut.

type wireFile struct {
	Content *string `json:"content,omitempty"`
	FileID  *string `json:"fileId,omitempty"`
	Name    *string `json:"name,omitempty"`
	Max     *int64  `json:"max,omitempty"`
}

type wireCmd struct {
	Args  []string   `json:"args"`
	Env   []string   `json:"env,omitempty"`
	Files []wireFile `json:"files,omitempty"`

	CPULimit    uint64 `json:"cpuLimit,omitempty"`
	ClockLimit  uint64 `json:"clockLimit,omitempty"`
	MemoryLimit uint64 `json:"memoryLimit,omitempty"`
	ProcLimit   uint64 `json:"procLimit,omitempty"`

	CopyIn map[string]wireFile `json:"copyIn,omitempty"`

	CopyOut       []string `json:"copyOut,omitempty"`
	CopyOutCached []string `json:"copyOutCached,omitempty"`
}

type wireRequest struct {
	RequestID string    `json:"requestId,omitempty"`
	Cmd       []wireCmd `json:"cmd"`
}

type wireResult struct {
	Status     string            `json:"status"`
	ExitStatus int               `json:"exitStatus"`
	Error      string            `json:"error,omitempty"`
	Time       uint64            `json:"time"`    // cpu, ns
	RunTime    uint64            `json:"runTime"` // wall, ns
	Memory     uint64            `json:"memory"`  // bytes
	Files      map[string]string `json:"files,omitempty"`
	FileIDs    map[string]string `json:"fileIds,omitempty"`
}

// Engine status strings, as produced by go-judge.
const (
	wireAccepted     = "Accepted"
	wireMLE          = "Memory Limit Exceeded"
	wireTLE          = "Time Limit Exceeded"
	wireOLE          = "Output Limit Exceeded"
	wireNonzeroExit  = "Nonzero Exit Status"
	wireSignalled    = "Signalled"
	wireFileError    = "File Error"
	wireDangerous    = "Dangerous Syscall"
	wireInternalErr  = "Internal Error"
)

func mapWireStatus(s string) Status {
	switch s {
	case wireAccepted:
		return StatusOK
	case wireTLE:
		return StatusTimeLimitExceeded
	case wireMLE:
		return StatusMemoryLimitExceeded
	case wireOLE:
		return StatusOutputLimitExceeded
	case wireNonzeroExit:
		return StatusNonzeroExit
	case wireSignalled, wireDangerous:
		return StatusSignalled
	case wireFileError, wireInternalErr:
		return StatusInternalError
	default:
		return StatusInternalError
	}
}
