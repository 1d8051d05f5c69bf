package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
)

// Runner is the execution primitive the rest of the judge depends on.
type Runner interface {
	// Execute runs one program in the engine. It blocks while the global
	// parallelism ceiling is saturated and returns ErrUnavailable (wrapped)
	// for any failure of the engine itself.
	Execute(ctx context.Context, req ExecRequest) (*ExecResult, error)
	// RemoveFile drops a cached engine file (compiled artifact).
	RemoveFile(ctx context.Context, fileID string) error
}

const (
	// Extra wall-clock slack on top of the requested limit before the
	// orchestrator declares the engine non-responsive.
	guardSlack = 10 * time.Second

	defaultStdoutMax = 1 << 20 // 1 MiB
	defaultStderrMax = 64 << 10
)

// Client talks to a go-judge compatible engine over HTTP. All calls share
// one weighted semaphore sized to the engine's parallelism so the judge
// applies backpressure instead of overrunning it.
type Client struct {
	baseURL string
	httpc   *http.Client
	slots   *semaphore.Weighted
	retries int
	logger  *slog.Logger
}

func NewClient(baseURL string, parallelism int64, retries int, logger *slog.Logger) *Client {
	if parallelism < 1 {
		parallelism = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{},
		slots:   semaphore.NewWeighted(parallelism),
		retries: retries,
		logger:  logger.With("component", "sandbox"),
	}
}

func (c *Client) Execute(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer c.slots.Release(1)

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying sandbox call", "attempt", attempt, "err", lastErr)
			select {
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
			}
		}
		res, err := c.executeOnce(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, errRejected) {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) executeOnce(ctx context.Context, req ExecRequest) (*ExecResult, error) {
	wall := req.WallLimit
	if wall <= 0 {
		wall = req.CPULimit * 2
	}
	guard := wall + guardSlack
	ctx, cancel := context.WithTimeout(ctx, guard)
	defer cancel()

	body, err := json.Marshal(buildWireRequest(req, wall))
	if err != nil {
		return nil, fmt.Errorf("failed to encode run request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%w: %w: %d: %s", ErrUnavailable, errRejected, resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("%w: engine returned %d: %s", ErrUnavailable, resp.StatusCode, msg)
	}

	var results []wireResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("%w: bad engine response: %v", ErrUnavailable, err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("%w: engine returned %d results for 1 cmd", ErrUnavailable, len(results))
	}
	return normalize(results[0], req), nil
}

func (c *Client) RemoveFile(ctx context.Context, fileID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/file/"+fileID, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: delete file %s: %d", ErrUnavailable, fileID, resp.StatusCode)
	}
	return nil
}

func buildWireRequest(req ExecRequest, wall time.Duration) wireRequest {
	stdoutMax := req.StdoutMax
	if stdoutMax <= 0 {
		stdoutMax = defaultStdoutMax
	}
	stderrMax := req.StderrMax
	if stderrMax <= 0 {
		stderrMax = defaultStderrMax
	}

	stdin := string(req.Stdin)
	stdoutName, stderrName := "stdout", "stderr"

	cmd := wireCmd{
		Args: req.Args,
		Env:  req.Env,
		Files: []wireFile{
			{Content: &stdin},
			{Name: &stdoutName, Max: &stdoutMax},
			{Name: &stderrName, Max: &stderrMax},
		},
		CPULimit:      uint64(req.CPULimit),
		ClockLimit:    uint64(wall),
		MemoryLimit:   uint64(req.MemKiB) << 10,
		ProcLimit:     uint64(req.Procs),
		CopyOutCached: req.CopyOutCached,
	}
	if len(cmd.Env) == 0 {
		cmd.Env = []string{"PATH=/usr/bin:/bin"}
	}

	if len(req.CopyIn) > 0 || len(req.CopyInCached) > 0 {
		cmd.CopyIn = make(map[string]wireFile, len(req.CopyIn)+len(req.CopyInCached))
		for name, content := range req.CopyIn {
			s := string(content)
			cmd.CopyIn[name] = wireFile{Content: &s}
		}
		for name, id := range req.CopyInCached {
			idCopy := id
			cmd.CopyIn[name] = wireFile{FileID: &idCopy}
		}
	}

	return wireRequest{Cmd: []wireCmd{cmd}}
}

func normalize(r wireResult, req ExecRequest) *ExecResult {
	res := &ExecResult{
		Status:      mapWireStatus(r.Status),
		CPUTime:     time.Duration(r.Time),
		WallTime:    time.Duration(r.RunTime),
		MemKiB:      int64(r.Memory >> 10),
		Stdout:      []byte(r.Files["stdout"]),
		Stderr:      []byte(r.Files["stderr"]),
		CachedFiles: r.FileIDs,
	}
	if res.Status == StatusSignalled {
		res.Signal = r.ExitStatus
	} else {
		res.ExitCode = r.ExitStatus
	}

	stdoutMax := req.StdoutMax
	if stdoutMax <= 0 {
		stdoutMax = defaultStdoutMax
	}
	stderrMax := req.StderrMax
	if stderrMax <= 0 {
		stderrMax = defaultStderrMax
	}
	if int64(len(res.Stdout)) >= stdoutMax || int64(len(res.Stderr)) >= stderrMax {
		res.Truncated = true
	}
	return res
}
