package checker

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arbiter-oj/arbiter/internal/sandbox"
)

const (
	checkerSrcFname = "checker.cpp"
	checkerBinFname = "checker"

	compileCPULimit = 30 * time.Second
	compileMemKiB   = 1 << 20 // 1 GiB
)

// ErrCompile marks a checker whose own compilation failed. This is judge
// infrastructure breakage, never attributed to the submission.
type ErrCompile struct {
	Diag string
}

func (e *ErrCompile) Error() string {
	return fmt.Sprintf("checker compilation failed: %s", e.Diag)
}

// Compiler compiles testlib checker sources once and caches the engine
// file id of the binary keyed by the source sha256, so identical checkers
// across submissions reuse one compilation.
type Compiler struct {
	exec        sandbox.Runner
	testlibPath string
	cache       *xsync.MapOf[string, string]
	logger      *slog.Logger
}

func NewCompiler(exec sandbox.Runner, testlibPath string, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{
		exec:        exec,
		testlibPath: testlibPath,
		cache:       xsync.NewMapOf[string, string](),
		logger:      logger.With("component", "checker"),
	}
}

// Executable returns the engine file id of the compiled checker binary,
// compiling it if this source has not been seen before.
func (c *Compiler) Executable(ctx context.Context, source string) (string, error) {
	key := fmt.Sprintf("%x", sha256.Sum256([]byte(source)))
	if id, ok := c.cache.Load(key); ok {
		return id, nil
	}

	id, err := c.compile(ctx, source)
	if err != nil {
		return "", err
	}
	// Two pipelines may race to compile the same checker; keep the first
	// cached binary and drop the duplicate.
	if prev, loaded := c.cache.LoadOrStore(key, id); loaded {
		_ = c.exec.RemoveFile(ctx, id)
		return prev, nil
	}
	c.logger.Info("compiled checker", "sha", key[:12], "file_id", id)
	return id, nil
}

func (c *Compiler) compile(ctx context.Context, source string) (string, error) {
	copyIn := map[string][]byte{
		checkerSrcFname: []byte(source),
	}
	if c.testlibPath != "" {
		header, err := os.ReadFile(c.testlibPath)
		if err != nil {
			return "", fmt.Errorf("failed to read testlib header: %w", err)
		}
		copyIn["testlib.h"] = header
	}

	res, err := c.exec.Execute(ctx, sandbox.ExecRequest{
		Args: []string{
			"/usr/bin/g++", "-O2", "-std=c++17",
			"-o", checkerBinFname, checkerSrcFname, "-I", ".",
		},
		CopyIn:        copyIn,
		CopyOutCached: []string{checkerBinFname},
		CPULimit:      compileCPULimit,
		MemKiB:        compileMemKiB,
		Procs:         8,
	})
	if err != nil {
		return "", fmt.Errorf("failed to compile checker: %w", err)
	}
	if res.Status != sandbox.StatusOK {
		return "", &ErrCompile{Diag: string(res.Stderr)}
	}
	id, ok := res.CachedFiles[checkerBinFname]
	if !ok {
		return "", &ErrCompile{Diag: "compiler produced no binary"}
	}
	return id, nil
}
