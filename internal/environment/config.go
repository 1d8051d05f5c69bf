// Package environment loads process configuration from the environment,
// with an optional .env file for development.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup; the rest of the judge treats it as
// injected constants.
type Config struct {
	// SandboxURL is the base URL of the go-judge compatible engine.
	SandboxURL string

	// JudgeWorkers bounds concurrently judged submissions.
	JudgeWorkers int
	// SandboxParallelism bounds in-flight engine calls; must not exceed
	// the engine's own ceiling.
	SandboxParallelism int
	// SandboxRetries is the per-call retry budget for transport faults.
	SandboxRetries int

	// SubmissionCeiling caps one submission's admission-to-completion
	// time. Zero disables the ceiling.
	SubmissionCeiling time.Duration

	// LanguagesTOML optionally extends the built-in language table.
	LanguagesTOML string
	// TestlibPath is the testlib.h copied next to checker sources at
	// compile time; empty relies on the engine image's include path.
	TestlibPath string

	ReqQueueURL  string
	RespQueueURL string
	NATSUrl      string
}

// Read loads .env (if present) and the environment. Missing optional
// values fall back to defaults sized for a small judge host.
func Read() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		SandboxURL:         getEnv("SANDBOX_URL", "http://localhost:5050"),
		JudgeWorkers:       getEnvInt("JUDGE_WORKERS", 4),
		SandboxParallelism: getEnvInt("GJ_PARALLELISM", 4),
		SandboxRetries:     getEnvInt("SANDBOX_RETRIES", 2),
		SubmissionCeiling:  time.Duration(getEnvInt("SUBMISSION_CEILING_SEC", 600)) * time.Second,
		LanguagesTOML:      os.Getenv("LANGUAGES_TOML"),
		TestlibPath:        os.Getenv("TESTLIB_PATH"),
		ReqQueueURL:        os.Getenv("REQ_QUEUE_URL"),
		RespQueueURL:       os.Getenv("RESP_QUEUE_URL"),
		NATSUrl:            os.Getenv("NATS_URL"),
	}

	if cfg.JudgeWorkers < 1 {
		return nil, fmt.Errorf("JUDGE_WORKERS must be positive")
	}
	if cfg.SandboxParallelism < 1 {
		return nil, fmt.Errorf("GJ_PARALLELISM must be positive")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
