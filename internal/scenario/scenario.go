// Package scenario parses TOML behaviour files: self-contained judging
// scenarios with inline code, tests and expected verdicts. They drive the
// local `judged test` mode and double as conformance fixtures for the
// verdict rules.
package scenario

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/arbiter-oj/arbiter/internal/judge"
)

type specTest struct {
	In  string `toml:"in"`
	Ans string `toml:"ans"`
}

type specLimits struct {
	CPUMs  int64 `toml:"cpu_ms"`
	RAMKiB int64 `toml:"ram_kib"`
}

type specScenario struct {
	Description string     `toml:"description"`
	LangID      string     `toml:"lang_id"`
	Code        string     `toml:"code"`
	Checker     string     `toml:"checker"`
	JudgeAll    bool       `toml:"judge_all"`
	Tests       []specTest `toml:"tests"`
	Limits      specLimits `toml:"limits"`

	Expect specExpect `toml:"expect"`
}

type specExpect struct {
	Verdict      string   `toml:"verdict"`
	TestVerdicts []string `toml:"test_verdicts"`
}

type specRoot struct {
	Scenarios []specScenario `toml:"scenarios"`
}

// Case is one runnable scenario.
type Case struct {
	Name       string
	Submission judge.Submission

	ExpectVerdict      string
	ExpectTestVerdicts []string
}

// Parse reads a behaviour TOML file into runnable cases.
func Parse(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var root specRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}

	cases := make([]Case, 0, len(root.Scenarios))
	for i, sc := range root.Scenarios {
		if sc.LangID == "" || sc.Code == "" {
			return nil, fmt.Errorf("scenario %d: lang_id and code are required", i)
		}
		cpuMs := sc.Limits.CPUMs
		if cpuMs == 0 {
			cpuMs = 2000
		}
		ramKiB := sc.Limits.RAMKiB
		if ramKiB == 0 {
			ramKiB = 256 * 1024
		}

		sub := judge.Submission{
			ID:        uuid.NewString(),
			Source:    sc.Code,
			LangID:    sc.LangID,
			CPUMillis: cpuMs,
			MemKiB:    ramKiB,
			Checker:   sc.Checker,
			JudgeAll:  sc.JudgeAll,
		}
		for j, t := range sc.Tests {
			sub.Tests = append(sub.Tests, judge.TestCase{
				ID:     int64(j + 1),
				Input:  []byte(t.In),
				Answer: []byte(t.Ans),
			})
		}

		name := sc.Description
		if name == "" {
			name = fmt.Sprintf("scenario %d", i)
		}
		cases = append(cases, Case{
			Name:               name,
			Submission:         sub,
			ExpectVerdict:      sc.Expect.Verdict,
			ExpectTestVerdicts: sc.Expect.TestVerdicts,
		})
	}
	return cases, nil
}
