package lang

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Defaults is the built-in language table. Entries can be overridden or
// extended from a TOML file via LoadTOML; adding a language is a data
// entry, not new code.
func Defaults() []Language {
	return []Language{
		{
			ID:       "cpp17",
			Name:     "C++17 (g++)",
			SrcFname: "main.cpp",
			CompileCmd: []string{
				"/usr/bin/g++", "-O2", "-std=c++17", "-o", "{exe}", "{src}",
			},
			ExeFname: "main",
			RunCmd:   []string{"{exe}"},
		},
		{
			ID:       "c11",
			Name:     "C11 (gcc)",
			SrcFname: "main.c",
			CompileCmd: []string{
				"/usr/bin/gcc", "-O2", "-std=c11", "-o", "{exe}", "{src}", "-lm",
			},
			ExeFname: "main",
			RunCmd:   []string{"{exe}"},
		},
		{
			ID:       "python3",
			Name:     "Python 3",
			SrcFname: "main.py",
			RunCmd:   []string{"/usr/bin/python3", "{src}"},
			// CPython spawns a few helper threads at startup.
			ProcLimit:    4,
			MemOffsetKiB: 32 * 1024,
		},
		{
			ID:       "java21",
			Name:     "Java 21",
			SrcFname: "Main.java",
			CompileCmd: []string{
				"/usr/bin/javac", "{src}",
			},
			ExeFname: "Main.class",
			RunCmd: []string{
				"/usr/bin/java", "-XX:+UseSerialGC", "-Xss64m", "Main",
			},
			// JVM runtime overhead: double the nominal limit plus 256 MiB.
			MemMultiplier: 2,
			MemOffsetKiB:  256 * 1024,
			ProcLimit:     32,
		},
		{
			ID:       "go",
			Name:     "Go",
			SrcFname: "main.go",
			CompileCmd: []string{
				"/usr/bin/go", "build", "-o", "{exe}", "{src}",
			},
			ExeFname:      "main",
			RunCmd:        []string{"{exe}"},
			MemOffsetKiB:  64 * 1024,
			ProcLimit:     16,
			Env:           []string{"GOMAXPROCS=1"},
		},
	}
}

type tomlFile struct {
	Languages []Language `toml:"languages"`
}

// LoadTOML reads extra language entries from a TOML file. The returned
// slice is Defaults() with the file's entries appended, so file entries
// with a known id override the built-ins.
func LoadTOML(path string) ([]Language, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read language file: %w", err)
	}
	var root tomlFile
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse language file: %w", err)
	}
	return append(Defaults(), root.Languages...), nil
}
