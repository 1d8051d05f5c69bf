// Package checker decides whether a contestant's output answers a test
// case, either with the default tolerant text comparison or by running a
// compiled testlib checker inside the sandbox.
package checker

import "bytes"

// Compare is the default comparator used when no checker is supplied.
//
// Tolerance rules (frequent source of judge disputes, so they are pinned
// here and by the conformance table in compare_test.go):
//   - trailing whitespace (spaces, tabs, CR) at the end of each line is
//     ignored;
//   - one optional trailing newline at the end of the whole output is
//     ignored;
//   - every other byte difference, including blank lines in the middle
//     and leading whitespace, is a wrong answer.
func Compare(got, want []byte) bool {
	gotLines := splitLines(got)
	wantLines := splitLines(want)
	if len(gotLines) != len(wantLines) {
		return false
	}
	for i := range gotLines {
		if !bytes.Equal(trimTrailing(gotLines[i]), trimTrailing(wantLines[i])) {
			return false
		}
	}
	return true
}

// splitLines strips exactly one trailing '\n' and splits the rest, so
// "a\n" and "a" are one identical line each and "" equals "\n", while
// "a\n\n" keeps its blank line.
func splitLines(b []byte) [][]byte {
	if len(b) > 0 && b[len(b)-1] == '\n' {
		b = b[:len(b)-1]
	}
	if len(b) == 0 {
		return nil
	}
	return bytes.Split(b, []byte{'\n'})
}

func trimTrailing(line []byte) []byte {
	return bytes.TrimRight(line, " \t\r")
}
