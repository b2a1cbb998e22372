package bagit

import (
	"fmt"
	"sort"
	"strings"
)

// Result is the outcome of a verification. Missing holds paths that were
// declared but could not be read. Invalid holds paths whose checksum did
// not match. Messages are kept sorted so results merge the same way no
// matter the order they are combined in.
//
// The zero value is a successful, empty result.
type Result struct {
	Messages []string

	failed  bool
	missing map[string]struct{}
	invalid map[string]struct{}
}

// Success is true if nothing failed.
func (r *Result) Success() bool { return !r.failed }

// Missing returns the sorted list of missing paths.
func (r *Result) Missing() []string { return sortedKeys(r.missing) }

// Invalid returns the sorted list of paths whose checksums did not match.
func (r *Result) Invalid() []string { return sortedKeys(r.invalid) }

// Fail marks the result as failed and records a message.
func (r *Result) Fail(format string, args ...interface{}) {
	r.failed = true
	r.addMessage(fmt.Sprintf(format, args...))
}

// Warn records a message without failing the result.
func (r *Result) Warn(format string, args ...interface{}) {
	r.addMessage(fmt.Sprintf(format, args...))
}

func (r *Result) addMessage(msg string) {
	i := sort.SearchStrings(r.Messages, msg)
	r.Messages = append(r.Messages, "")
	copy(r.Messages[i+1:], r.Messages[i:])
	r.Messages[i] = msg
}

// AddMissing records a missing path and fails the result.
func (r *Result) AddMissing(path string) {
	if r.missing == nil {
		r.missing = make(map[string]struct{})
	}
	r.missing[path] = struct{}{}
	r.Fail("missing file %s", path)
}

// AddInvalid records a path with a bad checksum and fails the result.
func (r *Result) AddInvalid(path, algorithm, expected, computed string) {
	if r.invalid == nil {
		r.invalid = make(map[string]struct{})
	}
	r.invalid[path] = struct{}{}
	r.Fail("%s checksum mismatch for %s: expected %s, computed %s",
		algorithm, path, expected, computed)
}

// Merge combines results. The merged result fails if any input failed, has
// every message of every input, and the union of the path sets. Merge is
// associative and commutative. The inputs are not modified.
func Merge(results ...*Result) *Result {
	out := &Result{}
	for _, r := range results {
		if r == nil {
			continue
		}
		out.failed = out.failed || r.failed
		for _, m := range r.Messages {
			out.addMessage(m)
		}
		for p := range r.missing {
			if out.missing == nil {
				out.missing = make(map[string]struct{})
			}
			out.missing[p] = struct{}{}
		}
		for p := range r.invalid {
			if out.invalid == nil {
				out.invalid = make(map[string]struct{})
			}
			out.invalid[p] = struct{}{}
		}
	}
	return out
}

// String gives a one line summary followed by the messages.
func (r *Result) String() string {
	var b strings.Builder
	if r.Success() {
		b.WriteString("valid")
	} else {
		fmt.Fprintf(&b, "invalid: %d missing, %d bad checksums", len(r.missing), len(r.invalid))
	}
	for _, m := range r.Messages {
		b.WriteString("\n")
		b.WriteString(m)
	}
	return b.String()
}

func sortedKeys(m map[string]struct{}) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}
