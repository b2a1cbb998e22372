package util

import (
	"bytes"
	"hash"
	"io"
	"sort"
)

// VerifyStreamHash checksums the given io.Reader with h and compares the
// result against goal. An empty goal always matches. The reader is not
// closed when finished.
func VerifyStreamHash(r io.Reader, h hash.Hash, goal []byte) (bool, error) {
	_, err := io.Copy(h, r)
	if err != nil {
		return false, err
	}
	return len(goal) == 0 || bytes.Equal(goal, h.Sum(nil)), nil
}

// A HashWriter wraps an io.Writer and also calculates a set of named hashes
// of the bytes written. This lets one pass over a file produce the digest
// for every manifest at once.
type HashWriter struct {
	io.Writer // our io.MultiWriter
	hashes    map[string]hash.Hash
}

// NewHashWriter returns a HashWriter wrapping w. If w is nil the writer
// only computes the hashes.
func NewHashWriter(w io.Writer, hashes map[string]hash.Hash) *HashWriter {
	hw := &HashWriter{hashes: hashes}
	var targets []io.Writer
	if w != nil {
		targets = append(targets, w)
	}
	for _, name := range hw.Names() {
		targets = append(targets, hashes[name])
	}
	hw.Writer = io.MultiWriter(targets...)
	return hw
}

// Names returns the sorted names of the hashes being computed.
func (hw *HashWriter) Names() []string {
	result := make([]string, 0, len(hw.hashes))
	for k := range hw.hashes {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// Sum returns the named hash of everything written so far, or nil if this
// writer is not computing it.
func (hw *HashWriter) Sum(name string) []byte {
	h, ok := hw.hashes[name]
	if !ok {
		return nil
	}
	return h.Sum(nil)
}

// Check returns the named hash for this writer, and compares it for
// equality with the goal hash passed in. If the goal is empty then it is
// treated as matching, and true is returned.
func (hw *HashWriter) Check(name string, goal []byte) ([]byte, bool) {
	computed := hw.Sum(name)
	ok := len(goal) == 0 || bytes.Equal(goal, computed)
	return computed, ok
}
