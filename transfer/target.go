package transfer

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/ndlib/bagfetch/bagit"
)

// A Target is one payload file to fetch. A fetch file may list the same
// file more than once with different URLs. Those are mirrors, and they are
// tried in the order given.
type Target struct {
	Path string
	Size int64 // bagit.UnknownSize if not declared
	URLs []string
}

// ErrConflictingSize means a file is listed more than once in a fetch file
// with different sizes.
var ErrConflictingSize = errors.New("conflicting sizes for file")

// Targets groups entries by path and returns them sorted by path. Targets
// are always processed in this order so a job is reproducible.
func Targets(entries []bagit.FetchEntry) ([]Target, error) {
	index := make(map[string]int)
	var result []Target
	for _, e := range entries {
		i, ok := index[e.Path]
		if !ok {
			index[e.Path] = len(result)
			result = append(result, Target{Path: e.Path, Size: e.Size, URLs: []string{e.URL}})
			continue
		}
		t := &result[i]
		switch {
		case e.Size == bagit.UnknownSize:
		case t.Size == bagit.UnknownSize:
			t.Size = e.Size
		case t.Size != e.Size:
			return nil, errors.Wrapf(ErrConflictingSize, "%s: %d and %d", e.Path, t.Size, e.Size)
		}
		t.URLs = append(t.URLs, e.URL)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Path < result[j].Path })
	return result, nil
}

// Entries turns the target back into fetch entries, one per URL.
func (t Target) Entries() []bagit.FetchEntry {
	var result []bagit.FetchEntry
	for _, u := range t.URLs {
		result = append(result, bagit.FetchEntry{Path: t.Path, Size: t.Size, URL: u})
	}
	return result
}
