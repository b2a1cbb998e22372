package bagit

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Entry is one line of a manifest.
type Entry struct {
	Path   string // bag-relative, always using '/'
	Digest string // hex, as written in the manifest
}

// Manifest maps bag-relative paths to their expected digests under a
// single algorithm. Entries keep the order in which paths were first
// declared. If a path is declared twice the last digest wins and the path
// is remembered in Duplicates.
type Manifest struct {
	Algorithm  Algorithm
	Scope      Scope
	Duplicates []string

	entries []Entry
	index   map[string]int
}

// ErrMalformedManifest means a manifest line could not be parsed, or its
// digest has the wrong length for the manifest's algorithm.
var ErrMalformedManifest = errors.New("malformed manifest")

// ErrPathOutsideBag means a manifest names a file which is not inside the
// bag.
var ErrPathOutsideBag = errors.New("path is outside the bag")

// NewManifest returns an empty manifest.
func NewManifest(alg Algorithm, scope Scope) *Manifest {
	return &Manifest{
		Algorithm: alg,
		Scope:     scope,
		index:     make(map[string]int),
	}
}

// Add declares the digest for a path. The digest must be hex and have the
// length the algorithm implies, and the path must stay inside the bag.
func (m *Manifest) Add(path, digest string) error {
	if err := m.checkDigest(digest); err != nil {
		return err
	}
	path = normalizePath(path)
	if path == "" {
		return errors.Wrap(ErrMalformedManifest, "empty path")
	}
	if err := checkInsideBag(path); err != nil {
		return err
	}
	if i, ok := m.index[path]; ok {
		m.entries[i].Digest = digest
		m.Duplicates = append(m.Duplicates, path)
		return nil
	}
	m.index[path] = len(m.entries)
	m.entries = append(m.entries, Entry{Path: path, Digest: digest})
	return nil
}

func (m *Manifest) checkDigest(digest string) error {
	if len(digest) != m.Algorithm.HexLen() {
		return errors.Wrapf(ErrMalformedManifest,
			"%s digest %q has length %d, expected %d",
			m.Algorithm.Name, digest, len(digest), m.Algorithm.HexLen())
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return errors.Wrapf(ErrMalformedManifest, "digest %q is not hex", digest)
	}
	return nil
}

// checkInsideBag rejects absolute paths and paths which climb out of the
// bag with "..".
func checkInsideBag(p string) error {
	if strings.HasPrefix(p, "/") || (len(p) > 1 && p[1] == ':') {
		return errors.Wrap(ErrPathOutsideBag, p)
	}
	clean := path.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return errors.Wrap(ErrPathOutsideBag, p)
	}
	return nil
}

// Entries returns the manifest lines in declaration order.
func (m *Manifest) Entries() []Entry {
	result := make([]Entry, len(m.entries))
	copy(result, m.entries)
	return result
}

// Len is the number of distinct paths in the manifest.
func (m *Manifest) Len() int { return len(m.entries) }

// Digest returns the expected digest for a path.
func (m *Manifest) Digest(path string) (string, bool) {
	i, ok := m.index[normalizePath(path)]
	if !ok {
		return "", false
	}
	return m.entries[i].Digest, true
}

// Name returns the file name this manifest is stored under.
func (m *Manifest) Name(v Version) string {
	return v.ManifestName(m.Scope, m.Algorithm.Name)
}

// ParseManifestLine splits one manifest line into the digest and the path.
// The digest and path may be separated by any run of spaces or tabs, and a
// leading '*' on the path (the md5sum binary flag) is removed. Percent
// encoded line breaks and percent signs in the path are decoded, and back
// slashes are turned into forward slashes. The digest is not checked.
func ParseManifestLine(line string) (digest, path string, err error) {
	line = strings.TrimRight(line, "\r\n")
	i := strings.IndexAny(line, " \t")
	if i <= 0 {
		return "", "", errors.Wrapf(ErrMalformedManifest, "line %q", line)
	}
	digest = line[:i]
	path = strings.TrimLeft(line[i:], " \t")
	path = strings.TrimPrefix(path, "*")
	path = normalizePath(decodeFilename(path))
	if path == "" {
		return "", "", errors.Wrapf(ErrMalformedManifest, "line %q has no path", line)
	}
	return digest, path, nil
}

func normalizePath(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

var (
	filenameEncoder = strings.NewReplacer("%", "%25", "\n", "%0A", "\r", "%0D")
	filenameDecoder = strings.NewReplacer("%25", "%", "%0A", "\n", "%0a", "\n", "%0D", "\r", "%0d", "\r")
)

// encodeFilename escapes the characters which cannot appear literally in
// a manifest or fetch file line: CR, LF and '%'. decodeFilename undoes it.
func encodeFilename(p string) string { return filenameEncoder.Replace(p) }

func decodeFilename(p string) string { return filenameDecoder.Replace(p) }

// ParseManifest reads the manifest text in r. Blank lines are skipped. The
// first bad line stops parsing and its line number is included in the
// error.
func ParseManifest(r io.Reader, alg Algorithm, scope Scope) (*Manifest, error) {
	m := NewManifest(alg, scope)
	scanner := bufio.NewScanner(r)
	var lineno int
	for scanner.Scan() {
		lineno++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		digest, path, err := ParseManifestLine(text)
		if err == nil {
			err = m.Add(path, digest)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineno)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadManifest parses a manifest stored under the given file name, using
// the name to decide the scope and to pick the algorithm from reg.
func LoadManifest(name string, r io.Reader, reg *Registry, v Version) (*Manifest, error) {
	scope, token, ok := v.ParseManifestName(name)
	if !ok {
		return nil, fmt.Errorf("%s is not a manifest file name", name)
	}
	alg, err := reg.Resolve(token)
	if err != nil {
		return nil, err
	}
	m, err := ParseManifest(r, alg, scope)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return m, nil
}

// WriteTo serializes the manifest, one "<digest>  <path>" line per entry,
// sorted by path. Line breaks and percent signs in paths are percent
// encoded.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	entries := m.Entries()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	var total int64
	for _, e := range entries {
		// The 2 spaces is to be identical to the GNU md5sum output.
		n, err := fmt.Fprintf(w, "%s  %s\n", e.Digest, encodeFilename(e.Path))
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
