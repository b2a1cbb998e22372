package bagit

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// UnknownSize is the size of a fetch entry declared with "-".
const UnknownSize int64 = -1

// FetchEntry is one line of a fetch file: a payload file which is not in
// the bag and the URL it can be retrieved from.
type FetchEntry struct {
	Path string // bag-relative, inside the data directory
	Size int64  // UnknownSize if not declared
	URL  string
}

var (
	// ErrMalformedFetch means a fetch file line could not be parsed.
	ErrMalformedFetch = errors.New("malformed fetch line")

	// ErrPathOutsidePayload means a path does not resolve to somewhere
	// strictly inside the data directory.
	ErrPathOutsidePayload = errors.New("path is outside the payload directory")
)

func (e FetchEntry) String() string {
	return fmt.Sprintf("%s %s %s", encodeFilename(e.Path), formatSize(e.Size), e.URL)
}

func formatSize(size int64) string {
	if size < 0 {
		return "-"
	}
	return strconv.FormatInt(size, 10)
}

func parseSize(s string) (int64, error) {
	if s == "-" {
		return UnknownSize, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.Wrapf(ErrMalformedFetch, "bad size %q", s)
	}
	return n, nil
}

// looksLikeURL is true for tokens of the form "scheme:..." with a non empty
// scheme. Bag paths always begin with the data directory, so they never
// match.
func looksLikeURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && (u.Host != "" || u.Opaque != "" || u.Path != "")
}

// ParseFetchLine parses "<path> <size> <url>". The path may contain spaces;
// the url and size are the last two fields. Lines in the RFC 8493 order,
// "<url> <size> <path>", are also accepted.
func ParseFetchLine(line string) (FetchEntry, error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return FetchEntry{}, errors.Wrapf(ErrMalformedFetch, "line %q", line)
	}
	var e FetchEntry
	var err error
	last := fields[len(fields)-1]
	switch {
	case looksLikeURL(last):
		e.URL = last
		e.Size, err = parseSize(fields[len(fields)-2])
		// keep interior white space of the path as written
		head := strings.TrimRight(line, " \t")
		head = strings.TrimSuffix(head, last)
		head = strings.TrimRight(head, " \t")
		head = strings.TrimSuffix(head, fields[len(fields)-2])
		e.Path = strings.TrimSpace(head)
	case looksLikeURL(fields[0]):
		e.URL = fields[0]
		e.Size, err = parseSize(fields[1])
		rest := strings.TrimLeft(line, " \t")
		rest = strings.TrimLeft(strings.TrimPrefix(rest, fields[0]), " \t")
		rest = strings.TrimLeft(strings.TrimPrefix(rest, fields[1]), " \t")
		e.Path = strings.TrimRight(rest, " \t")
	default:
		return FetchEntry{}, errors.Wrapf(ErrMalformedFetch, "no url in line %q", line)
	}
	if err != nil {
		return FetchEntry{}, err
	}
	e.Path, err = CleanPath(decodeFilename(e.Path))
	if err != nil {
		return FetchEntry{}, errors.Wrapf(err, "line %q", line)
	}
	return e, nil
}

// ParseFetch reads a fetch file. Blank lines are skipped. Entries are
// returned in file order.
func ParseFetch(r io.Reader) ([]FetchEntry, error) {
	var result []FetchEntry
	scanner := bufio.NewScanner(r)
	var lineno int
	for scanner.Scan() {
		lineno++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		e, err := ParseFetchLine(text)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineno)
		}
		result = append(result, e)
	}
	return result, scanner.Err()
}

// WriteFetch writes the entries in "<path> <size> <url>" form. Line breaks
// and percent signs in paths are percent encoded.
func WriteFetch(w io.Writer, entries []FetchEntry) error {
	for _, e := range entries {
		_, err := fmt.Fprintln(w, e.String())
		if err != nil {
			return err
		}
	}
	return nil
}

// EncodePath percent-encodes a bag path so it may be appended to a URL.
// Spaces become "%20" and '/' is left alone. DecodePath reverses it.
func EncodePath(p string) string {
	parts := strings.Split(p, "/")
	for i := range parts {
		parts[i] = strings.ReplaceAll(url.QueryEscape(parts[i]), "+", "%20")
	}
	return strings.Join(parts, "/")
}

// DecodePath undoes EncodePath.
func DecodePath(p string) (string, error) {
	return url.PathUnescape(p)
}

// PunchHoles builds fetch entries for the given payload files, pointing
// each one at baseURL joined with the encoded path. The files can then be
// removed from the bag, leaving a holey bag.
func PunchHoles(baseURL string, files []FileSource) ([]FetchEntry, error) {
	base := strings.TrimSuffix(baseURL, "/")
	var result []FetchEntry
	for _, f := range files {
		p, err := CleanPath(f.Path())
		if err != nil {
			return nil, errors.Wrap(err, f.Path())
		}
		size, err := f.Size()
		if err != nil {
			size = UnknownSize
		}
		result = append(result, FetchEntry{
			Path: p,
			Size: size,
			URL:  base + "/" + EncodePath(p),
		})
	}
	return result, nil
}
