package bagit

import (
	"archive/zip"
	"errors"
	"io"
	"sort"
	"strings"
)

// ZipBag is a read-only bag inside a zip file. The zip is expected to hold
// a single top level directory, which is the bag's name.
type ZipBag struct {
	z       *zip.Reader
	dirname string // includes trailing slash, may be empty
	files   map[string]*zip.File
}

var (
	// ErrNotFound means a stream inside a zip file with the given name
	// could not be found.
	ErrNotFound = errors.New("stream not found")
)

// NewZipBag wraps r. It expects a ZIP datastream, and uses size to locate
// the zip manifest block, which is at the end.
//
// The checksums are not checked upon opening. Use a Verifier for that.
// Closing a stream does not close the underlying ReaderAt.
func NewZipBag(r io.ReaderAt, size int64) (*ZipBag, error) {
	in, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	result := &ZipBag{
		z:     in,
		files: make(map[string]*zip.File),
	}
	if len(in.File) > 0 {
		paths := strings.SplitN(in.File[0].Name, "/", 2)
		if len(paths) == 2 {
			result.dirname = paths[0] + "/"
		}
	}
	for _, f := range in.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		name := strings.TrimPrefix(f.Name, result.dirname)
		result.files[normalizePath(name)] = f
	}
	return result, nil
}

// Name returns the directory this bag unserializes into, without the
// trailing slash.
func (zb *ZipBag) Name() string {
	return strings.TrimSuffix(zb.dirname, "/")
}

// Resolve implements Resolver.
func (zb *ZipBag) Resolve(p string) (FileSource, bool) {
	return &zipFile{bag: zb, path: p}, true
}

// Files implements Bag.
func (zb *ZipBag) Files() ([]string, error) {
	result := make([]string, 0, len(zb.files))
	for k := range zb.files {
		result = append(result, k)
	}
	sort.Strings(result)
	return result, nil
}

// Open returns a reader for the payload file having the given name.
// Note, that inside the bag, the file is searched for from the path
// "<bag name>/data/<name>".
func (zb *ZipBag) Open(name string) (io.ReadCloser, error) {
	return zb.open(DataDir + "/" + name)
}

// open will open any file, not necessarily one inside the data directory.
func (zb *ZipBag) open(name string) (io.ReadCloser, error) {
	f, ok := zb.files[name]
	if !ok {
		return nil, ErrNotFound
	}
	return f.Open()
}

type zipFile struct {
	bag  *ZipBag
	path string
}

func (f *zipFile) Path() string                 { return f.path }
func (f *zipFile) Open() (io.ReadCloser, error) { return f.bag.open(f.path) }

func (f *zipFile) Exists() bool {
	_, ok := f.bag.files[f.path]
	return ok
}

func (f *zipFile) Size() (int64, error) {
	zf, ok := f.bag.files[f.path]
	if !ok {
		return 0, ErrNotFound
	}
	return int64(zf.UncompressedSize64), nil
}
