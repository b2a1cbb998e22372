package bagit

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"

	"github.com/ndlib/bagfetch/store"
)

// FileSource is a readable file in a bag. The same path may be served by
// different sources, e.g. the payload directory and a freshly fetched file.
type FileSource interface {
	// Path is the bag-relative path, using '/'.
	Path() string
	Open() (io.ReadCloser, error)
	Exists() bool
	Size() (int64, error)
}

// A Resolver finds the FileSource for a bag-relative path. It returns false
// if it knows nothing about the path.
type Resolver interface {
	Resolve(path string) (FileSource, bool)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(path string) (FileSource, bool)

// Resolve calls f.
func (f ResolverFunc) Resolve(path string) (FileSource, bool) { return f(path) }

// Chain is a Resolver which asks each of its members in turn and returns
// the first source that exists.
type Chain []Resolver

// Resolve implements Resolver.
func (c Chain) Resolve(path string) (FileSource, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		src, ok := r.Resolve(path)
		if ok && src.Exists() {
			return src, true
		}
	}
	return nil, false
}

// Bag is a Resolver which can also list the files it holds.
type Bag interface {
	Resolver
	// Files returns every bag-relative file path, sorted.
	Files() ([]string, error)
}

// NormalizingResolver retries a failed lookup with the NFC and NFD unicode
// normalizations of the path. File systems disagree on which form they
// store names in, so a manifest written on one machine may not match the
// names on another.
type NormalizingResolver struct {
	Resolver
}

// Resolve implements Resolver.
func (n NormalizingResolver) Resolve(p string) (FileSource, bool) {
	if src, ok := n.Resolver.Resolve(p); ok && src.Exists() {
		return src, true
	}
	for _, form := range []norm.Form{norm.NFC, norm.NFD} {
		alt := form.String(p)
		if alt == p {
			continue
		}
		if src, ok := n.Resolver.Resolve(alt); ok && src.Exists() {
			return src, true
		}
	}
	return nil, false
}

// DirBag is a bag stored as a directory tree. Any afero file system may be
// used, which makes an in-memory file system easy to use in tests.
type DirBag struct {
	Fs   afero.Fs
	Root string
}

// NewDirBag returns a bag rooted at root on the OS file system.
func NewDirBag(root string) *DirBag {
	return &DirBag{Fs: afero.NewOsFs(), Root: root}
}

// Resolve implements Resolver. It never returns false, since a missing file
// is still a valid (non-existent) source.
func (d *DirBag) Resolve(p string) (FileSource, bool) {
	return &dirFile{fs: d.Fs, path: p, name: filepath.Join(d.Root, filepath.FromSlash(p))}, true
}

// Files walks the directory and returns every regular file.
func (d *DirBag) Files() ([]string, error) {
	var result []string
	err := afero.Walk(d.Fs, d.Root, func(name string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.Root, name)
		if err != nil {
			return err
		}
		result = append(result, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(result)
	return result, err
}

// NewDirFile returns a FileSource for the file at name on fs, which will
// report the given bag-relative path.
func NewDirFile(fs afero.Fs, bagPath, name string) FileSource {
	return &dirFile{fs: fs, path: bagPath, name: name}
}

type dirFile struct {
	fs   afero.Fs
	path string
	name string
}

func (f *dirFile) Path() string                 { return f.path }
func (f *dirFile) Open() (io.ReadCloser, error) { return f.fs.Open(f.name) }

func (f *dirFile) Exists() bool {
	info, err := f.fs.Stat(f.name)
	return err == nil && !info.IsDir()
}

func (f *dirFile) Size() (int64, error) {
	info, err := f.fs.Stat(f.name)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// StoreBag is a bag whose files are items in a store. Keys are the bag
// relative paths with prefix added in front.
type StoreBag struct {
	Store  store.ROStore
	Prefix string
}

// Resolve implements Resolver.
func (s *StoreBag) Resolve(p string) (FileSource, bool) {
	return NewStoreFile(s.Store, p, s.Prefix+p), true
}

// Files lists the keys under the prefix.
func (s *StoreBag) Files() ([]string, error) {
	keys, err := s.Store.ListPrefix(s.Prefix)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, strings.TrimPrefix(k, s.Prefix))
	}
	sort.Strings(result)
	return result, nil
}

// NewStoreFile returns a FileSource backed by an item in a store.
func NewStoreFile(s store.ROStore, bagPath, key string) FileSource {
	return &storeFile{s: s, path: bagPath, key: key}
}

type storeFile struct {
	s    store.ROStore
	path string
	key  string
}

func (f *storeFile) Path() string { return f.path }

func (f *storeFile) Open() (io.ReadCloser, error) {
	rac, _, err := f.s.Open(f.key)
	if err != nil {
		return nil, err
	}
	return readCloser{Reader: store.NewReader(rac), Closer: rac}, nil
}

func (f *storeFile) Exists() bool {
	rac, _, err := f.s.Open(f.key)
	if err != nil {
		return false
	}
	rac.Close()
	return true
}

func (f *storeFile) Size() (int64, error) {
	rac, size, err := f.s.Open(f.key)
	if err != nil {
		return 0, err
	}
	rac.Close()
	return size, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// CleanPath checks that p names something strictly inside the payload
// directory and returns it in canonical form.
func CleanPath(p string) (string, error) {
	p = normalizePath(p)
	if p == "" || strings.HasPrefix(p, "/") {
		return "", ErrPathOutsidePayload
	}
	clean := path.Clean(p)
	if clean != p {
		// reject "data/../data/x" and friends rather than guess
		return "", ErrPathOutsidePayload
	}
	if !strings.HasPrefix(clean, DataDir+"/") {
		return "", ErrPathOutsidePayload
	}
	for _, part := range strings.Split(clean, "/") {
		if part == ".." || part == "." {
			return "", ErrPathOutsidePayload
		}
	}
	return clean, nil
}
