package transfer

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/ndlib/bagfetch/bagit"
	"github.com/ndlib/bagfetch/fetch"
	"github.com/ndlib/bagfetch/store"
)

// FSDestinations puts fetched files into a bag directory. Each file is
// written to a scratch file next to its final location and renamed into
// place on commit, so a partial file never appears under its real name.
type FSDestinations struct {
	Fs   afero.Fs
	Root string // the bag directory
}

// NewFSDestinations returns destinations inside the bag directory root on
// the OS file system.
func NewFSDestinations(root string) *FSDestinations {
	return &FSDestinations{Fs: afero.NewOsFs(), Root: root}
}

// NewDestination implements DestinationFactory.
func (d *FSDestinations) NewDestination(p string, size int64) (fetch.Destination, error) {
	p, err := bagit.CleanPath(p)
	if err != nil {
		return nil, err
	}
	target := filepath.Join(d.Root, filepath.FromSlash(p))
	dir := filepath.Dir(target)
	return &fsDestination{
		fs:      d.Fs,
		path:    p,
		target:  target,
		scratch: filepath.Join(dir, "."+uuid.New().String()+".part"),
	}, nil
}

type fsDestination struct {
	fs      afero.Fs
	path    string
	target  string
	scratch string
}

func (d *fsDestination) Path() string { return d.path }

func (d *fsDestination) Create(append bool) (io.WriteCloser, error) {
	err := d.fs.MkdirAll(filepath.Dir(d.scratch), 0775)
	if err != nil {
		return nil, err
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if append {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	return d.fs.OpenFile(d.scratch, flags, 0664)
}

func (d *fsDestination) Commit() (bagit.FileSource, error) {
	err := d.fs.Rename(d.scratch, d.target)
	if err != nil {
		return nil, err
	}
	return bagit.NewDirFile(d.fs, d.path, d.target), nil
}

func (d *fsDestination) Abandon() error {
	err := d.fs.Remove(d.scratch)
	if os.IsNotExist(err) {
		err = nil
	}
	return err
}

// LocalPath implements fetch.Addressable.
func (d *fsDestination) LocalPath() string {
	if _, ok := d.fs.(*afero.OsFs); ok {
		return d.scratch
	}
	return ""
}

// ErrAppendUnsupported means a destination cannot add to what is already
// written.
var ErrAppendUnsupported = errors.New("destination cannot append")

// StoreDestinations puts fetched files into a store, under the key
// Prefix followed by the bag path.
type StoreDestinations struct {
	Store  store.Store
	Prefix string
}

// NewDestination implements DestinationFactory.
func (d *StoreDestinations) NewDestination(p string, size int64) (fetch.Destination, error) {
	p, err := bagit.CleanPath(p)
	if err != nil {
		return nil, err
	}
	s := store.NewWithPrefix(d.Store, d.prefix())
	return &storeDestination{s: s, path: p, key: p}, nil
}

// Bag returns the store as a bag, for verification after a job.
func (d *StoreDestinations) Bag() bagit.Bag {
	return &bagit.StoreBag{Store: d.Store, Prefix: d.prefix()}
}

func (d *StoreDestinations) prefix() string {
	if d.Prefix == "" || strings.HasSuffix(d.Prefix, "/") {
		return d.Prefix
	}
	return d.Prefix + "/"
}

type storeDestination struct {
	s    store.Store
	path string
	key  string
	w    store.Writer
}

func (d *storeDestination) Path() string { return d.path }

func (d *storeDestination) Create(append bool) (io.WriteCloser, error) {
	if append && d.w != nil {
		return nil, ErrAppendUnsupported
	}
	if d.w != nil {
		d.w.Abort()
	}
	w, err := d.s.Create(d.key)
	if err != nil {
		return nil, err
	}
	d.w = w
	return heldWriter{w}, nil
}

// heldWriter keeps a store writer open when the fetcher closes it. The
// destination closes it for real on commit.
type heldWriter struct {
	io.Writer
}

func (heldWriter) Close() error { return nil }

func (d *storeDestination) Commit() (bagit.FileSource, error) {
	if d.w == nil {
		return nil, errors.Errorf("%s: nothing written", d.path)
	}
	err := d.w.Close()
	d.w = nil
	if err != nil {
		return nil, err
	}
	return bagit.NewStoreFile(d.s, d.path, d.key), nil
}

func (d *storeDestination) Abandon() error {
	if d.w == nil {
		return nil
	}
	err := d.w.Abort()
	d.w = nil
	return err
}
