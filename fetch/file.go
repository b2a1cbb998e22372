package fetch

import (
	"context"
	"net/url"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// File is the protocol for "file:" URLs. Only URLs with no host, or the host
// "localhost", are accepted.
type File struct {
	Fs afero.Fs // the OS file system if nil
}

// NewFetcher implements Protocol.
func (p *File) NewFetcher(u *url.URL, size int64, creds CredentialsProvider) (Fetcher, error) {
	if u.Host != "" && u.Host != "localhost" {
		return nil, errors.Wrapf(ErrBadURL, "file url with host %s", u.Host)
	}
	if u.Path == "" {
		return nil, errors.Wrapf(ErrBadURL, "file url %s has no path", u)
	}
	fs := p.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &fileFetcher{fs: fs, name: u.Path}, nil
}

type fileFetcher struct {
	fs   afero.Fs
	name string
}

func (f *fileFetcher) Fetch(ctx context.Context, dst Destination, c *Copier) (int64, error) {
	if n, ok := f.link(ctx, dst, c); ok {
		return n, nil
	}
	in, err := f.fs.Open(f.name)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	w, err := dst.Create(false)
	if err != nil {
		return 0, err
	}
	n, err := c.Copy(ctx, w, in)
	if err2 := w.Close(); err == nil {
		err = err2
	}
	return n, err
}

// link tries to hard link the source file into place. It only applies when
// both the source and the destination are on the OS file system and the
// copier has no need to see the bytes.
func (f *fileFetcher) link(ctx context.Context, dst Destination, c *Copier) (int64, bool) {
	if _, ok := f.fs.(*afero.OsFs); !ok || c.Hash != nil || c.Limit != nil {
		return 0, false
	}
	a, ok := dst.(Addressable)
	if !ok || a.LocalPath() == "" || ctx.Err() != nil {
		return 0, false
	}
	info, err := os.Stat(f.name)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	target := a.LocalPath()
	if err := os.MkdirAll(filepath.Dir(target), 0775); err != nil {
		return 0, false
	}
	os.Remove(target)
	if err := os.Link(f.name, target); err != nil {
		return 0, false
	}
	c.Report(info.Size())
	return info.Size(), true
}
