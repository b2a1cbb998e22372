// Package store provides a simple, goroutine safe key-value interface. Instead
// of values being an opaque array of bytes, though, they are a stream. This
// approach allows large files to be stored easily.
//
// Keys are bag-relative paths, so they may contain '/'. Items are only
// visible once the writer returned by Create has been closed, which makes a
// store usable as the destination of a file transfer: closing the writer
// commits the file, and abandoning it leaves nothing behind.
package store

import (
	"errors"
	"io"
)

// ReadAtCloser combines the io.ReaderAt and io.Closer interfaces.
type ReadAtCloser interface {
	io.ReaderAt
	io.Closer
}

// Store defines the basic stream based key-value store.
// Creating a key which already exists replaces it once the new writer is
// closed.
type Store interface {
	ROStore
	Create(key string) (Writer, error)
	Delete(key string) error
}

// ROStore is the read-only pieces of a Store. It allows one to list contents,
// and to retrieve data.
type ROStore interface {
	ListPrefix(prefix string) ([]string, error)
	Open(key string) (ReadAtCloser, int64, error)
}

// Writer is returned by Create. Close makes the data visible in the store.
// Abort discards everything written, and the key is left as it was. Calling
// either one after the other has no effect.
type Writer interface {
	io.WriteCloser
	Abort() error
}

// ErrNotExist means the key is not in the store.
var ErrNotExist = errors.New("key does not exist")

// NewReader converts a ReaderAt into a io.Reader. It is here as a utility to
// help work with the ReadAtCloser returned by Open.
func NewReader(r io.ReaderAt) io.Reader {
	return &reader{r: r}
}

type reader struct {
	r   io.ReaderAt
	off int64
}

func (r *reader) Read(p []byte) (n int, err error) {
	n, err = r.r.ReadAt(p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		// reading less than a full buffer is not an error for
		// an io.Reader
		err = nil
	}
	return
}
