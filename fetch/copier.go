package fetch

import (
	"context"
	"io"

	"github.com/ndlib/bagfetch/util"
)

// DefaultBufferSize is the chunk size used when a Copier has none set.
const DefaultBufferSize = 32 * 1024

// ProgressFunc receives progress reports. It is called with a label for
// what is happening, the bag path of the file, the bytes done so far and the
// expected total, which is bagit.UnknownSize if not known. It is called
// synchronously and should return quickly.
type ProgressFunc func(action, target string, count, total int64)

// ActionDone is the action of the last report for an attempt at a target,
// sent whether or not the attempt worked. Listeners may forget the target.
const ActionDone = "done"

// A Copier moves bytes from a remote stream into a destination one chunk at
// a time. After each chunk it reports progress and checks whether ctx has
// been cancelled.
type Copier struct {
	Action     string
	Target     string
	Total      int64
	Progress   ProgressFunc      // may be nil
	BufferSize int               // DefaultBufferSize if 0
	Limit      *util.RateCounter // may be nil
	// Hash, if set, sees every byte written to the destination.
	Hash       *util.HashWriter
}

// Copy copies src to dst until EOF, an error, or cancellation of ctx. It
// returns the number of bytes written. When ctx is cancelled the error is
// ctx.Err().
func (c *Copier) Copy(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	if c.Limit != nil {
		src = c.Limit.Wrap(src)
	}
	if c.Hash != nil {
		dst = io.MultiWriter(dst, c.Hash)
	}
	size := c.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	buf := make([]byte, size)
	var written int64
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for {
		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if ew == nil && nw != nr {
				ew = io.ErrShortWrite
			}
			if ew != nil {
				return written, ew
			}
			c.Report(written)
			if err := ctx.Err(); err != nil {
				return written, err
			}
		}
		if er == io.EOF {
			return written, nil
		}
		if er != nil {
			return written, er
		}
	}
}

// Report sends a progress report, if anyone is listening. Fetchers which do
// not go through Copy can use it to report their own progress.
func (c *Copier) Report(count int64) {
	if c.Progress != nil {
		c.Progress(c.Action, c.Target, count, c.Total)
	}
}
