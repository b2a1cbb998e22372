// Package transfer turns a holey bag into a complete one. A Coordinator
// fetches every file listed in a fetch file, asks a Policy what to do when
// a transfer fails, and commits each file to a destination once all of its
// bytes have arrived.
package transfer

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"log"
	"sync"
	"sync/atomic"

	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"

	"github.com/ndlib/bagfetch/bagit"
	"github.com/ndlib/bagfetch/fetch"
	"github.com/ndlib/bagfetch/util"
)

var (
	// ErrCancelled means the job's context was cancelled.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrMisconfigured means a Coordinator is missing a collaborator.
	ErrMisconfigured = errors.New("transfer coordinator misconfigured")

	// ErrTooManyAttempts is the reason given for a target which used up
	// Coordinator.MaxAttempts.
	ErrTooManyAttempts = errors.New("too many attempts")
)

// SizeMismatchError means the number of bytes received differs from the
// size declared in the fetch file.
type SizeMismatchError struct {
	Path     string
	Declared int64
	Observed int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d bytes, received %d", e.Path, e.Declared, e.Observed)
}

// ChecksumMismatchError means a fetched file does not match its manifest.
type ChecksumMismatchError struct {
	Path      string
	Algorithm string
	Expected  string
	Computed  string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("%s: %s checksum %s, expected %s", e.Path, e.Algorithm, e.Computed, e.Expected)
}

// A DestinationFactory makes the destination for a file. It is called once
// per attempt.
type DestinationFactory interface {
	NewDestination(path string, size int64) (fetch.Destination, error)
}

// DestinationFunc adapts a function to the DestinationFactory interface.
type DestinationFunc func(path string, size int64) (fetch.Destination, error)

// NewDestination calls f.
func (f DestinationFunc) NewDestination(path string, size int64) (fetch.Destination, error) {
	return f(path, size)
}

// A Coordinator runs fetch jobs. The zero value is not usable; Registry,
// Policy and Destinations must be set.
type Coordinator struct {
	Registry     *fetch.Registry
	Policy       Policy
	Destinations DestinationFactory

	// Progress is told about every chunk copied. May be nil.
	Progress fetch.ProgressFunc

	// MaxAttempts, if positive, caps the attempts made for one target. A
	// target using them all is skipped even if the policy says to retry.
	MaxAttempts int

	// Parallel is the number of targets transferred at once. Values less
	// than 2 mean one at a time.
	Parallel int

	// Limit, if set, caps the bandwidth used by the job.
	Limit *util.RateCounter

	BufferSize int

	// Manifests are checked against each fetched file before it is
	// committed. A mismatch is a transfer failure. May be empty.
	Manifests []*bagit.Manifest
}

// Run fetches entries. Ordinary transfer failures are recorded in the
// result rather than returned. An error is returned only if ctx is already
// done, the coordinator is misconfigured, or entries lists a file with two
// different sizes.
func (c *Coordinator) Run(ctx context.Context, entries []bagit.FetchEntry) (*JobResult, error) {
	if err := c.check(); err != nil {
		log.Println("transfer:", err)
		raven.CaptureError(err, nil)
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	targets, err := Targets(entries)
	if err != nil {
		return nil, err
	}
	result := &JobResult{State: Idle, Outcomes: make([]Outcome, len(targets))}
	for i, t := range targets {
		result.Outcomes[i] = Outcome{Target: t, State: Pending}
	}
	result.State = Running
	log.Printf("transfer: starting %d files", len(targets))
	if c.Parallel > 1 {
		c.runParallel(ctx, result)
	} else {
		c.runSequential(ctx, result)
	}
	result.finish()
	log.Println("transfer:", result)
	if result.State == JobAborted {
		for _, o := range result.Outcomes {
			if o.State == Aborted {
				raven.CaptureError(o.Err, map[string]string{"Path": o.Target.Path, "URL": o.URL})
			}
		}
	}
	return result, nil
}

// Close releases the bandwidth limiter, if there is one.
func (c *Coordinator) Close() {
	if c.Limit != nil {
		c.Limit.Stop()
	}
}

func (c *Coordinator) check() error {
	switch {
	case c.Registry == nil:
		return errors.Wrap(ErrMisconfigured, "no protocol registry")
	case c.Policy == nil:
		return errors.Wrap(ErrMisconfigured, "no failure policy")
	case c.Destinations == nil:
		return errors.Wrap(ErrMisconfigured, "no destination factory")
	}
	return nil
}

func (c *Coordinator) runSequential(ctx context.Context, result *JobResult) {
	for i := range result.Outcomes {
		if ctx.Err() != nil {
			result.State = Cancelled
			return
		}
		o := &result.Outcomes[i]
		stop := c.runTarget(ctx, c.Policy, o)
		switch {
		case stop:
			result.State = JobAborted
			return
		case errors.Cause(o.Err) == ErrCancelled:
			result.State = Cancelled
			return
		}
	}
}

// runParallel works on up to c.Parallel targets at once. A Stop from the
// policy cancels every target in flight.
func (c *Coordinator) runParallel(parent context.Context, result *JobResult) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	policy := &lockedPolicy{p: c.Policy}
	gate := util.NewGate(c.Parallel)
	var wg sync.WaitGroup
	var stopped atomic.Bool
	for i := range result.Outcomes {
		if !gate.Enter(ctx) {
			break
		}
		wg.Add(1)
		go func(o *Outcome) {
			defer wg.Done()
			defer gate.Leave()
			if ctx.Err() != nil {
				return
			}
			if c.runTarget(ctx, policy, o) {
				stopped.Store(true)
				cancel()
			}
		}(&result.Outcomes[i])
	}
	wg.Wait()
	switch {
	case stopped.Load():
		result.State = JobAborted
	case parent.Err() != nil:
		result.State = Cancelled
	}
}

// runTarget makes attempts on one target until it is committed or the
// policy gives up on it. It returns true if the policy said to Stop.
func (c *Coordinator) runTarget(ctx context.Context, policy Policy, o *Outcome) bool {
	t := o.Target
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			o.State = Skipped
			o.Err = ErrCancelled
			o.Reason = ErrCancelled.Error()
			return false
		}
		o.URL = t.URLs[(attempt-1)%len(t.URLs)]
		src, n, err := c.attempt(ctx, t, o.URL)
		o.Bytes = n
		if err == nil {
			o.State = Committed
			o.Source = src
			o.Err = nil
			o.Reason = ""
			notifySuccess(policy, t)
			return false
		}
		o.Err = err
		if err == ErrCancelled {
			o.State = Skipped
			o.Reason = err.Error()
			return false
		}
		log.Printf("transfer: %s attempt %d from %s: %s", t.Path, attempt, o.URL, err)
		action := policy.OnFailure(t, Failure{URL: o.URL, Attempt: attempt, Err: err})
		if action == RetryCurrent && c.MaxAttempts > 0 && attempt >= c.MaxAttempts {
			o.State = Skipped
			o.Reason = ErrTooManyAttempts.Error()
			return false
		}
		switch action {
		case RetryCurrent:
			o.Retries++
		case ContinueWithNext:
			o.State = Skipped
			o.Reason = err.Error()
			return false
		default:
			o.State = Aborted
			o.Reason = err.Error()
			return true
		}
	}
}

// attempt makes one try at fetching t from url. The destination is
// committed only if everything checks out, and is abandoned otherwise.
func (c *Coordinator) attempt(ctx context.Context, t Target, url string) (bagit.FileSource, int64, error) {
	f, err := c.Registry.NewFetcher(url, t.Size)
	if err != nil {
		return nil, 0, err
	}
	dst, err := c.Destinations.NewDestination(t.Path, t.Size)
	if err != nil {
		return nil, 0, errors.Wrap(err, "destination")
	}
	copier := &fetch.Copier{
		Action:     "fetch",
		Target:     t.Path,
		Total:      t.Size,
		Progress:   c.Progress,
		BufferSize: c.BufferSize,
		Limit:      c.Limit,
	}
	expected := c.expected(t.Path)
	if len(expected) > 0 {
		hashes := make(map[string]hash.Hash)
		for name, e := range expected {
			hashes[name] = e.alg.New()
		}
		copier.Hash = util.NewHashWriter(nil, hashes)
	}
	n, err := f.Fetch(ctx, dst, copier)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err == nil && t.Size != bagit.UnknownSize && n != t.Size {
		err = &SizeMismatchError{Path: t.Path, Declared: t.Size, Observed: n}
	}
	if err == nil && copier.Hash != nil {
		err = checkDigests(t.Path, copier.Hash, expected)
	}
	defer c.finished(t, n)
	var src bagit.FileSource
	if err == nil {
		src, err = dst.Commit()
		if err != nil {
			err = errors.Wrap(err, "commit")
		}
	}
	if err != nil {
		if err2 := dst.Abandon(); err2 != nil {
			log.Println("transfer: abandon", t.Path, err2)
		}
		if ctx.Err() != nil {
			err = ErrCancelled
		}
		return nil, n, err
	}
	return src, n, nil
}

func (c *Coordinator) finished(t Target, n int64) {
	if c.Progress != nil {
		c.Progress(fetch.ActionDone, t.Path, n, t.Size)
	}
}

type expectation struct {
	alg    bagit.Algorithm
	digest string
}

// expected returns the digests p is expected to have, by algorithm name.
func (c *Coordinator) expected(p string) map[string]expectation {
	result := make(map[string]expectation)
	for _, m := range c.Manifests {
		if m == nil || m.Algorithm.New == nil {
			continue
		}
		if d, ok := m.Digest(p); ok {
			result[m.Algorithm.Name] = expectation{alg: m.Algorithm, digest: d}
		}
	}
	return result
}

func checkDigests(p string, hw *util.HashWriter, expected map[string]expectation) error {
	for _, name := range hw.Names() {
		goal, err := hex.DecodeString(expected[name].digest)
		if err != nil {
			return err
		}
		computed, ok := hw.Check(name, goal)
		if !ok {
			return &ChecksumMismatchError{
				Path:      p,
				Algorithm: name,
				Expected:  expected[name].digest,
				Computed:  hex.EncodeToString(computed),
			}
		}
	}
	return nil
}
