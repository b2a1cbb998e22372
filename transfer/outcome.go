package transfer

import (
	"fmt"

	"github.com/ndlib/bagfetch/bagit"
)

// State is where a single target ended up.
type State int

const (
	// Pending targets were never attempted.
	Pending State = iota
	// Committed targets were fetched and are now in the bag.
	Committed
	// Skipped targets were given up on, either by the policy or because
	// the job was cancelled while they were in progress.
	Skipped
	// Aborted is the target whose failure stopped the job.
	Aborted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case Skipped:
		return "skipped"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Outcome records what happened to one target.
type Outcome struct {
	Target  Target
	State   State
	Reason  string // why it was skipped or aborted
	Err     error  // the last error seen, if any
	URL     string // the URL last tried
	Bytes   int64  // bytes received on the last attempt
	Retries int    // number of attempts after the first

	// Source reads the committed file. It is nil unless State is Committed.
	Source bagit.FileSource
}

// JobState is the state of a whole job.
type JobState int

const (
	Idle JobState = iota
	Running
	// Completed jobs committed every target.
	Completed
	// Incomplete jobs ran to the end but skipped some targets.
	Incomplete
	// Cancelled jobs were stopped by their context.
	Cancelled
	// Aborted jobs were stopped by their policy.
	JobAborted
)

func (s JobState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Incomplete:
		return "incomplete"
	case Cancelled:
		return "cancelled"
	case JobAborted:
		return "aborted"
	}
	return fmt.Sprintf("JobState(%d)", int(s))
}

// JobResult is the result of running a Coordinator. Outcomes are in
// processing order, which is sorted by path.
type JobResult struct {
	State    JobState
	Outcomes []Outcome
}

// Complete is true if every target was committed.
func (r *JobResult) Complete() bool {
	for _, o := range r.Outcomes {
		if o.State != Committed {
			return false
		}
	}
	return true
}

// Count returns the number of outcomes in state s.
func (r *JobResult) Count(s State) int {
	var n int
	for _, o := range r.Outcomes {
		if o.State == s {
			n++
		}
	}
	return n
}

// Remaining returns fetch entries for every target which was not committed.
// Running a new job over them picks up where this one left off.
func (r *JobResult) Remaining() []bagit.FetchEntry {
	var result []bagit.FetchEntry
	for _, o := range r.Outcomes {
		if o.State != Committed {
			result = append(result, o.Target.Entries()...)
		}
	}
	return result
}

// Resolver returns a resolver over the committed files, suitable for
// bagit.Verifier.Fetched.
func (r *JobResult) Resolver() bagit.Resolver {
	sources := make(map[string]bagit.FileSource)
	for _, o := range r.Outcomes {
		if o.State == Committed && o.Source != nil {
			sources[o.Target.Path] = o.Source
		}
	}
	return bagit.ResolverFunc(func(p string) (bagit.FileSource, bool) {
		src, ok := sources[p]
		return src, ok
	})
}

func (r *JobResult) String() string {
	return fmt.Sprintf("%s: %d committed, %d skipped, %d aborted, %d pending",
		r.State, r.Count(Committed), r.Count(Skipped), r.Count(Aborted), r.Count(Pending))
}

// finish sets the final state of a job which ran to the end.
func (r *JobResult) finish() {
	if r.State != Running {
		return
	}
	r.State = Completed
	if !r.Complete() {
		r.State = Incomplete
	}
}
