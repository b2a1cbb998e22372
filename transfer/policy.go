package transfer

import (
	"fmt"
	"sync"
)

// Action is what a Policy tells the coordinator to do after a failure.
type Action int

const (
	// RetryCurrent tries the same file again, with the next mirror if it
	// has more than one URL.
	RetryCurrent Action = iota
	// ContinueWithNext gives up on this file and moves on.
	ContinueWithNext
	// Stop ends the whole job.
	Stop
)

func (a Action) String() string {
	switch a {
	case RetryCurrent:
		return "retry"
	case ContinueWithNext:
		return "continue"
	case Stop:
		return "stop"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// A Failure describes one failed attempt to transfer a file.
type Failure struct {
	URL     string
	Attempt int // starting from 1
	Err     error
}

// A Policy decides what to do when a transfer fails. A coordinator running
// transfers in parallel serializes its calls to the policy, but a Policy
// shared between coordinators must protect itself.
type Policy interface {
	OnFailure(t Target, f Failure) Action
}

// SuccessObserver is implemented by policies which want to know about
// successful transfers, for example to reset a failure count.
type SuccessObserver interface {
	OnSuccess(t Target)
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(t Target, f Failure) Action

// OnFailure calls p.
func (p PolicyFunc) OnFailure(t Target, f Failure) Action { return p(t, f) }

// Always returns a policy which gives the same answer to every failure.
func Always(a Action) Policy {
	return PolicyFunc(func(Target, Failure) Action { return a })
}

var (
	// AlwaysContinue skips every file that fails. The job completes as
	// much of the bag as it can.
	AlwaysContinue = Always(ContinueWithNext)

	// AlwaysRetry retries every failure. It keeps no count, so use it
	// with Coordinator.MaxAttempts.
	AlwaysRetry = Always(RetryCurrent)

	// FailFast stops the job on the first failure.
	FailFast = Always(Stop)
)

// Threshold counts consecutive failures across all files. Until Limit
// failures in a row have happened it answers Below. The Limit-th failure in
// a row is answered with Stop. Any success resets the count.
//
// If PerFile is positive, a file that has failed PerFile times is answered
// with ContinueWithNext instead of Below, so one bad file does not soak up
// every retry.
type Threshold struct {
	Limit   int
	Below   Action
	PerFile int

	m           sync.Mutex
	consecutive int
	files       map[string]int
}

// NewThreshold returns a Threshold which retries until n consecutive
// failures.
func NewThreshold(n int) *Threshold {
	return &Threshold{Limit: n, Below: RetryCurrent}
}

// OnFailure implements Policy.
func (p *Threshold) OnFailure(t Target, f Failure) Action {
	p.m.Lock()
	defer p.m.Unlock()
	p.consecutive++
	if p.files == nil {
		p.files = make(map[string]int)
	}
	p.files[t.Path]++
	if p.consecutive >= p.Limit {
		return Stop
	}
	if p.PerFile > 0 && p.files[t.Path] >= p.PerFile {
		return ContinueWithNext
	}
	return p.Below
}

// OnSuccess implements SuccessObserver.
func (p *Threshold) OnSuccess(t Target) {
	p.m.Lock()
	p.consecutive = 0
	delete(p.files, t.Path)
	p.m.Unlock()
}

// Consecutive returns the current run of failures.
func (p *Threshold) Consecutive() int {
	p.m.Lock()
	defer p.m.Unlock()
	return p.consecutive
}

// lockedPolicy serializes calls to a policy.
type lockedPolicy struct {
	m sync.Mutex
	p Policy
}

func (l *lockedPolicy) OnFailure(t Target, f Failure) Action {
	l.m.Lock()
	defer l.m.Unlock()
	return l.p.OnFailure(t, f)
}

func (l *lockedPolicy) OnSuccess(t Target) {
	l.m.Lock()
	defer l.m.Unlock()
	notifySuccess(l.p, t)
}

func notifySuccess(p Policy, t Target) {
	if s, ok := p.(SuccessObserver); ok {
		s.OnSuccess(t)
	}
}
