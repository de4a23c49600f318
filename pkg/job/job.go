// Package job implements Spread's cooperative job primitives: a uniform
// status/progress/abort contract shared by every unit of install work, plus
// two compositions over it — ParentJob, which propagates abort to a set of
// children, and AndJob, which waits for all children and fails if any one
// of them does.
//
// Jobs are cooperative: a long-running job must periodically call
// CheckStatus and exit once it returns true. Status is held behind a mutex
// paired with a lock-free abort marker, so readers never block on the job's
// own work.
package job

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// State is one of a Job's lifecycle states.
type State int

const (
	StatePending State = iota
	StateRunning
	StateFinishedSuccess
	StateFinishedError
	StateAborted
)

// String renders a State for diagnostics.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateFinishedSuccess:
		return "finished-success"
	case StateFinishedError:
		return "finished-error"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// marker is a concurrency-safe, idempotent boolean flag, used here for the
// abort switch: cheap to check on every iteration of a hot loop.
type marker struct {
	storage atomic.Bool
}

func (m *marker) mark() {
	m.storage.Store(true)
}

func (m *marker) marked() bool {
	return m.storage.Load()
}

// Info is the observable handle for a Job's status: progress, message,
// state, and the abort switch. It is safe for concurrent use; all fields
// are read and written under a single mutex except the abort marker, which
// uses a lock-free flag so that CheckStatus is cheap to call from hot
// loops.
type Info struct {
	mu sync.Mutex

	id      uuid.UUID
	state   State
	message string
	current uint64
	total   uint64
	err     error

	aborted marker
}

// NewInfo creates a fresh, pending Info, assigning it a unique ID. The ID is
// generated once at construction so that log lines and progress reporters
// can correlate output across concurrently running jobs without relying on
// pointer identity.
func NewInfo() *Info {
	return &Info{state: StatePending, id: uuid.New()}
}

// ID returns this job's unique identifier.
func (i *Info) ID() uuid.UUID {
	return i.id
}

// State returns the current lifecycle state.
func (i *Info) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Message returns the current status message.
func (i *Info) Message() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.message
}

// Progress returns the current progress counters.
func (i *Info) Progress() (current, total uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current, i.total
}

// Err returns the error recorded by SetError or Fail, if any.
func (i *Info) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// SetProgress updates the progress counters.
func (i *Info) SetProgress(current, total uint64) {
	i.mu.Lock()
	i.current = current
	i.total = total
	i.mu.Unlock()
}

// SetStatus updates the status message.
func (i *Info) SetStatus(message string) {
	i.mu.Lock()
	i.message = message
	i.mu.Unlock()
}

// SetBusy marks the job as running.
func (i *Info) SetBusy() {
	i.mu.Lock()
	i.state = StateRunning
	i.mu.Unlock()
}

// SetError records a non-fatal error message without changing state.
// Callers use this to surface a warning alongside continued execution; use
// Fail to terminate the job with an error.
func (i *Info) SetError(message string) {
	i.mu.Lock()
	i.message = message
	i.mu.Unlock()
}

// SetDone marks the job as finished successfully.
func (i *Info) SetDone() {
	i.mu.Lock()
	i.state = StateFinishedSuccess
	i.mu.Unlock()
}

// Fail marks the job as finished with an error.
func (i *Info) Fail(err error) {
	i.mu.Lock()
	i.state = StateFinishedError
	i.err = err
	if err != nil {
		i.message = err.Error()
	}
	i.mu.Unlock()
}

// Abort requests that the job stop as soon as it next checks its status.
func (i *Info) Abort() {
	i.aborted.mark()
}

// Aborted reports whether Abort has been called.
func (i *Info) Aborted() bool {
	return i.aborted.marked()
}

// CheckStatus returns true if the job has been aborted or has already
// failed, in which case the caller should stop and return promptly. Leaf
// I/O jobs call this between streamed blocks and between files.
func (i *Info) CheckStatus() bool {
	if i.aborted.marked() {
		return true
	}
	i.mu.Lock()
	state := i.state
	i.mu.Unlock()
	return state == StateFinishedError || state == StateAborted
}

// markAborted finalizes the state as aborted, used when a job exits because
// CheckStatus reported an abort request rather than because of a normal
// failure.
func (i *Info) markAborted() {
	i.mu.Lock()
	if i.state != StateFinishedSuccess && i.state != StateFinishedError {
		i.state = StateAborted
	}
	i.mu.Unlock()
}

// Job is a unit of cooperative execution. Implementations provide DoJob;
// Run drives it through the standard Info lifecycle transitions.
type Job interface {
	// Info returns the job's observable status handle.
	Info() *Info
	// DoJob performs the job's work, checking ctx and Info().CheckStatus()
	// periodically, and returns an error on failure. DoJob must return
	// promptly (without necessarily finishing its work) once the job has
	// been aborted.
	DoJob(ctx context.Context) error
}

// Run drives job through its lifecycle: marks it busy, calls DoJob, and
// records the outcome (success, abort, or error) in its Info. If async is
// true, Run launches DoJob in a new goroutine and returns immediately;
// otherwise it blocks until DoJob returns.
func Run(ctx context.Context, j Job, async bool) {
	runOne := func() {
		info := j.Info()
		info.SetBusy()

		err := j.DoJob(ctx)

		if info.Aborted() {
			info.markAborted()
			return
		}
		if err != nil {
			info.Fail(err)
			return
		}
		info.SetDone()
	}

	if async {
		go runOne()
	} else {
		runOne()
	}
}

// ParentJob owns a set of child jobs and propagates abort to all of them
// together. Embed ParentJob in a composite job type to get Abort/Children
// for free.
type ParentJob struct {
	mu       sync.Mutex
	children []Job
}

// AddChild registers a child job. Safe to call before or during the parent's
// execution.
func (p *ParentJob) AddChild(child Job) {
	p.mu.Lock()
	p.children = append(p.children, child)
	p.mu.Unlock()
}

// Children returns a snapshot of the current child job set.
func (p *ParentJob) Children() []Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Job, len(p.children))
	copy(out, p.children)
	return out
}

// Abort aborts every currently registered child and lets each unwind on
// its own.
func (p *ParentJob) Abort() {
	for _, child := range p.Children() {
		child.Info().Abort()
	}
}

// AndJob runs a fixed set of child jobs concurrently via errgroup and
// succeeds only if every child succeeds. Aborting an AndJob aborts its
// children and returns without reporting their individual failures as its
// own: the abort itself is the outcome.
type AndJob struct {
	ParentJob

	info *Info
	jobs []Job
}

// NewAndJob creates an AndJob over the given child jobs.
func NewAndJob(jobs []Job) *AndJob {
	a := &AndJob{info: NewInfo(), jobs: jobs}
	for _, j := range jobs {
		a.AddChild(j)
	}
	return a
}

// Info implements Job.
func (a *AndJob) Info() *Info {
	return a.info
}

// andJobPollInterval is how often a waiting AndJob checks its own Info for
// an abort propagated by a parent (ctx cancellation is observed directly).
const andJobPollInterval = 100 * time.Millisecond

// DoJob implements Job: it starts every child job concurrently (via
// errgroup.Group, one goroutine per child) and waits for all of them to
// finish, polling its own abort switch in the meantime. Cancellation (of
// ctx, or via Abort on this job's Info) propagates to every child; in both
// cases DoJob waits for the children to unwind and then returns non-nil, so
// a caller inspecting the AndJob's outcome never mistakes an interrupted
// parallel run for a completed one. Run converts the abort-switch case into
// the aborted state rather than an error, so an abort does not report the
// children's failures as the AndJob's own.
func (a *AndJob) DoJob(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, child := range a.jobs {
		child := child
		group.Go(func() error {
			Run(groupCtx, child, false)
			if child.Info().Aborted() {
				return nil
			}
			return child.Info().Err()
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	ticker := time.NewTicker(andJobPollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			a.Abort()
			if err := <-done; err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
			if a.info.CheckStatus() {
				a.Abort()
				if err := <-done; err != nil {
					return err
				}
				return errors.New("aborted")
			}
		}
	}
}

var _ Job = (*AndJob)(nil)
