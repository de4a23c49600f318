package job

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeJob struct {
	info *Info
	work func(ctx context.Context, info *Info) error
}

func newFakeJob(work func(ctx context.Context, info *Info) error) *fakeJob {
	return &fakeJob{info: NewInfo(), work: work}
}

func (f *fakeJob) Info() *Info { return f.info }

func (f *fakeJob) DoJob(ctx context.Context) error {
	return f.work(ctx, f.info)
}

func TestRunSyncSuccess(t *testing.T) {
	j := newFakeJob(func(ctx context.Context, info *Info) error { return nil })
	Run(context.Background(), j, false)
	if j.Info().State() != StateFinishedSuccess {
		t.Fatalf("expected success, got %v", j.Info().State())
	}
}

func TestRunSyncFailure(t *testing.T) {
	sentinel := errors.New("boom")
	j := newFakeJob(func(ctx context.Context, info *Info) error { return sentinel })
	Run(context.Background(), j, false)
	if j.Info().State() != StateFinishedError {
		t.Fatalf("expected error state, got %v", j.Info().State())
	}
	if j.Info().Err() != sentinel {
		t.Fatalf("expected sentinel error, got %v", j.Info().Err())
	}
}

func TestCheckStatusReflectsAbort(t *testing.T) {
	info := NewInfo()
	if info.CheckStatus() {
		t.Fatal("fresh job should not report aborted")
	}
	info.Abort()
	if !info.CheckStatus() {
		t.Fatal("expected CheckStatus to report true after Abort")
	}
}

func TestRunMarksAbortedWhenJobExitsAfterAbort(t *testing.T) {
	started := make(chan struct{})
	j := newFakeJob(func(ctx context.Context, info *Info) error {
		close(started)
		for !info.CheckStatus() {
			time.Sleep(time.Millisecond)
		}
		return nil
	})
	go Run(context.Background(), j, false)
	<-started
	j.Info().Abort()

	deadline := time.After(time.Second)
	for j.Info().State() != StateAborted {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for aborted state")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestParentJobAbortPropagates(t *testing.T) {
	var parent ParentJob
	child1 := newFakeJob(func(ctx context.Context, info *Info) error { return nil })
	child2 := newFakeJob(func(ctx context.Context, info *Info) error { return nil })
	parent.AddChild(child1)
	parent.AddChild(child2)

	parent.Abort()

	if !child1.Info().Aborted() || !child2.Info().Aborted() {
		t.Fatal("expected abort to propagate to all children")
	}
}

func TestAndJobSucceedsWhenAllChildrenSucceed(t *testing.T) {
	children := []Job{
		newFakeJob(func(ctx context.Context, info *Info) error { return nil }),
		newFakeJob(func(ctx context.Context, info *Info) error { return nil }),
		newFakeJob(func(ctx context.Context, info *Info) error { return nil }),
	}
	a := NewAndJob(children)
	Run(context.Background(), a, false)
	if a.Info().State() != StateFinishedSuccess {
		t.Fatalf("expected AndJob success, got %v (%v)", a.Info().State(), a.Info().Err())
	}
}

func TestAndJobFailsWhenAnyChildFails(t *testing.T) {
	sentinel := errors.New("child failed")
	children := []Job{
		newFakeJob(func(ctx context.Context, info *Info) error { return nil }),
		newFakeJob(func(ctx context.Context, info *Info) error { return sentinel }),
	}
	a := NewAndJob(children)
	Run(context.Background(), a, false)
	if a.Info().State() != StateFinishedError {
		t.Fatalf("expected AndJob error state, got %v", a.Info().State())
	}
}

func TestAndJobCancellationIsNotSuccess(t *testing.T) {
	children := []Job{
		newFakeJob(func(ctx context.Context, info *Info) error {
			<-ctx.Done()
			return ctx.Err()
		}),
	}
	a := NewAndJob(children)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	Run(ctx, a, false)

	if a.Info().State() == StateFinishedSuccess {
		t.Fatal("a cancelled AndJob must not report success")
	}
	if a.Info().Err() == nil {
		t.Fatal("a cancelled AndJob must carry a non-nil error")
	}
}

func TestAndJobOwnAbortStopsChildren(t *testing.T) {
	child := newFakeJob(func(ctx context.Context, info *Info) error {
		for !info.CheckStatus() {
			time.Sleep(time.Millisecond)
		}
		return nil
	})
	a := NewAndJob([]Job{child})

	go func() {
		time.Sleep(10 * time.Millisecond)
		a.Info().Abort()
	}()

	done := make(chan struct{})
	go func() {
		Run(context.Background(), a, false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for abort to stop the AndJob")
	}
	if !child.Info().Aborted() {
		t.Fatal("expected the abort to propagate to the child")
	}
	if a.Info().State() != StateAborted {
		t.Fatalf("expected aborted state, got %v", a.Info().State())
	}
}

func TestAndJobAbortPropagatesToChildrenWithoutReportingChildFailure(t *testing.T) {
	blocker := make(chan struct{})
	children := []Job{
		newFakeJob(func(ctx context.Context, info *Info) error {
			<-blocker
			return nil
		}),
	}
	a := NewAndJob(children)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, a, false)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	close(blocker)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for AndJob to unwind after cancellation")
	}
}
