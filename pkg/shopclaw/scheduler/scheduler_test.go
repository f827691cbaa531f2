package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAdd_Validation(t *testing.T) {
	t.Parallel()

	s := New(nil)
	noop := func(context.Context) error { return nil }

	if err := s.Add(Job{Name: "prune", Schedule: "@every 10m", Run: noop}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(Job{Name: "prune", Schedule: "@every 1m", Run: noop}); err == nil {
		t.Error("duplicate job name accepted")
	}
	if err := s.Add(Job{Name: "bad", Schedule: "not a schedule", Run: noop}); err == nil {
		t.Error("invalid schedule accepted")
	}
	if err := s.Add(Job{Name: "nil", Schedule: "@hourly"}); err == nil {
		t.Error("job without run func accepted")
	}
}

func TestRunNow_RecordsStatus(t *testing.T) {
	t.Parallel()

	s := New(nil)
	var calls atomic.Int32
	fail := errors.New("shop unreachable")
	s.Add(Job{Name: "ok", Schedule: "@every 1h", Run: func(context.Context) error {
		calls.Add(1)
		return nil
	}})
	s.Add(Job{Name: "bad", Schedule: "@every 1h", Run: func(context.Context) error { return fail }})
	s.Add(Job{Name: "boom", Schedule: "@every 1h", Run: func(context.Context) error { panic("oops") }})

	if err := s.RunNow("ok"); err != nil {
		t.Fatalf("RunNow(ok): %v", err)
	}
	if err := s.RunNow("bad"); !errors.Is(err, fail) {
		t.Errorf("RunNow(bad) = %v", err)
	}
	if err := s.RunNow("boom"); err == nil {
		t.Error("panic not converted to error")
	}
	if err := s.RunNow("missing"); err == nil {
		t.Error("unknown job accepted")
	}

	status := s.Status()
	if len(status) != 3 {
		t.Fatalf("got %d statuses", len(status))
	}
	// Sorted by name: bad, boom, ok.
	if status[0].Name != "bad" || status[0].LastError != "shop unreachable" {
		t.Errorf("bad status = %+v", status[0])
	}
	if status[1].LastError == "" {
		t.Error("panic not recorded")
	}
	if status[2].RunCount != 1 || status[2].LastError != "" || calls.Load() != 1 {
		t.Errorf("ok status = %+v", status[2])
	}
}

func TestExecute_SkipsOverlappingRun(t *testing.T) {
	t.Parallel()

	s := New(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	s.Add(Job{Name: "slow", Schedule: "@every 1h", Run: func(context.Context) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	}})

	done := make(chan struct{})
	go func() {
		s.RunNow("slow")
		close(done)
	}()
	<-started

	if err := s.RunNow("slow"); err != nil {
		t.Fatalf("overlapping run: %v", err)
	}
	close(release)
	<-done

	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", runs.Load())
	}
}

func TestExecute_Timeout(t *testing.T) {
	t.Parallel()

	s := New(nil)
	s.Add(Job{Name: "stuck", Schedule: "@every 1h", Timeout: 20 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	if err := s.RunNow("stuck"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()

	s := New(nil)
	s.Add(Job{Name: "tick", Schedule: "@every 1h", Run: func(context.Context) error { return nil }})
	s.Start(context.Background())

	status := s.Status()
	if len(status) != 1 || status[0].NextRunAt.IsZero() {
		t.Errorf("next run not scheduled: %+v", status)
	}
	s.Stop()
}
