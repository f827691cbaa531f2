// Package scheduler runs the assistant's periodic maintenance jobs (session
// eviction, catalog health probes) on robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 2 * time.Minute

// JobFunc is the work a job performs.
type JobFunc func(ctx context.Context) error

// Job is a named recurring task.
type Job struct {
	// Name identifies the job in logs and status output.
	Name string

	// Schedule is a cron expression or descriptor ("@every 10m").
	Schedule string

	// Timeout bounds one run (default: DefaultJobTimeout).
	Timeout time.Duration

	// Run performs the work.
	Run JobFunc
}

// JobStatus is a snapshot of a job's run history.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	RunCount  int       `json:"run_count"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	NextRunAt time.Time `json:"next_run_at,omitempty"`
}

type jobState struct {
	job     Job
	entryID cron.EntryID
	status  JobStatus
}

// Scheduler runs registered jobs on their schedules. Jobs are in-process
// only; nothing is persisted across restarts.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu          sync.Mutex
	jobs        map[string]*jobState
	runningJobs map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		logger:      logger.With("component", "scheduler"),
		jobs:        make(map[string]*jobState),
		runningJobs: make(map[string]bool),
		ctx:         context.Background(),
	}
}

// Add registers a job. The schedule is validated immediately.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("scheduler: job needs a name and a run function")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("scheduler: job %q already registered", job.Name)
	}

	st := &jobState{job: job, status: JobStatus{Name: job.Name, Schedule: job.Schedule}}
	id, err := s.cron.AddFunc(job.Schedule, func() { s.execute(st) })
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for %s: %w", job.Schedule, job.Name, err)
	}
	st.entryID = id
	s.jobs[job.Name] = st
	return nil
}

// Start begins firing jobs. Jobs run until Stop or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", n)
}

// Stop halts scheduling and waits briefly for running jobs.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn("scheduler stop timed out")
	}
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
}

// RunNow executes a job synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	st, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.execute(st)
}

// Status returns a snapshot of every job, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, st := range s.jobs {
		status := st.status
		status.NextRunAt = s.cron.Entry(st.entryID).Next
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// execute runs one job with an overlap guard, a timeout and panic recovery.
func (s *Scheduler) execute(st *jobState) (err error) {
	name := st.job.Name

	s.mu.Lock()
	if s.runningJobs[name] {
		s.mu.Unlock()
		s.logger.Warn("skipping job (already running)", "job", name)
		return nil
	}
	s.runningJobs[name] = true
	parent := s.ctx
	s.mu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error("scheduled job panicked", "job", name, "panic", r)
		}
		s.mu.Lock()
		delete(s.runningJobs, name)
		st.status.RunCount++
		st.status.LastRunAt = start
		st.status.LastError = ""
		if err != nil {
			st.status.LastError = err.Error()
		}
		s.mu.Unlock()
	}()

	timeout := st.job.Timeout
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if err = st.job.Run(ctx); err != nil {
		s.logger.Warn("scheduled job failed", "job", name, "error", err)
		return err
	}
	s.logger.Debug("scheduled job done", "job", name, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
