// Package jobs runs periodic maintenance: expiring subscriptions, forgetting
// idle rate-limit visitors and old webhook event ids.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Mouaddiguoug/feetflight/internal/logging"
)

// Func is one job body.
type Func func(ctx context.Context) error

// Recorder receives the outcome of every run.
type Recorder interface {
	RecordJobRun(job string, success bool)
}

type job struct {
	name string
	spec string
	fn   Func
	id   cron.EntryID
}

// Scheduler runs registered jobs on cron schedules. Runs of the same job
// never overlap.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[string]*job
	running bool

	logger  *logging.Logger
	metrics Recorder
	timeout time.Duration
}

func NewScheduler(logger *logging.Logger, metrics Recorder) *Scheduler {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	return &Scheduler{
		cron:    c,
		jobs:    make(map[string]*job),
		logger:  logger,
		metrics: metrics,
		timeout: 5 * time.Minute,
	}
}

// Register adds a job. spec is a standard five-field cron expression or a
// descriptor such as "@every 10m".
func (s *Scheduler) Register(name, spec string, fn Func) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}
	j := &job{name: name, spec: spec, fn: fn}
	id, err := s.cron.AddFunc(spec, func() { _ = s.run(context.Background(), j) })
	if err != nil {
		return fmt.Errorf("schedule job %q: %w", name, err)
	}
	j.id = id
	s.jobs[name] = j
	return nil
}

// Run executes the named job once, outside its schedule.
func (s *Scheduler) Run(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, j)
}

func (s *Scheduler) run(ctx context.Context, j *job) error {
	ctx, cancel := context.WithTimeout(logging.WithTraceID(ctx, logging.NewTraceID()), s.timeout)
	defer cancel()

	start := time.Now()
	err := j.fn(ctx)
	s.metrics.RecordJobRun(j.name, err == nil)

	log := s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"job":         j.name,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		log.WithError(err).Error("job failed")
		return err
	}
	log.Debug("job finished")
	return nil
}

// Jobs returns the registered job names in order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next returns when the named job runs next, or the zero time when the
// scheduler is stopped.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(j.id).Next
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.WithContext(context.Background()).WithField("jobs", len(s.jobs)).Info("scheduler started")
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
