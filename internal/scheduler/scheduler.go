// Package scheduler runs background jobs on fixed intervals. Each job keeps
// at most one execution in flight: a tick that arrives while the previous run
// is still executing is skipped, not queued. Panics inside a run are
// recovered and logged, so one bad pass never takes down the process.
package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is one scheduled unit of work.
type Job struct {
	// Name identifies the job in logs.
	Name string
	// Interval is the time between triggers.
	Interval time.Duration
	// Run executes one pass. A returned error is logged, never fatal.
	Run func(ctx context.Context) error
	// Immediate triggers the first run right at Start instead of waiting a
	// full interval.
	Immediate bool

	running sync.Mutex
}

// Scheduler owns a set of interval jobs.
type Scheduler struct {
	log  zerolog.Logger
	jobs []*Job
	wg   sync.WaitGroup
}

// New constructs an empty scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{log: log.With().Str("component", "scheduler").Logger()}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(job *Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches one goroutine per job. The goroutines exit when ctx is
// cancelled; Wait blocks until they all have.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(j *Job) {
			defer s.wg.Done()
			s.loop(ctx, j)
		}(job)
	}
}

// Wait blocks until every job loop has stopped.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) loop(ctx context.Context, j *Job) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	if j.Immediate {
		s.fire(ctx, j)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, j)
		}
	}
}

// fire runs one pass unless the previous one is still executing.
func (s *Scheduler) fire(ctx context.Context, j *Job) {
	if !j.running.TryLock() {
		s.log.Warn().Str("job", j.Name).Msg("previous run still in flight, skipping tick")
		return
	}
	defer j.running.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("job", j.Name).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("job panicked")
		}
	}()

	if err := j.Run(ctx); err != nil {
		s.log.Error().Err(err).Str("job", j.Name).Dur("took", time.Since(start)).Msg("job failed")
		return
	}
	s.log.Info().Str("job", j.Name).Dur("took", time.Since(start)).Msg("job finished")
}
