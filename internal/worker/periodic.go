package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is a unit of recurring work, e.g. polling background checks or sweeping stale payments.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each job on its own ticker. A failing run is logged and
// the job keeps its schedule.
type Scheduler struct {
	jobs   []Job
	logger *zerolog.Logger
	wg     sync.WaitGroup
}

func NewScheduler(logger *zerolog.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, logger: logger}
}

func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.logger.Warn().Str("job", job.Name).Msg("Job disabled: non-positive interval")
			continue
		}
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
}

// Wait blocks until every job loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.logger.Info().Str("job", job.Name).Dur("interval", job.Interval).Msg("Job scheduled")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("job", job.Name).Msg("Job panicked")
		}
	}()
	start := time.Now()
	if err := job.Run(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Str("job", job.Name).Msg("Job run failed")
		return
	}
	s.logger.Debug().Str("job", job.Name).Dur("took", time.Since(start)).Msg("Job run finished")
}
