package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a named periodic task. Run is invoked on every tick; errors are
// logged and the schedule keeps going.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner drives a fixed set of jobs on independent tickers.
type Runner struct {
	jobs   []Job
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewRunner(jobs ...Job) *Runner {
	return &Runner{
		jobs:   jobs,
		logger: slog.With("component", "jobs"),
	}
}

func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for _, j := range r.jobs {
		r.wg.Add(1)
		go r.loop(ctx, j)
	}
	r.logger.Info("job runner started", "jobs", len(r.jobs))
}

func (r *Runner) loop(ctx context.Context, j Job) {
	defer r.wg.Done()
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				r.logger.Error("job failed", "job", j.Name, "err", err)
			}
		}
	}
}

// Stop cancels all jobs and waits for in-flight runs to finish.
func (r *Runner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.logger.Info("job runner stopped")
}
