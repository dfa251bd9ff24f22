package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Job is a periodic background task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Runner drives each job on its own ticker. A job never overlaps itself, but
// different jobs run independently.
type Runner struct {
	jobs    []Job
	clock   clockwork.Clock
	log     *zap.Logger
	timeout time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRunner creates a runner. Each run gets timeout to finish; zero means no limit.
func NewRunner(clock clockwork.Clock, logger *zap.Logger, timeout time.Duration, jobs ...Job) *Runner {
	return &Runner{
		jobs:    jobs,
		clock:   clock,
		log:     logger,
		timeout: timeout,
		stopCh:  make(chan struct{}),
	}
}

// Start launches one goroutine per job.
func (r *Runner) Start() {
	for _, j := range r.jobs {
		if j.Interval <= 0 {
			r.log.Warn("job skipped: non-positive interval", zap.String("job", j.Name))
			continue
		}
		r.wg.Add(1)
		go r.loop(j)
		r.log.Info("job started", zap.String("job", j.Name), zap.Duration("interval", j.Interval))
	}
}

// Stop signals every job to stop and waits for in-flight runs to finish.
func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	r.log.Info("jobs stopped")
}

func (r *Runner) loop(j Job) {
	defer r.wg.Done()

	ticker := r.clock.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.Chan():
			r.RunOnce(j)
		}
	}
}

// RunOnce executes j a single time, turning a panic into a logged error.
func (r *Runner) RunOnce(j Job) (err error) {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := r.clock.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Name, p)
		}
		if err != nil {
			r.log.Error("job failed", zap.String("job", j.Name), zap.Error(err))
			return
		}
		r.log.Debug("job finished", zap.String("job", j.Name), zap.Duration("took", r.clock.Since(start)))
	}()
	return j.Run(ctx)
}
