package background

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"findixi/internal/services"

	"github.com/go-co-op/gocron/v2"
)

const tokenRefreshJob = "clover-token-refresh"

// TokenRefresher runs one pass of the POS token sweep.
type TokenRefresher interface {
	Run(ctx context.Context) (*services.SweepResult, error)
}

// JobScheduler runs the background jobs of the order service
type JobScheduler struct {
	scheduler gocron.Scheduler
	refresher TokenRefresher
	interval  time.Duration
	jobs      map[string]gocron.Job
	mu        sync.RWMutex
}

// NewJobScheduler creates a scheduler that sweeps POS tokens every interval.
func NewJobScheduler(refresher TokenRefresher, interval time.Duration) (*JobScheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid token refresh interval %s", interval)
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	js := &JobScheduler{
		scheduler: scheduler,
		refresher: refresher,
		interval:  interval,
		jobs:      make(map[string]gocron.Job),
	}
	if err := js.registerJobs(); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

// Start starts the job scheduler
func (js *JobScheduler) Start() {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
}

// Stop stops the job scheduler and waits for running jobs
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() error {
	// One sweep at a time; a slow sweep pushes the next run back.
	job, err := js.scheduler.NewJob(
		gocron.DurationJob(js.interval),
		gocron.NewTask(js.refreshTokens),
		gocron.WithName(tokenRefreshJob),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to create token refresh job: %w", err)
	}

	js.mu.Lock()
	js.jobs[tokenRefreshJob] = job
	js.mu.Unlock()
	log.Printf("Registered %d background jobs", len(js.jobs))
	return nil
}

func (js *JobScheduler) refreshTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), js.interval)
	defer cancel()

	result, err := js.refresher.Run(ctx)
	if err != nil {
		log.Printf("ERROR: [clover-refresh] sweep failed: %v", err)
		return
	}
	if result.Failed > 0 {
		log.Printf("WARN: [clover-refresh] %d of %d connections failed to refresh, samples: %+v",
			result.Failed, result.Total, result.Failures)
	}
}

// NextRun reports when the named job runs next.
func (js *JobScheduler) NextRun(name string) (time.Time, error) {
	js.mu.RLock()
	job, ok := js.jobs[name]
	js.mu.RUnlock()
	if !ok {
		return time.Time{}, fmt.Errorf("job %s not registered", name)
	}
	return job.NextRun()
}
