// Package dispatch owns the background worker pool. API handlers hand it
// work and return immediately; progress is observable only through the task
// ledger.
package dispatch

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"call-insights-go/internal/coaching"
	"call-insights-go/internal/ledger"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/pipeline"
	"call-insights-go/internal/store"
	"call-insights-go/internal/types"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 64
)

type job func(ctx context.Context)

// Dispatcher fans queued jobs out to a fixed pool of workers.
type Dispatcher struct {
	store    *store.Store
	ledger   *ledger.Ledger
	pipeline *pipeline.Executor
	coaching *coaching.Aggregator

	jobs   chan job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func New(s *store.Store, l *ledger.Ledger, p *pipeline.Executor, c *coaching.Aggregator) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		store:    s,
		ledger:   l,
		pipeline: p,
		coaching: c,
		jobs:     make(chan job, envInt("QUEUE_SIZE", defaultQueueSize)),
		ctx:      ctx,
		cancel:   cancel,
	}

	workers := envInt("WORKER_COUNT", defaultWorkers)
	log := logger.New().WithField("module", "dispatch")
	log.WithField("workers", workers).Info("starting worker pool")
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		j(d.ctx)
	}
}

// Close drains queued jobs and stops the workers. In-flight jobs get a grace
// period before their context is cancelled.
func (d *Dispatcher) Close() {
	close(d.jobs)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		d.cancel()
		<-done
	}
	d.cancel()
}

// TriggerPipeline starts an asynchronous pipeline run for a call. The call is
// atomically marked processing and its transcription ledger row created
// before this returns; ErrPipelineInFlight when a run is already active.
func (d *Dispatcher) TriggerPipeline(ctx context.Context, callID int64) (*types.Task, error) {
	task, err := d.store.BeginPipelineRun(ctx, callID, uuid.NewString())
	if err != nil {
		return nil, err
	}

	log := logger.New().WithField("module", "dispatch").WithField("call_id", callID)
	d.jobs <- func(jobCtx context.Context) {
		if err := d.pipeline.Run(jobCtx, callID, task.ID); err != nil {
			log.WithError(err).Error("pipeline run failed")
			return
		}
		log.Info("pipeline run completed")
	}
	return task, nil
}

// TriggerCoaching starts an asynchronous coaching run for an agent-day.
// Rejected with ErrCoachingExists when the record is already there.
func (d *Dispatcher) TriggerCoaching(ctx context.Context, agentID int64, date string) (*types.Task, error) {
	if date == "" {
		date = time.Now().UTC().Format(types.DateLayout)
	}
	if _, err := d.store.GetCoaching(ctx, agentID, date); err == nil {
		return nil, store.ErrCoachingExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	task, err := d.ledger.CreateForAgent(ctx, agentID, types.TaskCoaching, types.TaskProcessing, uuid.NewString())
	if err != nil {
		return nil, err
	}

	log := logger.New().WithField("module", "dispatch").WithField("agent_id", agentID).WithField("date", date)
	d.jobs <- func(jobCtx context.Context) {
		if _, err := d.coaching.GenerateDaily(jobCtx, agentID, date); err != nil {
			log.WithError(err).Error("coaching run failed")
			_ = d.ledger.Fail(jobCtx, task.ID, err.Error())
			return
		}
		_ = d.ledger.Complete(jobCtx, task.ID)
		log.Info("coaching run completed")
	}
	return task, nil
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
