package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	apperrors "github.com/ubhacking/commitboard/internal/errors"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commitboard",
		Name:      "jobs_processed_total",
		Help:      "Jobs that finished processing, by job name and outcome.",
	}, []string{"job", "status"})

	jobRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "commitboard",
		Name:      "job_retries_total",
		Help:      "Handler retries after a failed attempt, by job name.",
	}, []string{"job"})
)

// Job is one unit of queued work. Payload is the JSON-encoded job parameters.
type Job struct {
	ID      string
	Name    string
	Payload []byte
}

// Handler processes one job. Delivery is at-least-once: a handler may see the
// same logical job again after a transient failure and must tolerate re-runs.
type Handler func(ctx context.Context, job Job) error

// Queue enqueues named jobs for asynchronous processing.
type Queue interface {
	Enqueue(ctx context.Context, name string, payload interface{}) error
}

// Dispatcher is an in-process job queue: a buffered channel drained by a
// fixed worker pool, with per-job linear-backoff retries. Ordering between
// jobs is not guaranteed.
type Dispatcher struct {
	jobs       chan Job
	handlers   map[string]Handler
	logger     *logrus.Logger
	workers    int
	maxRetries int
	retryDelay time.Duration

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewDispatcher(workers, maxRetries int, retryDelay time.Duration, logger *logrus.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		jobs:       make(chan Job, 256),
		handlers:   make(map[string]Handler),
		logger:     logger,
		workers:    workers,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		done:       make(chan struct{}),
	}
}

// Register binds a handler to a job name. Must be called before Start.
func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[name] = h
}

// Enqueue marshals the payload and submits the job. Blocks while the queue is
// full until the context is cancelled or the dispatcher stops.
func (d *Dispatcher) Enqueue(ctx context.Context, name string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewQueueError("failed to marshal job payload", err)
	}

	job := Job{ID: xid.New().String(), Name: name, Payload: data}

	// Checked first on its own: the main select races the buffered channel
	// against the closed done channel and would accept jobs nobody drains.
	select {
	case <-d.done:
		return apperrors.NewQueueError("dispatcher stopped", nil)
	default:
	}

	select {
	case d.jobs <- job:
		return nil
	case <-d.done:
		return apperrors.NewQueueError("dispatcher stopped", nil)
	case <-ctx.Done():
		return apperrors.NewQueueError("enqueue cancelled", ctx.Err())
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Stop signals workers to finish and waits for in-flight jobs. Jobs still
// buffered when Stop is called are dropped; the queue is in-process, so
// durability across restarts is out of scope.
func (d *Dispatcher) Stop() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case <-ctx.Done():
			return
		case job := <-d.jobs:
			d.process(ctx, job)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, job Job) {
	h, ok := d.handlers[job.Name]
	if !ok {
		d.logger.Errorf("no handler registered for job %q", job.Name)
		jobsProcessed.WithLabelValues(job.Name, "unhandled").Inc()
		return
	}

	var lastErr error
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			jobRetries.WithLabelValues(job.Name).Inc()
			backoff := time.Duration(attempt) * d.retryDelay
			select {
			case <-time.After(backoff):
			case <-d.done:
				return
			case <-ctx.Done():
				return
			}
		}

		if err := h(ctx, job); err != nil {
			lastErr = err
			continue
		}
		jobsProcessed.WithLabelValues(job.Name, "ok").Inc()
		return
	}

	jobsProcessed.WithLabelValues(job.Name, "failed").Inc()
	d.logger.Errorf("%v", fmt.Errorf("failed to process %s job %s after %d attempts: %w",
		job.Name, job.ID, d.maxRetries+1, lastErr))
}
