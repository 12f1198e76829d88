// Package queue is an in-process job queue with a fixed worker pool and
// bounded retries. It carries the portal-facing work (submission, status
// polling, inspection scheduling) so HTTP handlers never block on a portal.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job types.
type JobType string

const (
	JobSubmitPermit       JobType = "submit_permit"
	JobPollStatus         JobType = "poll_status"
	JobScheduleInspection JobType = "schedule_inspection"
)

// Job statuses.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// retryDelays[i] is the wait before attempt i+2.
var retryDelays = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second, time.Minute}

const defaultMaxAttempts = 4

// ErrNoHandler is returned when a job type has no registered handler.
var ErrNoHandler = errors.New("no handler registered for job type")

// Job is one unit of queued work.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Type        JobType         `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      JobStatus       `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Handler executes one job attempt. A returned error triggers a retry until
// MaxAttempts is exhausted.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Queue dispatches jobs to a pool of workers.
type Queue struct {
	workers int
	logger  *slog.Logger

	mu       sync.Mutex
	handlers map[JobType]Handler
	jobs     map[uuid.UUID]*Job
	closed   bool

	ch     chan uuid.UUID
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(workers int, logger *slog.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		workers:  workers,
		logger:   logger,
		handlers: make(map[JobType]Handler),
		jobs:     make(map[uuid.UUID]*Job),
		ch:       make(chan uuid.UUID, 256),
	}
}

// Register installs the handler for a job type. Handlers must be registered
// before Start.
func (q *Queue) Register(t JobType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[t] = h
}

// Enqueue adds a job. payload is marshaled to JSON.
func (q *Queue) Enqueue(t JobType, payload any) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, errors.New("queue is stopped")
	}
	if _, ok := q.handlers[t]; !ok {
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, t)
	}
	now := time.Now().UTC()
	job := &Job{
		ID:          uuid.New(),
		Type:        t,
		Payload:     raw,
		Status:      StatusQueued,
		MaxAttempts: defaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.jobs[job.ID] = job
	q.mu.Unlock()

	q.ch <- job.ID
	return snapshot(job), nil
}

// Start launches the worker pool. Workers run until Stop is called or ctx is
// canceled.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// Get returns a copy of the job's current state.
func (q *Queue) Get(id uuid.UUID) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	return snapshot(job), true
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.ch:
			q.process(ctx, id)
		}
	}
}

func (q *Queue) process(ctx context.Context, id uuid.UUID) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return
	}
	handler := q.handlers[job.Type]
	job.Status = StatusRunning
	job.Attempts++
	job.UpdatedAt = time.Now().UTC()
	attempt := job.Attempts
	payload := job.Payload
	q.mu.Unlock()

	err := handler(ctx, payload)

	q.mu.Lock()
	defer q.mu.Unlock()
	job.UpdatedAt = time.Now().UTC()
	if err == nil {
		job.Status = StatusSucceeded
		job.LastError = ""
		q.logger.Info("job succeeded", "job_id", id, "type", job.Type, "attempts", attempt)
		return
	}

	job.LastError = err.Error()
	if attempt >= job.MaxAttempts {
		job.Status = StatusFailed
		q.logger.Error("job failed permanently", "job_id", id, "type", job.Type,
			"attempts", attempt, "error", err)
		return
	}

	job.Status = StatusQueued
	delay := retryDelays[len(retryDelays)-1]
	if attempt-1 < len(retryDelays) {
		delay = retryDelays[attempt-1]
	}
	q.logger.Warn("job attempt failed, retrying", "job_id", id, "type", job.Type,
		"attempt", attempt, "retry_in", delay, "error", err)
	time.AfterFunc(delay, func() {
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return
		}
		select {
		case q.ch <- id:
		case <-ctx.Done():
		}
	})
}

func snapshot(job *Job) *Job {
	copied := *job
	return &copied
}
