package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the lifecycle of a queued job.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Job represents a queued background task.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// State is the externally visible snapshot of a job.
type State struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Status    Status      `json:"status"`
	Attempts  int         `json:"attempts"`
	Result    interface{} `json:"result,omitempty"`
	Error     string      `json:"error,omitempty"`
	Enqueued  time.Time   `json:"enqueued_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Handler processes a job and returns a result to expose through State.
type Handler func(context.Context, Job) (interface{}, error)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error that retrying cannot fix. The job is
// failed at once instead of being requeued.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

const defaultStateTTL = time.Hour

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	// StateTTL is how long a finished job's state stays visible.
	StateTTL time.Duration
	Logger   *zap.Logger
}

// Queue is a lightweight in-memory job dispatcher backed by goroutines. Job
// states are kept in memory; finished ones are dropped after StateTTL.
type Queue struct {
	name    string
	handler Handler

	workers    int
	maxRetries int
	retryDelay time.Duration
	stateTTL   time.Duration
	logger     *zap.Logger
	now        func() time.Time

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool

	statesMu sync.RWMutex
	states   map[string]*State
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = defaultStateTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		handler:    handler,
		workers:    cfg.Workers,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		stateTTL:   cfg.StateTTL,
		logger:     cfg.Logger,
		now:        func() time.Time { return time.Now().UTC() },
		jobs:       make(chan Job, cfg.BufferSize),
		states:     make(map[string]*State),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers)
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// Enqueue pushes a job onto the queue.
func (q *Queue) Enqueue(job Job) error {
	if job.ID == "" {
		return fmt.Errorf("queue %s: job id required", q.name)
	}
	q.pruneFinished()
	q.setState(job, func(s *State) { s.Status = StatusQueued })
	if err := q.push(job); err != nil {
		q.statesMu.Lock()
		delete(q.states, job.ID)
		q.statesMu.Unlock()
		return err
	}
	return nil
}

// State returns a copy of the job's current state.
func (q *Queue) State(id string) (State, bool) {
	q.statesMu.RLock()
	defer q.statesMu.RUnlock()
	s, ok := q.states[id]
	if !ok || q.expired(s) {
		return State{}, false
	}
	return *s, true
}

func (q *Queue) expired(s *State) bool {
	if s.Status != StatusSucceeded && s.Status != StatusFailed {
		return false
	}
	return q.now().Sub(s.UpdatedAt) > q.stateTTL
}

// pruneFinished drops finished states older than the TTL.
func (q *Queue) pruneFinished() {
	q.statesMu.Lock()
	defer q.statesMu.Unlock()
	for id, s := range q.states {
		if q.expired(s) {
			delete(q.states, id)
		}
	}
}

func (q *Queue) push(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			q.setState(job, func(s *State) {
				s.Status = StatusRunning
				s.Attempts = job.Attempt + 1
			})
			result, err := q.handler(q.ctx, job)
			if err != nil {
				q.handleFailure(job, err)
				continue
			}
			q.setState(job, func(s *State) {
				s.Status = StatusSucceeded
				s.Result = result
				s.Error = ""
			})
		}
	}
}

func (q *Queue) handleFailure(job Job, err error) {
	job.Attempt++
	if IsPermanent(err) {
		q.logger.Sugar().Errorw("job failed permanently", "queue", q.name, "job_id", job.ID, "type", job.Type, "error", err)
		q.setState(job, func(s *State) {
			s.Status = StatusFailed
			s.Error = err.Error()
		})
		return
	}
	if job.Attempt > q.maxRetries {
		q.logger.Sugar().Errorw("job exceeded retries", "queue", q.name, "job_id", job.ID, "type", job.Type, "error", err)
		q.setState(job, func(s *State) {
			s.Status = StatusFailed
			s.Error = err.Error()
		})
		return
	}
	q.logger.Sugar().Warnw("job failed, retrying", "queue", q.name, "job_id", job.ID, "type", job.Type, "attempt", job.Attempt, "error", err)
	q.setState(job, func(s *State) {
		s.Status = StatusQueued
		s.Error = err.Error()
	})

	go func(j Job) {
		timer := time.NewTimer(q.retryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.push(j); err != nil {
				q.logger.Sugar().Errorw("failed to requeue job", "queue", q.name, "job_id", j.ID, "error", err)
			}
		}
	}(job)
}

func (q *Queue) setState(job Job, mutate func(*State)) {
	q.statesMu.Lock()
	defer q.statesMu.Unlock()
	s, ok := q.states[job.ID]
	if !ok {
		enqueued := job.Enqueued
		if enqueued.IsZero() {
			enqueued = q.now()
		}
		s = &State{ID: job.ID, Type: job.Type, Enqueued: enqueued}
		q.states[job.ID] = s
	}
	mutate(s)
	s.UpdatedAt = q.now()
}
