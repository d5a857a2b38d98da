// Package worker runs statement jobs on a bounded pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultWorkers    = 4
	DefaultMaxRetries = 3
	DefaultBuffer     = 100
)

// Status represents the current status of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// ErrClosed is returned when submitting to a stopped pool.
var ErrClosed = errors.New("worker pool is closed")

// Job is one unit of work: processing a single statement.
type Job struct {
	ID          string     `json:"jobId"`
	StatementID uint64     `json:"statementId"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retryCount"`
	MaxRetries  int        `json:"maxRetries"`
}

// Handler processes a job. Returning an error schedules a retry unless the
// error is Permanent or the job is out of retries.
type Handler func(ctx context.Context, job *Job) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Pool distributes jobs to a fixed number of workers over a channel and is
// safe for concurrent use. Jobs still queued when the pool stops are dropped.
type Pool struct {
	jobChan    chan *Job
	closeChan  chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
	started    bool
	handler    Handler
	workers    int
	maxRetries int
	backoff    time.Duration
	log        zerolog.Logger

	jobsMu sync.RWMutex
	jobs   map[string]Job
}

// Option configures a Pool.
type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithMaxRetries sets how many times a failed job is re-queued.
func WithMaxRetries(n int) Option {
	return func(p *Pool) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// WithBackoff sets the base retry delay; retry n waits n times as long.
func WithBackoff(d time.Duration) Option {
	return func(p *Pool) { p.backoff = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// New creates a pool that runs handler for every submitted job.
func New(handler Handler, opts ...Option) *Pool {
	p := &Pool{
		jobChan:    make(chan *Job, DefaultBuffer),
		closeChan:  make(chan struct{}),
		handler:    handler,
		workers:    DefaultWorkers,
		maxRetries: DefaultMaxRetries,
		backoff:    time.Second,
		log:        zerolog.Nop(),
		jobs:       make(map[string]Job),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start launches the workers. They exit when ctx is cancelled or the pool stops.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.log.Info().Int("workers", p.workers).Msg("worker pool started")
	return nil
}

// Submit queues a job for a statement and returns its id.
func (p *Pool) Submit(ctx context.Context, statementID uint64) (string, error) {
	job := &Job{
		ID:          uuid.New().String(),
		StatementID: statementID,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
		MaxRetries:  p.maxRetries,
	}
	if err := p.enqueue(ctx, job); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (p *Pool) enqueue(ctx context.Context, job *Job) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	// jobChan is never closed; closeChan wakes a sender blocked on a full queue
	p.save(job)
	select {
	case p.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.closeChan:
		return ErrClosed
	}
}

// Job returns a snapshot of a job's state.
func (p *Pool) Job(id string) (Job, bool) {
	p.jobsMu.RLock()
	defer p.jobsMu.RUnlock()
	j, ok := p.jobs[id]
	return j, ok
}

func (p *Pool) save(job *Job) {
	p.jobsMu.Lock()
	defer p.jobsMu.Unlock()
	p.jobs[job.ID] = *job
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closeChan:
			return
		case job := <-p.jobChan:
			p.process(ctx, job)
		}
	}
}

// process executes a single job with retry logic.
func (p *Pool) process(ctx context.Context, job *Job) {
	job.Status = StatusRunning
	now := time.Now()
	job.StartedAt = &now
	p.save(job)

	log := p.log.With().Str("job_id", job.ID).Uint64("statement_id", job.StatementID).Logger()
	err := p.handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	switch {
	case err == nil:
		job.Status = StatusCompleted
		job.Error = ""
	case !IsPermanent(err) && job.RetryCount < job.MaxRetries:
		job.Error = err.Error()
		job.RetryCount++
		job.Status = StatusRetrying
		log.Warn().Err(err).Int("retry", job.RetryCount).Msg("job failed, retrying")
		p.save(job)
		p.retry(ctx, job)
		return
	default:
		job.Error = err.Error()
		job.Status = StatusFailed
		log.Error().Err(err).Int("retries", job.RetryCount).Msg("job failed")
	}
	p.save(job)
}

// retry re-queues job after a linear backoff.
func (p *Pool) retry(ctx context.Context, job *Job) {
	delay := time.Duration(job.RetryCount) * p.backoff
	p.wg.Add(1)
	time.AfterFunc(delay, func() {
		defer p.wg.Done()
		job.Status = StatusPending
		job.StartedAt = nil
		job.CompletedAt = nil
		if err := p.enqueue(ctx, job); err != nil {
			job.Status = StatusFailed
			p.save(job)
		}
	})
}

// Stop stops the pool and waits for in-flight jobs and scheduled retries.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closeChan)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
