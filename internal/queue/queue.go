// Package queue provides a bounded-concurrency job runner with retry and
// exponential backoff. Every component that calls an external service or
// does bulk I/O runs its work through a Queue.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

// Config for a queue.
type Config struct {
	Name        string
	Concurrency int // max jobs running at once
	Attempts    uint
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Queue admits at most Concurrency jobs at a time. Jobs beyond the cap
// wait for a slot without consuming one. Transient failures (see
// Transient) are retried with exponential backoff; terminal failures
// are returned as-is.
type Queue struct {
	cfg Config
	sem chan struct{}
	log *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// New creates a queue.
func New(cfg Config, log *slog.Logger) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		cfg: cfg,
		sem: make(chan struct{}, cfg.Concurrency),
		log: log.With("queue", cfg.Name),
	}
}

// Do runs job synchronously: waits for an admission slot, then executes
// with the retry policy. Returns the job's final error.
func (q *Queue) Do(ctx context.Context, job func(context.Context) error) error {
	select {
	case q.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-q.sem }()

	return q.run(ctx, job)
}

// Submit schedules job asynchronously and returns its id. The result is
// only logged; use Do when the caller needs the error.
func (q *Queue) Submit(ctx context.Context, name string, job func(context.Context) error) (string, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrClosed
	}
	q.wg.Add(1)
	q.mu.Unlock()

	id := uuid.NewString()
	go func() {
		defer q.wg.Done()
		if err := q.Do(ctx, job); err != nil {
			q.log.Error("job failed", "job", name, "job_id", id, "error", err)
			return
		}
		q.log.Debug("job done", "job", name, "job_id", id)
	}()
	return id, nil
}

func (q *Queue) run(ctx context.Context, job func(context.Context) error) error {
	return retry.Do(
		func() error { return job(ctx) },
		retry.Context(ctx),
		retry.Attempts(q.cfg.Attempts),
		retry.Delay(q.cfg.BaseDelay),
		retry.MaxDelay(q.cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			q.log.Debug("retrying job", "attempt", n+1, "error", err)
		}),
	)
}

// Close stops accepting new jobs and waits for in-flight ones.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}
