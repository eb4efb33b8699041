package storage

import (
	"context"
	"sync"
)

const defaultQueueDepth = 64

type queuedJob struct {
	run  func() error
	done chan error
}

// KeyedQueue serializes jobs per storage key. Each key gets one worker
// goroutine, so jobs for the same key run one at a time in submission order
// while different keys proceed independently.
type KeyedQueue struct {
	mu     sync.Mutex
	queues map[string]chan queuedJob
	depth  int
	wg     sync.WaitGroup
	closed bool
}

// NewKeyedQueue creates a queue; depth bounds pending jobs per key
func NewKeyedQueue(depth int) *KeyedQueue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &KeyedQueue{
		queues: make(map[string]chan queuedJob),
		depth:  depth,
	}
}

// worker processes jobs for one key
func (q *KeyedQueue) worker(jobs <-chan queuedJob) {
	defer q.wg.Done()
	for job := range jobs {
		job.done <- job.run()
	}
}

// Submit enqueues job for key and returns a channel that receives its result.
// Jobs submitted for the same key run in the order Submit was called.
func (q *KeyedQueue) Submit(key string, job func() error) <-chan error {
	done := make(chan error, 1)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		done <- ErrStoreClosed
		return done
	}

	jobs, ok := q.queues[key]
	if !ok {
		jobs = make(chan queuedJob, q.depth)
		q.queues[key] = jobs
		q.wg.Add(1)
		go q.worker(jobs)
	}
	jobs <- queuedJob{run: job, done: done}
	return done
}

// Do submits job and waits for it. If ctx ends first, Do returns ctx.Err()
// while the job still runs to completion in order.
func (q *KeyedQueue) Do(ctx context.Context, key string, job func() error) error {
	select {
	case err := <-q.Submit(key, job):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued ones to finish
func (q *KeyedQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, jobs := range q.queues {
		close(jobs)
	}
	q.mu.Unlock()

	q.wg.Wait()
}
