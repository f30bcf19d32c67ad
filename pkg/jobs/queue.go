// Package jobs carries background meeting processing: a durable queue, the
// processor that turns a transcript into a summary, and the worker loop.
package jobs

import (
	"context"
	"errors"
	"time"
)

// ProcessingJobName is enqueued once a meeting transcript is ready.
const ProcessingJobName = "meetings/processing"

type Job struct {
	Name          string `json:"name"`
	MeetingID     string `json:"meetingId"`
	TranscriptURL string `json:"transcriptUrl"`
	// Attempt counts earlier failed runs of this job.
	Attempt int `json:"attempt,omitempty"`
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as a failure that running the job again cannot fix.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Queue delivers each job to one consumer.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue waits up to timeout. ok is false when nothing arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (job Job, ok bool, err error)
	Close() error
}

var ErrQueueClosed = errors.New("jobs: queue closed")

// MemoryQueue is a bounded in-process queue.
type MemoryQueue struct {
	ch     chan Job
	done   chan struct{}
	closed bool
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan Job, size), done: make(chan struct{})}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	select {
	case q.ch <- job:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case job := <-q.ch:
		return job, true, nil
	case <-timer.C:
		return Job{}, false, nil
	case <-q.done:
		return Job{}, false, ErrQueueClosed
	case <-ctx.Done():
		return Job{}, false, ctx.Err()
	}
}

// Close is not safe to call concurrently with itself.
func (q *MemoryQueue) Close() error {
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}
