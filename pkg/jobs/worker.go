package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = 2 * time.Second
	maxRetryBackoff     = time.Minute
)

type JobRecorder interface {
	RecordJob(name, outcome string)
}

// Worker pulls jobs off a Queue and hands them to a Processor.
type Worker struct {
	Queue     Queue
	Processor interface {
		Process(ctx context.Context, job Job) error
	}
	Logger  *slog.Logger
	Metrics JobRecorder
	// PollTimeout bounds each Dequeue wait.
	PollTimeout time.Duration
	// ErrorBackoff is slept after a queue error.
	ErrorBackoff time.Duration
	// MaxAttempts bounds how often a failing job runs. Zero selects
	// DefaultMaxAttempts.
	MaxAttempts int
	// RetryBackoff is the first delay before a failed job is re-enqueued. It
	// doubles per attempt.
	RetryBackoff time.Duration
}

// Run blocks until ctx is cancelled or the queue is closed.
func (w *Worker) Run(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poll := w.PollTimeout
	if poll <= 0 {
		poll = 5 * time.Second
	}
	backoff := w.ErrorBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		job, ok, err := w.Queue.Dequeue(ctx, poll)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			logger.Error("dequeue failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		if !ok {
			continue
		}
		w.handle(ctx, logger, job)
	}
}

func (w *Worker) handle(ctx context.Context, logger *slog.Logger, job Job) {
	if job.Name != ProcessingJobName {
		logger.Warn("unknown job", "name", job.Name)
		w.record(job.Name, "skipped")
		return
	}
	start := time.Now()
	if err := w.Processor.Process(ctx, job); err != nil {
		if IsPermanent(err) || job.Attempt+1 >= w.maxAttempts() {
			logger.Error("job failed", "name", job.Name, "meeting_id", job.MeetingID, "attempt", job.Attempt+1, "error", err)
			w.record(job.Name, "failed")
			return
		}
		w.retry(ctx, logger, job, err)
		return
	}
	logger.Info("job done", "name", job.Name, "meeting_id", job.MeetingID, "duration_ms", time.Since(start).Milliseconds())
	w.record(job.Name, "completed")
}

// retry waits out the backoff for job's attempt and puts it back on the
// queue. A cancelled ctx skips the wait so shutdown does not drop the job.
func (w *Worker) retry(ctx context.Context, logger *slog.Logger, job Job, cause error) {
	delay := w.retryDelay(job.Attempt)
	logger.Warn("job failed, retrying", "name", job.Name, "meeting_id", job.MeetingID,
		"attempt", job.Attempt+1, "retry_in_ms", delay.Milliseconds(), "error", cause)

	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
	case <-timer.C:
	}

	job.Attempt++
	enqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.Queue.Enqueue(enqCtx, job); err != nil {
		logger.Error("re-enqueue failed", "name", job.Name, "meeting_id", job.MeetingID, "error", err)
		w.record(job.Name, "failed")
		return
	}
	w.record(job.Name, "retried")
}

func (w *Worker) maxAttempts() int {
	if w.MaxAttempts > 0 {
		return w.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (w *Worker) retryDelay(attempt int) time.Duration {
	base := w.RetryBackoff
	if base <= 0 {
		base = DefaultRetryBackoff
	}
	b := retry.WithCappedDuration(maxRetryBackoff, retry.NewExponential(base))
	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d, _ = b.Next()
	}
	return d
}

func (w *Worker) record(name, outcome string) {
	if w.Metrics != nil {
		w.Metrics.RecordJob(name, outcome)
	}
}
