package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/tunebot/internal/logger"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after queue stop.
	ErrQueueClosed = errors.New("download queue: closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("download queue: full")
)

// QueueOptions controls the behaviour of the download queue.
type QueueOptions struct {
	QueueSize int
	Workers   int
	// JobTimeout bounds one download job end to end.
	JobTimeout time.Duration
}

type job struct {
	ctx context.Context
	id  string
	run func(ctx context.Context)
}

// Queue executes download jobs on a bounded worker pool so that media
// retrieval never blocks update handling. Jobs are detached from their
// originating update: once accepted they run to completion or deadline.
type Queue struct {
	opts QueueOptions
	jobs chan job
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewQueue starts a queue with sane defaults if options are zeroed.
func NewQueue(opts QueueOptions) *Queue {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 3 * time.Minute
	}

	q := &Queue{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}

	q.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go q.worker()
	}
	return q
}

// Enqueue schedules the provided function for asynchronous execution. The
// job keeps the update's logging metadata but not its cancellation: the
// handler returning must not abort a download already underway.
func (q *Queue) Enqueue(ctx context.Context, run func(ctx context.Context)) error {
	if run == nil {
		return errors.New("download queue: nil run function")
	}
	select {
	case <-q.stop:
		return ErrQueueClosed
	default:
	}

	j := job{
		ctx: logger.Detach(ctx),
		id:  uuid.NewString(),
		run: run,
	}

	select {
	case q.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops workers and waits for them to finish processing queued jobs.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.stop)
		close(q.jobs)
		q.wg.Wait()
	})
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for j := range q.jobs {
		q.handle(j)
	}
}

func (q *Queue) handle(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, q.opts.JobTimeout)
	defer cancel()

	start := time.Now()
	logger.Debug(ctx, "download", "job.start", slog.String("job_id", j.id))
	j.run(ctx)
	logger.Debug(ctx, "download", "job.done",
		slog.String("job_id", j.id),
		slog.Duration("duration", logger.Took(start)),
	)
}
