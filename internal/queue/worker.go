package queue

import (
	"context"
	"sync"
	"time"

	"github.com/cruisemall/affiliate/internal/logging"
	"github.com/cruisemall/affiliate/internal/metrics"
)

const depthInterval = 15 * time.Second

// Worker processes jobs from a queue
type Worker struct {
	redis       *RedisClient
	queue       string
	handler     JobHandler
	numWorkers  int
	pollTimeout time.Duration
	depthEvery  time.Duration
	logger      logging.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorker creates a new worker
func NewWorker(redis *RedisClient, queue string, handler JobHandler, numWorkers int, logger logging.Logger) *Worker {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Worker{
		redis:       redis,
		queue:       queue,
		handler:     handler,
		numWorkers:  numWorkers,
		pollTimeout: time.Second,
		depthEvery:  depthInterval,
		logger:      logger,
	}
}

// Start starts the worker goroutines
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.logger.WithField("queue", w.queue).Infof("Starting %d workers", w.numWorkers)

	for i := 0; i < w.numWorkers; i++ {
		w.wg.Add(1)
		go w.process(ctx, i)
	}

	w.wg.Add(1)
	go w.monitor(ctx)
}

// Stop stops the worker and waits for in-flight jobs
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.WithField("queue", w.queue).Info("Workers stopped")
}

func (w *Worker) process(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.redis.Dequeue(ctx, w.queue, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.WithError(err).WithField("queue", w.queue).Error("Error dequeueing job")
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollTimeout):
			}
			continue
		}
		if job == nil {
			continue
		}

		w.Handle(ctx, job, workerID)
	}
}

// monitor publishes the queue depth until ctx is cancelled
func (w *Worker) monitor(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.depthEvery)
	defer ticker.Stop()

	w.reportDepth(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reportDepth(ctx)
		}
	}
}

// reportDepth sets the pending and dead-letter gauges for the queue
func (w *Worker) reportDepth(ctx context.Context) {
	pending, err := w.redis.Len(ctx, w.queue)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.WithError(err).WithField("queue", w.queue).Warn("Error reading queue depth")
		}
		return
	}
	failed, err := w.redis.FailedLen(ctx, w.queue)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.WithError(err).WithField("queue", w.queue).Warn("Error reading dead-letter depth")
		}
		return
	}
	metrics.QueueDepth.WithLabelValues(w.queue, "pending").Set(float64(pending))
	metrics.QueueDepth.WithLabelValues(w.queue, "failed").Set(float64(failed))
}

// Handle runs the handler on one job and reschedules it on failure
func (w *Worker) Handle(ctx context.Context, job *Job, workerID int) {
	entry := w.logger.WithFields(logging.Fields{
		"queue":  w.queue,
		"job_id": job.ID,
		"worker": workerID,
	})

	if err := w.handler(ctx, *job); err != nil {
		entry.WithError(err).Warn("Error processing job")
		if err := w.redis.Fail(ctx, job, err); err != nil {
			entry.WithError(err).Error("Error marking job as failed")
		}
		w.reportDepth(ctx)
		return
	}
	entry.Debug("Job processed")
}
