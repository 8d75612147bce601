// Package worker provides an asynchronous worker pool that persists finished
// generation records using the provided storage.Driver and publishes them to
// the provided eventstream.Publisher.
//
// The pool keeps storage and publishing off the gateway's HTTP hot path.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/papercomputeco/lmgate/pkg/eventstream"
	"github.com/papercomputeco/lmgate/pkg/logger"
	"github.com/papercomputeco/lmgate/pkg/metrics"
	"github.com/papercomputeco/lmgate/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Record *storage.Record
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for generation records.
	Driver storage.Driver

	// Publisher is the optional event stream. Nil disables publishing.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool processes record jobs asynchronously.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("worker pool requires a storage driver")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns false if the queue is full and the job was dropped.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("record queued",
			"id", job.Record.ID,
			"model", job.Record.Model,
		)
		return true
	default:
		metrics.RecordDropped()
		p.logger.Error("record not queued, queue full, record dropped",
			"id", job.Record.ID,
			"model", job.Record.Model,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the gateway HTTP server has stopped.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}

// worker continuously pulls jobs off the queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("record worker stopped", "worker_id", id)
}

// processJob stores the record, then publishes it. A publish failure is
// logged and does not undo the stored record.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	isNew, err := p.config.Driver.Put(ctx, job.Record)
	if err != nil {
		p.logger.Error("async record storage failed",
			"id", job.Record.ID,
			"error", err,
		)
		return
	}

	p.logger.Debug("record stored",
		"id", job.Record.ID,
		"status", job.Record.Status,
		"is_new", isNew,
	)

	if !isNew || p.config.Publisher == nil {
		return
	}

	event := eventstream.NewGenerationCompletedEvent(job.Record)
	if err := p.config.Publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish generation event",
			"id", job.Record.ID,
			"event_id", event.EventID,
			"error", err,
		)
	}
}
